package core

import "encoding/json"

// toComponentMap round-trips c through JSON to a generic field map, used
// by shallowMergeComponent so a merge never needs per-kind field-copying
// code.
func toComponentMap(c Component) (map[string]any, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// componentFromMap rebuilds the concrete typed Component for kind from a
// generic field map.
func componentFromMap(kind ComponentKind, m map[string]any) (Component, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindIdentity:
		var v Identity
		err = json.Unmarshal(raw, &v)
		return v, err
	case KindMobility:
		var v Mobility
		err = json.Unmarshal(raw, &v)
		return v, err
	case KindShape:
		var v Shape
		err = json.Unmarshal(raw, &v)
		return v, err
	case KindSolidity:
		var v Solidity
		err = json.Unmarshal(raw, &v)
		return v, err
	case KindVisual:
		var v Visual
		err = json.Unmarshal(raw, &v)
		return v, err
	case KindEntrance:
		var v Entrance
		err = json.Unmarshal(raw, &v)
		return v, err
	case KindPortable:
		var v Portable
		err = json.Unmarshal(raw, &v)
		return v, err
	case KindInventory:
		var v Inventory
		err = json.Unmarshal(raw, &v)
		return v, err
	case KindDurability:
		var v Durability
		err = json.Unmarshal(raw, &v)
		return v, err
	case KindContractLimit:
		var v ContractLimit
		err = json.Unmarshal(raw, &v)
		return v, err
	case KindMovementRules:
		var v MovementRules
		err = json.Unmarshal(raw, &v)
		return v, err
	case KindWorldConditions:
		var v WorldConditions
		err = json.Unmarshal(raw, &v)
		return v, err
	case KindWorldCommands:
		var v WorldCommands
		err = json.Unmarshal(raw, &v)
		return v, err
	case KindCommandAccess:
		var v CommandAccess
		err = json.Unmarshal(raw, &v)
		return v, err
	default:
		return nil, ErrUnknownComponent
	}
}

// DecodeComponent parses a single JSON object of the wire shape
// {"kind": "<component kind>", ...fields} into its concrete typed
// Component. Transport and admin bindings use this to decode a
// caller-supplied component without needing per-kind switch code of their
// own.
func DecodeComponent(raw []byte) (Component, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	kindStr, _ := m["kind"].(string)
	return componentFromMap(ComponentKind(kindStr), m)
}

// shallowMergeComponent merges override's fields on top of base's fields
// (top-level only) and returns a freshly typed component of base's kind.
// This is the Archetype clone-override semantics: overrides shallow-merge
// into the cloned record of that kind.
func shallowMergeComponent(base, override Component) (Component, error) {
	baseMap, err := toComponentMap(base)
	if err != nil {
		return base, err
	}
	overrideMap, err := toComponentMap(override)
	if err != nil {
		return base, err
	}
	for k, v := range overrideMap {
		baseMap[k] = v
	}
	return componentFromMap(base.Kind(), baseMap)
}
