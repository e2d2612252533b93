package core

import (
	"math"
	"sync"
)

// unboundedCardinality marks a kind with no default ceiling.
const unboundedCardinality = math.MaxInt32

// defaultCardinality is the table of per-kind limits, consulted when an
// entity carries no contract_limit override for that kind.
var defaultCardinality = map[ComponentKind]int{
	KindIdentity:        1,
	KindMobility:        1,
	KindShape:           1,
	KindSolidity:        1,
	KindVisual:          1,
	KindEntrance:        1,
	KindPortable:        3,
	KindInventory:       1,
	KindDurability:      1,
	KindContractLimit:   1,
	KindMovementRules:   1,
	KindWorldConditions: 1,
	KindWorldCommands:   1,
	KindCommandAccess:   1,
}

// Validator checks a single component payload and returns a non-nil error
// (always an *InvalidComponentError) when the payload violates its kind's
// domain rules.
type Validator func(Component) error

// SchemaRegistry is the process-wide, closed-world validator for component
// payloads. It is populated once at startup with the built-in validators
// below; additional kinds can only be registered before the store starts
// accepting writes (tests use this to probe unknown-kind handling).
type SchemaRegistry struct {
	mu         sync.RWMutex
	validators map[ComponentKind]Validator
	defaults   map[ComponentKind]int
}

// NewSchemaRegistry builds a registry with every built-in kind registered.
func NewSchemaRegistry() *SchemaRegistry {
	r := &SchemaRegistry{
		validators: make(map[ComponentKind]Validator, len(defaultCardinality)),
		defaults:   make(map[ComponentKind]int, len(defaultCardinality)),
	}
	for k, v := range defaultCardinality {
		r.defaults[k] = v
	}
	r.Register(KindIdentity, validateIdentity)
	r.Register(KindMobility, validateMobility)
	r.Register(KindShape, validateShape)
	r.Register(KindSolidity, validateSolidity)
	r.Register(KindVisual, validateVisual)
	r.Register(KindEntrance, validateEntrance)
	r.Register(KindPortable, validatePortable)
	r.Register(KindInventory, validateInventory)
	r.Register(KindDurability, validateDurability)
	r.Register(KindContractLimit, validateContractLimit)
	r.Register(KindMovementRules, validateMovementRules)
	r.Register(KindWorldConditions, validateWorldConditions)
	r.Register(KindWorldCommands, validateCommandList)
	r.Register(KindCommandAccess, validateCommandList)
	return r
}

// Register installs (or replaces) the validator for kind. Intended for
// start-of-process wiring and tests; the session layer never calls this
// once the world is serving traffic.
func (r *SchemaRegistry) Register(kind ComponentKind, v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[kind] = v
}

// SetDefaultCardinality overrides the default ceiling for kind.
func (r *SchemaRegistry) SetDefaultCardinality(kind ComponentKind, max int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults[kind] = max
}

// Validate runs the registered validator for c.Kind(). An unregistered kind
// is itself a validation failure (ErrUnknownComponent), never a silent
// pass-through.
func (r *SchemaRegistry) Validate(c Component) error {
	r.mu.RLock()
	v, ok := r.validators[c.Kind()]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownComponent
	}
	return v(c)
}

// DefaultMax returns the default cardinality ceiling for kind, or
// unboundedCardinality if the kind carries no default.
func (r *SchemaRegistry) DefaultMax(kind ComponentKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n, ok := r.defaults[kind]; ok {
		return n
	}
	return unboundedCardinality
}

// MaxFor resolves the effective cardinality ceiling for kind given an
// entity's optional contract_limit overrides.
func (r *SchemaRegistry) MaxFor(overrides *ContractLimit, kind ComponentKind) int {
	if overrides != nil {
		if n, ok := overrides.Overrides[kind]; ok {
			return n
		}
	}
	return r.DefaultMax(kind)
}

func validateIdentity(c Component) error {
	id, ok := c.(Identity)
	if !ok {
		return invalidComponent(string(KindIdentity), "", "wrong payload type")
	}
	if id.ID == "" {
		return invalidComponent(string(KindIdentity), "id", "must not be empty")
	}
	return nil
}

func validateMobility(c Component) error {
	m, ok := c.(Mobility)
	if !ok {
		return invalidComponent(string(KindMobility), "", "wrong payload type")
	}
	if m.MaxSpeed != nil && *m.MaxSpeed <= 0 {
		return invalidComponent(string(KindMobility), "maxSpeed", "must be positive")
	}
	if m.Acceleration != nil && *m.Acceleration <= 0 {
		return invalidComponent(string(KindMobility), "acceleration", "must be positive")
	}
	return nil
}

func validateShape(c Component) error {
	s, ok := c.(Shape)
	if !ok {
		return invalidComponent(string(KindShape), "", "wrong payload type")
	}
	if s.Box.Min.X > s.Box.Max.X || s.Box.Min.Y > s.Box.Max.Y || s.Box.Min.Z > s.Box.Max.Z {
		return invalidComponent(string(KindShape), "box", "min must not exceed max on any axis")
	}
	switch s.Geometry {
	case GeometryBox, GeometrySphere, GeometryCylinder, GeometryMesh:
	default:
		return invalidComponent(string(KindShape), "geometry", "unrecognized geometry tag")
	}
	return nil
}

func validateSolidity(c Component) error {
	if _, ok := c.(Solidity); !ok {
		return invalidComponent(string(KindSolidity), "", "wrong payload type")
	}
	return nil
}

func validateVisual(c Component) error {
	if _, ok := c.(Visual); !ok {
		return invalidComponent(string(KindVisual), "", "wrong payload type")
	}
	return nil
}

func validateEntrance(c Component) error {
	if _, ok := c.(Entrance); !ok {
		return invalidComponent(string(KindEntrance), "", "wrong payload type")
	}
	return nil
}

func validatePortable(c Component) error {
	p, ok := c.(Portable)
	if !ok {
		return invalidComponent(string(KindPortable), "", "wrong payload type")
	}
	if p.Weight < 0 {
		return invalidComponent(string(KindPortable), "weight", "must not be negative")
	}
	return nil
}

func validateInventory(c Component) error {
	inv, ok := c.(Inventory)
	if !ok {
		return invalidComponent(string(KindInventory), "", "wrong payload type")
	}
	if inv.Capacity != nil && *inv.Capacity < 0 {
		return invalidComponent(string(KindInventory), "capacity", "must not be negative")
	}
	if inv.Capacity != nil && len(inv.Items) > *inv.Capacity {
		return invalidComponent(string(KindInventory), "items", "exceeds capacity")
	}
	return nil
}

func validateDurability(c Component) error {
	d, ok := c.(Durability)
	if !ok {
		return invalidComponent(string(KindDurability), "", "wrong payload type")
	}
	if d.MaxHealth <= 0 {
		return invalidComponent(string(KindDurability), "maxHealth", "must be positive")
	}
	if d.Health < 0 {
		return invalidComponent(string(KindDurability), "health", "must not be negative")
	}
	if d.Health > d.MaxHealth {
		return invalidComponent(string(KindDurability), "health", "must not exceed maxHealth")
	}
	if d.Armor < 0 {
		return invalidComponent(string(KindDurability), "armor", "must not be negative")
	}
	return nil
}

func validateContractLimit(c Component) error {
	cl, ok := c.(ContractLimit)
	if !ok {
		return invalidComponent(string(KindContractLimit), "", "wrong payload type")
	}
	for k, v := range cl.Overrides {
		if v <= 0 {
			return invalidComponent(string(KindContractLimit), "overrides."+string(k), "must be positive")
		}
	}
	return nil
}

func validateMovementRules(c Component) error {
	mr, ok := c.(MovementRules)
	if !ok {
		return invalidComponent(string(KindMovementRules), "", "wrong payload type")
	}
	if mr.StepDistance <= 0 {
		return invalidComponent(string(KindMovementRules), "stepDistance", "must be positive")
	}
	return nil
}

func validateWorldConditions(c Component) error {
	wc, ok := c.(WorldConditions)
	if !ok {
		return invalidComponent(string(KindWorldConditions), "", "wrong payload type")
	}
	switch wc.Weather {
	case WeatherClear, WeatherRain, WeatherStorm, WeatherSnow:
	default:
		return invalidComponent(string(KindWorldConditions), "weather", "unrecognized weather value")
	}
	switch wc.TimeOfDay {
	case TimeDawn, TimeDay, TimeDusk, TimeNight:
	default:
		return invalidComponent(string(KindWorldConditions), "timeOfDay", "unrecognized time-of-day value")
	}
	return nil
}

func validateCommandList(c Component) error {
	switch v := c.(type) {
	case WorldCommands:
		for _, name := range v.Allowed {
			if name == "" {
				return invalidComponent(string(KindWorldCommands), "allowed", "command names must not be empty")
			}
		}
	case CommandAccess:
		for _, name := range v.Allowed {
			if name == "" {
				return invalidComponent(string(KindCommandAccess), "allowed", "command names must not be empty")
			}
		}
	default:
		return invalidComponent("command_list", "", "wrong payload type")
	}
	return nil
}
