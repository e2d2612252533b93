package core

import (
	"encoding/json"
	"time"
)

// snapshotFormatVersion is bumped whenever the on-disk document shape
// changes in a way old readers could not tolerate.
const snapshotFormatVersion = 1

// componentEnvelope carries a component's kind alongside its generic field
// map, since a bare Component interface value loses its kind discriminator
// across a JSON round-trip (the concrete structs carry no "kind" field of
// their own — Kind() is derived from the Go type, not serialized).
type componentEnvelope struct {
	Kind   ComponentKind  `json:"kind"`
	Fields map[string]any `json:"fields"`
}

func encodeComponent(c Component) (componentEnvelope, error) {
	fields, err := toComponentMap(c)
	if err != nil {
		return componentEnvelope{}, err
	}
	return componentEnvelope{Kind: c.Kind(), Fields: fields}, nil
}

func encodeComponents(cs []Component) ([]componentEnvelope, error) {
	out := make([]componentEnvelope, 0, len(cs))
	for _, c := range cs {
		env, err := encodeComponent(c)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

func decodeComponents(envs []componentEnvelope) ([]Component, error) {
	out := make([]Component, 0, len(envs))
	for _, env := range envs {
		c, err := componentFromMap(env.Kind, env.Fields)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// snapshotEntity is the on-disk form of one entity: its id, the layer it
// was spawned into, and its full component set as envelopes.
type snapshotEntity struct {
	ID         string              `json:"id"`
	LayerID    string              `json:"layerId"`
	Components []componentEnvelope `json:"components"`
}

// snapshotArchetype is the on-disk form of one archetype definition.
type snapshotArchetype struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Tags       []string            `json:"tags"`
	Components []componentEnvelope `json:"components"`
}

// snapshotMetadata carries process-wide counters that outlive any single
// entity, restored alongside the entity/archetype/layer sets so a reloaded
// world keeps minting ids after the highest one it had ever issued.
type snapshotMetadata struct {
	PlayerCounter uint64 `json:"playerCounter"`
}

// snapshotDocument is the literal JSON shape written to and read from
// disk; Snapshot (the public, in-memory form below) translates to/from it.
type snapshotDocument struct {
	Version    int                 `json:"version"`
	Timestamp  int64               `json:"timestamp"`
	Layers     []Layer             `json:"layers"`
	Archetypes []snapshotArchetype `json:"archetypes"`
	Entities   []snapshotEntity    `json:"entities"`
	Metadata   snapshotMetadata    `json:"metadata"`
}

// Snapshot is the versioned document produced by World.Snapshot and
// consumed by World.Restore via the admin surface's save/load operations.
type Snapshot struct {
	Version    int
	Timestamp  int64
	Layers     []Layer
	Archetypes []Archetype
	Entities   []SnapshotEntity

	// PlayerCounter is the archetype catalog's spawn sequence at capture
	// time, round-tripped via the document's metadata.playerCounter.
	PlayerCounter uint64
}

// SnapshotEntity is one entity's persisted record: its id, the layer it
// was spawned into, and its full component set.
type SnapshotEntity struct {
	ID         string
	LayerID    string
	Components []Component
}

// Snapshot captures the full restorable state of the world: every
// configured layer, every defined archetype, and every entity with its
// layer membership and components.
func (w *World) Snapshot() (Snapshot, error) {
	layers := w.Layers.List()
	archetypes := w.Catalog.List()

	var entities []SnapshotEntity
	for _, id := range w.Store.AllEntityIDs() {
		components, ok := w.Store.Snapshot(id)
		if !ok {
			continue
		}
		layerID, _ := w.Catalog.LayerOf(id)
		entities = append(entities, SnapshotEntity{ID: id, LayerID: layerID, Components: components})
	}

	return Snapshot{
		Version:       snapshotFormatVersion,
		Timestamp:     time.Now().Unix(),
		Layers:        layers,
		Archetypes:    archetypes,
		Entities:      entities,
		PlayerCounter: w.Catalog.SpawnCounter(),
	}, nil
}

// MarshalSnapshot serializes a Snapshot to indented JSON, the on-disk save
// format.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	doc := snapshotDocument{
		Version:   s.Version,
		Timestamp: s.Timestamp,
		Layers:    s.Layers,
		Metadata:  snapshotMetadata{PlayerCounter: s.PlayerCounter},
	}

	for _, a := range s.Archetypes {
		envs, err := encodeComponents(a.Components)
		if err != nil {
			return nil, err
		}
		doc.Archetypes = append(doc.Archetypes, snapshotArchetype{ID: a.ID, Name: a.Name, Tags: a.Tags, Components: envs})
	}

	for _, e := range s.Entities {
		envs, err := encodeComponents(e.Components)
		if err != nil {
			return nil, err
		}
		doc.Entities = append(doc.Entities, snapshotEntity{ID: e.ID, LayerID: e.LayerID, Components: envs})
	}

	return json.MarshalIndent(doc, "", "  ")
}

// UnmarshalSnapshot parses the on-disk JSON format, decoding each entity's
// components via componentFromMap since Component is an interface with no
// custom JSON unmarshaler of its own.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:       doc.Version,
		Timestamp:     doc.Timestamp,
		Layers:        doc.Layers,
		PlayerCounter: doc.Metadata.PlayerCounter,
	}

	for _, a := range doc.Archetypes {
		components, err := decodeComponents(a.Components)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Archetypes = append(snap.Archetypes, Archetype{ID: a.ID, Name: a.Name, Tags: a.Tags, Components: components})
	}

	for _, e := range doc.Entities {
		components, err := decodeComponents(e.Components)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Entities = append(snap.Entities, SnapshotEntity{ID: e.ID, LayerID: e.LayerID, Components: components})
	}

	return snap, nil
}

// Restore rebuilds a World's layers, archetypes, and entities from a
// previously captured Snapshot. It does not touch sessions or the tick
// scheduler; callers restore into a freshly constructed, not-yet-running
// World.
func (w *World) Restore(s Snapshot) error {
	w.Catalog.SetSpawnCounter(s.PlayerCounter)

	for _, l := range s.Layers {
		if l.ID == DefaultLayerID {
			continue
		}
		if err := w.Layers.Create(l); err != nil {
			return err
		}
	}

	for _, a := range s.Archetypes {
		w.Catalog.Define(a)
	}

	for _, e := range s.Entities {
		if err := w.Store.Create(e.ID, e.Components...); err != nil {
			return err
		}
		layerID := e.LayerID
		if layerID == "" {
			layerID = DefaultLayerID
		}
		w.Catalog.RecordLayerMembership(layerID, e.ID)
	}

	return nil
}
