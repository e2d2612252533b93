package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Archetype is a named, taggable template of components.
type Archetype struct {
	ID         string
	Name       string
	Tags       []string
	Components []Component
}

// PlayerArchetypeID names the special-cased archetype with its own
// factory.
const PlayerArchetypeID = "player"

// baseCommandSet is the default command_access granted to a freshly
// spawned player.
var baseCommandSet = []string{
	"login", "logout", "set_view", "subscribe_chunks", "unsubscribe_chunks",
	"move", "move_dir", "add_contract", "remove_contract", "interact",
}

// ArchetypeCatalog stores archetype templates and spawns entities from
// them. It owns the per-layer entity index, tracking layer membership as
// a side index rather than a component.
type ArchetypeCatalog struct {
	store *EntityStore
	hub   *EventHub
	mu    sync.RWMutex
	defs  map[string]Archetype

	layerMu    sync.RWMutex
	layerIndex map[string]map[string]struct{} // layerID -> entity ids

	spawnSeq uint64
}

// NewArchetypeCatalog builds an empty catalog bound to store. hub may be
// nil, in which case spawn/despawn events are not published.
func NewArchetypeCatalog(store *EntityStore, hub *EventHub) *ArchetypeCatalog {
	return &ArchetypeCatalog{
		store:      store,
		hub:        hub,
		defs:       make(map[string]Archetype),
		layerIndex: make(map[string]map[string]struct{}),
	}
}

// Define installs (or overwrites) an archetype by id.
func (c *ArchetypeCatalog) Define(a Archetype) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[a.ID] = a
}

// Get returns a copy of the archetype with id, if defined.
func (c *ArchetypeCatalog) Get(id string) (Archetype, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.defs[id]
	return a, ok
}

// List returns every defined archetype.
func (c *ArchetypeCatalog) List() []Archetype {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Archetype, 0, len(c.defs))
	for _, a := range c.defs {
		out = append(out, a)
	}
	return out
}

// EntitiesInLayer returns every entity id recorded as spawned into
// layerID.
func (c *ArchetypeCatalog) EntitiesInLayer(layerID string) []string {
	c.layerMu.RLock()
	defer c.layerMu.RUnlock()
	set := c.layerIndex[layerID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// LayerOf returns the layer an entity was recorded as spawned into.
func (c *ArchetypeCatalog) LayerOf(entityID string) (string, bool) {
	c.layerMu.RLock()
	defer c.layerMu.RUnlock()
	for layerID, set := range c.layerIndex {
		if _, ok := set[entityID]; ok {
			return layerID, true
		}
	}
	return "", false
}

// RecordLayerMembership registers entityID as belonging to layerID without
// going through Spawn; used by snapshot restore.
func (c *ArchetypeCatalog) RecordLayerMembership(layerID, entityID string) {
	c.layerMu.Lock()
	defer c.layerMu.Unlock()
	set := c.layerIndex[layerID]
	if set == nil {
		set = make(map[string]struct{})
		c.layerIndex[layerID] = set
	}
	set[entityID] = struct{}{}
}

func (c *ArchetypeCatalog) forgetLayerMembership(entityID string) {
	c.layerMu.Lock()
	defer c.layerMu.Unlock()
	for _, set := range c.layerIndex {
		delete(set, entityID)
	}
}

func (c *ArchetypeCatalog) nextSpawnSuffix() string {
	seq := atomic.AddUint64(&c.spawnSeq, 1)
	return fmt.Sprintf("%d-%s", seq, uuid.NewString()[:8])
}

// SpawnCounter returns the process-wide spawn sequence's current value,
// persisted as the snapshot's playerCounter metadata so a restored world
// keeps minting ids after the highest one it had ever issued.
func (c *ArchetypeCatalog) SpawnCounter() uint64 {
	return atomic.LoadUint64(&c.spawnSeq)
}

// SetSpawnCounter restores the spawn sequence from persisted metadata.
func (c *ArchetypeCatalog) SetSpawnCounter(v uint64) {
	atomic.StoreUint64(&c.spawnSeq, v)
}

// Spawn instantiates archetypeId into layer at pos, applying overrides
// (keyed by kind, shallow-merged into the cloned record of that kind),
// and returns the new entity's id.
func (c *ArchetypeCatalog) Spawn(archetypeID, layerID string, pos Vec3, overrides map[ComponentKind]Component) (string, error) {
	if archetypeID == PlayerArchetypeID {
		return c.spawnPlayer(layerID, pos, overrides)
	}

	arch, ok := c.Get(archetypeID)
	if !ok {
		return "", ErrArchetypeNotFound
	}

	id := fmt.Sprintf("%s-%d-%s", archetypeID, time.Now().UnixNano(), c.nextSpawnSuffix())
	components := cloneArchetypeComponents(arch, id, pos, overrides)

	if err := c.store.Create(id, components...); err != nil {
		return "", err
	}
	c.RecordLayerMembership(layerID, id)
	if c.hub != nil {
		c.hub.Publish("entity.spawn", id)
	}
	return id, nil
}

// cloneArchetypeComponents clones each template component, overwriting
// identity.id and mobility.position at spawn time, then shallow-merging
// any override present for that component's kind.
func cloneArchetypeComponents(arch Archetype, id string, pos Vec3, overrides map[ComponentKind]Component) []Component {
	out := make([]Component, 0, len(arch.Components))
	for _, tmpl := range arch.Components {
		c := tmpl
		switch v := c.(type) {
		case Identity:
			v.ID = id
			c = v
		case Mobility:
			v.Position = pos
			c = v
		}
		if overrides != nil {
			if ov, ok := overrides[c.Kind()]; ok {
				if merged, err := shallowMergeComponent(c, ov); err == nil {
					c = merged
				}
			}
		}
		out = append(out, c)
	}
	return out
}

// spawnPlayer delegates to the standard player contract factory, then
// applies overrides on top exactly as a normal spawn would.
func (c *ArchetypeCatalog) spawnPlayer(layerID string, pos Vec3, overrides map[ComponentKind]Component) (string, error) {
	id := fmt.Sprintf("player-%d-%s", time.Now().UnixNano(), c.nextSpawnSuffix())
	components := standardPlayerContracts(id, pos)

	if overrides != nil {
		for i, comp := range components {
			if ov, ok := overrides[comp.Kind()]; ok {
				if merged, err := shallowMergeComponent(comp, ov); err == nil {
					components[i] = merged
				}
			}
		}
	}

	if err := c.store.Create(id, components...); err != nil {
		return "", err
	}
	c.RecordLayerMembership(layerID, id)
	if c.hub != nil {
		c.hub.Publish("entity.spawn", id)
	}
	return id, nil
}

// standardPlayerContracts builds the full standard player contract set.
func standardPlayerContracts(id string, pos Vec3) []Component {
	capacity := 10
	return []Component{
		Identity{ID: id, Name: "player"},
		Mobility{Position: pos},
		Shape{
			Box:      AABB{Min: Vec3{X: -0.3, Y: -0.9, Z: -0.3}, Max: Vec3{X: 0.3, Y: 0.9, Z: 0.3}},
			Geometry: GeometryBox,
		},
		Visual{Visible: true},
		Inventory{Capacity: &capacity},
		Durability{Health: 100, MaxHealth: 100},
		MovementRules{StepDistance: 1, AllowDiagonal: true, DiagonalNormalized: true},
		CommandAccess{Allowed: append([]string(nil), baseCommandSet...)},
		ContractLimit{Overrides: map[ComponentKind]int{
			KindEntrance: 5,
			KindPortable: 3,
		}},
	}
}

// Despawn removes an entity's layer membership record. The entity itself
// is removed through the Entity Store (Remove or Durability destroy).
func (c *ArchetypeCatalog) Despawn(entityID string) {
	c.forgetLayerMembership(entityID)
	if c.hub != nil {
		c.hub.Publish("entity.despawn", entityID)
	}
}
