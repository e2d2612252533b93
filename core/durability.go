package core

import (
	"sync"
	"time"
)

// DamageEvent records one successful damage application.
type DamageEvent struct {
	EntityID string
	Amount   float64
	Source   string
	At       time.Time
}

// HealEvent records one successful heal or repair.
type HealEvent struct {
	EntityID string
	Amount   float64
	At       time.Time
}

// DestroyEvent records one entity's destruction via durability reaching 0.
type DestroyEvent struct {
	EntityID string
	At       time.Time
}

// eventLogCap is the last-N retention of each event kind's log. The logs
// are shared by all entities; the *EventsFor queries filter by entity.
const eventLogCap = 100

// DurabilityConfig bundles the defaults applied when an entity gains
// identity with no explicit durability.
type DurabilityConfig struct {
	DefaultHealth    float64
	DefaultMaxHealth float64
}

// DurabilitySystem implements the damage/heal/repair/destroy lifecycle. It
// registers an OnComponentAdd(identity) hook on the store so every entity
// that gains an identity is guaranteed a durability component by the next
// tick, and sweeps zero-health survivors on each Update.
type DurabilitySystem struct {
	store  *EntityStore
	chunks *ChunkManager
	hub    *EventHub
	cfg    DurabilityConfig
	clock  func() time.Time

	mu      sync.Mutex
	pending map[string]struct{}

	eventsMu sync.Mutex
	damage   []DamageEvent
	heal     []HealEvent
	destroy  []DestroyEvent

	onDestroy []func(entityID string)
}

// NewDurability builds the durability system and wires its ensure-on-
// identity hook into store.
func NewDurability(store *EntityStore, chunks *ChunkManager, hub *EventHub, cfg DurabilityConfig) *DurabilitySystem {
	if cfg.DefaultHealth == 0 {
		cfg.DefaultHealth = 1
	}
	if cfg.DefaultMaxHealth == 0 {
		cfg.DefaultMaxHealth = 1
	}
	d := &DurabilitySystem{
		store:   store,
		chunks:  chunks,
		hub:     hub,
		cfg:     cfg,
		clock:   time.Now,
		pending: make(map[string]struct{}),
	}
	store.OnComponentAdd(KindIdentity, func(entityID string, _ Component) {
		d.mu.Lock()
		d.pending[entityID] = struct{}{}
		d.mu.Unlock()
	})
	return d
}

// SetClock overrides the time source for tests.
func (d *DurabilitySystem) SetClock(fn func() time.Time) {
	if fn != nil {
		d.clock = fn
	}
}

// OnDestroy registers a callback fired (after the destroy hooks observe
// the entity still present) immediately before removal.
func (d *DurabilitySystem) OnDestroy(fn func(entityID string)) {
	d.onDestroy = append(d.onDestroy, fn)
}

// Update runs the once-per-tick obligations: ensure pending identities
// gained a durability component, then sweep any entity whose health is
// <=0 but still present (e.g. set by an external write).
func (d *DurabilitySystem) Update() {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[string]struct{})
	d.mu.Unlock()

	for id := range pending {
		d.ensure(id)
	}

	for _, id := range d.store.ListWith(KindDurability) {
		durC, ok := d.store.Get(id, KindDurability)
		if !ok {
			continue
		}
		dur := durC.(Durability)
		if dur.Health <= 0 {
			d.destroyEntity(id)
		}
	}
}

func (d *DurabilitySystem) ensure(id string) {
	if !d.store.Exists(id) {
		return
	}
	if _, ok := d.store.Get(id, KindDurability); ok {
		return
	}
	_, _ = d.store.Add(id, Durability{Health: d.cfg.DefaultHealth, MaxHealth: d.cfg.DefaultMaxHealth})
}

// Damage applies amount to id after armor mitigation. Returns false (no
// effect, no event) if the mitigated amount is non-positive.
func (d *DurabilitySystem) Damage(id string, amount float64, source string) bool {
	durC, ok := d.store.Get(id, KindDurability)
	if !ok {
		return false
	}
	dur := durC.(Durability)

	mitigation := 0.01 * dur.Armor
	if mitigation > 0.75 {
		mitigation = 0.75
	}
	actual := amount * (1 - mitigation)
	if actual <= 0 {
		return false
	}

	dur.Health -= actual
	if dur.Health < 0 {
		dur.Health = 0
	}
	d.store.RemoveComponent(id, KindDurability)
	_, _ = d.store.Add(id, dur)

	evt := DamageEvent{EntityID: id, Amount: actual, Source: source, At: d.clock()}
	d.recordDamage(evt)
	if d.chunks != nil {
		d.chunks.BroadcastUpdate(id)
	}
	if d.hub != nil {
		d.hub.Publish("durability.damage", evt)
	}

	if dur.Health == 0 {
		d.destroyEntity(id)
	}
	return true
}

// Heal restores health, capped at maxHealth. gain must be strictly
// positive.
func (d *DurabilitySystem) Heal(id string, gain float64) bool {
	if gain <= 0 {
		return false
	}
	durC, ok := d.store.Get(id, KindDurability)
	if !ok {
		return false
	}
	dur := durC.(Durability)
	dur.Health += gain
	if dur.Health > dur.MaxHealth {
		dur.Health = dur.MaxHealth
	}
	d.store.RemoveComponent(id, KindDurability)
	_, _ = d.store.Add(id, dur)

	evt := HealEvent{EntityID: id, Amount: gain, At: d.clock()}
	d.recordHeal(evt)
	if d.chunks != nil {
		d.chunks.BroadcastUpdate(id)
	}
	if d.hub != nil {
		d.hub.Publish("durability.heal", evt)
	}
	return true
}

// Repair heals id to full health.
func (d *DurabilitySystem) Repair(id string) bool {
	durC, ok := d.store.Get(id, KindDurability)
	if !ok {
		return false
	}
	dur := durC.(Durability)
	return d.Heal(id, dur.MaxHealth-dur.Health)
}

func (d *DurabilitySystem) destroyEntity(id string) {
	for _, h := range d.onDestroy {
		h(id)
	}
	evt := DestroyEvent{EntityID: id, At: d.clock()}
	d.recordDestroy(evt)
	d.store.Remove(id)
	if d.hub != nil {
		d.hub.Publish("durability.destroy", evt)
	}
}

func (d *DurabilitySystem) recordDamage(e DamageEvent) {
	d.eventsMu.Lock()
	defer d.eventsMu.Unlock()
	d.damage = append(d.damage, e)
	if len(d.damage) > eventLogCap {
		d.damage = d.damage[len(d.damage)-eventLogCap:]
	}
}

func (d *DurabilitySystem) recordHeal(e HealEvent) {
	d.eventsMu.Lock()
	defer d.eventsMu.Unlock()
	d.heal = append(d.heal, e)
	if len(d.heal) > eventLogCap {
		d.heal = d.heal[len(d.heal)-eventLogCap:]
	}
}

func (d *DurabilitySystem) recordDestroy(e DestroyEvent) {
	d.eventsMu.Lock()
	defer d.eventsMu.Unlock()
	d.destroy = append(d.destroy, e)
	if len(d.destroy) > eventLogCap {
		d.destroy = d.destroy[len(d.destroy)-eventLogCap:]
	}
}

// DamageEventsFor returns the retained damage events for id.
func (d *DurabilitySystem) DamageEventsFor(id string) []DamageEvent {
	d.eventsMu.Lock()
	defer d.eventsMu.Unlock()
	var out []DamageEvent
	for _, e := range d.damage {
		if e.EntityID == id {
			out = append(out, e)
		}
	}
	return out
}

// HealEventsFor returns the retained heal events for id.
func (d *DurabilitySystem) HealEventsFor(id string) []HealEvent {
	d.eventsMu.Lock()
	defer d.eventsMu.Unlock()
	var out []HealEvent
	for _, e := range d.heal {
		if e.EntityID == id {
			out = append(out, e)
		}
	}
	return out
}

// DestroyEventsFor returns the retained destroy events for id.
func (d *DurabilitySystem) DestroyEventsFor(id string) []DestroyEvent {
	d.eventsMu.Lock()
	defer d.eventsMu.Unlock()
	var out []DestroyEvent
	for _, e := range d.destroy {
		if e.EntityID == id {
			out = append(out, e)
		}
	}
	return out
}
