package core

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// EntityHook fires after an entity is created or removed.
type EntityHook func(entityID string)

// ComponentHook fires after a component of a given kind is added to, or
// removed from, an entity.
type ComponentHook func(entityID string, c Component)

// componentRecord is one stored component value plus the insertion
// sequence used for oldest-first eviction when a kind is over its
// cardinality ceiling.
type componentRecord struct {
	seq   uint64
	value Component
}

// entityRecord is the store's internal representation of one entity: its
// components grouped by kind, in insertion order within each kind.
type entityRecord struct {
	id         string
	components map[ComponentKind][]componentRecord
	nextSeq    uint64
}

func newEntityRecord(id string) *entityRecord {
	return &entityRecord{id: id, components: make(map[ComponentKind][]componentRecord)}
}

func (e *entityRecord) contractLimit() *ContractLimit {
	recs := e.components[KindContractLimit]
	if len(recs) == 0 {
		return nil
	}
	cl, ok := recs[len(recs)-1].value.(ContractLimit)
	if !ok {
		return nil
	}
	return &cl
}

func (e *entityRecord) count(kind ComponentKind) int {
	return len(e.components[kind])
}

// EntityStore is the authoritative owner of every entity and its
// components. All mutation flows through Create/Remove/Add/
// RemoveComponent and fires hooks synchronously; callers that need
// fan-out to the spatial index or durability log register a hook rather
// than polling.
//
// The store assumes a single-threaded cooperative execution model: mu
// guards internal maps against incidental concurrent readers (tests,
// metrics), not against genuine concurrent writers.
type EntityStore struct {
	mu       sync.RWMutex
	entities map[string]*entityRecord
	index    map[ComponentKind]map[string]struct{}
	registry *SchemaRegistry
	log      *logrus.Logger

	busyMu  sync.Mutex
	busy    map[string]bool
	pending map[string][]func()

	onEntityAdd      []EntityHook
	onEntityRemove   []EntityHook
	onComponentAdd   map[ComponentKind][]ComponentHook
	onComponentRemove map[ComponentKind][]ComponentHook
}

// NewEntityStore builds an empty store bound to registry.
func NewEntityStore(registry *SchemaRegistry, log *logrus.Logger) *EntityStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EntityStore{
		entities:          make(map[string]*entityRecord),
		index:             make(map[ComponentKind]map[string]struct{}),
		registry:          registry,
		log:               log,
		busy:              make(map[string]bool),
		pending:           make(map[string][]func()),
		onComponentAdd:    make(map[ComponentKind][]ComponentHook),
		onComponentRemove: make(map[ComponentKind][]ComponentHook),
	}
}

// OnEntityCreate registers a hook fired after Create succeeds.
func (s *EntityStore) OnEntityCreate(h EntityHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEntityAdd = append(s.onEntityAdd, h)
}

// OnEntityRemove registers a hook fired after Remove succeeds.
func (s *EntityStore) OnEntityRemove(h EntityHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEntityRemove = append(s.onEntityRemove, h)
}

// OnComponentAdd registers a hook fired after a component of kind is added.
func (s *EntityStore) OnComponentAdd(kind ComponentKind, h ComponentHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComponentAdd[kind] = append(s.onComponentAdd[kind], h)
}

// OnComponentRemove registers a hook fired after a component of kind is
// removed, including removals caused by cardinality eviction.
func (s *EntityStore) OnComponentRemove(kind ComponentKind, h ComponentHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComponentRemove[kind] = append(s.onComponentRemove[kind], h)
}

// guarded runs fn for id unless id is already mid-mutation (tracked per
// id, whichever caller started it), in which case fn is deferred to run
// once the in-flight mutation finishes. This is what keeps a hook from deadlocking
// (or corrupting state) if it reenters the store for the same entity.
func (s *EntityStore) guarded(id string, fn func()) {
	s.busyMu.Lock()
	if s.busy[id] {
		s.pending[id] = append(s.pending[id], fn)
		s.busyMu.Unlock()
		return
	}
	s.busy[id] = true
	s.busyMu.Unlock()

	fn()

	for {
		s.busyMu.Lock()
		queued := s.pending[id]
		delete(s.pending, id)
		if len(queued) == 0 {
			delete(s.busy, id)
			s.busyMu.Unlock()
			return
		}
		s.busyMu.Unlock()
		for _, f := range queued {
			f()
		}
	}
}

// Create adds a new, empty entity with id, then inserts each of the given
// components via Add semantics (validation, then cardinality resolution).
// Create fails with ErrAlreadyExists if id is already present.
func (s *EntityStore) Create(id string, components ...Component) error {
	s.mu.Lock()
	if _, exists := s.entities[id]; exists {
		s.mu.Unlock()
		return ErrAlreadyExists
	}
	s.entities[id] = newEntityRecord(id)
	s.mu.Unlock()

	for _, c := range components {
		if _, err := s.Add(id, c); err != nil {
			return err
		}
	}

	s.mu.RLock()
	hooks := append([]EntityHook(nil), s.onEntityAdd...)
	s.mu.RUnlock()
	for _, h := range hooks {
		h(id)
	}
	return nil
}

// Remove deletes id and every component it carries, firing each removed
// component's remove hooks (in unspecified kind order) before the
// entity-remove hooks.
func (s *EntityStore) Remove(id string) bool {
	s.mu.Lock()
	rec, exists := s.entities[id]
	if !exists {
		s.mu.Unlock()
		return false
	}
	delete(s.entities, id)

	type removal struct {
		recs  []componentRecord
		hooks []ComponentHook
	}
	removals := make([]removal, 0, len(rec.components))
	for kind, recs := range rec.components {
		if set, ok := s.index[kind]; ok {
			delete(set, id)
		}
		hooks := append([]ComponentHook(nil), s.onComponentRemove[kind]...)
		removals = append(removals, removal{recs: recs, hooks: hooks})
	}
	entityHooks := append([]EntityHook(nil), s.onEntityRemove...)
	s.mu.Unlock()

	for _, rm := range removals {
		for _, r := range rm.recs {
			for _, h := range rm.hooks {
				h(id, r.value)
			}
		}
	}
	for _, h := range entityHooks {
		h(id)
	}
	return true
}

// Exists reports whether id is present in the store.
func (s *EntityStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entities[id]
	return ok
}

// Add validates c, resolves the cardinality ceiling for its kind against
// id's contract_limit overrides (evicting the oldest record of that kind
// if necessary), then stores it and fires the add hook. Returns
// ErrUnknownEntity, an *InvalidComponentError, or ErrLimitExceeded.
func (s *EntityStore) Add(id string, c Component) (Component, error) {
	var result Component
	var err error
	s.guarded(id, func() {
		result, err = s.addLocked(id, c)
	})
	return result, err
}

func (s *EntityStore) addLocked(id string, c Component) (Component, error) {
	if err := s.registry.Validate(c); err != nil {
		return nil, err
	}

	s.mu.Lock()
	rec, exists := s.entities[id]
	if !exists {
		s.mu.Unlock()
		return nil, ErrUnknownEntity
	}

	kind := c.Kind()
	max := s.registry.MaxFor(rec.contractLimit(), kind)
	if max <= 0 {
		s.mu.Unlock()
		return nil, ErrLimitExceeded
	}

	var evicted []Component
	for rec.count(kind) >= max {
		recs := rec.components[kind]
		evicted = append(evicted, recs[0].value)
		rec.components[kind] = recs[1:]
	}

	rec.nextSeq++
	rec.components[kind] = append(rec.components[kind], componentRecord{seq: rec.nextSeq, value: c})

	if s.index[kind] == nil {
		s.index[kind] = make(map[string]struct{})
	}
	s.index[kind][id] = struct{}{}

	removeHooks := append([]ComponentHook(nil), s.onComponentRemove[kind]...)
	addHooks := append([]ComponentHook(nil), s.onComponentAdd[kind]...)
	s.mu.Unlock()

	for _, ev := range evicted {
		for _, h := range removeHooks {
			h(id, ev)
		}
	}
	for _, h := range addHooks {
		h(id, c)
	}
	return c, nil
}

// RemoveComponent deletes every stored record of kind on id. It reports
// whether any record was removed.
func (s *EntityStore) RemoveComponent(id string, kind ComponentKind) bool {
	var removed bool
	s.guarded(id, func() {
		removed = s.removeComponentLocked(id, kind)
	})
	return removed
}

func (s *EntityStore) removeComponentLocked(id string, kind ComponentKind) bool {
	s.mu.Lock()
	rec, exists := s.entities[id]
	if !exists {
		s.mu.Unlock()
		return false
	}
	recs := rec.components[kind]
	if len(recs) == 0 {
		s.mu.Unlock()
		return false
	}
	delete(rec.components, kind)
	if set, ok := s.index[kind]; ok {
		delete(set, id)
	}
	hooks := append([]ComponentHook(nil), s.onComponentRemove[kind]...)
	s.mu.Unlock()

	for _, r := range recs {
		for _, h := range hooks {
			h(id, r.value)
		}
	}
	return true
}

// Get returns the most recently added component of kind on id, if any.
func (s *EntityStore) Get(id string, kind ComponentKind) (Component, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, exists := s.entities[id]
	if !exists {
		return nil, false
	}
	recs := rec.components[kind]
	if len(recs) == 0 {
		return nil, false
	}
	return recs[len(recs)-1].value, true
}

// GetAll returns every stored record of kind on id, oldest first.
func (s *EntityStore) GetAll(id string, kind ComponentKind) []Component {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, exists := s.entities[id]
	if !exists {
		return nil
	}
	recs := rec.components[kind]
	out := make([]Component, len(recs))
	for i, r := range recs {
		out[i] = r.value
	}
	return out
}

// Snapshot returns every component currently stored on id, grouped by
// kind in a stable (sorted) kind order, oldest-first within a kind.
func (s *EntityStore) Snapshot(id string) ([]Component, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, exists := s.entities[id]
	if !exists {
		return nil, false
	}
	kinds := make([]string, 0, len(rec.components))
	for k := range rec.components {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	var out []Component
	for _, k := range kinds {
		for _, r := range rec.components[ComponentKind(k)] {
			out = append(out, r.value)
		}
	}
	return out, true
}

// ListWith returns every entity id carrying at least one component of
// kind.
func (s *EntityStore) ListWith(kind ComponentKind) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.index[kind]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ListWithAll returns every entity id carrying at least one component of
// every given kind.
func (s *EntityStore) ListWithAll(kinds ...ComponentKind) []string {
	if len(kinds) == 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	first := s.index[kinds[0]]
	out := make([]string, 0, len(first))
	for id := range first {
		ok := true
		for _, k := range kinds[1:] {
			if _, present := s.index[k][id]; !present {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// ListWithAny returns every entity id carrying at least one component of
// any given kind.
func (s *EntityStore) ListWithAny(kinds ...ComponentKind) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, k := range kinds {
		for id := range s.index[k] {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of live entities.
func (s *EntityStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// AllEntityIDs returns every live entity id, sorted. Used by the snapshot
// persistence writer to enumerate what to save.
func (s *EntityStore) AllEntityIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entities))
	for id := range s.entities {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
