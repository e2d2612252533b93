package core

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ChunkSubscriber is the opaque session handle a chunk delivers snapshots
// and deltas to. Session Manager's wire binding implements it over a
// bounded outbound channel: a slow subscriber's delta stream gets dropped
// rather than blocking the broadcaster.
type ChunkSubscriber interface {
	SessionID() string
	// Deliver attempts a non-blocking send and reports whether it
	// succeeded. A false return means the subscriber's outbound buffer
	// was full; the caller drops the subscription.
	Deliver(msg any) bool
	// Alive reports whether the underlying session is still connected.
	Alive() bool
}

// Chunk is one spatial cell's membership, subscriber set, static geometry
// and version bookkeeping.
type Chunk struct {
	mu           sync.Mutex
	key          ChunkKey
	entities     map[string]struct{}
	loaded       bool
	generated    bool
	grid         *OccupancyGrid
	subscribers  map[string]ChunkSubscriber
	version      uint64
	lastAccessed time.Time
	lastModified time.Time
}

// Key returns the chunk's identity.
func (c *Chunk) Key() ChunkKey { return c.key }

// Loaded reports whether the chunk is currently loaded.
func (c *Chunk) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Version returns the chunk's current monotonic version.
func (c *Chunk) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Grid returns the chunk's static occupancy grid, or nil if never loaded.
func (c *Chunk) Grid() *OccupancyGrid {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grid
}

// SubscriberCount reports the number of live subscriptions.
func (c *Chunk) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers)
}

// ChunkManagerConfig bundles the tunables the manager needs from
// pkg/config at construction time.
type ChunkManagerConfig struct {
	GridResolution     int
	MaxLoadedChunks    int
	MaxRetainedChunks  int
	UnloadDelay        time.Duration
	EvictionInterval   time.Duration
}

// ChunkManager owns every chunk's membership, subscribers and static
// geometry, and keeps per-entity chunk tracking so that membership can be
// recomputed from a position change without the entity ever storing a
// pointer to its chunk: back-references via indices, not pointers.
type ChunkManager struct {
	mu     sync.RWMutex
	chunks map[string]*Chunk

	entityMu    sync.RWMutex
	entityChunk map[string]ChunkKey

	subMu        sync.Mutex
	subsByClient map[string]map[string]ChunkKey

	layers *LayerRegistry
	store  *EntityStore
	hub    *EventHub
	log    *logrus.Logger
	cfg    ChunkManagerConfig
	clock  func() time.Time
}

// NewChunkManager builds a manager bound to layers and store. hub may be
// nil, in which case generation events are not published.
func NewChunkManager(layers *LayerRegistry, store *EntityStore, hub *EventHub, cfg ChunkManagerConfig, log *logrus.Logger) *ChunkManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.GridResolution <= 0 {
		cfg.GridResolution = DefaultGridResolution
	}
	return &ChunkManager{
		chunks:       make(map[string]*Chunk),
		entityChunk:  make(map[string]ChunkKey),
		subsByClient: make(map[string]map[string]ChunkKey),
		layers:       layers,
		store:        store,
		hub:          hub,
		log:          log,
		cfg:          cfg,
		clock:        time.Now,
	}
}

// SetClock overrides the manager's time source; tests use this for
// deterministic eviction sweeps.
func (m *ChunkManager) SetClock(fn func() time.Time) {
	if fn != nil {
		m.clock = fn
	}
}

func (m *ChunkManager) now() time.Time { return m.clock() }

// GetOrCreate returns the chunk for key, creating empty unloaded metadata
// if it does not yet exist, and refreshes lastAccessed.
func (m *ChunkManager) GetOrCreate(key ChunkKey) *Chunk {
	ks := key.String()

	m.mu.Lock()
	c, ok := m.chunks[ks]
	if !ok {
		c = &Chunk{
			key:          key,
			entities:     make(map[string]struct{}),
			subscribers:  make(map[string]ChunkSubscriber),
			version:      1,
			lastAccessed: m.now(),
			lastModified: m.now(),
		}
		m.chunks[ks] = c
	}
	m.mu.Unlock()

	c.mu.Lock()
	c.lastAccessed = m.now()
	c.mu.Unlock()
	return c
}

func (m *ChunkManager) get(key ChunkKey) (*Chunk, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chunks[key.String()]
	return c, ok
}

// Load marks key loaded, lazily allocating its occupancy grid and invoking
// idempotent procedural generation the first time it is loaded.
func (m *ChunkManager) Load(key ChunkKey) *Chunk {
	c := m.GetOrCreate(key)
	c.mu.Lock()
	wasLoaded := c.loaded
	c.loaded = true
	if c.grid == nil {
		c.grid = NewOccupancyGrid(m.cfg.GridResolution)
	}
	c.mu.Unlock()
	if !wasLoaded {
		m.generate(c)
	}
	return c
}

// Unload marks key unloaded; metadata (membership, grid, version) is
// retained until the eviction sweep reclaims it.
func (m *ChunkManager) Unload(key ChunkKey) {
	c, ok := m.get(key)
	if !ok {
		return
	}
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
}

func (m *ChunkManager) markModified(c *Chunk) {
	c.version++
	c.lastModified = m.now()
}

// AddEntity registers id as a member of key, bumps the chunk's version,
// and broadcasts an entity_add delta to current subscribers.
func (m *ChunkManager) AddEntity(id string, key ChunkKey) {
	c := m.GetOrCreate(key)
	c.mu.Lock()
	c.entities[id] = struct{}{}
	m.markModified(c)
	version := c.version
	c.mu.Unlock()

	m.entityMu.Lock()
	m.entityChunk[id] = key
	m.entityMu.Unlock()

	contracts, _ := m.store.Snapshot(id)
	m.broadcastDelta(c, version, EntityDelta{Type: DeltaEntityAdd, EntityID: id, Contracts: contracts})
}

// RemoveEntity unregisters id from key, bumps the chunk's version, and
// broadcasts an entity_remove delta. It returns the chunk's version after
// the bump (0 if the manager holds no metadata for key), so callers that need to announce a
// permanent departure (see BroadcastDespawn) can reference a version
// strictly greater than any version the chunk held while id was a member.
func (m *ChunkManager) RemoveEntity(id string, key ChunkKey) uint64 {
	var version uint64
	c, ok := m.get(key)
	if ok {
		c.mu.Lock()
		delete(c.entities, id)
		m.markModified(c)
		version = c.version
		c.mu.Unlock()
		m.broadcastDelta(c, version, EntityDelta{Type: DeltaEntityRemove, EntityID: id})
	}

	m.entityMu.Lock()
	delete(m.entityChunk, id)
	m.entityMu.Unlock()
	return version
}

// MoveEntity relocates id from one chunk to another (remove then add).
func (m *ChunkManager) MoveEntity(id string, from, to ChunkKey) {
	if from == to {
		return
	}
	m.RemoveEntity(id, from)
	m.AddEntity(id, to)
}

// CurrentChunk returns the chunk id is currently tracked as a member of.
func (m *ChunkManager) CurrentChunk(id string) (ChunkKey, bool) {
	m.entityMu.RLock()
	defer m.entityMu.RUnlock()
	k, ok := m.entityChunk[id]
	return k, ok
}

// SyncEntityPosition recomputes id's chunk from pos under chunkSize and
// moves it if the chunk changed, returning the (possibly unchanged) key.
// This is the hook invoked whenever an entity's mobility.position changes,
// keeping chunk membership a pure function of position rather than a
// stored back-reference.
func (m *ChunkManager) SyncEntityPosition(id, layerID string, pos Vec3, chunkSize float64) ChunkKey {
	coord := WorldToChunk(pos, chunkSize)
	newKey := ChunkKey{LayerID: layerID, CX: coord.CX, CY: coord.CY, CZ: coord.CZ}

	old, existed := m.CurrentChunk(id)
	if existed && old == newKey {
		return newKey
	}
	if existed {
		m.MoveEntity(id, old, newKey)
	} else {
		m.AddEntity(id, newKey)
	}
	return newKey
}

// BroadcastUpdate re-snapshots id and sends an entity_update delta on its
// current chunk, plus a direct entity_update message for subscribers
// tracking the entity outside the chunk_delta stream. Callers use this
// after a non-positional component change.
func (m *ChunkManager) BroadcastUpdate(id string) {
	key, ok := m.CurrentChunk(id)
	if !ok {
		return
	}
	c, ok := m.get(key)
	if !ok {
		return
	}
	c.mu.Lock()
	m.markModified(c)
	version := c.version
	c.mu.Unlock()

	contracts, _ := m.store.Snapshot(id)
	m.broadcastDelta(c, version, EntityDelta{Type: DeltaEntityUpdate, EntityID: id, Contracts: contracts})
	m.broadcastDirect(c, EntityUpdateMessage{Type: "entity_update", EntityID: id, Contracts: contracts, ChunkKey: &key})
}

// BroadcastSpawn announces id's creation directly to key's current
// subscribers via an entity_spawn message. Callers use this once, at the
// entity's first appearance in the world, distinct from the chunk_delta
// entity_add sent every time an already-existing entity enters a chunk.
func (m *ChunkManager) BroadcastSpawn(id string, key ChunkKey) {
	c, ok := m.get(key)
	if !ok {
		return
	}
	contracts, _ := m.store.Snapshot(id)
	m.broadcastDirect(c, EntitySpawnMessage{Type: "entity_spawn", EntityID: id, Contracts: contracts, ChunkKey: key})
}

// BroadcastDespawn announces id's permanent departure directly to key's
// subscribers via an entity_despawn message carrying version, distinct
// from the chunk_delta entity_remove sent when an entity merely moves to
// another chunk. Callers pass the version RemoveEntity returned.
func (m *ChunkManager) BroadcastDespawn(id string, key ChunkKey, version uint64) {
	c, ok := m.get(key)
	if !ok {
		return
	}
	m.broadcastDirect(c, EntityDespawnMessage{Type: "entity_despawn", EntityID: id, ChunkKey: key, Version: version})
}

// EntitiesIn returns every entity id currently a member of key.
func (m *ChunkManager) EntitiesIn(key ChunkKey) []string {
	c, ok := m.get(key)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entities))
	for id := range c.entities {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *ChunkManager) buildSnapshot(c *Chunk) ChunkSnapshotMessage {
	c.mu.Lock()
	ids := make([]string, 0, len(c.entities))
	for id := range c.entities {
		ids = append(ids, id)
	}
	version := c.version
	key := c.key
	c.mu.Unlock()
	sort.Strings(ids)

	entities := make([]EntitySnapshot, 0, len(ids))
	for _, id := range ids {
		contracts, ok := m.store.Snapshot(id)
		if !ok {
			continue
		}
		entities = append(entities, EntitySnapshot{ID: id, Contracts: contracts})
	}
	return ChunkSnapshotMessage{Type: "chunk_snapshot", ChunkKey: key, Entities: entities, Version: version}
}

// Subscribe adds sub to key's subscriber set and immediately delivers a
// snapshot.
func (m *ChunkManager) Subscribe(sub ChunkSubscriber, key ChunkKey) {
	c := m.GetOrCreate(key)
	c.mu.Lock()
	c.subscribers[sub.SessionID()] = sub
	c.mu.Unlock()

	m.subMu.Lock()
	set := m.subsByClient[sub.SessionID()]
	if set == nil {
		set = make(map[string]ChunkKey)
		m.subsByClient[sub.SessionID()] = set
	}
	set[key.String()] = key
	m.subMu.Unlock()

	sub.Deliver(m.buildSnapshot(c))
}

// Unsubscribe removes sessionID from key's subscriber set.
func (m *ChunkManager) Unsubscribe(sessionID string, key ChunkKey) {
	if c, ok := m.get(key); ok {
		c.mu.Lock()
		delete(c.subscribers, sessionID)
		c.mu.Unlock()
	}
	m.subMu.Lock()
	if set, ok := m.subsByClient[sessionID]; ok {
		delete(set, key.String())
		if len(set) == 0 {
			delete(m.subsByClient, sessionID)
		}
	}
	m.subMu.Unlock()
}

// UnsubscribeAll removes sessionID from every chunk it was subscribed to.
func (m *ChunkManager) UnsubscribeAll(sessionID string) {
	m.subMu.Lock()
	set := m.subsByClient[sessionID]
	delete(m.subsByClient, sessionID)
	m.subMu.Unlock()

	for _, key := range set {
		if c, ok := m.get(key); ok {
			c.mu.Lock()
			delete(c.subscribers, sessionID)
			c.mu.Unlock()
		}
	}
}

// SubscribedChunks returns the set of chunk keys sessionID currently
// subscribes to.
func (m *ChunkManager) SubscribedChunks(sessionID string) []ChunkKey {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	set := m.subsByClient[sessionID]
	out := make([]ChunkKey, 0, len(set))
	for _, k := range set {
		out = append(out, k)
	}
	return out
}

func (m *ChunkManager) broadcastDelta(c *Chunk, version uint64, delta EntityDelta) {
	key := c.key
	msg := ChunkDeltaMessage{Type: "chunk_delta", ChunkKey: key, Delta: delta, Version: version}
	m.broadcastDirect(c, msg)
}

// broadcastDirect fans msg out to every current subscriber of c, dropping
// any subscriber whose outbound buffer is full.
func (m *ChunkManager) broadcastDirect(c *Chunk, msg any) {
	c.mu.Lock()
	subs := make([]ChunkSubscriber, 0, len(c.subscribers))
	for _, s := range c.subscribers {
		subs = append(subs, s)
	}
	key := c.key
	c.mu.Unlock()

	for _, s := range subs {
		if !s.Deliver(msg) {
			m.Unsubscribe(s.SessionID(), key)
		}
	}
}

// mod4 is a true-mathematical modulo (never negative), used by generation.
func mod4(v int64) int64 {
	m := v % 4
	if m < 0 {
		m += 4
	}
	return m
}

// generate runs the procedural generation policy exactly
// once per chunk key: at cy=0, cx%4==0, cz%4==0, spawn a single solid
// generated block at chunk center.
func (m *ChunkManager) generate(c *Chunk) {
	c.mu.Lock()
	if c.generated {
		c.mu.Unlock()
		return
	}
	c.generated = true
	key := c.key
	c.mu.Unlock()

	if key.CY != 0 || mod4(key.CX) != 0 || mod4(key.CZ) != 0 {
		return
	}

	layer, ok := m.layers.Get(key.LayerID)
	if !ok {
		return
	}
	origin := ChunkToWorld(key.Coord(), layer.ChunkSize)
	center := Vec3{
		X: origin.X + layer.ChunkSize/2,
		Y: origin.Y + ChunkHeight/2,
		Z: origin.Z + layer.ChunkSize/2,
	}
	id := "gen:" + key.String()

	if !m.store.Exists(id) {
		box := AABB{Min: Vec3{X: -0.5, Y: -0.5, Z: -0.5}, Max: Vec3{X: 0.5, Y: 0.5, Z: 0.5}}
		err := m.store.Create(id,
			Identity{ID: id, Name: "generated_block"},
			Mobility{Position: center},
			Shape{Box: box, Geometry: GeometryBox},
			Visual{Visible: true},
			Solidity{Solid: true},
		)
		if err != nil {
			m.log.WithError(err).WithField("chunk", key.String()).Warn("procedural generation failed")
			return
		}
	}

	m.entityMu.Lock()
	m.entityChunk[id] = key
	m.entityMu.Unlock()

	c.mu.Lock()
	c.entities[id] = struct{}{}
	m.markModified(c)
	if c.grid == nil {
		c.grid = NewOccupancyGrid(m.cfg.GridResolution)
	}
	gx, gy, gz := WorldToGrid(center, layer.ChunkSize, c.grid.Resolution())
	c.grid.SetSolid(gx, gy, gz, true)
	c.mu.Unlock()

	if m.hub != nil {
		m.hub.Publish("chunk.generate", key.String())
	}
}

// SweepEviction runs the periodic eviction policy: unload the
// stalest loaded chunks past max_loaded_chunks, delete stale retained
// metadata past max_retained_chunks, and prune dead subscribers.
func (m *ChunkManager) SweepEviction() {
	m.mu.RLock()
	entries := make([]chunkSweepEntry, 0, len(m.chunks))
	for k, c := range m.chunks {
		c.mu.Lock()
		e := chunkSweepEntry{key: k, chunk: c, loaded: c.loaded, lastAccessed: c.lastAccessed}
		c.mu.Unlock()
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	var loaded []chunkSweepEntry
	for _, e := range entries {
		if e.loaded {
			loaded = append(loaded, e)
		}
	}
	if len(loaded) > m.cfg.MaxLoadedChunks {
		sort.Slice(loaded, func(i, j int) bool { return loaded[i].lastAccessed.Before(loaded[j].lastAccessed) })
		batch := len(loaded) - m.cfg.MaxLoadedChunks + 100
		if batch > len(loaded) {
			batch = len(loaded)
		}
		for i := 0; i < batch; i++ {
			loaded[i].chunk.mu.Lock()
			loaded[i].chunk.loaded = false
			loaded[i].chunk.mu.Unlock()
		}
	}

	if len(entries) > m.cfg.MaxRetainedChunks {
		cutoff := m.now().Add(-2 * m.cfg.UnloadDelay)
		var toDelete []string
		for _, e := range entries {
			e.chunk.mu.Lock()
			eligible := !e.chunk.loaded && len(e.chunk.entities) == 0 &&
				len(e.chunk.subscribers) == 0 && e.chunk.lastAccessed.Before(cutoff)
			e.chunk.mu.Unlock()
			if eligible {
				toDelete = append(toDelete, e.key)
			}
		}
		if len(toDelete) > 0 {
			m.mu.Lock()
			for _, k := range toDelete {
				delete(m.chunks, k)
			}
			m.mu.Unlock()
		}
	}

	m.pruneDeadSubscribers(entries)
}

type chunkSweepEntry struct {
	key          string
	chunk        *Chunk
	loaded       bool
	lastAccessed time.Time
}

func (m *ChunkManager) pruneDeadSubscribers(entries []chunkSweepEntry) {
	for _, e := range entries {
		e.chunk.mu.Lock()
		for sid, s := range e.chunk.subscribers {
			if !s.Alive() {
				delete(e.chunk.subscribers, sid)
			}
		}
		e.chunk.mu.Unlock()
	}
}

// LoadedCount and RetainedCount expose eviction metrics for the admin
// /stats surface.
func (m *ChunkManager) LoadedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.chunks {
		if c.Loaded() {
			n++
		}
	}
	return n
}

func (m *ChunkManager) RetainedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}
