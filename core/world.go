package core

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/WorldsMadeReal/world-host/pkg/config"
)

// World owns every core subsystem and wires the cross-cutting hooks:
// mobility changes keep chunk membership in sync without the entity ever
// storing a back-reference, and entity removal cleans up archetype
// layer-membership bookkeeping.
type World struct {
	Config config.Config

	Registry   *SchemaRegistry
	Store      *EntityStore
	Layers     *LayerRegistry
	Chunks     *ChunkManager
	Movement   *Movement
	Durability *DurabilitySystem
	Catalog    *ArchetypeCatalog
	Sessions   *SessionManager
	Scheduler  *TickScheduler
	Metrics    *Metrics
	Events     *EventHub

	log *logrus.Logger
}

// NewWorld constructs every core subsystem from cfg and wires their
// cross-cutting hooks, but does not start the tick loop (call Run for
// that).
func NewWorld(cfg config.Config, log *logrus.Logger) *World {
	if log == nil {
		log = logrus.StandardLogger()
	}

	registry := NewSchemaRegistry()
	store := NewEntityStore(registry, log)
	layers := NewLayerRegistry()
	events := NewEventHub(256)

	chunkCfg := ChunkManagerConfig{
		GridResolution:    cfg.World.OccupancyGridSize,
		MaxLoadedChunks:   cfg.Chunk.MaxLoadedChunks,
		MaxRetainedChunks: cfg.Chunk.MaxRetainedChunks,
		UnloadDelay:       time.Duration(cfg.Chunk.UnloadDelayMS) * time.Millisecond,
		EvictionInterval:  time.Duration(cfg.Chunk.EvictionIntervalMS) * time.Millisecond,
	}
	chunks := NewChunkManager(layers, store, events, chunkCfg, log)

	movementCfg := MovementConfig{
		Gravity:          cfg.World.Gravity,
		TerminalVelocity: cfg.World.TerminalVelocity,
		GroundFriction:   cfg.World.GroundFriction,
		AirFriction:      cfg.World.AirFriction,
		CollisionEpsilon: cfg.World.CollisionEpsilon,
	}
	movement := NewMovement(store, chunks, layers, movementCfg)

	durability := NewDurability(store, chunks, events, DurabilityConfig{DefaultHealth: 1, DefaultMaxHealth: 1})
	catalog := NewArchetypeCatalog(store, events)
	catalog.Define(Archetype{ID: PlayerArchetypeID, Name: "player", Tags: []string{"player"}})

	sessionCfg := SessionManagerConfig{
		ServerID:           "worldhost",
		ServerVersion:      "dev",
		HeartbeatInterval:  time.Duration(cfg.Transport.HeartbeatMS) * time.Millisecond,
		ConnectionTimeout:  time.Duration(cfg.Transport.ConnectionTimeoutMS) * time.Millisecond,
		OutboundBufferSize: cfg.Transport.OutboundBufferSize,
		RateLimitWindow:    time.Duration(cfg.RateLimit.WindowMS) * time.Millisecond,
		RateLimitMax:       cfg.RateLimit.MaxRequests,
	}
	sessions := NewSessionManager(store, chunks, layers, movement, durability, catalog, sessionCfg, log)

	tickCfg := TickConfig{
		TargetFPS:        cfg.Tick.TargetFPS,
		MaxDeltaTime:     time.Duration(cfg.Tick.MaxDeltaTimeMS) * time.Millisecond,
		TickRateDisabled: cfg.Tick.TickRateDisabled,
	}
	scheduler := NewTickScheduler(tickCfg, TickSystems{
		Movement:   movement,
		Durability: durability,
		LayerIDs:   layers.IDs,
	}, log)

	w := &World{
		Config:     cfg,
		Registry:   registry,
		Store:      store,
		Layers:     layers,
		Chunks:     chunks,
		Movement:   movement,
		Durability: durability,
		Catalog:    catalog,
		Sessions:   sessions,
		Scheduler:  scheduler,
		Events:     events,
		log:        log,
	}
	w.Metrics = NewMetrics(store, chunks, sessions, scheduler, log)
	w.wireHooks()
	return w
}

// wireHooks installs the cross-module bookkeeping hooks: no entity ever
// stores a chunk pointer or a layer pointer, so both the Chunk Manager and
// the Archetype Catalog observe the Entity Store's hooks instead of being
// told directly.
func (w *World) wireHooks() {
	w.Store.OnComponentAdd(KindMobility, func(entityID string, c Component) {
		mob := c.(Mobility)
		layerID, ok := w.Catalog.LayerOf(entityID)
		if !ok {
			layerID = DefaultLayerID
		}
		layer, ok := w.Layers.Get(layerID)
		if !ok {
			layer, _ = w.Layers.Get(DefaultLayerID)
		}
		w.Chunks.SyncEntityPosition(entityID, layerID, mob.Position, layer.ChunkSize)
	})

	w.Store.OnEntityCreate(func(entityID string) {
		if key, ok := w.Chunks.CurrentChunk(entityID); ok {
			w.Chunks.BroadcastSpawn(entityID, key)
		}
	})

	w.Store.OnEntityRemove(func(entityID string) {
		if key, ok := w.Chunks.CurrentChunk(entityID); ok {
			version := w.Chunks.RemoveEntity(entityID, key)
			w.Chunks.BroadcastDespawn(entityID, key, version)
		}
		w.Catalog.Despawn(entityID)
	})

	w.Durability.OnDestroy(func(entityID string) {
		w.log.WithField("entity", entityID).Info("entity destroyed by durability system")
	})
}

// Run starts the tick scheduler. It blocks until Stop is called, unless
// tick_rate_disabled is set, in which case it returns immediately.
func (w *World) Run() {
	w.Scheduler.Run()
}

// Stop halts the tick scheduler and closes the event hub. Sessions should
// be disconnected by the transport binding before calling Stop.
func (w *World) Stop() {
	w.Scheduler.Stop()
	w.Events.Close()
}
