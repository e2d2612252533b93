package core

import (
	"testing"
	"time"
)

// fakeSubscriber is a minimal ChunkSubscriber for tests: delivered messages
// land in a buffered slice channel, and a full channel reports delivery
// failure exactly like a real session's bounded outbound buffer.
type fakeSubscriber struct {
	id      string
	inbox   chan any
	dead    bool
}

func newFakeSubscriber(id string, capacity int) *fakeSubscriber {
	return &fakeSubscriber{id: id, inbox: make(chan any, capacity)}
}

func (s *fakeSubscriber) SessionID() string { return s.id }

func (s *fakeSubscriber) Deliver(msg any) bool {
	select {
	case s.inbox <- msg:
		return true
	default:
		return false
	}
}

func (s *fakeSubscriber) Alive() bool { return !s.dead }

func newTestChunkManager(t *testing.T) (*ChunkManager, *LayerRegistry, *EntityStore) {
	t.Helper()
	layers := NewLayerRegistry()
	store := NewEntityStore(NewSchemaRegistry(), nil)
	mgr := NewChunkManager(layers, store, nil, ChunkManagerConfig{
		GridResolution:    8,
		MaxLoadedChunks:   100,
		MaxRetainedChunks: 1000,
		UnloadDelay:       time.Minute,
		EvictionInterval:  time.Minute,
	}, nil)
	return mgr, layers, store
}

func TestChunkManagerAddRemoveEntity(t *testing.T) {
	mgr, _, store := newTestChunkManager(t)
	_ = store.Create("e1", Identity{ID: "e1"})

	key := ChunkKey{LayerID: DefaultLayerID, CX: 1, CY: 0, CZ: 1}
	mgr.AddEntity("e1", key)

	if ids := mgr.EntitiesIn(key); len(ids) != 1 || ids[0] != "e1" {
		t.Fatalf("EntitiesIn() = %v, want [e1]", ids)
	}
	if got, ok := mgr.CurrentChunk("e1"); !ok || got != key {
		t.Fatalf("CurrentChunk() = %+v, %v", got, ok)
	}

	beforeRemove := mgr.GetOrCreate(key).Version()
	version := mgr.RemoveEntity("e1", key)
	if version <= beforeRemove {
		t.Fatalf("RemoveEntity() version = %d, want > %d", version, beforeRemove)
	}
	if ids := mgr.EntitiesIn(key); len(ids) != 0 {
		t.Fatalf("EntitiesIn() after remove = %v, want empty", ids)
	}
	if _, ok := mgr.CurrentChunk("e1"); ok {
		t.Fatal("expected CurrentChunk() to report absent after remove")
	}
}

func TestChunkManagerBroadcastSpawnAndDespawn(t *testing.T) {
	mgr, _, store := newTestChunkManager(t)
	_ = store.Create("e1", Identity{ID: "e1"})
	key := ChunkKey{LayerID: DefaultLayerID, CX: 3, CY: 0, CZ: 3}
	mgr.AddEntity("e1", key)

	sub := newFakeSubscriber("s1", 8)
	mgr.Subscribe(sub, key)
	<-sub.inbox // drain the initial chunk_snapshot

	mgr.BroadcastSpawn("e1", key)
	spawnMsg, ok := (<-sub.inbox).(EntitySpawnMessage)
	if !ok || spawnMsg.EntityID != "e1" || spawnMsg.ChunkKey != key {
		t.Fatalf("expected EntitySpawnMessage for e1 in %+v, got %+v", key, spawnMsg)
	}

	beforeDespawn := mgr.GetOrCreate(key).Version()
	version := mgr.RemoveEntity("e1", key)
	<-sub.inbox // drain the chunk_delta entity_remove
	mgr.BroadcastDespawn("e1", key, version)

	despawnMsg, ok := (<-sub.inbox).(EntityDespawnMessage)
	if !ok {
		t.Fatalf("expected EntityDespawnMessage, got %T", despawnMsg)
	}
	if despawnMsg.EntityID != "e1" || despawnMsg.ChunkKey != key {
		t.Fatalf("unexpected despawn message %+v", despawnMsg)
	}
	if despawnMsg.Version <= beforeDespawn {
		t.Fatalf("despawn version = %d, want > %d", despawnMsg.Version, beforeDespawn)
	}
}

func TestChunkManagerSyncEntityPositionMovesChunk(t *testing.T) {
	mgr, _, store := newTestChunkManager(t)
	_ = store.Create("e1", Identity{ID: "e1"})

	const chunkSize = 32.0
	mgr.SyncEntityPosition("e1", DefaultLayerID, Vec3{X: 5, Y: 0, Z: 5}, chunkSize)
	first, _ := mgr.CurrentChunk("e1")
	if first != (ChunkKey{LayerID: DefaultLayerID, CX: 0, CY: 0, CZ: 0}) {
		t.Fatalf("first chunk = %+v", first)
	}

	mgr.SyncEntityPosition("e1", DefaultLayerID, Vec3{X: 40, Y: 0, Z: 5}, chunkSize)
	second, _ := mgr.CurrentChunk("e1")
	if second != (ChunkKey{LayerID: DefaultLayerID, CX: 1, CY: 0, CZ: 0}) {
		t.Fatalf("second chunk = %+v", second)
	}
	if ids := mgr.EntitiesIn(first); len(ids) != 0 {
		t.Fatalf("expected entity to have left the first chunk, still has %v", ids)
	}

	// Re-syncing to the same chunk must be a no-op, not a remove+re-add.
	before := mgr.GetOrCreate(second).Version()
	mgr.SyncEntityPosition("e1", DefaultLayerID, Vec3{X: 45, Y: 0, Z: 8}, chunkSize)
	after := mgr.GetOrCreate(second).Version()
	if after != before {
		t.Fatalf("version changed on a same-chunk reposition: %d -> %d", before, after)
	}
}

func TestChunkManagerSubscribeDeliversSnapshot(t *testing.T) {
	mgr, _, store := newTestChunkManager(t)
	_ = store.Create("e1", Identity{ID: "e1"})
	key := ChunkKey{LayerID: DefaultLayerID, CX: 0, CY: 0, CZ: 0}
	mgr.AddEntity("e1", key)

	sub := newFakeSubscriber("s1", 4)
	mgr.Subscribe(sub, key)

	select {
	case msg := <-sub.inbox:
		snap, ok := msg.(ChunkSnapshotMessage)
		if !ok {
			t.Fatalf("expected ChunkSnapshotMessage, got %T", msg)
		}
		if len(snap.Entities) != 1 || snap.Entities[0].ID != "e1" {
			t.Fatalf("snapshot entities = %+v", snap.Entities)
		}
	default:
		t.Fatal("expected a snapshot to be delivered immediately on Subscribe")
	}
}

func TestChunkManagerBroadcastDeltaDropsFullSubscriber(t *testing.T) {
	mgr, _, store := newTestChunkManager(t)
	_ = store.Create("e1", Identity{ID: "e1"})
	key := ChunkKey{LayerID: DefaultLayerID, CX: 2, CY: 0, CZ: 2}

	slow := newFakeSubscriber("slow", 1)
	mgr.Subscribe(slow, key) // consumes the one buffer slot with the initial snapshot

	mgr.AddEntity("e1", key) // buffer now full; this delta cannot be delivered

	if subs := mgr.SubscribedChunks("slow"); len(subs) != 0 {
		t.Fatalf("expected the slow subscriber to be dropped, still subscribed to %v", subs)
	}
}

func TestChunkManagerUnsubscribeAll(t *testing.T) {
	mgr, _, _ := newTestChunkManager(t)
	keyA := ChunkKey{LayerID: DefaultLayerID, CX: 0, CY: 0, CZ: 0}
	keyB := ChunkKey{LayerID: DefaultLayerID, CX: 1, CY: 0, CZ: 0}

	sub := newFakeSubscriber("s1", 4)
	mgr.Subscribe(sub, keyA)
	mgr.Subscribe(sub, keyB)

	if got := mgr.SubscribedChunks("s1"); len(got) != 2 {
		t.Fatalf("SubscribedChunks() = %v, want 2 entries", got)
	}

	mgr.UnsubscribeAll("s1")
	if got := mgr.SubscribedChunks("s1"); len(got) != 0 {
		t.Fatalf("SubscribedChunks() after UnsubscribeAll = %v, want empty", got)
	}
}

func TestChunkManagerGenerateIsIdempotentAndGated(t *testing.T) {
	mgr, _, store := newTestChunkManager(t)

	generated := ChunkKey{LayerID: DefaultLayerID, CX: 0, CY: 0, CZ: 0}
	ungenerated := ChunkKey{LayerID: DefaultLayerID, CX: 1, CY: 0, CZ: 0}

	mgr.Load(generated)
	mgr.Load(ungenerated)

	genID := "gen:" + generated.String()
	if !store.Exists(genID) {
		t.Fatal("expected a generated block at cx%4==0, cz%4==0, cy==0")
	}
	if store.Exists("gen:" + ungenerated.String()) {
		t.Fatal("did not expect a generated block at cx=1")
	}

	// Loading twice must not duplicate the generated entity or re-run
	// generation.
	mgr.Unload(generated)
	mgr.Load(generated)
	if ids := mgr.EntitiesIn(generated); len(ids) != 1 {
		t.Fatalf("EntitiesIn(generated) after reload = %v, want exactly one generated block", ids)
	}
}

func TestChunkManagerSweepEvictionUnloadsStalest(t *testing.T) {
	mgr, _, _ := newTestChunkManager(t)
	mgr.cfg.MaxLoadedChunks = 1

	now := time.Now()
	mgr.SetClock(func() time.Time { return now })

	old := ChunkKey{LayerID: DefaultLayerID, CX: 0, CY: 0, CZ: 0}
	mgr.Load(old)

	now = now.Add(time.Hour)
	fresh := ChunkKey{LayerID: DefaultLayerID, CX: 5, CY: 0, CZ: 5}
	mgr.Load(fresh)

	mgr.SweepEviction()

	if mgr.GetOrCreate(old).Loaded() {
		t.Fatal("expected the stalest chunk to be unloaded by the sweep")
	}
}

func TestChunkManagerSweepEvictionPrunesDeadSubscribers(t *testing.T) {
	mgr, _, _ := newTestChunkManager(t)
	key := ChunkKey{LayerID: DefaultLayerID, CX: 0, CY: 0, CZ: 0}

	sub := newFakeSubscriber("s1", 4)
	mgr.Subscribe(sub, key)
	sub.dead = true

	mgr.SweepEviction()

	c := mgr.GetOrCreate(key)
	if c.SubscriberCount() != 0 {
		t.Fatalf("SubscriberCount() after sweep = %d, want 0", c.SubscriberCount())
	}
}
