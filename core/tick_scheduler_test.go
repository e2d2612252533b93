package core

import (
	"testing"
	"time"
)

func newTestScheduler(t *testing.T, systems TickSystems) *TickScheduler {
	t.Helper()
	return NewTickScheduler(TickConfig{TargetFPS: 60, MaxDeltaTime: 100 * time.Millisecond}, systems, nil)
}

func TestTickSchedulerRunOnceDrivesMovementThenDurability(t *testing.T) {
	layers := NewLayerRegistry()
	store := NewEntityStore(NewSchemaRegistry(), nil)
	chunks := NewChunkManager(layers, store, nil, ChunkManagerConfig{
		GridResolution:    8,
		MaxLoadedChunks:   100,
		MaxRetainedChunks: 1000,
	}, nil)
	mv := NewMovement(store, chunks, layers, MovementConfig{
		Gravity:          -9.81,
		TerminalVelocity: -50,
		GroundFriction:   0.8,
		AirFriction:      0.98,
		CollisionEpsilon: 0.001,
	})
	dur := NewDurability(store, nil, nil, DurabilityConfig{DefaultHealth: 10, DefaultMaxHealth: 10})

	mob, shape := unitBoxAt(Vec3{X: 0, Y: 100, Z: 0})
	if err := store.Create("player", Identity{ID: "player"}, mob, shape); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	sched := newTestScheduler(t, TickSystems{
		Movement:   mv,
		Durability: dur,
		LayerIDs:   func() []string { return []string{DefaultLayerID} },
	})

	sched.RunOnce(1.0)

	c, _ := store.Get("player", KindMobility)
	if c.(Mobility).Position.Y >= 100 {
		t.Fatal("expected movement to have been driven by RunOnce")
	}
	if _, ok := store.Get("player", KindDurability); !ok {
		t.Fatal("expected durability to have been ensured by RunOnce")
	}
	if sched.TickCount() != 1 {
		t.Fatalf("TickCount() = %d, want 1", sched.TickCount())
	}
}

func TestTickSchedulerRunOnceToleratesNilSystems(t *testing.T) {
	sched := newTestScheduler(t, TickSystems{})
	sched.RunOnce(1.0) // must not panic
	if sched.TickCount() != 1 {
		t.Fatalf("TickCount() = %d, want 1", sched.TickCount())
	}
}

func TestTickSchedulerRunStopsCleanly(t *testing.T) {
	sched := newTestScheduler(t, TickSystems{})

	done := make(chan struct{})
	go func() {
		sched.Run()
		close(done)
	}()

	// Give the run loop a moment to start before stopping it.
	time.Sleep(20 * time.Millisecond)
	sched.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run() to return after Stop()")
	}
}

func TestTickSchedulerRunWithDisabledTickRateReturnsImmediately(t *testing.T) {
	sched := NewTickScheduler(TickConfig{TickRateDisabled: true}, TickSystems{}, nil)

	done := make(chan struct{})
	go func() {
		sched.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run() to return immediately when tick_rate_disabled is set")
	}
}

func TestTickSchedulerStopOnNeverStartedSchedulerIsNoOp(t *testing.T) {
	sched := newTestScheduler(t, TickSystems{})
	sched.Stop() // must not block or panic
}

func TestTickSchedulerAverageLagWithNoSamplesIsZero(t *testing.T) {
	sched := newTestScheduler(t, TickSystems{})
	if sched.AverageLag() != 0 {
		t.Fatalf("AverageLag() with no samples = %v, want 0", sched.AverageLag())
	}
}
