package core

import "testing"

func newTestMovement(t *testing.T) (*Movement, *EntityStore, *ChunkManager) {
	t.Helper()
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
	return mv, store, chunks
}

func unitBoxAt(pos Vec3) (Mobility, Shape) {
	return Mobility{Position: pos}, Shape{Box: AABB{Min: Vec3{X: -0.5, Y: -0.5, Z: -0.5}, Max: Vec3{X: 0.5, Y: 0.5, Z: 0.5}}, Geometry: GeometryBox}
}

func TestAttemptMoveOpenSpaceSucceeds(t *testing.T) {
	mv, store, _ := newTestMovement(t)
	mob, shape := unitBoxAt(Vec3{X: 0, Y: 0, Z: 0})
	if err := store.Create("player", Identity{ID: "player"}, mob, shape); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	result := mv.AttemptMove("player", DefaultLayerID, Vec3{X: 1, Y: 0, Z: 0}, 1.0)
	if !result.OK {
		t.Fatalf("AttemptMove() = %+v, want OK in open space", result)
	}
	if result.Position.X <= 0 {
		t.Fatalf("AttemptMove() position = %+v, expected forward progress", result.Position)
	}
}

func TestAttemptMoveBlockedByDynamicSolid(t *testing.T) {
	mv, store, _ := newTestMovement(t)
	mob, shape := unitBoxAt(Vec3{X: 0, Y: 0, Z: 0})
	if err := store.Create("player", Identity{ID: "player"}, mob, shape); err != nil {
		t.Fatalf("Create() player error: %v", err)
	}

	blockerMob, blockerShape := unitBoxAt(Vec3{X: 2, Y: 0, Z: 0})
	if err := store.Create("wall", Identity{ID: "wall"}, blockerMob, blockerShape, Solidity{Solid: true}); err != nil {
		t.Fatalf("Create() wall error: %v", err)
	}

	result := mv.AttemptMove("player", DefaultLayerID, Vec3{X: 5, Y: 0, Z: 0}, 10.0)
	if result.OK {
		t.Fatalf("AttemptMove() = %+v, want blocked by the solid wall", result)
	}
	if result.Position.X >= 2 {
		t.Fatalf("AttemptMove() clamped position = %+v, expected to stop short of the wall", result.Position)
	}
}

func TestAttemptMoveNoMobilityFails(t *testing.T) {
	mv, store, _ := newTestMovement(t)
	if err := store.Create("rock", Identity{ID: "rock"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	result := mv.AttemptMove("rock", DefaultLayerID, Vec3{X: 1}, 1.0)
	if result.OK || result.BlockedReason != "no mobility" {
		t.Fatalf("AttemptMove() on entity with no mobility = %+v", result)
	}
}

func TestAttemptMoveWithinEpsilonIsANoOp(t *testing.T) {
	mv, store, _ := newTestMovement(t)
	mob, shape := unitBoxAt(Vec3{X: 1, Y: 1, Z: 1})
	_ = store.Create("player", Identity{ID: "player"}, mob, shape)

	result := mv.AttemptMove("player", DefaultLayerID, Vec3{X: 1, Y: 1, Z: 1}, 1.0)
	if !result.OK || result.Position != (Vec3{X: 1, Y: 1, Z: 1}) {
		t.Fatalf("AttemptMove() to the same position = %+v", result)
	}
}

func TestTeleportRefusesCollision(t *testing.T) {
	mv, store, _ := newTestMovement(t)
	mob, shape := unitBoxAt(Vec3{X: 0, Y: 0, Z: 0})
	_ = store.Create("player", Identity{ID: "player"}, mob, shape)

	blockerMob, blockerShape := unitBoxAt(Vec3{X: 10, Y: 0, Z: 0})
	_ = store.Create("wall", Identity{ID: "wall"}, blockerMob, blockerShape, Solidity{Solid: true})

	if mv.Teleport("player", DefaultLayerID, Vec3{X: 10, Y: 0, Z: 0}) {
		t.Fatal("expected teleport into a solid wall to be refused")
	}
	if mv.Teleport("player", DefaultLayerID, Vec3{X: -5, Y: 0, Z: 0}) == false {
		t.Fatal("expected teleport to open space to succeed")
	}
}

func TestApplyImpulseAccumulatesVelocity(t *testing.T) {
	mv, store, _ := newTestMovement(t)
	mob, shape := unitBoxAt(Vec3{})
	_ = store.Create("player", Identity{ID: "player"}, mob, shape)

	if !mv.ApplyImpulse("player", Vec3{X: 1, Y: 0, Z: 0}) {
		t.Fatal("ApplyImpulse() returned false")
	}
	if !mv.ApplyImpulse("player", Vec3{X: 1, Y: 0, Z: 0}) {
		t.Fatal("ApplyImpulse() returned false on second call")
	}

	c, _ := store.Get("player", KindMobility)
	vel := c.(Mobility).Velocity
	if vel == nil || vel.X != 2 {
		t.Fatalf("accumulated velocity = %+v, want X=2", vel)
	}
}

func TestUpdateAppliesGravityWhenAirborne(t *testing.T) {
	mv, store, _ := newTestMovement(t)
	mob, shape := unitBoxAt(Vec3{X: 0, Y: 100, Z: 0})
	_ = store.Create("player", Identity{ID: "player"}, mob, shape)

	mv.Update(1.0, DefaultLayerID)

	c, _ := store.Get("player", KindMobility)
	updated := c.(Mobility)
	if updated.Position.Y >= 100 {
		t.Fatalf("position.Y after one tick = %v, want it to have fallen", updated.Position.Y)
	}
	if updated.Velocity == nil || updated.Velocity.Y >= 0 {
		t.Fatalf("velocity after falling = %+v, want negative Y", updated.Velocity)
	}
}
