package core

import "math"

// DefaultMaxSpeed is used by attempt_move when an entity carries no
// explicit mobility.maxSpeed.
const DefaultMaxSpeed = 5.0

// groundProbeOffset is how far below the current position the integrator
// tests for ground contact.
const groundProbeOffset = 0.1

// MovementConfig bundles the tunables the Movement System needs from
// pkg/config.
type MovementConfig struct {
	Gravity          float64
	TerminalVelocity float64
	GroundFriction   float64
	AirFriction      float64
	CollisionEpsilon float64
}

// MoveResult is the outcome of an authoritative attempt_move call.
type MoveResult struct {
	OK               bool
	Position         Vec3
	BlockedReason    string
	CollisionNormal  *Vec3
}

// Movement implements the tick integrator and the authoritative
// attempt_move intent surface. It reads positions and shapes from
// the Entity Store and tests collision against the Chunk Manager's static
// grids and dynamic solid entities.
type Movement struct {
	store    *EntityStore
	chunks   *ChunkManager
	layers   *LayerRegistry
	cfg      MovementConfig
}

// NewMovement builds a Movement system bound to store, chunks and layers.
func NewMovement(store *EntityStore, chunks *ChunkManager, layers *LayerRegistry, cfg MovementConfig) *Movement {
	return &Movement{store: store, chunks: chunks, layers: layers, cfg: cfg}
}

func (mv *Movement) layerChunkSize(layerID string) float64 {
	if l, ok := mv.layers.Get(layerID); ok {
		return l.ChunkSize
	}
	if l, ok := mv.layers.Get(DefaultLayerID); ok {
		return l.ChunkSize
	}
	return 32
}

// groundedAt reports whether a probe box 0.1 below pos collides with
// anything solid.
func (mv *Movement) groundedAt(layerID string, box AABB, pos Vec3) bool {
	probeBox := box.Translate(Vec3{X: pos.X - box.Center().X, Y: pos.Y - box.Center().Y, Z: pos.Z - box.Center().Z})
	down := Vec3{X: 0, Y: -groundProbeOffset, Z: 0}
	chunkSize := mv.layerChunkSize(layerID)
	_, hit := sweptAABB(mv.chunks, mv.store, layerID, probeBox, down, chunkSize, "")
	return hit
}

// Update runs the non-authoritative tick integrator over every entity with
// mobility: gravity, friction, speed clamp, candidate integration, and the
// step-up/step-across collision cascade.
func (mv *Movement) Update(dt float64, layerID string) {
	for _, id := range mv.store.ListWith(KindMobility) {
		mv.integrateOne(id, layerID, dt)
	}
}

func (mv *Movement) integrateOne(id, layerID string, dt float64) {
	mobC, ok := mv.store.Get(id, KindMobility)
	if !ok {
		return
	}
	mob := mobC.(Mobility)

	velocity := Vec3{}
	if mob.Velocity != nil {
		velocity = *mob.Velocity
	}

	shapeC, hasShape := mv.store.Get(id, KindShape)
	var box AABB
	if hasShape {
		box = shapeC.(Shape).Box
	} else {
		box = AABB{Min: Vec3{X: -0.5, Y: -0.5, Z: -0.5}, Max: Vec3{X: 0.5, Y: 0.5, Z: 0.5}}
	}
	worldBox := box.Translate(mob.Position)

	grounded := mv.groundedAt(layerID, worldBox, mob.Position)
	if !grounded {
		velocity.Y += mv.cfg.Gravity * dt
		if velocity.Y < mv.cfg.TerminalVelocity {
			velocity.Y = mv.cfg.TerminalVelocity
		}
	} else if velocity.Y < 0 {
		velocity.Y = 0
	}

	velocity.X *= math.Pow(mv.frictionFor(grounded), dt)
	velocity.Z *= math.Pow(mv.frictionFor(grounded), dt)

	if mob.MaxSpeed != nil {
		horizontal := Vec3{X: velocity.X, Z: velocity.Z}
		speed := horizontal.Length()
		if speed > *mob.MaxSpeed && speed > 0 {
			scale := *mob.MaxSpeed / speed
			velocity.X *= scale
			velocity.Z *= scale
		}
	}

	candidate := mob.Position.Add(velocity.Scale(dt))
	chunkSize := mv.layerChunkSize(layerID)
	displacement := candidate.Sub(mob.Position)

	finalPos := mob.Position
	finalVel := velocity

	if _, blocked := sweptAABB(mv.chunks, mv.store, layerID, worldBox, displacement, chunkSize, id); blocked {
		stepX := Vec3{X: candidate.X, Y: mob.Position.Y, Z: candidate.Z}
		dispX := stepX.Sub(mob.Position)
		if _, blockedX := sweptAABB(mv.chunks, mv.store, layerID, worldBox, dispX, chunkSize, id); !blockedX {
			finalPos = stepX
			finalVel.Y = 0
		} else {
			stepY := Vec3{X: mob.Position.X, Y: candidate.Y, Z: mob.Position.Z}
			dispY := stepY.Sub(mob.Position)
			if _, blockedY := sweptAABB(mv.chunks, mv.store, layerID, worldBox, dispY, chunkSize, id); !blockedY {
				finalPos = stepY
				finalVel.X = 0
				finalVel.Z = 0
			} else {
				finalVel = Vec3{}
			}
		}
	} else {
		finalPos = candidate
	}

	mob.Position = finalPos
	mob.Velocity = &finalVel
	mv.store.RemoveComponent(id, KindMobility)
	_, _ = mv.store.Add(id, mob)
}

func (mv *Movement) frictionFor(grounded bool) float64 {
	if grounded {
		return mv.cfg.GroundFriction
	}
	return mv.cfg.AirFriction
}

// AttemptMove is the authoritative intent surface. It does
// not itself write the new position back to the store; the caller
// (Session Manager) applies the returned position via the store so the
// reply and the broadcast observe the same write.
func (mv *Movement) AttemptMove(id, layerID string, want Vec3, dt float64) MoveResult {
	mobC, hasMobility := mv.store.Get(id, KindMobility)
	if !hasMobility {
		return MoveResult{OK: false, Position: Vec3{}, BlockedReason: "no mobility"}
	}
	mob := mobC.(Mobility)

	shapeC, hasShape := mv.store.Get(id, KindShape)
	if !hasShape {
		return MoveResult{OK: false, Position: mob.Position, BlockedReason: "no shape"}
	}
	shape := shapeC.(Shape)

	direction := want.Sub(mob.Position)
	if direction.Length() < mv.cfg.CollisionEpsilon {
		return MoveResult{OK: true, Position: mob.Position}
	}

	maxSpeed := DefaultMaxSpeed
	if mob.MaxSpeed != nil {
		maxSpeed = *mob.MaxSpeed
	}
	travelLen := maxSpeed * dt
	unit := direction.Normalized()
	if direction.Length() < travelLen {
		travelLen = direction.Length()
	}
	travel := unit.Scale(travelLen)

	proposed := mob.Position.Add(travel)
	worldBox := shape.Box.Translate(mob.Position)
	chunkSize := mv.layerChunkSize(layerID)

	hit, blocked := sweptAABB(mv.chunks, mv.store, layerID, worldBox, travel, chunkSize, id)
	if !blocked {
		return MoveResult{OK: true, Position: proposed}
	}

	dLen := travel.Length()
	t := 0.0
	if dLen > 0 {
		t = hit.Distance/dLen - mv.cfg.CollisionEpsilon
		if t < 0 {
			t = 0
		}
	}
	clampedPos := mob.Position.Add(travel.Scale(t))
	reason := "blocked"
	if hit.EntityID != "" {
		reason = "blocked by entity " + hit.EntityID
	} else {
		reason = "blocked by terrain"
	}
	normal := hit.Normal
	return MoveResult{OK: false, Position: clampedPos, BlockedReason: reason, CollisionNormal: &normal}
}

// Teleport relocates id to pos directly, refusing if pos would collide.
func (mv *Movement) Teleport(id, layerID string, pos Vec3) bool {
	mobC, ok := mv.store.Get(id, KindMobility)
	if !ok {
		return false
	}
	mob := mobC.(Mobility)
	shapeC, ok := mv.store.Get(id, KindShape)
	if !ok {
		return false
	}
	shape := shapeC.(Shape)

	worldBox := shape.Box.Translate(mob.Position)
	chunkSize := mv.layerChunkSize(layerID)
	displacement := pos.Sub(mob.Position)
	if _, blocked := sweptAABB(mv.chunks, mv.store, layerID, worldBox, displacement, chunkSize, id); blocked {
		return false
	}

	mob.Position = pos
	zero := Vec3{}
	mob.Velocity = &zero
	mv.store.RemoveComponent(id, KindMobility)
	_, _ = mv.store.Add(id, mob)
	return true
}

// SetVelocity directly overwrites an entity's mobility.velocity.
func (mv *Movement) SetVelocity(id string, v Vec3) bool {
	mobC, ok := mv.store.Get(id, KindMobility)
	if !ok {
		return false
	}
	mob := mobC.(Mobility)
	mob.Velocity = &v
	mv.store.RemoveComponent(id, KindMobility)
	_, _ = mv.store.Add(id, mob)
	return true
}

// ApplyImpulse adds delta to an entity's mobility.velocity.
func (mv *Movement) ApplyImpulse(id string, delta Vec3) bool {
	mobC, ok := mv.store.Get(id, KindMobility)
	if !ok {
		return false
	}
	mob := mobC.(Mobility)
	cur := Vec3{}
	if mob.Velocity != nil {
		cur = *mob.Velocity
	}
	next := cur.Add(delta)
	mob.Velocity = &next
	mv.store.RemoveComponent(id, KindMobility)
	_, _ = mv.store.Add(id, mob)
	return true
}
