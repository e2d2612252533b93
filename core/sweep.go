package core

import "math"

// SweepHit describes the first obstruction encountered along a swept move.
type SweepHit struct {
	Distance float64
	Normal   Vec3
	EntityID string // set only for dynamic-entity hits
}

// sweepCandidates gathers the chunks a swept move must test against: the
// start chunk, the end chunk, and their immediate 3x3x3 neighborhood
// margin, kept wide for safety.
func sweepCandidates(layerID string, start, end Vec3, chunkSize float64) []ChunkCoord {
	startCoord := WorldToChunk(start, chunkSize)
	endCoord := WorldToChunk(end, chunkSize)

	seen := make(map[ChunkCoord]struct{})
	var out []ChunkCoord
	add := func(c ChunkCoord) {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	for _, c := range Neighbors(startCoord, 1) {
		add(c)
	}
	for _, c := range Neighbors(endCoord, 1) {
		add(c)
	}
	return out
}

// sweptAABB performs the sweep algorithm: mover box at start, displaced
// by D to end, tested against static occupancy grids (coarse end-overlap)
// and dynamic solid entities (slab-method continuous collision). excludeID
// is the mover's own entity id.
func sweptAABB(chunkMgr *ChunkManager, store *EntityStore, layerID string, startBox AABB, d Vec3, chunkSize float64, excludeID string) (*SweepHit, bool) {
	startCenter := startBox.Center()
	endCenter := startCenter.Add(d)
	endBox := startBox.Translate(d)

	var best *SweepHit
	dLen := d.Length()

	for _, coord := range sweepCandidates(layerID, startCenter, endCenter, chunkSize) {
		key := ChunkKey{LayerID: layerID, CX: coord.CX, CY: coord.CY, CZ: coord.CZ}
		chunk, ok := chunkMgr.get(key)
		if !ok {
			continue
		}
		grid := chunk.Grid()
		if grid == nil {
			continue
		}
		origin := ChunkToWorld(coord, chunkSize)
		if grid.OverlapsBox(origin, chunkSize, endBox) {
			dist := dLen / 2
			hit := &SweepHit{Distance: dist, Normal: Vec3{X: 0, Y: 1, Z: 0}}
			if best == nil || hit.Distance < best.Distance {
				best = hit
			}
		}
	}

	for _, id := range store.ListWithAll(KindSolidity, KindShape, KindMobility) {
		if id == excludeID {
			continue
		}
		solidity, ok := store.Get(id, KindSolidity)
		if !ok {
			continue
		}
		if s, ok := solidity.(Solidity); !ok || !s.Solid {
			continue
		}
		shapeC, _ := store.Get(id, KindShape)
		mobC, _ := store.Get(id, KindMobility)
		shape, ok1 := shapeC.(Shape)
		mob, ok2 := mobC.(Mobility)
		if !ok1 || !ok2 {
			continue
		}

		targetBox := shape.Box.Translate(mob.Position)
		half := startBox.HalfExtents()
		expanded := targetBox.Expand(half)

		if t, normal, hit := slabIntersect(startCenter, d, expanded); hit {
			dist := t * dLen
			if best == nil || dist < best.Distance {
				best = &SweepHit{Distance: dist, Normal: normal, EntityID: id}
			} else if dist == best.Distance {
				// Tie-break: static loses to dynamic.
				best = &SweepHit{Distance: dist, Normal: normal, EntityID: id}
			}
		}
	}

	if best == nil {
		return nil, false
	}
	return best, true
}

// slabIntersect tests the segment [origin, origin+d] against box using the
// slab method, returning the entry parameter t in [0,1] and the
// axis-aligned normal opposing d on the entry axis.
func slabIntersect(origin Vec3, d Vec3, box AABB) (float64, Vec3, bool) {
	tMin, tMax := 0.0, 1.0
	entryAxis := -1

	axes := [3]struct {
		o, dd, lo, hi float64
	}{
		{origin.X, d.X, box.Min.X, box.Max.X},
		{origin.Y, d.Y, box.Min.Y, box.Max.Y},
		{origin.Z, d.Z, box.Min.Z, box.Max.Z},
	}

	for i, a := range axes {
		if math.Abs(a.dd) < 1e-12 {
			if a.o < a.lo || a.o > a.hi {
				return 0, Vec3{}, false
			}
			continue
		}
		t1 := (a.lo - a.o) / a.dd
		t2 := (a.hi - a.o) / a.dd
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tMin {
			tMin = t1
			entryAxis = i
		}
		if t2 < tMax {
			tMax = t2
		}
		if tMin > tMax {
			return 0, Vec3{}, false
		}
	}

	if entryAxis < 0 || tMin < 0 || tMin > 1 || tMin > tMax {
		return 0, Vec3{}, false
	}

	normal := Vec3{}
	switch entryAxis {
	case 0:
		if d.X > 0 {
			normal.X = -1
		} else {
			normal.X = 1
		}
	case 1:
		if d.Y > 0 {
			normal.Y = -1
		} else {
			normal.Y = 1
		}
	case 2:
		if d.Z > 0 {
			normal.Z = -1
		} else {
			normal.Z = 1
		}
	}
	return tMin, normal, true
}
