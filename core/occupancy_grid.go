package core

import "math"

// DefaultGridResolution is R: the per-axis resolution of a
// chunk's static occupancy grid.
const DefaultGridResolution = 16

// OccupancyGrid is a dense bit volume describing coarse static solidity
// within one chunk, resolution R on every axis.
type OccupancyGrid struct {
	resolution int
	bits       []bool
}

// NewOccupancyGrid builds an all-empty grid of the given resolution.
func NewOccupancyGrid(resolution int) *OccupancyGrid {
	if resolution <= 0 {
		resolution = DefaultGridResolution
	}
	return &OccupancyGrid{
		resolution: resolution,
		bits:       make([]bool, resolution*resolution*resolution),
	}
}

// Resolution returns R.
func (g *OccupancyGrid) Resolution() int { return g.resolution }

func (g *OccupancyGrid) inRange(x, y, z int) bool {
	r := g.resolution
	return x >= 0 && x < r && y >= 0 && y < r && z >= 0 && z < r
}

func (g *OccupancyGrid) index(x, y, z int) int {
	r := g.resolution
	return (x*r+y)*r + z
}

// SetSolid marks voxel (x,y,z) solid or empty. Out-of-range indices are
// silently clipped (no-op).
func (g *OccupancyGrid) SetSolid(x, y, z int, solid bool) {
	if !g.inRange(x, y, z) {
		return
	}
	g.bits[g.index(x, y, z)] = solid
}

// IsSolid reports voxel (x,y,z)'s solidity. Out-of-range indices always
// report false.
func (g *OccupancyGrid) IsSolid(x, y, z int) bool {
	if !g.inRange(x, y, z) {
		return false
	}
	return g.bits[g.index(x, y, z)]
}

// worldToGridAxis maps one world-space axis value into a grid cell index,
// wrapping the position into [0, size) before scaling by R/size.
func worldToGridAxis(v, size float64, resolution int) int {
	m := math.Mod(v, size)
	if m < 0 {
		m += size
	}
	idx := int(math.Floor(m / size * float64(resolution)))
	if idx >= resolution {
		idx = resolution - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// WorldToGrid maps a world position to the grid cell of the chunk it falls
// in, given that chunk's horizontal size and the grid's resolution.
func WorldToGrid(pos Vec3, chunkSize float64, resolution int) (x, y, z int) {
	return worldToGridAxis(pos.X, chunkSize, resolution),
		worldToGridAxis(pos.Y, ChunkHeight, resolution),
		worldToGridAxis(pos.Z, chunkSize, resolution)
}

// OverlapsBox reports whether box (in world coordinates) overlaps any
// solid voxel of a chunk whose origin and horizontal size are given. This
// is the "end-position overlap" static collision test used by the
// sweep policy: intentionally coarse, not a true sweep.
func (g *OccupancyGrid) OverlapsBox(chunkOrigin Vec3, chunkSize float64, box AABB) bool {
	chunkBox := AABB{
		Min: chunkOrigin,
		Max: Vec3{chunkOrigin.X + chunkSize, chunkOrigin.Y + ChunkHeight, chunkOrigin.Z + chunkSize},
	}
	if !chunkBox.Overlaps(box) {
		return false
	}

	r := g.resolution
	cellX := chunkSize / float64(r)
	cellY := ChunkHeight / float64(r)
	cellZ := chunkSize / float64(r)

	clampedMin := Vec3{
		X: math.Max(box.Min.X, chunkBox.Min.X),
		Y: math.Max(box.Min.Y, chunkBox.Min.Y),
		Z: math.Max(box.Min.Z, chunkBox.Min.Z),
	}
	clampedMax := Vec3{
		X: math.Min(box.Max.X, chunkBox.Max.X),
		Y: math.Min(box.Max.Y, chunkBox.Max.Y),
		Z: math.Min(box.Max.Z, chunkBox.Max.Z),
	}

	x0 := clampIndex(int(math.Floor((clampedMin.X-chunkOrigin.X)/cellX)), r)
	x1 := clampIndex(int(math.Floor((clampedMax.X-chunkOrigin.X)/cellX)), r)
	y0 := clampIndex(int(math.Floor((clampedMin.Y-chunkOrigin.Y)/cellY)), r)
	y1 := clampIndex(int(math.Floor((clampedMax.Y-chunkOrigin.Y)/cellY)), r)
	z0 := clampIndex(int(math.Floor((clampedMin.Z-chunkOrigin.Z)/cellZ)), r)
	z1 := clampIndex(int(math.Floor((clampedMax.Z-chunkOrigin.Z)/cellZ)), r)

	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			for z := z0; z <= z1; z++ {
				if g.IsSolid(x, y, z) {
					return true
				}
			}
		}
	}
	return false
}

func clampIndex(v, resolution int) int {
	if v < 0 {
		return 0
	}
	if v > resolution-1 {
		return resolution - 1
	}
	return v
}
