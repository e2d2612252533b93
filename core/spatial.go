package core

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// ChunkHeight is the global vertical chunk dimension. It is independent of
// a layer's horizontal chunk_size.
const ChunkHeight = 256

// chunkOverlapEpsilon keeps a box's max face from double-counting the
// chunk on the far side of a boundary it sits exactly on.
const chunkOverlapEpsilon = 1e-6

// ChunkCoord is a chunk cell coordinate within one layer.
type ChunkCoord struct {
	CX, CY, CZ int64
}

// ChunkKey identifies a chunk cell within a specific layer.
type ChunkKey struct {
	LayerID string
	CX      int64
	CY      int64
	CZ      int64
}

// chunkKeyPattern governs the canonical string form "<layerId>:<cx>,<cy>,<cz>".
var chunkKeyPattern = regexp.MustCompile(`^([^:]+):(-?\d+),(-?\d+),(-?\d+)$`)

// String renders the canonical internal map-key form of k.
func (k ChunkKey) String() string {
	return fmt.Sprintf("%s:%d,%d,%d", k.LayerID, k.CX, k.CY, k.CZ)
}

// Coord returns k's chunk-cell coordinate, dropping the layer id.
func (k ChunkKey) Coord() ChunkCoord {
	return ChunkCoord{CX: k.CX, CY: k.CY, CZ: k.CZ}
}

// ParseChunkKey parses the canonical string form produced by String. It is
// the exact left inverse: ParseChunkKey(k.String()) == k for every k whose
// LayerID is non-empty and contains no ':'.
func ParseChunkKey(s string) (ChunkKey, error) {
	m := chunkKeyPattern.FindStringSubmatch(s)
	if m == nil {
		return ChunkKey{}, invalidComponent("chunk_key", "", "does not match layerId:cx,cy,cz")
	}
	cx, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return ChunkKey{}, invalidComponent("chunk_key", "cx", "not an integer")
	}
	cy, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return ChunkKey{}, invalidComponent("chunk_key", "cy", "not an integer")
	}
	cz, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil {
		return ChunkKey{}, invalidComponent("chunk_key", "cz", "not an integer")
	}
	return ChunkKey{LayerID: m[1], CX: cx, CY: cy, CZ: cz}, nil
}

func floorDiv(v, s float64) int64 {
	return int64(math.Floor(v / s))
}

// WorldToChunk maps a world position to the chunk cell that contains it,
// using chunkSize horizontally and the global ChunkHeight vertically.
func WorldToChunk(pos Vec3, chunkSize float64) ChunkCoord {
	return ChunkCoord{
		CX: floorDiv(pos.X, chunkSize),
		CY: floorDiv(pos.Y, ChunkHeight),
		CZ: floorDiv(pos.Z, chunkSize),
	}
}

// ChunkToWorld returns the origin (minimum corner) of the given chunk cell.
func ChunkToWorld(c ChunkCoord, chunkSize float64) Vec3 {
	return Vec3{
		X: float64(c.CX) * chunkSize,
		Y: float64(c.CY) * ChunkHeight,
		Z: float64(c.CZ) * chunkSize,
	}
}

// IntersectingChunks enumerates the chunk cells whose half-open interval
// [min, max-ε) overlaps box, with a narrow-straddle clamp: an axis whose
// span is smaller than the cell size and straddles zero collapses to the
// origin cell on that axis.
func IntersectingChunks(box AABB, chunkSize float64) []ChunkCoord {
	xs := intersectingAxis(box.Min.X, box.Max.X, chunkSize)
	ys := intersectingAxis(box.Min.Y, box.Max.Y, ChunkHeight)
	zs := intersectingAxis(box.Min.Z, box.Max.Z, chunkSize)

	out := make([]ChunkCoord, 0, len(xs)*len(ys)*len(zs))
	for _, cy := range ys {
		for _, cx := range xs {
			for _, cz := range zs {
				out = append(out, ChunkCoord{CX: cx, CY: cy, CZ: cz})
			}
		}
	}
	return out
}

func intersectingAxis(lo, hi, size float64) []int64 {
	span := hi - lo
	if span < size && lo < 0 && hi > 0 {
		return []int64{0}
	}

	loCell := floorDiv(lo, size)
	hiExclusive := hi - chunkOverlapEpsilon
	hiCell := floorDiv(hiExclusive, size)
	if hiCell < loCell {
		hiCell = loCell
	}

	out := make([]int64, 0, hiCell-loCell+1)
	for c := loCell; c <= hiCell; c++ {
		out = append(out, c)
	}
	return out
}

// Neighbors enumerates the cube [-r..r]^3 around center, inclusive.
func Neighbors(center ChunkCoord, r int64) []ChunkCoord {
	if r < 0 {
		r = 0
	}
	side := 2*r + 1
	out := make([]ChunkCoord, 0, side*side*side)
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			for dz := -r; dz <= r; dz++ {
				out = append(out, ChunkCoord{CX: center.CX + dx, CY: center.CY + dy, CZ: center.CZ + dz})
			}
		}
	}
	return out
}

// ChunksInRadius converts a world-space radius to a chunk radius (ceil) and
// delegates to Neighbors.
func ChunksInRadius(centerPos Vec3, rWorld, chunkSize float64) []ChunkCoord {
	center := WorldToChunk(centerPos, chunkSize)
	chunkRadius := int64(math.Ceil(rWorld / chunkSize))
	return Neighbors(center, chunkRadius)
}
