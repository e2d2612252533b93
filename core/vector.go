package core

import "math"

// Vec3 is a point or displacement in world space. All component payloads
// that carry a position or velocity embed one.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalized returns v scaled to unit length, or the zero vector if v is
// (numerically) zero.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l < 1e-12 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// AABB is an axis-aligned bounding box, Min <= Max component-wise.
type AABB struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// Translate returns the box shifted by delta.
func (b AABB) Translate(delta Vec3) AABB {
	return AABB{Min: b.Min.Add(delta), Max: b.Max.Add(delta)}
}

// Expand returns b grown by half on every face (Minkowski sum with a box of
// the given half-extents).
func (b AABB) Expand(half Vec3) AABB {
	return AABB{
		Min: Vec3{b.Min.X - half.X, b.Min.Y - half.Y, b.Min.Z - half.Z},
		Max: Vec3{b.Max.X + half.X, b.Max.Y + half.Y, b.Max.Z + half.Z},
	}
}

// HalfExtents returns half the size of the box on each axis.
func (b AABB) HalfExtents() Vec3 {
	return Vec3{(b.Max.X - b.Min.X) / 2, (b.Max.Y - b.Min.Y) / 2, (b.Max.Z - b.Min.Z) / 2}
}

// Center returns the midpoint of the box.
func (b AABB) Center() Vec3 {
	return Vec3{(b.Max.X + b.Min.X) / 2, (b.Max.Y + b.Min.Y) / 2, (b.Max.Z + b.Min.Z) / 2}
}

// Overlaps reports whether b and o intersect, treating the max faces as
// exclusive on no axis (closed-closed test).
func (b AABB) Overlaps(o AABB) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// ContainsPoint reports whether p falls within b (closed on every face).
func (b AABB) ContainsPoint(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}
