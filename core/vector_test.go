package core

import "testing"

func TestVec3Arithmetic(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: 4, Y: -1, Z: 2}

	if got := a.Add(b); got != (Vec3{X: 5, Y: 1, Z: 5}) {
		t.Fatalf("Add() = %+v", got)
	}
	if got := a.Sub(b); got != (Vec3{X: -3, Y: 3, Z: 1}) {
		t.Fatalf("Sub() = %+v", got)
	}
	if got := a.Scale(2); got != (Vec3{X: 2, Y: 4, Z: 6}) {
		t.Fatalf("Scale() = %+v", got)
	}
}

func TestVec3Normalized(t *testing.T) {
	v := Vec3{X: 3, Y: 0, Z: 4}
	n := v.Normalized()
	if n.Length() < 0.999 || n.Length() > 1.001 {
		t.Fatalf("Normalized() length = %v, want ~1", n.Length())
	}

	zero := Vec3{}.Normalized()
	if zero != (Vec3{}) {
		t.Fatalf("Normalized() of zero vector = %+v, want zero", zero)
	}
}

func TestAABBOverlaps(t *testing.T) {
	a := AABB{Min: Vec3{X: 0, Y: 0, Z: 0}, Max: Vec3{X: 1, Y: 1, Z: 1}}
	touching := AABB{Min: Vec3{X: 1, Y: 0, Z: 0}, Max: Vec3{X: 2, Y: 1, Z: 1}}
	disjoint := AABB{Min: Vec3{X: 5, Y: 5, Z: 5}, Max: Vec3{X: 6, Y: 6, Z: 6}}

	if !a.Overlaps(touching) {
		t.Fatal("expected face-touching boxes to overlap (closed-closed test)")
	}
	if a.Overlaps(disjoint) {
		t.Fatal("expected disjoint boxes not to overlap")
	}
}

func TestAABBTranslateAndCenter(t *testing.T) {
	box := AABB{Min: Vec3{X: -1, Y: -1, Z: -1}, Max: Vec3{X: 1, Y: 1, Z: 1}}
	if c := box.Center(); c != (Vec3{}) {
		t.Fatalf("Center() = %+v, want zero", c)
	}

	moved := box.Translate(Vec3{X: 10, Y: 0, Z: 0})
	if moved.Min.X != 9 || moved.Max.X != 11 {
		t.Fatalf("Translate() = %+v", moved)
	}
}

func TestAABBContainsPoint(t *testing.T) {
	box := AABB{Min: Vec3{X: 0, Y: 0, Z: 0}, Max: Vec3{X: 10, Y: 10, Z: 10}}
	if !box.ContainsPoint(Vec3{X: 0, Y: 10, Z: 5}) {
		t.Fatal("expected boundary point to be contained")
	}
	if box.ContainsPoint(Vec3{X: -1, Y: 0, Z: 0}) {
		t.Fatal("expected point outside box not to be contained")
	}
}
