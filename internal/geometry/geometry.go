// Package geometry provides the pixel-space value types shared by the
// interception, reconciliation and compositing layers: axis-aligned
// rectangles, 2x3 affine matrices and translate/scale transforms.
package geometry

import "math"

// Point is a position in canvas pixel space.
type Point struct {
	X float64
	Y float64
}

// Add returns p shifted by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p minus q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Rect is an axis-aligned rectangle in canvas pixel space.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Area returns the rectangle's area, 0 for empty rectangles.
func (r Rect) Area() float64 {
	if r.Empty() {
		return 0
	}
	return r.W * r.H
}

// Intersect returns the overlapping region of r and o. The second return
// value is false when the rectangles do not overlap.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.X+r.W, o.X+o.W)
	y1 := math.Min(r.Y+r.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}, false
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, true
}

// Contains reports whether the point lies inside the rectangle.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

// Matrix is a 2x3 affine transform in the usual canvas layout:
//
//	| A C E |
//	| B D F |
type Matrix struct {
	A, B, C, D, E, F float64
}

// Identity returns the identity matrix.
func Identity() Matrix {
	return Matrix{A: 1, D: 1}
}

// IsIdentity reports whether m is the identity matrix within epsilon.
func (m Matrix) IsIdentity(eps float64) bool {
	return math.Abs(m.A-1) < eps && math.Abs(m.B) < eps &&
		math.Abs(m.C) < eps && math.Abs(m.D-1) < eps &&
		math.Abs(m.E) < eps && math.Abs(m.F) < eps
}

// Apply transforms the point (x, y) through the matrix.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m.A*x + m.C*y + m.E, m.B*x + m.D*y + m.F
}

// TransformRect transforms all four corners of r and returns their
// axis-aligned bounds.
func (m Matrix) TransformRect(r Rect) Rect {
	x0, y0 := m.Apply(r.X, r.Y)
	x1, y1 := m.Apply(r.X+r.W, r.Y)
	x2, y2 := m.Apply(r.X, r.Y+r.H)
	x3, y3 := m.Apply(r.X+r.W, r.Y+r.H)
	minX := math.Min(math.Min(x0, x1), math.Min(x2, x3))
	minY := math.Min(math.Min(y0, y1), math.Min(y2, y3))
	maxX := math.Max(math.Max(x0, x1), math.Max(x2, x3))
	maxY := math.Max(math.Max(y0, y1), math.Max(y2, y3))
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Transform is the translate/scale component of a computed style transform,
// as read from a surface or its container.
type Transform struct {
	TranslateX float64
	TranslateY float64
	Scale      float64
}

// IdentityTransform returns the neutral transform.
func IdentityTransform() Transform {
	return Transform{Scale: 1}
}

// AtRest reports whether the transform is within eps of identity. A zero
// Scale is treated as 1 so that an unset transform counts as resting.
func (t Transform) AtRest(eps float64) bool {
	scale := t.Scale
	if scale == 0 {
		scale = 1
	}
	return math.Abs(t.TranslateX) < eps &&
		math.Abs(t.TranslateY) < eps &&
		math.Abs(scale-1) < eps
}
