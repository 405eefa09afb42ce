package geometry

import (
	"math"
	"testing"
)

func TestRectIntersect_Disjoint(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 100, H: 100}
	b := Rect{X: 200, Y: 200, W: 50, H: 50}

	_, ok := a.Intersect(b)
	if ok {
		t.Error("expected no intersection for disjoint rects")
	}
}

func TestRectIntersect_Touching(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 100, H: 100}
	b := Rect{X: 100, Y: 0, W: 100, H: 100}

	_, ok := a.Intersect(b)
	if ok {
		t.Error("edge-touching rects must not intersect")
	}
}

func TestRectIntersect_Partial(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 100, H: 100}
	b := Rect{X: 60, Y: 40, W: 100, H: 100}

	got, ok := a.Intersect(b)
	if !ok {
		t.Fatal("expected intersection")
	}
	want := Rect{X: 60, Y: 40, W: 40, H: 60}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if got.Area() >= a.Area() || got.Area() >= b.Area() {
		t.Error("partial overlap must be strictly smaller than both inputs")
	}
}

func TestMatrixApply_Identity(t *testing.T) {
	m := Identity()
	x, y := m.Apply(12.5, -7)
	if x != 12.5 || y != -7 {
		t.Errorf("identity changed point: (%f, %f)", x, y)
	}
}

func TestMatrixTransformRect_TranslateScale(t *testing.T) {
	m := Matrix{A: 2, D: 2, E: 10, F: 20}
	got := m.TransformRect(Rect{X: 0, Y: 0, W: 50, H: 30})
	want := Rect{X: 10, Y: 20, W: 100, H: 60}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestMatrixTransformRect_Rotation(t *testing.T) {
	// 90 degree rotation maps a 10x20 rect onto a 20x10 bounds.
	s, c := math.Sin(math.Pi/2), math.Cos(math.Pi/2)
	m := Matrix{A: c, B: s, C: -s, D: c}
	got := m.TransformRect(Rect{X: 0, Y: 0, W: 10, H: 20})
	if math.Abs(got.W-20) > 1e-9 || math.Abs(got.H-10) > 1e-9 {
		t.Errorf("expected 20x10 bounds, got %+v", got)
	}
}

func TestTransformAtRest(t *testing.T) {
	tests := []struct {
		name string
		tr   Transform
		want bool
	}{
		{"zero value", Transform{}, true},
		{"explicit identity", Transform{Scale: 1}, true},
		{"translated", Transform{TranslateX: 4, Scale: 1}, false},
		{"scaled", Transform{Scale: 1.5}, false},
		{"within epsilon", Transform{TranslateX: 1e-4, Scale: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tr.AtRest(1e-3); got != tt.want {
				t.Errorf("AtRest = %v, want %v", got, tt.want)
			}
		})
	}
}
