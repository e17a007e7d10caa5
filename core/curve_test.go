package core

import (
	"math"
	"testing"
)

func zigzag(n int) []Vec3 {
	pts := make([]Vec3, n)
	for i := range pts {
		y := 0.0
		if i%2 == 1 {
			y = 35
		}
		pts[i] = Vec3{X: float64(i) * 50, Y: y, Z: float64(i%3) * 4}
	}
	return pts
}

func TestNewCurve_RequiresTwoPoints(t *testing.T) {
	if _, err := NewCurve(nil); err == nil {
		t.Fatalf("expected error for empty curve")
	}
	if _, err := NewCurve([]Vec3{{X: 1}}); err == nil {
		t.Fatalf("expected error for single-point curve")
	}
}

func TestCurve_PassesThroughEveryPoint(t *testing.T) {
	for _, n := range []int{2, 3, 5, 9} {
		pts := zigzag(n)
		c, err := NewCurve(pts)
		if err != nil {
			t.Fatalf("NewCurve(%d): %v", n, err)
		}
		for i, p := range pts {
			phase := c.KnotPhase(i)
			if got := c.PointAt(phase); !vecNear(got, p, 1e-6) {
				t.Errorf("n=%d point %d: curve at phase %.6f = %+v, want %+v", n, i, phase, got, p)
			}
		}
	}
}

func TestCurve_KnotPhasesIncrease(t *testing.T) {
	c, err := NewCurve(zigzag(6))
	if err != nil {
		t.Fatalf("NewCurve: %v", err)
	}
	prev := -1.0
	for i := 0; i < 6; i++ {
		ph := c.KnotPhase(i)
		if ph <= prev {
			t.Fatalf("knot phase %d = %v not greater than previous %v", i, ph, prev)
		}
		prev = ph
	}
	if c.KnotPhase(0) != 0 || c.KnotPhase(5) != 1 {
		t.Fatalf("end knots at %v and %v, want 0 and 1", c.KnotPhase(0), c.KnotPhase(5))
	}
}

func TestCurve_TwoPointsIsStraightLine(t *testing.T) {
	a := Vec3{X: 0, Y: 0}
	b := Vec3{X: 100, Y: 50}
	c, err := NewCurve([]Vec3{a, b})
	if err != nil {
		t.Fatalf("NewCurve: %v", err)
	}

	if math.Abs(c.Length()-a.DistanceTo(b)) > 1e-9 {
		t.Fatalf("length = %v, want %v", c.Length(), a.DistanceTo(b))
	}
	for _, ph := range []float64{0.1, 0.25, 0.5, 0.9} {
		want := a.Add(b.Sub(a).Scale(ph))
		if got := c.PointAt(ph); !vecNear(got, want, 1e-6) {
			t.Errorf("phase %v: got %+v, want %+v", ph, got, want)
		}
		if tan := c.TangentAt(ph); !vecNear(tan, b.Sub(a).Normalize(), 1e-9) {
			t.Errorf("phase %v: tangent %+v, want chord direction", ph, tan)
		}
	}
}

func TestCurve_ArcLengthSpacing(t *testing.T) {
	c, err := NewCurve(zigzag(5))
	if err != nil {
		t.Fatalf("NewCurve: %v", err)
	}
	samples := c.SpacedPoints(41)
	step := c.Length() / 40

	// Chords are never longer than the arc they span, and evenly spaced
	// arc-length samples should be close to the nominal spacing.
	for i := 1; i < len(samples); i++ {
		d := samples[i].DistanceTo(samples[i-1])
		if d > step*1.01 || d < step*0.8 {
			t.Fatalf("sample %d spacing %.3f, want ~%.3f", i, d, step)
		}
	}
}

func TestCurve_TangentsAreUnit(t *testing.T) {
	c, err := NewCurve(zigzag(7))
	if err != nil {
		t.Fatalf("NewCurve: %v", err)
	}
	for i := 0; i <= 200; i++ {
		tan := c.TangentAt(float64(i) / 200)
		if math.Abs(tan.Norm()-1) > 1e-9 {
			t.Fatalf("tangent at %d/200 has norm %v", i, tan.Norm())
		}
	}
}

func TestCurve_DegenerateInputs(t *testing.T) {
	same := Vec3{X: 3, Y: 4}
	c, err := NewCurve([]Vec3{same, same, same})
	if err != nil {
		t.Fatalf("NewCurve: %v", err)
	}
	if c.Length() != 0 {
		t.Fatalf("length of a point curve = %v, want 0", c.Length())
	}
	for _, ph := range []float64{0, 0.3, 0.5, 1} {
		if got := c.PointAt(ph); got != same {
			t.Fatalf("phase %v: got %+v, want %+v", ph, got, same)
		}
		if tan := c.TangentAt(ph); tan != (Vec3{}) {
			t.Fatalf("phase %v: tangent %+v, want zero", ph, tan)
		}
	}

	// Repeated waypoint in the middle must not produce NaNs.
	dup, err := NewCurve([]Vec3{{X: 0}, {X: 10}, {X: 10}, {X: 20, Y: 5}})
	if err != nil {
		t.Fatalf("NewCurve: %v", err)
	}
	for i := 0; i <= 100; i++ {
		ph := float64(i) / 100
		if !dup.PointAt(ph).IsFinite() || !dup.TangentAt(ph).IsFinite() {
			t.Fatalf("non-finite evaluation at phase %v", ph)
		}
	}
}

func TestCurve_SpacedPointsFreshSlice(t *testing.T) {
	c, err := NewCurve(zigzag(3))
	if err != nil {
		t.Fatalf("NewCurve: %v", err)
	}
	a := c.SpacedPoints(10)
	b := c.SpacedPoints(10)
	a[0] = Vec3{X: -999}
	if b[0] == a[0] {
		t.Fatalf("SpacedPoints returned shared storage")
	}
	if got := c.SpacedPoints(0); got != nil {
		t.Fatalf("SpacedPoints(0) = %v, want nil", got)
	}
}
