package core

import (
	"fmt"
	"math"
	"sort"
)

// arcDivisions is the number of chords per segment used to build the
// arc-length table.
const arcDivisions = 64

// minKnotSpacing is the centripetal knot interval (square root of the chord
// length) below which two control points are treated as coincident.
const minKnotSpacing = 1e-4

// segment is one cubic piece of the spline: P(t) = C0 + C1 t + C2 t² + C3 t³.
type segment struct {
	C0, C1, C2, C3 Vec3
	// chord is the straight-line direction P(1)-P(0); used as the tangent
	// when the derivative vanishes.
	chord Vec3
}

func (s segment) at(t float64) Vec3 {
	return s.C0.Add(s.C1.Scale(t)).Add(s.C2.Scale(t * t)).Add(s.C3.Scale(t * t * t))
}

func (s segment) derivative(t float64) Vec3 {
	return s.C1.Add(s.C2.Scale(2 * t)).Add(s.C3.Scale(3 * t * t))
}

// Curve is a centripetal Catmull-Rom spline through an ordered set of
// points, parameterised by arc-length-normalised phase in [0, 1]. A Curve
// is immutable once built.
type Curve struct {
	points   []Vec3
	segments []segment
	// lengths[k] is the arc length from the start to raw parameter
	// k/arcDivisions; len(lengths) == len(segments)*arcDivisions + 1.
	lengths []float64
}

// NewCurve builds a spline passing through every point. At least two points
// are required.
func NewCurve(points []Vec3) (*Curve, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("curve needs at least 2 points, got %d", len(points))
	}

	pts := make([]Vec3, len(points))
	copy(pts, points)

	n := len(pts)
	c := &Curve{
		points:   pts,
		segments: make([]segment, n-1),
	}
	for i := 0; i < n-1; i++ {
		p0 := controlPoint(pts, i-1)
		p1 := pts[i]
		p2 := pts[i+1]
		p3 := controlPoint(pts, i+2)
		c.segments[i] = centripetalSegment(p0, p1, p2, p3)
	}
	c.buildArcTable()
	return c, nil
}

// controlPoint returns pts[i], extrapolating a phantom point past either end
// so the curve starts and ends on the first and last points.
func controlPoint(pts []Vec3, i int) Vec3 {
	n := len(pts)
	switch {
	case i < 0:
		return pts[0].Scale(2).Sub(pts[1])
	case i >= n:
		return pts[n-1].Scale(2).Sub(pts[n-2])
	default:
		return pts[i]
	}
}

func centripetalSegment(p0, p1, p2, p3 Vec3) segment {
	seg := segment{C0: p1, chord: p2.Sub(p1)}

	dt1 := math.Sqrt(p1.DistanceTo(p2))
	if dt1 < minKnotSpacing {
		// Coincident knots: hold position instead of looping out and back.
		return seg
	}
	dt0 := math.Sqrt(p0.DistanceTo(p1))
	dt2 := math.Sqrt(p2.DistanceTo(p3))
	if dt0 < minKnotSpacing {
		dt0 = dt1
	}
	if dt2 < minKnotSpacing {
		dt2 = dt1
	}

	// Tangents at p1 and p2 for a non-uniform parameterisation, rescaled to
	// the [0,1] segment parameter.
	t1 := p1.Sub(p0).Scale(1 / dt0).Sub(p2.Sub(p0).Scale(1 / (dt0 + dt1))).Add(p2.Sub(p1).Scale(1 / dt1)).Scale(dt1)
	t2 := p2.Sub(p1).Scale(1 / dt1).Sub(p3.Sub(p1).Scale(1 / (dt1 + dt2))).Add(p3.Sub(p2).Scale(1 / dt2)).Scale(dt1)

	seg.C1 = t1
	seg.C2 = p1.Scale(-3).Add(p2.Scale(3)).Sub(t1.Scale(2)).Sub(t2)
	seg.C3 = p1.Scale(2).Sub(p2.Scale(2)).Add(t1).Add(t2)
	return seg
}

func (c *Curve) buildArcTable() {
	total := len(c.segments) * arcDivisions
	c.lengths = make([]float64, total+1)
	prev := c.segments[0].at(0)
	sum := 0.0
	for k := 1; k <= total; k++ {
		p := c.evalRaw(float64(k) / arcDivisions)
		sum += p.DistanceTo(prev)
		c.lengths[k] = sum
		prev = p
	}
}

// evalRaw evaluates the spline at raw parameter u in [0, segments].
func (c *Curve) evalRaw(u float64) Vec3 {
	seg, t := c.locate(u)
	return c.segments[seg].at(t)
}

func (c *Curve) locate(u float64) (int, float64) {
	last := len(c.segments) - 1
	if u <= 0 {
		return 0, 0
	}
	seg := int(math.Floor(u))
	if seg > last {
		return last, 1
	}
	return seg, u - float64(seg)
}

// rawParam maps an arc-length phase to the raw spline parameter.
func (c *Curve) rawParam(phase float64) float64 {
	phase = clampUnit(phase)
	segs := float64(len(c.segments))
	total := c.Length()
	if total == 0 {
		return phase * segs
	}

	target := phase * total
	// Largest k with lengths[k] <= target.
	k := sort.Search(len(c.lengths), func(i int) bool { return c.lengths[i] > target }) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(c.lengths)-1 {
		return segs
	}
	span := c.lengths[k+1] - c.lengths[k]
	frac := 0.0
	if span > 0 {
		frac = (target - c.lengths[k]) / span
	}
	return (float64(k) + frac) / arcDivisions
}

// Length returns the approximate arc length of the curve.
func (c *Curve) Length() float64 {
	return c.lengths[len(c.lengths)-1]
}

// Points returns a copy of the control points the curve passes through.
func (c *Curve) Points() []Vec3 {
	out := make([]Vec3, len(c.points))
	copy(out, c.points)
	return out
}

// PointAt returns the position at arc-length phase in [0, 1].
func (c *Curve) PointAt(phase float64) Vec3 {
	return c.evalRaw(c.rawParam(phase))
}

// TangentAt returns the unit direction of travel at phase. It is the zero
// vector only when the whole neighbourhood is degenerate.
func (c *Curve) TangentAt(phase float64) Vec3 {
	seg, t := c.locate(c.rawParam(phase))
	d := c.segments[seg].derivative(t)
	if d.Norm() < 1e-12 {
		d = c.segments[seg].chord
	}
	return d.Normalize()
}

// KnotPhase returns the phase at which the curve passes through point i.
func (c *Curve) KnotPhase(i int) float64 {
	if i <= 0 {
		return 0
	}
	if i >= len(c.points)-1 {
		return 1
	}
	total := c.Length()
	if total == 0 {
		return float64(i) / float64(len(c.segments))
	}
	return c.lengths[i*arcDivisions] / total
}

// SpacedPoints samples m points at evenly spaced phases i/(m-1). The
// returned slice is freshly allocated.
func (c *Curve) SpacedPoints(m int) []Vec3 {
	if m <= 0 {
		return nil
	}
	out := make([]Vec3, m)
	if m == 1 {
		out[0] = c.PointAt(0)
		return out
	}
	for i := range out {
		out[i] = c.PointAt(float64(i) / float64(m-1))
	}
	return out
}

func clampUnit(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
