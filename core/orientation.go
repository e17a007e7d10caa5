package core

import "math"

// antiParallelEpsilon bounds dot(forward, tangent)+1 below which the two
// directions are treated as opposite.
const antiParallelEpsilon = 1e-6

// DefaultForward is the direction the vehicle models face in their authored
// frame.
var DefaultForward = Vec3{X: 0, Y: 1, Z: 0}

// ModelCorrection is the fixed extra rotation applied after aligning with
// the tangent: 90° about the model's local lateral (X) axis, turning the
// Y-up authored asset onto the Z-up map plane.
var ModelCorrection = QuatFromAxisAngle(Vec3{X: 1}, math.Pi/2)

// OrientAlong returns the shortest rotation taking forward onto tangent.
// Neither vector needs to be normalised. When the vectors are opposite an
// axis orthogonal to forward is chosen deterministically, and a zero input
// yields the identity, so the result is always a unit quaternion.
func OrientAlong(forward, tangent Vec3) Quat {
	f := forward.Normalize()
	t := tangent.Normalize()
	if f == (Vec3{}) || t == (Vec3{}) {
		return IdentityQuat
	}

	r := f.Dot(t) + 1
	if r < antiParallelEpsilon {
		// 180°: rotate about any axis perpendicular to forward.
		if math.Abs(f.X) > math.Abs(f.Z) {
			return Quat{X: -f.Y, Y: f.X, Z: 0, W: 0}.Normalize()
		}
		return Quat{X: 0, Y: -f.Z, Z: f.Y, W: 0}.Normalize()
	}

	c := f.Cross(t)
	return Quat{X: c.X, Y: c.Y, Z: c.Z, W: r}.Normalize()
}

// OrientModel aligns a model facing forward with tangent and then applies
// ModelCorrection in the model's local frame.
func OrientModel(forward, tangent Vec3) Quat {
	return OrientAlong(forward, tangent).Mul(ModelCorrection).Normalize()
}
