// Package vmath holds the small float64 vector toolkit used by combat
// positioning and attack cone tests.
package vmath

import "math"

// Vec3 is a float64 world-space vector. Y is up.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns a+b.
func (a Vec3) Add(b Vec3) Vec3 {
	return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z}
}

// Sub returns a-b.
func (a Vec3) Sub(b Vec3) Vec3 {
	return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z}
}

// Scale returns a multiplied by s.
func (a Vec3) Scale(s float64) Vec3 {
	return Vec3{a.X * s, a.Y * s, a.Z * s}
}

// Dot returns the dot product of a and b.
func (a Vec3) Dot(b Vec3) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

// MagSq returns the squared length.
func (a Vec3) MagSq() float64 {
	return a.Dot(a)
}

// Mag returns the length.
func (a Vec3) Mag() float64 {
	return math.Sqrt(a.MagSq())
}

// Normalize returns the unit vector, or the zero vector for zero input.
func (a Vec3) Normalize() Vec3 {
	mag := a.Mag()
	if mag == 0 {
		return Vec3{}
	}
	return a.Scale(1 / mag)
}

// Flat drops the vertical component.
func (a Vec3) Flat() Vec3 {
	return Vec3{a.X, 0, a.Z}
}

// Distance returns |a-b|.
func Distance(a, b Vec3) float64 {
	return a.Sub(b).Mag()
}

// AngleDeg returns the unsigned angle between a and b in degrees, in [0,180].
// Zero-length inputs yield 0.
func AngleDeg(a, b Vec3) float64 {
	denom := a.Mag() * b.Mag()
	if denom == 0 {
		return 0
	}
	cos := a.Dot(b) / denom
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}

// coneEpsilon absorbs acos round-off so a target sitting exactly on the cone
// edge counts as inside.
const coneEpsilon = 1e-6

// WithinCone reports whether target lies inside the symmetric cone of full
// angle coneDeg opening from origin along forward. A target at the origin is
// inside.
func WithinCone(origin, forward, target Vec3, coneDeg float64) bool {
	dir := target.Sub(origin)
	if dir.MagSq() == 0 {
		return true
	}
	return AngleDeg(forward, dir) <= coneDeg/2+coneEpsilon
}

// Perpendicular returns the horizontal right-hand perpendicular of v.
func Perpendicular(v Vec3) Vec3 {
	return Vec3{v.Z, 0, -v.X}.Normalize()
}

// RotateY rotates v around the up axis by deg degrees.
func RotateY(v Vec3, deg float64) Vec3 {
	rad := deg * math.Pi / 180
	s, c := math.Sin(rad), math.Cos(rad)
	return Vec3{v.X*c + v.Z*s, v.Y, -v.X*s + v.Z*c}
}
