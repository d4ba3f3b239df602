package netio

import "math"

// Vec3 is a basis-converted (Y-up, left-handed) 3-component vector. Decoder
// packages must never let a native-basis Vec3 escape their API; see
// SwapBasis.
type Vec3 struct {
	X, Y, Z float32
}

// SwapBasis converts a Z-up right-handed triple (as stored natively in the
// BSP/MDL/DEM formats) into the engine's Y-up left-handed convention:
// out = (x, z, -y).
func SwapBasis(raw [3]float32) Vec3 {
	return Vec3{X: raw[0], Y: raw[2], Z: -raw[1]}
}

// Cross returns the cross product a x b.
func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

// Sub returns a - b.
func (a Vec3) Sub(b Vec3) Vec3 {
	return Vec3{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

// Add returns a + b.
func (a Vec3) Add(b Vec3) Vec3 {
	return Vec3{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z}
}

// Length returns the Euclidean length of v.
func (v Vec3) Length() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z)))
}

// Normalized returns v scaled to unit length, or the zero vector if v is
// zero-length (MDL normal invariant: "zero-length normals collapse to
// zero").
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	inv := 1 / l
	return Vec3{X: v.X * inv, Y: v.Y * inv, Z: v.Z * inv}
}
