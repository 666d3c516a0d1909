package core

import "math"

// DefaultSphereRadius is the radius of the planet sphere in scene units.
const DefaultSphereRadius = 15.0

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// SpherePoint is a position in the planet-centred frame. +Y is the polar
// axis (north), longitude 0 on the equator faces +X and east longitude
// advances toward -Z.
type SpherePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + other.
func (v SpherePoint) Add(other SpherePoint) SpherePoint {
	return SpherePoint{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v SpherePoint) Sub(other SpherePoint) SpherePoint {
	return SpherePoint{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v multiplied by k.
func (v SpherePoint) Scale(k float64) SpherePoint {
	return SpherePoint{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot returns the dot product of two vectors.
func (v SpherePoint) Dot(other SpherePoint) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Norm returns the Euclidean norm of the vector.
func (v SpherePoint) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalize returns the unit vector along v. The zero vector stays zero.
func (v SpherePoint) Normalize() SpherePoint {
	n := v.Norm()
	if n == 0 {
		return SpherePoint{}
	}
	return v.Scale(1 / n)
}

// DistanceTo returns the straight-line distance between two points.
func (v SpherePoint) DistanceTo(other SpherePoint) float64 {
	return v.Sub(other).Norm()
}

// Lerp interpolates linearly from v (t=0) to other (t=1).
func (v SpherePoint) Lerp(other SpherePoint, t float64) SpherePoint {
	return SpherePoint{
		X: v.X + (other.X-v.X)*t,
		Y: v.Y + (other.Y-v.Y)*t,
		Z: v.Z + (other.Z-v.Z)*t,
	}
}

// RotateAboutPolarAxis spins v about +Y by theta radians. A positive angle
// moves a surface point eastward, i.e. increases its longitude by theta.
func (v SpherePoint) RotateAboutPolarAxis(theta float64) SpherePoint {
	sin, cos := math.Sincos(theta)
	return SpherePoint{
		X: v.X*cos + v.Z*sin,
		Y: v.Y,
		Z: -v.X*sin + v.Z*cos,
	}
}

// ElevationDegrees returns the elevation angle of the target as seen from
// the observer, in degrees. 0° = geometric horizon, 90° = overhead.
func ElevationDegrees(observer, target SpherePoint) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	if vNorm == 0 {
		return 90
	}

	// Local zenith at observer is its normalised position vector.
	zenith := observer.Normalize()
	if zenith == (SpherePoint{}) {
		return 90
	}

	cosGamma := v.Dot(zenith) / vNorm
	if cosGamma > 1 {
		cosGamma = 1
	} else if cosGamma < -1 {
		cosGamma = -1
	}
	return 90.0 - math.Acos(cosGamma)*radToDeg
}

// WrapLongitude folds an angle in degrees into [-180, 180].
func WrapLongitude(deg float64) float64 {
	if deg >= -180 && deg <= 180 {
		return deg
	}
	w := math.Mod(deg+180, 360)
	if w < 0 {
		w += 360
	}
	return w - 180
}

// LongitudeDelta returns the signed shortest difference b - a in degrees,
// in (-180, 180].
func LongitudeDelta(a, b float64) float64 {
	d := math.Mod(b-a, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}
