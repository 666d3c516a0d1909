package core

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestRotateAboutPolarAxisIncreasesLongitude(t *testing.T) {
	p := SpherePoint{X: 1, Y: 0, Z: 0}
	got := p.RotateAboutPolarAxis(math.Pi / 2)

	// Longitude 90° east sits on -Z.
	if !almostEqual(got.X, 0, 1e-12) || !almostEqual(got.Y, 0, 1e-12) || !almostEqual(got.Z, -1, 1e-12) {
		t.Fatalf("rotate +X by π/2 = %+v, want (0, 0, -1)", got)
	}
	back := got.RotateAboutPolarAxis(-math.Pi / 2)
	if back.DistanceTo(p) > 1e-12 {
		t.Fatalf("inverse rotation = %+v, want %+v", back, p)
	}
}

func TestRotateKeepsPolarComponentAndNorm(t *testing.T) {
	p := SpherePoint{X: 3, Y: -2, Z: 6}
	r := p.RotateAboutPolarAxis(1.234)
	if r.Y != p.Y {
		t.Fatalf("rotation changed Y: %v -> %v", p.Y, r.Y)
	}
	if !almostEqual(r.Norm(), p.Norm(), 1e-12) {
		t.Fatalf("rotation changed norm: %v -> %v", p.Norm(), r.Norm())
	}
}

func TestLerpEndpoints(t *testing.T) {
	a := SpherePoint{X: 1, Y: 2, Z: 3}
	b := SpherePoint{X: -4, Y: 0, Z: 9}
	if got := a.Lerp(b, 0); got != a {
		t.Fatalf("Lerp(0) = %+v, want %+v", got, a)
	}
	if got := a.Lerp(b, 1); got.DistanceTo(b) > 1e-12 {
		t.Fatalf("Lerp(1) = %+v, want %+v", got, b)
	}
	mid := a.Lerp(b, 0.5)
	if !almostEqual(mid.DistanceTo(a), mid.DistanceTo(b), 1e-12) {
		t.Fatalf("Lerp(0.5) not equidistant: %+v", mid)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	if got := (SpherePoint{}).Normalize(); got != (SpherePoint{}) {
		t.Fatalf("Normalize(0) = %+v, want zero", got)
	}
	if got := (SpherePoint{X: 0, Y: 5, Z: 0}).Normalize(); got != (SpherePoint{Y: 1}) {
		t.Fatalf("Normalize(0,5,0) = %+v, want (0,1,0)", got)
	}
}

func TestElevationDegrees(t *testing.T) {
	observer := SpherePoint{X: 15}
	if got := ElevationDegrees(observer, SpherePoint{X: 65}); !almostEqual(got, 90, 1e-9) {
		t.Fatalf("overhead elevation = %v, want 90", got)
	}
	if got := ElevationDegrees(observer, SpherePoint{X: 15, Z: 10}); !almostEqual(got, 0, 1e-9) {
		t.Fatalf("horizon elevation = %v, want 0", got)
	}
	if got := ElevationDegrees(observer, observer); got != 90 {
		t.Fatalf("degenerate elevation = %v, want 90", got)
	}
}

func TestWrapLongitudeAndDelta(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0, 0},
		{180, 180},
		{-180, -180},
		{190, -170},
		{-190, 170},
		{540, -180},
		{725, 5},
	}
	for _, tc := range cases {
		if got := WrapLongitude(tc.in); !almostEqual(got, tc.want, 1e-9) {
			t.Fatalf("WrapLongitude(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if got := LongitudeDelta(170, -170); !almostEqual(got, 20, 1e-9) {
		t.Fatalf("LongitudeDelta(170, -170) = %v, want 20", got)
	}
	if got := LongitudeDelta(-170, 170); !almostEqual(got, -20, 1e-9) {
		t.Fatalf("LongitudeDelta(-170, 170) = %v, want -20", got)
	}
}
