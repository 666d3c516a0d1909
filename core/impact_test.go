package core

import (
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/impact-simulator/model"
)

func relEqual(got, want, rel float64) bool {
	if want == 0 {
		return math.Abs(got) <= rel
	}
	return math.Abs(got-want)/math.Abs(want) <= rel
}

func TestComputeImpactKilometreBody(t *testing.T) {
	res, err := ComputeImpact(1000, 20)
	if err != nil {
		t.Fatalf("ComputeImpact: %v", err)
	}

	checks := []struct {
		name      string
		got, want float64
	}{
		{"mass", res.MassKg, 1308996938995.747},
		{"energy", res.KineticEnergyJoules, 2.617993877991494e20},
		{"megatons", res.Megatons, 62571.55540132634},
		{"crater", res.CraterDiameterMeters, 1471.3828956243933},
		{"fireball", res.Radii.Fireball, 104.70379550363378},
		{"severe", res.Radii.Severe, 201.92874847129374},
		{"moderate", res.Radii.Moderate, 478.64592230232586},
		{"light", res.Radii.Light, 934.8553169967302},
		{"seismic", res.Radii.Seismic, 1682.7395705941144},
	}
	for _, c := range checks {
		if !relEqual(c.got, c.want, 1e-9) {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestComputeImpactRadiiOrdered(t *testing.T) {
	for _, d := range []float64{1, 20, 150, 1000, 10000} {
		res, err := ComputeImpact(d, 17)
		if err != nil {
			t.Fatalf("ComputeImpact(%v): %v", d, err)
		}
		r := res.Radii
		if !(r.Fireball < r.Severe && r.Severe < r.Moderate && r.Moderate < r.Light && r.Light < r.Seismic) {
			t.Fatalf("radii not strictly increasing for d=%v: %+v", d, r)
		}
	}
}

func TestComputeImpactMonotonic(t *testing.T) {
	prev, _ := ComputeImpact(10, 20)
	for _, d := range []float64{20, 50, 100, 500, 2000} {
		res, err := ComputeImpact(d, 20)
		if err != nil {
			t.Fatalf("ComputeImpact: %v", err)
		}
		if res.Megatons <= prev.Megatons || res.CraterDiameterMeters <= prev.CraterDiameterMeters || res.Radii.Seismic <= prev.Radii.Seismic {
			t.Fatalf("diameter %v did not increase every output over the previous size", d)
		}
		prev = res
	}

	prev, _ = ComputeImpact(100, 5)
	for _, v := range []float64{10, 20, 40, 70} {
		res, _ := ComputeImpact(100, v)
		if res.Megatons <= prev.Megatons || res.CraterDiameterMeters <= prev.CraterDiameterMeters {
			t.Fatalf("velocity %v did not increase energy and crater", v)
		}
		prev = res
	}
}

func TestComputeImpactIsDeterministic(t *testing.T) {
	a, _ := ComputeImpact(345.6, 23.4)
	b, _ := ComputeImpact(345.6, 23.4)
	if a != b {
		t.Fatalf("identical inputs gave different results: %+v vs %+v", a, b)
	}
}

func TestComputeImpactRejectsInvalidInput(t *testing.T) {
	cases := []model.ImpactorProfile{
		{DiameterMeters: 0, VelocityKmPerSec: 20},
		{DiameterMeters: -5, VelocityKmPerSec: 20},
		{DiameterMeters: 100, VelocityKmPerSec: 0},
		{DiameterMeters: 100, VelocityKmPerSec: -1},
		{DiameterMeters: math.NaN(), VelocityKmPerSec: 20},
		{DiameterMeters: 100, VelocityKmPerSec: math.Inf(1)},
		{DiameterMeters: 100, VelocityKmPerSec: 20, DensityKgPerM3: -1},
	}
	for _, p := range cases {
		if _, err := ComputeImpactProfile(p); !errors.Is(err, ErrInvalidImpactor) {
			t.Fatalf("ComputeImpactProfile(%+v) error = %v, want ErrInvalidImpactor", p, err)
		}
	}
}

func TestComputeImpactOverflowRejected(t *testing.T) {
	if _, err := ComputeImpact(1e120, 1e10); !errors.Is(err, ErrInvalidImpactor) {
		t.Fatalf("overflowing inputs error = %v, want ErrInvalidImpactor", err)
	}
}

func TestComputeImpactProfileDensity(t *testing.T) {
	def, _ := ComputeImpactProfile(model.ImpactorProfile{DiameterMeters: 1000, VelocityKmPerSec: 20})
	explicit, _ := ComputeImpactProfile(model.ImpactorProfile{DiameterMeters: 1000, VelocityKmPerSec: 20, DensityKgPerM3: DefaultDensityKgPerM3})
	if def != explicit {
		t.Fatalf("zero density should behave like the default")
	}

	dense, err := ComputeImpactProfile(model.ImpactorProfile{DiameterMeters: 1000, VelocityKmPerSec: 20, DensityKgPerM3: 3000})
	if err != nil {
		t.Fatalf("ComputeImpactProfile: %v", err)
	}
	if !relEqual(dense.Megatons, 75085.8664815916, 1e-9) {
		t.Fatalf("megatons at 3000 kg/m3 = %v, want 75085.87", dense.Megatons)
	}
	// Crater scaling ignores density.
	if dense.CraterDiameterMeters != def.CraterDiameterMeters {
		t.Fatalf("crater changed with density: %v vs %v", dense.CraterDiameterMeters, def.CraterDiameterMeters)
	}
}
