package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/impact-simulator/model"
)

// ErrInvalidImpactor is returned for non-positive or non-finite impactor
// parameters.
var ErrInvalidImpactor = errors.New("invalid impactor")

const (
	// DefaultDensityKgPerM3 is used when a profile leaves density unset.
	DefaultDensityKgPerM3 = model.DefaultDensityKgPerM3

	// JoulesPerMegaton is the TNT-equivalent energy of one megaton.
	JoulesPerMegaton = 4.184e15

	craterCoefficient       = 1.8
	craterDiameterExponent  = 0.78
	craterVelocityExponent  = 0.44
	damageRadiusYieldScaler = 0.33
)

// DamageCoefficients scale kt^0.33 into each damage radius in kilometres.
var DamageCoefficients = model.DamageRadii{
	Fireball: 0.28,
	Severe:   0.54,
	Moderate: 1.28,
	Light:    2.5,
	Seismic:  4.5,
}

// ValidateImpactor checks diameter, velocity and density. A zero density is
// allowed and means DefaultDensityKgPerM3.
func ValidateImpactor(p model.ImpactorProfile) error {
	if !isFinite(p.DiameterMeters) || p.DiameterMeters <= 0 {
		return fmt.Errorf("%w: diameter %v m must be positive", ErrInvalidImpactor, p.DiameterMeters)
	}
	if !isFinite(p.VelocityKmPerSec) || p.VelocityKmPerSec <= 0 {
		return fmt.Errorf("%w: velocity %v km/s must be positive", ErrInvalidImpactor, p.VelocityKmPerSec)
	}
	if !isFinite(p.DensityKgPerM3) || p.DensityKgPerM3 < 0 {
		return fmt.Errorf("%w: density %v kg/m3 must be positive", ErrInvalidImpactor, p.DensityKgPerM3)
	}
	return nil
}

// ComputeImpact evaluates the impact of a default-density sphere of the given
// diameter (metres) arriving at the given speed (km/s).
func ComputeImpact(diameterMeters, velocityKmPerSec float64) (model.ImpactResult, error) {
	return ComputeImpactProfile(model.ImpactorProfile{
		DiameterMeters:   diameterMeters,
		VelocityKmPerSec: velocityKmPerSec,
	})
}

// ComputeImpactProfile evaluates the impact of p. It is pure: equal profiles
// always yield equal results.
func ComputeImpactProfile(p model.ImpactorProfile) (model.ImpactResult, error) {
	if err := ValidateImpactor(p); err != nil {
		return model.ImpactResult{}, err
	}
	density := p.DensityKgPerM3
	if density == 0 {
		density = DefaultDensityKgPerM3
	}

	r := p.DiameterMeters / 2
	mass := 4.0 / 3.0 * math.Pi * r * r * r * density
	v := p.VelocityKmPerSec * 1000
	energy := 0.5 * mass * v * v
	megatons := energy / JoulesPerMegaton

	crater := craterCoefficient *
		math.Pow(p.DiameterMeters, craterDiameterExponent) *
		math.Pow(p.VelocityKmPerSec, craterVelocityExponent)

	scale := math.Pow(megatons*1000, damageRadiusYieldScaler)
	res := model.ImpactResult{
		MassKg:               mass,
		KineticEnergyJoules:  energy,
		Megatons:             megatons,
		CraterDiameterMeters: crater,
		Radii: model.DamageRadii{
			Fireball: DamageCoefficients.Fireball * scale,
			Severe:   DamageCoefficients.Severe * scale,
			Moderate: DamageCoefficients.Moderate * scale,
			Light:    DamageCoefficients.Light * scale,
			Seismic:  DamageCoefficients.Seismic * scale,
		},
	}
	if !isFinite(res.KineticEnergyJoules) || !isFinite(res.Radii.Seismic) {
		return model.ImpactResult{}, fmt.Errorf("%w: diameter %v m at %v km/s overflows", ErrInvalidImpactor, p.DiameterMeters, p.VelocityKmPerSec)
	}
	return res, nil
}
