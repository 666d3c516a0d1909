package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/impact-simulator/model"
)

// DefaultPopulationDensity is the mean population density, in people per
// square kilometre, used for the casualty estimate.
const DefaultPopulationDensity = 100.0

const hiroshimaMegatons = 0.015

// analogTier maps an upper energy bound to the historical event it is
// compared against.
type analogTier struct {
	below       float64
	event       string
	megatons    float64
	description string
}

var analogTiers = []analogTier{
	{0.001, "Peekskill meteorite (1992)", 0.0, "About 10 cm across; fell in New York and struck a parked car."},
	{0.5, "Chelyabinsk meteor (2013)", 0.5, "About 20 m across; airburst over Russia damaged 7200 buildings."},
	{15, "Tunguska event (1908)", 15, "About 60-100 m across; flattened 80 million trees over 2150 km2 of Siberia."},
	{50, "Tsar Bomba (1961)", 50, "Largest nuclear test ever conducted."},
	{10000, "Barringer crater (50,000 years ago)", 10, "About 50 m across; left a 1.2 km crater in Arizona."},
	{math.Inf(1), "Chicxulub impactor (66 million years ago)", 1e8, "About 10 km across; 180 km crater in Mexico, ended the dinosaurs."},
}

// EstimateConsequences derives the secondary effects of an impact. They are
// order-of-magnitude heuristics, not models. populationDensity <= 0 uses
// DefaultPopulationDensity.
func EstimateConsequences(p model.ImpactorProfile, r model.ImpactResult, populationDensity float64) model.Consequences {
	if populationDensity <= 0 || !isFinite(populationDensity) {
		populationDensity = DefaultPopulationDensity
	}

	depth := r.CraterDiameterMeters / 5
	area := math.Pi * r.Radii.Moderate * r.Radii.Moderate

	return model.Consequences{
		CraterDepthMeters:   depth,
		EjectaVolumeM3:      math.Pi * math.Pow(r.CraterDiameterMeters/2, 2) * depth,
		PeakTemperatureK:    math.Pow(r.Megatons, 0.25) * 5000,
		AffectedAreaKm2:     area,
		EstimatedCasualties: int64(math.Floor(area * populationDensity)),
		EnergyClass:         EnergyClass(r.Megatons),
		Analog:              HistoricalAnalogFor(r.Megatons),
		Danger:              DangerFor(r.Megatons),
		Defense:             AssessDefense(p.DiameterMeters, r.Megatons),
	}
}

// EnergyClass describes an energy release relative to nuclear weapons.
func EnergyClass(megatons float64) string {
	switch {
	case megatons < 0.01:
		return "below the Hiroshima bomb"
	case megatons < 1:
		return "comparable to a tactical nuclear weapon"
	case megatons < 50:
		return fmt.Sprintf("%.0fx the Hiroshima bomb", megatons/hiroshimaMegatons)
	case megatons < 1000:
		return "comparable to the largest nuclear weapons"
	default:
		return "planetary-scale catastrophe"
	}
}

// HistoricalAnalogFor picks the known event closest in scale. Ratio is the
// impact energy over the analog's energy, or 0 when the analog has none on
// record.
func HistoricalAnalogFor(megatons float64) model.HistoricalAnalog {
	tier := analogTiers[len(analogTiers)-1]
	for _, t := range analogTiers {
		if megatons < t.below {
			tier = t
			break
		}
	}
	ratio := 0.0
	if tier.megatons > 0 {
		ratio = megatons / tier.megatons
	}
	return model.HistoricalAnalog{
		Event:       tier.event,
		Megatons:    tier.megatons,
		Ratio:       ratio,
		Description: tier.description,
	}
}

// DangerFor grades the hazard of an energy release.
func DangerFor(megatons float64) model.DangerLevel {
	switch {
	case megatons < 0.5:
		return model.DangerLow
	case megatons < 15:
		return model.DangerMedium
	default:
		return model.DangerCritical
	}
}

// DetectionLeadTime is the typical warning survey telescopes give for an
// object of the given size.
func DetectionLeadTime(diameterMeters float64) string {
	switch {
	case diameterMeters > 100:
		return "10+ years"
	case diameterMeters > 50:
		return "5-10 years"
	case diameterMeters > 20:
		return "1-5 years"
	default:
		return "weeks-months"
	}
}

// AssessDefense recommends a planetary defense response.
func AssessDefense(diameterMeters, megatons float64) model.DefenseAssessment {
	a := model.DefenseAssessment{DetectionTime: DetectionLeadTime(diameterMeters)}
	switch {
	case megatons < 1:
		a.Method = "atmospheric breakup"
		a.PreparationTime = "not required"
		a.MissionCost = "n/a"
		// Small bodies burn up; nothing to deflect.
		return a
	case megatons < 100:
		a.Method = "kinetic impactor"
		a.PreparationTime = "5-10 years"
		a.MissionCost = "$500M-$2B"
	case megatons < 10000:
		a.Method = "nuclear deflection"
		a.PreparationTime = "10-20 years"
		a.MissionCost = "$5B-$20B"
	default:
		a.Method = "population evacuation"
		a.PreparationTime = "20+ years"
		a.MissionCost = "$50B+"
	}

	a.Deflection = append(a.Deflection,
		model.DeflectionOption{
			Name:        "kinetic impactor",
			DeltaV:      "0.3-3 mm/s",
			WarningTime: "5-15 years",
			Tested:      true,
			Cost:        "$300M-$1B",
			Suitable:    megatons < 100,
		},
		model.DeflectionOption{
			Name:        "gravity tractor",
			DeltaV:      "0.01-0.1 mm/s",
			WarningTime: "10-50 years",
			Cost:        "$1B-$5B",
			Suitable:    diameterMeters < 100 && megatons < 50,
		},
	)
	if megatons >= 10 {
		a.Deflection = append(a.Deflection, model.DeflectionOption{
			Name:        "nuclear stand-off explosion",
			DeltaV:      "10-100 mm/s",
			WarningTime: "3-10 years",
			Cost:        "$5B-$20B",
			Suitable:    megatons < 10000,
		})
	}
	a.Deflection = append(a.Deflection, model.DeflectionOption{
		Name:        "ion beam shepherd",
		DeltaV:      "0.1-1 mm/s",
		WarningTime: "10-30 years",
		Cost:        "$2B-$8B",
		Suitable:    diameterMeters < 200,
	})
	return a
}
