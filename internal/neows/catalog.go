package neows

import (
	"strings"

	"github.com/signalsfoundry/impact-simulator/model"
)

// ImpactorTag marks the record promoted to the headline threat.
const ImpactorTag = "IMPACTOR-2025"

func record(id, name string, minM, maxM float64, hazardous bool, velocity, miss string) model.NEORecord {
	return model.NEORecord{
		ID:   id,
		Name: name,
		EstimatedDiameter: model.EstimatedDiameter{
			Meters: model.DiameterRange{Min: minM, Max: maxM},
		},
		Hazardous: hazardous,
		CloseApproaches: []model.CloseApproach{{
			RelativeVelocity: model.RelativeVelocity{KilometersPerSecond: velocity},
			MissDistance:     model.MissDistance{Kilometers: miss},
			OrbitingBody:     "Earth",
		}},
	}
}

// FallbackCatalog is served when the API cannot be reached.
func FallbackCatalog() []model.NEORecord {
	return []model.NEORecord{
		record(ImpactorTag, ImpactorTag+" (Simulation)", 800, 1200, true, "25.5", "0"),
		record("2023-ABC", "2023 ABC (Simulation)", 400, 600, true, "20.0", "50000"),
		record("2024-XYZ", "2024 XYZ (Simulation)", 100, 200, false, "15.0", "100000"),
	}
}

// SyntheticImpactor stands in when the feed has no hazardous object.
func SyntheticImpactor() model.NEORecord {
	r := record(ImpactorTag+"-SYNTHETIC", ImpactorTag+" (Synthetic Threat)", 800, 1200, true, "28.5", "75000")
	r.AbsoluteMagnitudeH = 18.5
	return r
}

// HasImpactor reports whether records already include the headline threat.
func HasImpactor(records []model.NEORecord) bool {
	for _, r := range records {
		if strings.Contains(r.Name, ImpactorTag) {
			return true
		}
	}
	return false
}

// SelectImpactor promotes the largest potentially hazardous record to the
// headline threat, renaming it. With no candidate it returns
// SyntheticImpactor and false.
func SelectImpactor(records []model.NEORecord) (model.NEORecord, bool) {
	best := -1
	bestSize := 0.0
	for i, r := range records {
		if !r.Hazardous {
			continue
		}
		if size := r.MeanDiameterMeters(); size > bestSize {
			best, bestSize = i, size
		}
	}
	if best < 0 {
		return SyntheticImpactor(), false
	}
	r := records[best]
	r.Name = ImpactorTag + " (" + r.Name + ")"
	r.Hazardous = true
	return r, true
}
