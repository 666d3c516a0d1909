package model

import (
	"strconv"
	"strings"
)

// DefaultVelocityKmPerSec is used when a catalog record carries no usable
// close-approach velocity.
const DefaultVelocityKmPerSec = 20.0

// DiameterRange is an estimated size band in metres.
type DiameterRange struct {
	Min float64 `json:"estimated_diameter_min"`
	Max float64 `json:"estimated_diameter_max"`
}

// EstimatedDiameter mirrors the NeoWs estimated_diameter block. Only the
// metre band is used.
type EstimatedDiameter struct {
	Meters DiameterRange `json:"meters"`
}

// RelativeVelocity carries speeds as decimal strings, as NeoWs reports them.
type RelativeVelocity struct {
	KilometersPerSecond string `json:"kilometers_per_second"`
}

// MissDistance carries distances as decimal strings.
type MissDistance struct {
	Kilometers string `json:"kilometers"`
}

// CloseApproach is one predicted or recorded flyby.
type CloseApproach struct {
	Date             string           `json:"close_approach_date,omitempty"`
	RelativeVelocity RelativeVelocity `json:"relative_velocity"`
	MissDistance     MissDistance     `json:"miss_distance"`
	OrbitingBody     string           `json:"orbiting_body,omitempty"`
}

// NEORecord is a near-Earth object as catalogued by NeoWs.
type NEORecord struct {
	ID                 string            `json:"id"`
	NeoReferenceID     string            `json:"neo_reference_id,omitempty"`
	Name               string            `json:"name"`
	AbsoluteMagnitudeH float64           `json:"absolute_magnitude_h,omitempty"`
	EstimatedDiameter  EstimatedDiameter `json:"estimated_diameter"`
	Hazardous          bool              `json:"is_potentially_hazardous_asteroid"`
	CloseApproaches    []CloseApproach   `json:"close_approach_data"`
}

// MeanDiameterMeters returns the midpoint of the estimated size band.
func (r NEORecord) MeanDiameterMeters() float64 {
	return (r.EstimatedDiameter.Meters.Min + r.EstimatedDiameter.Meters.Max) / 2
}

// VelocityKmPerSec returns the relative velocity of the first close approach.
// The boolean is false when the record has none or it does not parse.
func (r NEORecord) VelocityKmPerSec() (float64, bool) {
	if len(r.CloseApproaches) == 0 {
		return 0, false
	}
	raw := strings.TrimSpace(r.CloseApproaches[0].RelativeVelocity.KilometersPerSecond)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// Profile converts the record into an impactor, falling back to
// DefaultVelocityKmPerSec when no velocity is known.
func (r NEORecord) Profile() ImpactorProfile {
	v, ok := r.VelocityKmPerSec()
	if !ok {
		v = DefaultVelocityKmPerSec
	}
	return ImpactorProfile{
		ID:               r.ID,
		Name:             r.Name,
		DiameterMeters:   r.MeanDiameterMeters(),
		VelocityKmPerSec: v,
		DensityKgPerM3:   DefaultDensityKgPerM3,
		Hazardous:        r.Hazardous,
	}
}
