package model

// DefaultDensityKgPerM3 is the bulk density assumed for a stony impactor when
// no better figure is known.
const DefaultDensityKgPerM3 = 2500.0

// GeoCoordinate is a surface location in degrees. Latitude is in [-90, 90]
// and longitude in [-180, 180].
type GeoCoordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ImpactorProfile describes the body that is dropped on the planet.
type ImpactorProfile struct {
	ID               string  `json:"id,omitempty"`
	Name             string  `json:"name,omitempty"`
	DiameterMeters   float64 `json:"diameterMeters"`
	VelocityKmPerSec float64 `json:"velocityKmPerSec"`
	// DensityKgPerM3 of zero means DefaultDensityKgPerM3.
	DensityKgPerM3 float64 `json:"densityKgPerM3,omitempty"`
	Hazardous      bool    `json:"hazardous,omitempty"`
}

// DamageRadii holds the blast rings around ground zero, in kilometres.
type DamageRadii struct {
	Fireball float64 `json:"fireballKm"`
	Severe   float64 `json:"severeKm"`
	Moderate float64 `json:"moderateKm"`
	Light    float64 `json:"lightKm"`
	Seismic  float64 `json:"seismicKm"`
}

// ImpactResult is the outcome of the physics calculator for one impactor.
type ImpactResult struct {
	MassKg               float64     `json:"massKg"`
	KineticEnergyJoules  float64     `json:"kineticEnergyJoules"`
	Megatons             float64     `json:"megatons"`
	CraterDiameterMeters float64     `json:"craterDiameterMeters"`
	Radii                DamageRadii `json:"radii"`
}
