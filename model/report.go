package model

import "time"

// DangerLevel is a coarse hazard grade derived from impact energy.
type DangerLevel string

const (
	DangerLow      DangerLevel = "low"
	DangerMedium   DangerLevel = "medium"
	DangerCritical DangerLevel = "critical"
)

// HistoricalAnalog names the known event closest in scale to an impact.
type HistoricalAnalog struct {
	Event       string  `json:"event"`
	Megatons    float64 `json:"megatons"`
	Ratio       float64 `json:"ratio"`
	Description string  `json:"description"`
}

// DeflectionOption is one candidate technique for moving an impactor off
// course.
type DeflectionOption struct {
	Name        string `json:"name"`
	DeltaV      string `json:"deltaV"`
	WarningTime string `json:"warningTime"`
	Tested      bool   `json:"tested"`
	Cost        string `json:"cost"`
	Suitable    bool   `json:"suitable"`
}

// DefenseAssessment summarises planetary defense posture for an impactor.
type DefenseAssessment struct {
	Method          string             `json:"method"`
	DetectionTime   string             `json:"detectionTime"`
	PreparationTime string             `json:"preparationTime"`
	MissionCost     string             `json:"missionCost"`
	Deflection      []DeflectionOption `json:"deflection,omitempty"`
}

// Consequences are order-of-magnitude estimates layered on an ImpactResult.
type Consequences struct {
	CraterDepthMeters   float64           `json:"craterDepthMeters"`
	EjectaVolumeM3      float64           `json:"ejectaVolumeM3"`
	PeakTemperatureK    float64           `json:"peakTemperatureK"`
	AffectedAreaKm2     float64           `json:"affectedAreaKm2"`
	EstimatedCasualties int64             `json:"estimatedCasualties"`
	EnergyClass         string            `json:"energyClass"`
	Analog              HistoricalAnalog  `json:"analog"`
	Danger              DangerLevel       `json:"danger"`
	Defense             DefenseAssessment `json:"defense"`
}

// ImpactReport is produced once per run when the impactor arrives.
type ImpactReport struct {
	RunID                 string          `json:"runId"`
	Impactor              ImpactorProfile `json:"impactor"`
	Selected              GeoCoordinate   `json:"selected"`
	Actual                GeoCoordinate   `json:"actual"`
	DriftDegrees          float64         `json:"driftDegrees"`
	ApproachElevationDeg  float64         `json:"approachElevationDeg"`
	RotationAngleAtStart  float64         `json:"rotationAngleAtStart"`
	RotationAngleAtImpact float64         `json:"rotationAngleAtImpact"`
	Region                string          `json:"region"`
	Result                ImpactResult    `json:"result"`
	Consequences          Consequences    `json:"consequences"`
	StartedAt             time.Time       `json:"startedAt"`
	FlightTime            time.Duration   `json:"flightTime"`
}
