package model

import (
	"fmt"
	"time"
)

// RunState is the lifecycle state of a simulation run.
type RunState int

const (
	RunIdle RunState = iota
	RunInFlight
	RunImpacted
)

func (s RunState) String() string {
	switch s {
	case RunIdle:
		return "idle"
	case RunInFlight:
		return "in_flight"
	case RunImpacted:
		return "impacted"
	default:
		return "unknown"
	}
}

// MarshalText lets RunState appear by name in JSON payloads.
func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the names written by MarshalText.
func (s *RunState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = RunIdle
	case "in_flight":
		*s = RunInFlight
	case "impacted":
		*s = RunImpacted
	default:
		return fmt.Errorf("unknown run state %q", text)
	}
	return nil
}

// SimulationRun is the single active impact run. Target is the location the
// user selected; ActualImpact is set once the impactor has arrived.
type SimulationRun struct {
	ID                   string          `json:"id"`
	Impactor             ImpactorProfile `json:"impactor"`
	Target               GeoCoordinate   `json:"target"`
	Result               ImpactResult    `json:"result"`
	StartedAt            time.Time       `json:"startedAt"`
	Duration             time.Duration   `json:"duration"`
	RotationAngleAtStart float64         `json:"rotationAngleAtStart"` // radians

	State        RunState       `json:"state"`
	Elapsed      time.Duration  `json:"elapsed"`
	ActualImpact *GeoCoordinate `json:"actualImpact,omitempty"`
}
