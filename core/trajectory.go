package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signalsfoundry/impact-simulator/model"
)

const (
	// DefaultFlightDuration is the time from launch to arrival.
	DefaultFlightDuration = 5 * time.Second
	// DefaultStartDistanceRadii is how far above the target, in sphere
	// radii, the impactor starts (50 scene units over a radius-15 globe).
	DefaultStartDistanceRadii = 50.0 / 15.0
)

var (
	// ErrRunInProgress is returned when a run is started while another is in
	// flight.
	ErrRunInProgress = errors.New("simulation already running")
	// ErrRunNotReset is returned when a run is started before the previous
	// impacted run has been reset.
	ErrRunNotReset = errors.New("previous run has impacted and must be reset")
	// ErrNoRun is returned when an operation needs a run and there is none.
	ErrNoRun = errors.New("no simulation run")
	// ErrTickOutOfOrder is returned for a tick whose elapsed time is negative
	// or earlier than a tick already processed.
	ErrTickOutOfOrder = errors.New("tick elapsed time went backwards")
)

// RotationSource reports the planet rotation angle, in radians, after an
// elapsed span of simulation time. timectrl.RotationClock implements it.
type RotationSource interface {
	AngleAtTime(elapsed time.Duration) float64
}

// Easing shapes flight progress.
type Easing int

const (
	// EaseSmoothstep accelerates out of the start and decelerates into the
	// target: 3p² - 2p³.
	EaseSmoothstep Easing = iota
	// EaseOutQuad decelerates into the target: 1 - (1-p)².
	EaseOutQuad
)

// Apply maps linear progress p in [0, 1] to eased progress in [0, 1].
func (e Easing) Apply(p float64) float64 {
	switch e {
	case EaseOutQuad:
		q := 1 - p
		return 1 - q*q
	default:
		return p * p * (3 - 2*p)
	}
}

func (e Easing) String() string {
	if e == EaseOutQuad {
		return "ease-out-quad"
	}
	return "smoothstep"
}

// ParseEasing accepts "smoothstep" or "ease-out-quad" (case-insensitive);
// the empty string selects smoothstep.
func ParseEasing(s string) (Easing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "smoothstep":
		return EaseSmoothstep, nil
	case "ease-out-quad", "easeoutquad", "quad":
		return EaseOutQuad, nil
	default:
		return EaseSmoothstep, fmt.Errorf("unknown easing %q", s)
	}
}

// TickResult is the integrator state after one tick.
type TickResult struct {
	State         model.RunState `json:"state"`
	Elapsed       time.Duration  `json:"elapsed"`
	Progress      float64        `json:"progress"`
	EasedProgress float64        `json:"easedProgress"`
	Position      SpherePoint    `json:"position"`
	Target        SpherePoint    `json:"target"`
	RotationAngle float64        `json:"rotationAngle"`
	// Arrived is true only on the tick that moved the run to Impacted.
	Arrived bool `json:"arrived"`
}

// Integrator flies one impactor from a point above its target onto the
// target while the planet turns beneath it. It is not safe for concurrent
// use; Controller serialises access.
type Integrator struct {
	mapper        Mapper
	rotation      RotationSource
	duration      time.Duration
	easing        Easing
	startDistance float64

	state      model.RunState
	run        *model.SimulationRun
	launchAt   time.Duration
	startPoint SpherePoint
	last       TickResult
	ticked     bool
}

// IntegratorOption configures an Integrator.
type IntegratorOption func(*Integrator)

// WithDuration sets the flight time. Non-positive values are ignored.
func WithDuration(d time.Duration) IntegratorOption {
	return func(in *Integrator) {
		if d > 0 {
			in.duration = d
		}
	}
}

// WithEasing selects the progress curve.
func WithEasing(e Easing) IntegratorOption {
	return func(in *Integrator) {
		in.easing = e
	}
}

// WithStartDistance sets the launch height above the target in sphere radii.
// Non-positive values are ignored.
func WithStartDistance(radii float64) IntegratorOption {
	return func(in *Integrator) {
		if radii > 0 && isFinite(radii) {
			in.startDistance = radii
		}
	}
}

// NewIntegrator builds an idle integrator.
func NewIntegrator(mapper Mapper, rotation RotationSource, opts ...IntegratorOption) *Integrator {
	in := &Integrator{
		mapper:        mapper,
		rotation:      rotation,
		duration:      DefaultFlightDuration,
		easing:        EaseSmoothstep,
		startDistance: DefaultStartDistanceRadii,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// State returns the current lifecycle state.
func (in *Integrator) State() model.RunState { return in.state }

// Run returns the run being integrated, or nil when idle.
func (in *Integrator) Run() *model.SimulationRun { return in.run }

// Duration returns the configured flight time.
func (in *Integrator) Duration() time.Duration { return in.duration }

// StartPoint returns the fixed launch position of the current run.
func (in *Integrator) StartPoint() SpherePoint { return in.startPoint }

// Last returns the most recent tick result.
func (in *Integrator) Last() TickResult { return in.last }

// Start launches run. launchAt is the rotation-clock time at launch; the
// planet angle at that instant becomes run.RotationAngleAtStart and the
// start point is fixed above the target's position at that angle.
func (in *Integrator) Start(run *model.SimulationRun, launchAt time.Duration) error {
	switch in.state {
	case model.RunInFlight:
		return ErrRunInProgress
	case model.RunImpacted:
		return ErrRunNotReset
	}
	if run == nil {
		return ErrNoRun
	}
	if err := ValidateGeoCoordinate(run.Target); err != nil {
		return err
	}
	if err := ValidateImpactor(run.Impactor); err != nil {
		return err
	}

	angle := in.rotation.AngleAtTime(launchAt)
	target, err := in.mapper.WorldPosition(run.Target, angle)
	if err != nil {
		return err
	}
	start := target.Add(target.Normalize().Scale(in.startDistance * in.mapper.Radius))

	run.RotationAngleAtStart = angle
	run.Duration = in.duration
	run.State = model.RunInFlight
	run.Elapsed = 0
	run.ActualImpact = nil

	in.run = run
	in.launchAt = launchAt
	in.startPoint = start
	in.state = model.RunInFlight
	in.ticked = false
	in.last = TickResult{
		State:         model.RunInFlight,
		Position:      start,
		Target:        target,
		RotationAngle: angle,
	}
	return nil
}

// Tick advances the run to elapsed time since launch. Ticks must not go
// backwards; repeating the last elapsed value returns the same result. Once
// impacted, further ticks return the frozen final state.
func (in *Integrator) Tick(elapsed time.Duration) (TickResult, error) {
	if in.run == nil {
		return TickResult{}, ErrNoRun
	}
	if elapsed < 0 {
		return TickResult{}, fmt.Errorf("%w: %s", ErrTickOutOfOrder, elapsed)
	}
	if in.ticked {
		if elapsed < in.last.Elapsed {
			return TickResult{}, fmt.Errorf("%w: %s after %s", ErrTickOutOfOrder, elapsed, in.last.Elapsed)
		}
		if elapsed == in.last.Elapsed || in.state == model.RunImpacted {
			res := in.last
			res.Arrived = false
			return res, nil
		}
	}

	progress := 1.0
	if elapsed < in.duration {
		progress = float64(elapsed) / float64(in.duration)
	}
	eased := in.easing.Apply(progress)
	angle := in.rotation.AngleAtTime(in.launchAt + elapsed)
	target, err := in.mapper.WorldPosition(in.run.Target, angle)
	if err != nil {
		return TickResult{}, err
	}

	res := TickResult{
		State:         model.RunInFlight,
		Elapsed:       elapsed,
		Progress:      progress,
		EasedProgress: eased,
		Position:      in.startPoint.Lerp(target, eased),
		Target:        target,
		RotationAngle: angle,
	}
	in.run.Elapsed = elapsed

	if progress >= 1 {
		// Read the arrival point against the planet as it stood at launch.
		actual, err := in.mapper.GeoAt(target, in.run.RotationAngleAtStart)
		if err != nil {
			return TickResult{}, err
		}
		res.Position = target
		res.State = model.RunImpacted
		res.Arrived = true
		in.run.ActualImpact = &actual
		in.run.State = model.RunImpacted
		in.state = model.RunImpacted
	}

	in.last = res
	in.ticked = true
	return res, nil
}

// Reset drops the current run and returns to Idle from any state.
func (in *Integrator) Reset() {
	in.state = model.RunIdle
	in.run = nil
	in.launchAt = 0
	in.startPoint = SpherePoint{}
	in.last = TickResult{}
	in.ticked = false
}
