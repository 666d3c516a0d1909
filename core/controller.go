package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/model"
)

const tracerName = "github.com/signalsfoundry/impact-simulator/core"

var (
	// ErrNoImpactor is returned by Begin when no impactor has been selected.
	ErrNoImpactor = errors.New("no impactor selected")
	// ErrNoTarget is returned by Begin when no target has been selected.
	ErrNoTarget = errors.New("no target selected")
)

// EventType indicates what happened to the run.
type EventType int

const (
	EventRunStarted EventType = iota
	EventRunTicked
	EventRunImpacted
	EventRunAborted
	EventRunReset
)

func (t EventType) String() string {
	switch t {
	case EventRunStarted:
		return "started"
	case EventRunTicked:
		return "tick"
	case EventRunImpacted:
		return "impacted"
	case EventRunAborted:
		return "aborted"
	case EventRunReset:
		return "reset"
	default:
		return "unknown"
	}
}

// MarshalText lets EventType appear by name in JSON payloads.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event is emitted to subscribers on every run transition and tick.
type Event struct {
	Type   EventType           `json:"type"`
	Run    model.SimulationRun `json:"run"`
	Tick   *TickResult         `json:"tick,omitempty"`
	Report *model.ImpactReport `json:"report,omitempty"`
}

// Recorder receives run metrics. observability.ImpactCollector implements it.
type Recorder interface {
	RunStarted(result model.ImpactResult)
	RunTicked()
	RunImpacted(report model.ImpactReport)
	RunAborted()
	CacheLookup(hit bool)
}

// ImpactSink persists or forwards finished impact reports.
type ImpactSink interface {
	RecordImpact(ctx context.Context, report model.ImpactReport) error
}

type noopRecorder struct{}

func (noopRecorder) RunStarted(model.ImpactResult)  {}
func (noopRecorder) RunTicked()                     {}
func (noopRecorder) RunImpacted(model.ImpactReport) {}
func (noopRecorder) RunAborted()                    {}
func (noopRecorder) CacheLookup(bool)               {}

// Controller owns the single simulation run: the current selection, the
// integrator flying it, and the report once it lands. It is safe for
// concurrent use.
type Controller struct {
	mu sync.Mutex

	integrator        *Integrator
	cache             *ImpactCache
	log               logging.Logger
	recorder          Recorder
	sinks             []ImpactSink
	populationDensity float64
	now               func() time.Time

	impactor *model.ImpactorProfile
	target   *model.GeoCoordinate
	report   *model.ImpactReport

	subs    map[int]func(Event)
	nextSub int
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l logging.Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRecorder wires a metrics recorder.
func WithRecorder(r Recorder) ControllerOption {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithImpactCache replaces the default result cache.
func WithImpactCache(cache *ImpactCache) ControllerOption {
	return func(c *Controller) {
		c.cache = cache
	}
}

// WithSinks adds destinations for finished impact reports.
func WithSinks(sinks ...ImpactSink) ControllerOption {
	return func(c *Controller) {
		for _, s := range sinks {
			if s != nil {
				c.sinks = append(c.sinks, s)
			}
		}
	}
}

// WithPopulationDensity sets people per km² for casualty estimates.
func WithPopulationDensity(perKm2 float64) ControllerOption {
	return func(c *Controller) {
		c.populationDensity = perKm2
	}
}

// WithNow overrides the wall clock used to stamp runs.
func WithNow(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController wraps integrator.
func NewController(integrator *Integrator, opts ...ControllerOption) *Controller {
	c := &Controller{
		integrator:        integrator,
		cache:             NewImpactCache(0),
		log:               logging.Noop(),
		recorder:          noopRecorder{},
		populationDensity: DefaultPopulationDensity,
		now:               time.Now,
		subs:              make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SelectImpactor sets the impactor for the next run.
func (c *Controller) SelectImpactor(p model.ImpactorProfile) error {
	if err := ValidateImpactor(p); err != nil {
		return err
	}
	c.mu.Lock()
	c.impactor = &p
	c.mu.Unlock()
	return nil
}

// SelectTarget sets the target location for the next run.
func (c *Controller) SelectTarget(coord model.GeoCoordinate) error {
	if err := ValidateGeoCoordinate(coord); err != nil {
		return err
	}
	c.mu.Lock()
	c.target = &coord
	c.mu.Unlock()
	return nil
}

// Selection returns the current impactor and target selections.
func (c *Controller) Selection() (*model.ImpactorProfile, *model.GeoCoordinate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var p *model.ImpactorProfile
	var t *model.GeoCoordinate
	if c.impactor != nil {
		cp := *c.impactor
		p = &cp
	}
	if c.target != nil {
		ct := *c.target
		t = &ct
	}
	return p, t
}

// Compute evaluates an impactor through the result cache without starting a
// run.
func (c *Controller) Compute(ctx context.Context, p model.ImpactorProfile) (model.ImpactResult, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "impact.compute",
		trace.WithAttributes(
			attribute.Float64("impactor.diameter_m", p.DiameterMeters),
			attribute.Float64("impactor.velocity_kms", p.VelocityKmPerSec),
		))
	defer span.End()

	res, hit, err := c.cache.Compute(p)
	if err != nil {
		span.RecordError(err)
		return model.ImpactResult{}, err
	}
	c.recorder.CacheLookup(hit)
	span.SetAttributes(attribute.Float64("impact.megatons", res.Megatons), attribute.Bool("cache.hit", hit))
	return res, nil
}

// Begin starts a run with the current selection. launchAt is the
// rotation-clock time at launch.
func (c *Controller) Begin(ctx context.Context, launchAt time.Duration) (model.SimulationRun, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "impact.run.start")
	defer span.End()

	c.mu.Lock()
	if c.impactor == nil {
		c.mu.Unlock()
		return model.SimulationRun{}, ErrNoImpactor
	}
	if c.target == nil {
		c.mu.Unlock()
		return model.SimulationRun{}, ErrNoTarget
	}
	switch c.integrator.State() {
	case model.RunInFlight:
		c.mu.Unlock()
		return model.SimulationRun{}, ErrRunInProgress
	case model.RunImpacted:
		c.mu.Unlock()
		return model.SimulationRun{}, ErrRunNotReset
	}
	impactor, target := *c.impactor, *c.target
	c.mu.Unlock()

	result, err := c.Compute(ctx, impactor)
	if err != nil {
		span.RecordError(err)
		return model.SimulationRun{}, err
	}

	c.mu.Lock()
	run := &model.SimulationRun{
		ID:        uuid.NewString(),
		Impactor:  impactor,
		Target:    target,
		Result:    result,
		StartedAt: c.now(),
	}
	if err := c.integrator.Start(run, launchAt); err != nil {
		c.mu.Unlock()
		span.RecordError(err)
		return model.SimulationRun{}, err
	}
	c.report = nil
	snapshot := *run
	subs := c.subscribersLocked()
	c.mu.Unlock()

	span.SetAttributes(
		attribute.String("run.id", snapshot.ID),
		attribute.Float64("run.target.lat", target.Lat),
		attribute.Float64("run.target.lng", target.Lng),
	)
	c.recorder.RunStarted(result)
	c.log.Info(ctx, "impact run started",
		logging.String("run_id", snapshot.ID),
		logging.String("impactor", impactor.Name),
		logging.Float("lat", target.Lat),
		logging.Float("lng", target.Lng),
		logging.Float("megatons", result.Megatons),
		logging.Duration("flight_time", c.FlightDuration()),
	)
	notify(subs, Event{Type: EventRunStarted, Run: snapshot})
	return snapshot, nil
}

// Tick advances the active run to elapsed time since launch. On arrival the
// impact report is built, delivered to every sink and emitted to
// subscribers.
func (c *Controller) Tick(ctx context.Context, elapsed time.Duration) (TickResult, error) {
	c.mu.Lock()
	res, err := c.integrator.Tick(elapsed)
	if err != nil {
		c.mu.Unlock()
		return TickResult{}, err
	}
	run := c.integrator.Run()
	snapshot := *run
	var report *model.ImpactReport
	if res.Arrived {
		r := c.buildReportLocked(run, res)
		c.report = &r
		report = &r
	}
	subs := c.subscribersLocked()
	sinks := append([]ImpactSink(nil), c.sinks...)
	c.mu.Unlock()

	c.recorder.RunTicked()
	tick := res
	notify(subs, Event{Type: EventRunTicked, Run: snapshot, Tick: &tick})

	if report != nil {
		c.finishRun(ctx, *report, snapshot, sinks, subs)
	}
	return res, nil
}

func (c *Controller) finishRun(ctx context.Context, report model.ImpactReport, run model.SimulationRun, sinks []ImpactSink, subs []func(Event)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "impact.run.arrive",
		trace.WithAttributes(
			attribute.String("run.id", report.RunID),
			attribute.Float64("impact.actual.lat", report.Actual.Lat),
			attribute.Float64("impact.actual.lng", report.Actual.Lng),
			attribute.Float64("impact.drift_deg", report.DriftDegrees),
		))
	defer span.End()

	c.recorder.RunImpacted(report)
	c.log.Info(ctx, "impact run arrived",
		logging.String("run_id", report.RunID),
		logging.Float("actual_lat", report.Actual.Lat),
		logging.Float("actual_lng", report.Actual.Lng),
		logging.Float("drift_deg", report.DriftDegrees),
		logging.String("region", report.Region),
		logging.Any("danger", report.Consequences.Danger),
	)

	for _, sink := range sinks {
		if err := sink.RecordImpact(ctx, report); err != nil {
			span.RecordError(err)
			c.log.Warn(ctx, "impact sink failed",
				logging.String("run_id", report.RunID),
				logging.String("sink", fmt.Sprintf("%T", sink)),
				logging.Err(err),
			)
		}
	}
	notify(subs, Event{Type: EventRunImpacted, Run: run, Report: &report})
}

// Abort cancels a run in flight and returns to Idle. Nothing about the
// aborted run is kept.
func (c *Controller) Abort(ctx context.Context) error {
	c.mu.Lock()
	if c.integrator.State() != model.RunInFlight {
		c.mu.Unlock()
		return fmt.Errorf("%w in flight", ErrNoRun)
	}
	snapshot := *c.integrator.Run()
	c.integrator.Reset()
	c.report = nil
	subs := c.subscribersLocked()
	c.mu.Unlock()

	snapshot.State = model.RunIdle
	c.recorder.RunAborted()
	c.log.Info(ctx, "impact run aborted", logging.String("run_id", snapshot.ID))
	notify(subs, Event{Type: EventRunAborted, Run: snapshot})
	return nil
}

// Reset clears an impacted run so another can start. Resetting while idle
// is a no-op; a run in flight must be aborted instead.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	switch c.integrator.State() {
	case model.RunIdle:
		c.mu.Unlock()
		return nil
	case model.RunInFlight:
		c.mu.Unlock()
		return ErrRunInProgress
	}
	snapshot := *c.integrator.Run()
	c.integrator.Reset()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	c.log.Debug(ctx, "impact run reset", logging.String("run_id", snapshot.ID))
	notify(subs, Event{Type: EventRunReset, Run: snapshot})
	return nil
}

// State returns the lifecycle state of the run.
func (c *Controller) State() model.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.integrator.State()
}

// Current returns a copy of the active run, if any, and its latest tick.
func (c *Controller) Current() (model.SimulationRun, TickResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	run := c.integrator.Run()
	if run == nil {
		return model.SimulationRun{}, TickResult{}, false
	}
	return *run, c.integrator.Last(), true
}

// Report returns the impact report of the current run once it has landed.
func (c *Controller) Report() (model.ImpactReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.report == nil {
		return model.ImpactReport{}, false
	}
	return *c.report, true
}

// FlightDuration returns the configured flight time.
func (c *Controller) FlightDuration() time.Duration {
	return c.integrator.Duration()
}

// CacheStats exposes hit/miss/eviction counts of the result cache.
func (c *Controller) CacheStats() (hits, misses, evictions int64) {
	return c.cache.Stats()
}

// Subscribe registers a callback for run events. Callbacks run outside the
// controller lock, on the goroutine that caused the event. It returns an
// unsubscribe function.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Controller) subscribersLocked() []func(Event) {
	subs := make([]func(Event), 0, len(c.subs))
	for i := 0; i < c.nextSub; i++ {
		if fn, ok := c.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	return subs
}

func (c *Controller) buildReportLocked(run *model.SimulationRun, final TickResult) model.ImpactReport {
	actual := *run.ActualImpact
	return model.ImpactReport{
		RunID:                 run.ID,
		Impactor:              run.Impactor,
		Selected:              run.Target,
		Actual:                actual,
		DriftDegrees:          LongitudeDelta(run.Target.Lng, actual.Lng),
		ApproachElevationDeg:  ElevationDegrees(final.Position, c.integrator.StartPoint()),
		RotationAngleAtStart:  run.RotationAngleAtStart,
		RotationAngleAtImpact: final.RotationAngle,
		Region:                DescribeRegion(actual),
		Result:                run.Result,
		Consequences:          EstimateConsequences(run.Impactor, run.Result, c.populationDensity),
		StartedAt:             run.StartedAt,
		FlightTime:            final.Elapsed,
	}
}

func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
