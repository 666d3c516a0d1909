// Package sim assembles a ready-to-run impact simulation from configuration:
// the NEO catalog and its loader, the controller with its integrator and
// rotation clock, and the sinks finished impacts are written to. Both the
// server and the command-line simulator start from an Assembly.
package sim

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/config"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/internal/neows"
	"github.com/signalsfoundry/impact-simulator/internal/storage"
	"github.com/signalsfoundry/impact-simulator/internal/telemetry"
	"github.com/signalsfoundry/impact-simulator/kb"
	"github.com/signalsfoundry/impact-simulator/model"
	"github.com/signalsfoundry/impact-simulator/timectrl"
)

// ErrOffline is what the offline catalog source fails every request with,
// so the loader serves the fallback catalog.
var ErrOffline = errors.New("catalog source is offline")

// Assembly holds the wired components. Close releases the sinks.
type Assembly struct {
	Catalog    *kb.KnowledgeBase
	Loader     *neows.Loader
	Controller *core.Controller
	Rotation   *timectrl.RotationClock
	History    storage.Backend
	Influx     *telemetry.Sink

	log logging.Logger
}

type options struct {
	log      logging.Logger
	recorder core.Recorder
	source   neows.Source
	now      func() time.Time
	extra    []core.ImpactSink
}

// Option customises Assemble.
type Option func(*options)

// WithLogger sets the logger handed to every component.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithRecorder wires run metrics into the controller.
func WithRecorder(r core.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithCatalogSource replaces the NeoWs client built from settings.
func WithCatalogSource(src neows.Source) Option {
	return func(o *options) { o.source = src }
}

// Offline makes every catalog load fall back to the built-in catalog.
func Offline() Option {
	return WithCatalogSource(offlineSource{})
}

// WithNow overrides the clock used for GMST alignment and run stamps.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSinks adds impact sinks after the history store and influx.
func WithSinks(sinks ...core.ImpactSink) Option {
	return func(o *options) { o.extra = append(o.extra, sinks...) }
}

// Assemble opens storage and telemetry and builds the controller. On error
// anything already opened is closed.
func Assemble(ctx context.Context, s config.Settings, opts ...Option) (_ *Assembly, err error) {
	o := options{log: logging.Noop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	a := &Assembly{Catalog: kb.NewKnowledgeBase(), log: o.log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.History, err = storage.NewBackend(ctx, s.Storage, o.log)
	if err != nil {
		return nil, fmt.Errorf("open impact history: %w", err)
	}
	sinks := []core.ImpactSink{a.History}

	influx, err := telemetry.NewSink(s.Influx, o.log)
	switch {
	case err == nil:
		a.Influx = influx
		sinks = append(sinks, influx)
	case errors.Is(err, telemetry.ErrDisabled):
		err = nil
	default:
		return nil, fmt.Errorf("open influx sink: %w", err)
	}
	sinks = append(sinks, o.extra...)

	src := o.source
	if src == nil {
		src = NewCatalogClient(s.NeoWs, o.log)
	}
	a.Loader = neows.NewLoader(src, a.Catalog, o.log, s.NeoWs.PageSize)

	a.Rotation, err = NewRotationClock(s.Rotation, o.now())
	if err != nil {
		return nil, err
	}
	integrator, err := NewIntegrator(s.Sim, a.Rotation)
	if err != nil {
		return nil, err
	}

	ctrlOpts := []core.ControllerOption{
		core.WithLogger(o.log),
		core.WithImpactCache(core.NewImpactCache(s.Sim.CacheSize)),
		core.WithSinks(sinks...),
		core.WithPopulationDensity(s.Sim.PopulationDensity),
		core.WithNow(o.now),
	}
	if o.recorder != nil {
		ctrlOpts = append(ctrlOpts, core.WithRecorder(o.recorder))
	}
	a.Controller = core.NewController(integrator, ctrlOpts...)
	return a, nil
}

// Close flushes telemetry and closes the history store.
func (a *Assembly) Close() {
	if a == nil {
		return
	}
	if a.Influx != nil {
		a.Influx.Flush()
		a.Influx.Close()
		a.Influx = nil
	}
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			a.log.Warn(context.Background(), "closing impact history failed", logging.Err(err))
		}
		a.History = nil
	}
}

// NewCatalogClient builds a NeoWs client from settings.
func NewCatalogClient(cfg config.NeoWsConfig, log logging.Logger) *neows.Client {
	opts := []neows.Option{
		neows.WithLogger(log),
		neows.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, neows.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, neows.WithAPIKey(cfg.APIKey))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, neows.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return neows.NewClient(opts...)
}

// NewRotationClock builds the planet clock. Alignment "gmst" seeds the
// initial angle with Greenwich mean sidereal time at now.
func NewRotationClock(cfg config.RotationConfig, now time.Time) (*timectrl.RotationClock, error) {
	period := cfg.Period
	if period == 0 {
		period = timectrl.DefaultRotationPeriod
	}
	initial := 0.0
	switch strings.ToLower(cfg.Alignment) {
	case "", "none":
	case "gmst":
		initial = timectrl.GMSTAngle(now)
	default:
		return nil, fmt.Errorf("unknown rotation alignment %q", cfg.Alignment)
	}
	return timectrl.NewRotationClock(period, initial)
}

// NewIntegrator builds the flight integrator for the configured scene.
func NewIntegrator(cfg config.SimConfig, rotation core.RotationSource) (*core.Integrator, error) {
	mapper, err := core.NewMapper(cfg.Radius, cfg.LongitudeOffsetDeg)
	if err != nil {
		return nil, fmt.Errorf("scene mapper: %w", err)
	}
	easing, err := core.ParseEasing(cfg.Easing)
	if err != nil {
		return nil, err
	}
	return core.NewIntegrator(mapper, rotation,
		core.WithDuration(cfg.Duration),
		core.WithEasing(easing),
		core.WithStartDistance(cfg.StartDistance),
	), nil
}

type offlineSource struct{}

func (offlineSource) Browse(context.Context, int, int) (neows.Page, error) {
	return neows.Page{}, ErrOffline
}

func (offlineSource) Feed(context.Context, time.Time, time.Time) ([]model.NEORecord, error) {
	return nil, ErrOffline
}
