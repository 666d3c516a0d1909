// Package server exposes the impact simulator over HTTP: a JSON API for the
// catalog, impact estimates and the single active run, plus a websocket
// stream of run ticks for scene clients.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/internal/neows"
	"github.com/signalsfoundry/impact-simulator/internal/observability"
	"github.com/signalsfoundry/impact-simulator/kb"
	"github.com/signalsfoundry/impact-simulator/model"
	"github.com/signalsfoundry/impact-simulator/timectrl"
)

// DefaultTick is the run loop step, roughly one frame at 60 Hz.
const DefaultTick = 16 * time.Millisecond

// CatalogLoader fetches one catalog page into the knowledge base.
// *neows.Loader implements it.
type CatalogLoader interface {
	Load(ctx context.Context, page int) neows.LoadResult
}

// HistoryStore lists past impacts. Every storage backend implements it.
type HistoryStore interface {
	History(ctx context.Context, limit int) ([]model.ImpactReport, error)
	CountByDanger(ctx context.Context) (map[model.DangerLevel]int64, error)
}

// Server wires the controller, catalog and collaborators to HTTP handlers.
type Server struct {
	ctrl      *core.Controller
	catalog   *kb.KnowledgeBase
	loader    CatalogLoader
	history   HistoryStore
	collector *observability.ImpactCollector
	log       logging.Logger

	now               func() time.Time
	epoch             time.Time
	tick              time.Duration
	mode              timectrl.Mode
	populationDensity float64
	segments          int

	hub         *hub
	runner      *runner
	unsubscribe func()
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the base logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCollector records HTTP and catalog metrics.
func WithCollector(c *observability.ImpactCollector) Option {
	return func(s *Server) { s.collector = c }
}

// WithCatalogLoader loads catalog pages on GET /api/asteroids.
func WithCatalogLoader(l CatalogLoader) Option {
	return func(s *Server) { s.loader = l }
}

// WithHistory serves GET /api/runs/history from h.
func WithHistory(h HistoryStore) Option {
	return func(s *Server) { s.history = h }
}

// WithTick sets the run loop step and pacing.
func WithTick(tick time.Duration, mode timectrl.Mode) Option {
	return func(s *Server) {
		if tick > 0 {
			s.tick = tick
		}
		s.mode = mode
	}
}

// WithNow overrides the wall clock. The first reading becomes the rotation
// epoch: launch angles are taken at now()-epoch on the rotation clock.
func WithNow(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPopulationDensity sets the people-per-km² used by /api/impact.
func WithPopulationDensity(perKm2 float64) Option {
	return func(s *Server) { s.populationDensity = perKm2 }
}

// WithZoneSegments sets the vertex count of /api/zones rings.
func WithZoneSegments(n int) Option {
	return func(s *Server) { s.segments = n }
}

// New builds a server around ctrl. The catalog must not be nil.
func New(ctrl *core.Controller, catalog *kb.KnowledgeBase, opts ...Option) *Server {
	s := &Server{
		ctrl:              ctrl,
		catalog:           catalog,
		log:               logging.Noop(),
		now:               time.Now,
		tick:              DefaultTick,
		mode:              timectrl.RealTime,
		populationDensity: core.DefaultPopulationDensity,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.epoch = s.now()
	s.hub = newHub(s.log)
	s.runner = newRunner(ctrl, s.tick, s.mode, s.log)
	s.unsubscribe = ctrl.Subscribe(s.hub.publish)
	return s
}

// Handler returns the routed API. The collector middleware sits inside the
// request-context middleware so it sees the route the mux matched.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/asteroids", s.handleListAsteroids)
	mux.HandleFunc("GET /api/asteroids/{id}", s.handleGetAsteroid)
	mux.HandleFunc("POST /api/impact", s.handleImpact)
	mux.HandleFunc("POST /api/runs", s.handleStartRun)
	mux.HandleFunc("GET /api/runs/current", s.handleCurrentRun)
	mux.HandleFunc("DELETE /api/runs/current", s.handleAbortRun)
	mux.HandleFunc("POST /api/runs/current/reset", s.handleResetRun)
	mux.HandleFunc("GET /api/runs/history", s.handleHistory)
	mux.HandleFunc("GET /api/runs/history/summary", s.handleHistorySummary)
	mux.HandleFunc("GET /api/zones", s.handleZones)
	mux.HandleFunc("GET /ws/run", s.handleRunStream)

	var h http.Handler = mux
	if s.collector != nil {
		h = s.collector.Middleware(h)
	}
	return withRequestContext(s.log, h)
}

// LaunchOffset is the rotation-clock time a run started now would use.
func (s *Server) LaunchOffset() time.Duration {
	return s.now().Sub(s.epoch)
}

// Wait blocks until the current run loop exits or ctx ends.
func (s *Server) Wait(ctx context.Context) error {
	return s.runner.wait(ctx)
}

// Close stops the run loop and disconnects stream clients.
func (s *Server) Close() {
	s.runner.stop()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.hub.closeAll()
}

func (s *Server) requestLogger(r *http.Request) logging.Logger {
	if l := logging.LoggerFromContext(r.Context()); l != nil {
		return l
	}
	return s.log
}
