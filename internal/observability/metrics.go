package observability

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/impact-simulator/model"
)

// ImpactCollector bundles Prometheus metrics for simulation runs, the NEO
// catalog and the HTTP surface. It satisfies core.Recorder.
type ImpactCollector struct {
	gatherer prometheus.Gatherer

	Runs           *prometheus.CounterVec
	Ticks          prometheus.Counter
	EnergyMegatons prometheus.Histogram
	DriftDegrees   prometheus.Gauge
	CacheLookups   *prometheus.CounterVec

	CatalogObjects prometheus.Gauge
	CatalogLoads   *prometheus.CounterVec

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewImpactCollector registers impact metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewImpactCollector(reg prometheus.Registerer) (*ImpactCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impact_runs_total",
		Help: "Simulation runs by outcome: started, impacted or aborted.",
	}, []string{"outcome"}), "impact_runs_total")
	if err != nil {
		return nil, err
	}
	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "impact_ticks_total",
		Help: "Integrator ticks processed across all runs.",
	}), "impact_ticks_total")
	if err != nil {
		return nil, err
	}
	energy, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "impact_energy_megatons",
		Help:    "TNT-equivalent energy of launched impactors.",
		Buckets: prometheus.ExponentialBuckets(0.001, 10, 12),
	}), "impact_energy_megatons")
	if err != nil {
		return nil, err
	}
	drift, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "impact_flight_drift_degrees",
		Help: "Longitude drift between selected and actual impact of the last run.",
	}), "impact_flight_drift_degrees")
	if err != nil {
		return nil, err
	}
	cache, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impact_cache_lookups_total",
		Help: "Impact result cache lookups by result: hit or miss.",
	}, []string{"result"}), "impact_cache_lookups_total")
	if err != nil {
		return nil, err
	}

	objects, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "neo_catalog_objects",
		Help: "Near-Earth objects currently in the catalog.",
	}), "neo_catalog_objects")
	if err != nil {
		return nil, err
	}
	loads, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "neo_catalog_loads_total",
		Help: "Catalog page loads by source: api or fallback.",
	}, []string{"source"}), "neo_catalog_loads_total")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Handled HTTP requests, labeled by route pattern and status code.",
	}, []string{"route", "code"}), "http_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route"}), "http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &ImpactCollector{
		gatherer:       gatherer,
		Runs:           runs,
		Ticks:          ticks,
		EnergyMegatons: energy,
		DriftDegrees:   drift,
		CacheLookups:   cache,
		CatalogObjects: objects,
		CatalogLoads:   loads,
		HTTPRequests:   requests,
		HTTPDurations:  durations,
	}, nil
}

func (c *ImpactCollector) RunStarted(result model.ImpactResult) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues("started").Inc()
	c.EnergyMegatons.Observe(result.Megatons)
}

func (c *ImpactCollector) RunTicked() {
	if c == nil {
		return
	}
	c.Ticks.Inc()
}

func (c *ImpactCollector) RunImpacted(report model.ImpactReport) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues("impacted").Inc()
	c.DriftDegrees.Set(report.DriftDegrees)
}

func (c *ImpactCollector) RunAborted() {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues("aborted").Inc()
}

func (c *ImpactCollector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheLookups.WithLabelValues(result).Inc()
}

// CatalogLoaded records one catalog page load and the resulting size.
func (c *ImpactCollector) CatalogLoaded(fallback bool, total int) {
	if c == nil {
		return
	}
	source := "api"
	if fallback {
		source = "fallback"
	}
	c.CatalogLoads.WithLabelValues(source).Inc()
	c.CatalogObjects.Set(float64(total))
}

// Middleware records request counts and durations. The route label is the
// ServeMux pattern that matched, so path parameters do not fan out.
func (c *ImpactCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		if c == nil {
			return
		}
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		c.HTTPRequests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
		c.HTTPDurations.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ImpactCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
