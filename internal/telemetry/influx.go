// Package telemetry forwards finished impacts to InfluxDB as time-series
// points so dashboards can chart energy and drift across runs.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/signalsfoundry/impact-simulator/internal/config"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/model"
)

// Measurement is the InfluxDB measurement impacts are written to.
const Measurement = "impact"

// ErrDisabled is returned by NewSink when influx.enabled is false.
var ErrDisabled = errors.New("influx sink disabled")

// Sink writes one point per impact through the client's batching WriteAPI.
// It satisfies core.ImpactSink.
type Sink struct {
	client influxdb2.Client
	writer influxdb2_api.WriteAPI
	log    logging.Logger
	done   chan struct{}
}

// NewSink connects a batching writer for cfg.Org/cfg.Bucket. Write errors are
// reported asynchronously and logged.
func NewSink(cfg config.InfluxConfig, log logging.Logger) (*Sink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx sink needs url, org and bucket")
	}
	if log == nil {
		log = logging.Noop()
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(100).
			SetFlushInterval(1000),
	)
	s := &Sink{
		client: client,
		writer: client.WriteAPI(cfg.Org, cfg.Bucket),
		log:    log.With(logging.String("bucket", cfg.Bucket)),
		done:   make(chan struct{}),
	}
	go s.drainErrors()
	return s, nil
}

func (s *Sink) drainErrors() {
	defer close(s.done)
	for err := range s.writer.Errors() {
		s.log.Error(context.Background(), "error sending impact to InfluxDB", logging.Err(err))
	}
}

// Ping checks that the server is reachable.
func (s *Sink) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping influx: %w", err)
	}
	if !ok {
		return fmt.Errorf("ping influx: server not ready")
	}
	return nil
}

// RecordImpact queues the report's point. It never blocks on the network.
func (s *Sink) RecordImpact(ctx context.Context, report model.ImpactReport) error {
	point := ImpactPoint(report)
	s.writer.WritePoint(point)
	s.log.Debug(ctx, "queued impact point",
		logging.String("run_id", report.RunID),
		logging.String("line", lineProtocol(point)),
	)
	return nil
}

// Flush forces pending points out.
func (s *Sink) Flush() {
	s.writer.Flush()
}

// Close flushes and releases the client.
func (s *Sink) Close() {
	s.client.Close()
	select {
	case <-s.done:
	case <-time.After(time.Second):
	}
}

// ImpactPoint converts a report into its InfluxDB point, timestamped at the
// moment of impact.
func ImpactPoint(r model.ImpactReport) *influxdb2_write.Point {
	tags := map[string]string{
		"run_id":       r.RunID,
		"danger":       string(r.Consequences.Danger),
		"energy_class": r.Consequences.EnergyClass,
	}
	if r.Impactor.ID != "" {
		tags["impactor"] = r.Impactor.ID
	}
	if r.Region != "" {
		tags["region"] = r.Region
	}

	fields := map[string]interface{}{
		"diameter_m":    r.Impactor.DiameterMeters,
		"velocity_km_s": r.Impactor.VelocityKmPerSec,
		"megatons":      r.Result.Megatons,
		"crater_m":      r.Result.CraterDiameterMeters,
		"moderate_km":   r.Result.Radii.Moderate,
		"selected_lat":  r.Selected.Lat,
		"selected_lng":  r.Selected.Lng,
		"actual_lat":    r.Actual.Lat,
		"actual_lng":    r.Actual.Lng,
		"drift_deg":     r.DriftDegrees,
		"casualties":    r.Consequences.EstimatedCasualties,
		"flight_ms":     r.FlightTime.Milliseconds(),
	}
	return influxdb2.NewPoint(Measurement, tags, fields, r.StartedAt.Add(r.FlightTime))
}

// LineProtocol renders the report as a single line-protocol record without
// the trailing newline.
func LineProtocol(r model.ImpactReport) string {
	return lineProtocol(ImpactPoint(r))
}

func lineProtocol(p *influxdb2_write.Point) string {
	return strings.TrimSuffix(influxdb2_write.PointToLineProtocol(p, time.Nanosecond), "\n")
}
