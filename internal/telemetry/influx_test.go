package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/impact-simulator/internal/config"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/model"
)

func sampleReport() model.ImpactReport {
	return model.ImpactReport{
		RunID:    "run-42",
		Impactor: model.ImpactorProfile{ID: "2023-ABC", DiameterMeters: 500, VelocityKmPerSec: 20},
		Selected: model.GeoCoordinate{Lat: 40.5, Lng: -74},
		Actual:   model.GeoCoordinate{Lat: 40.5, Lng: -56.81},
		Region:   "North Atlantic Ocean",
		Result:   model.ImpactResult{Megatons: 62571.5, CraterDiameterMeters: 1471.25},
		Consequences: model.Consequences{
			Danger:              model.DangerCritical,
			EnergyClass:         "regional",
			EstimatedCasualties: 1000,
		},
		DriftDegrees: 17.19,
		StartedAt:    time.Unix(1700000000, 0).UTC(),
		FlightTime:   5 * time.Second,
	}
}

func TestLineProtocol(t *testing.T) {
	line := LineProtocol(sampleReport())

	if !strings.HasPrefix(line, Measurement+",") {
		t.Fatalf("line %q does not start with measurement", line)
	}
	wantTS := strconv.FormatInt(time.Unix(1700000005, 0).UnixNano(), 10)
	if strings.Contains(line, "\n") {
		t.Fatalf("line %q is not a single record", line)
	}
	if !strings.HasSuffix(line, " "+wantTS) {
		t.Fatalf("line %q does not end with impact timestamp %s", line, wantTS)
	}
	for _, want := range []string{
		"danger=critical",
		"impactor=2023-ABC",
		`region=North\ Atlantic\ Ocean`,
		"run_id=run-42",
		"megatons=62571.5",
		"crater_m=1471.25",
		"drift_deg=17.19",
		"casualties=1000i",
		"flight_ms=5000i",
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
}

func TestImpactPointOmitsEmptyOptionalTags(t *testing.T) {
	r := sampleReport()
	r.Region = ""
	r.Impactor.ID = ""
	line := LineProtocol(r)
	if strings.Contains(line, "region=") || strings.Contains(line, "impactor=") {
		t.Fatalf("unexpected optional tag in %q", line)
	}
}

func TestNewSinkValidation(t *testing.T) {
	if _, err := NewSink(config.InfluxConfig{}, nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if _, err := NewSink(config.InfluxConfig{Enabled: true, URL: "http://localhost:8086"}, nil); err == nil {
		t.Fatalf("expected error for missing org/bucket")
	}
}

func TestSinkWritesToServer(t *testing.T) {
	bodies := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/write" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("bucket"); got != "impacts" {
			t.Errorf("bucket = %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		bodies <- string(raw)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink, err := NewSink(config.InfluxConfig{
		Enabled: true,
		URL:     srv.URL,
		Token:   "token",
		Org:     "impact-sim",
		Bucket:  "impacts",
	}, nil)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	defer sink.Close()

	if err := sink.RecordImpact(context.Background(), sampleReport()); err != nil {
		t.Fatalf("RecordImpact: %v", err)
	}
	sink.Flush()

	select {
	case body := <-bodies:
		if !strings.Contains(body, "run_id=run-42") {
			t.Fatalf("unexpected write body %q", body)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no write reached the server")
	}
}

func TestRecordImpactLogsQueuedLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	log := logging.New(logging.Config{Level: "debug", Format: "json", Writers: []io.Writer{&buf}})
	sink, err := NewSink(config.InfluxConfig{
		Enabled: true,
		URL:     srv.URL,
		Org:     "impact-sim",
		Bucket:  "impacts",
	}, log)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}

	report := sampleReport()
	if err := sink.RecordImpact(context.Background(), report); err != nil {
		t.Fatalf("RecordImpact: %v", err)
	}
	sink.Flush()
	sink.Close()

	var entry struct {
		Msg    string `json:"msg"`
		RunID  string `json:"run_id"`
		Line   string `json:"line"`
		Bucket string `json:"bucket"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log output is not one JSON record: %v\n%s", err, buf.String())
	}
	if entry.Msg != "queued impact point" || entry.RunID != "run-42" || entry.Bucket != "impacts" {
		t.Fatalf("unexpected log entry %+v", entry)
	}
	if entry.Line != LineProtocol(report) {
		t.Fatalf("logged line = %q, want %q", entry.Line, LineProtocol(report))
	}
}
