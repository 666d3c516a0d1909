package sim

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/impact-simulator/internal/config"
	"github.com/signalsfoundry/impact-simulator/internal/neows"
	"github.com/signalsfoundry/impact-simulator/internal/storage"
	"github.com/signalsfoundry/impact-simulator/model"
	"github.com/signalsfoundry/impact-simulator/timectrl"
)

func defaultSettings(t *testing.T) config.Settings {
	t.Helper()
	s, err := config.Decode(config.New())
	if err != nil {
		t.Fatalf("Decode defaults: %v", err)
	}
	return s
}

type captureSink struct {
	mu      sync.Mutex
	reports []model.ImpactReport
}

func (c *captureSink) RecordImpact(_ context.Context, r model.ImpactReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
	return nil
}

func TestAssembleOfflineLoadsFallbackCatalog(t *testing.T) {
	ctx := context.Background()
	a, err := Assemble(ctx, defaultSettings(t), Offline())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	defer a.Close()

	res := a.Loader.Load(ctx, 0)
	if !res.Fallback || res.Total != 3 {
		t.Fatalf("offline load = %+v, want fallback with 3 objects", res)
	}
	if _, ok := a.Catalog.GetObject(neows.ImpactorTag); !ok {
		t.Fatalf("fallback impactor missing from catalog")
	}
	if a.Influx != nil {
		t.Fatalf("influx sink should be off by default")
	}
	if a.Rotation.InitialAngle() != 0 {
		t.Fatalf("initial angle = %v, want 0 without alignment", a.Rotation.InitialAngle())
	}
}

func TestAssembleFlightReachesEverySink(t *testing.T) {
	ctx := context.Background()
	s := defaultSettings(t)
	s.Sim.Duration = 200 * time.Millisecond

	extra := &captureSink{}
	a, err := Assemble(ctx, s, Offline(), WithSinks(extra))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	defer a.Close()
	a.Loader.Load(ctx, 0)

	rec, _ := a.Catalog.GetObject(neows.ImpactorTag)
	if err := a.Controller.SelectImpactor(rec.Profile()); err != nil {
		t.Fatalf("SelectImpactor: %v", err)
	}
	if err := a.Controller.SelectTarget(model.GeoCoordinate{Lat: 40.7, Lng: -74}); err != nil {
		t.Fatalf("SelectTarget: %v", err)
	}
	run, err := a.Controller.Begin(ctx, 0)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	tick, err := a.Controller.Tick(ctx, s.Sim.Duration)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !tick.Arrived {
		t.Fatalf("tick at full duration did not arrive: %+v", tick)
	}

	history, err := a.History.History(ctx, storage.DefaultHistoryLimit)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].RunID != run.ID {
		t.Fatalf("history = %+v, want the run %s", history, run.ID)
	}
	if len(extra.reports) != 1 || extra.reports[0].RunID != run.ID {
		t.Fatalf("extra sink got %d reports", len(extra.reports))
	}
}

func TestAssembleGMSTAlignment(t *testing.T) {
	s := defaultSettings(t)
	s.Rotation.Alignment = "GMST"
	now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)

	a, err := Assemble(context.Background(), s, Offline(), WithNow(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	defer a.Close()

	if got, want := a.Rotation.InitialAngle(), timectrl.GMSTAngle(now); got != want {
		t.Fatalf("initial angle = %v, want %v", got, want)
	}
	if a.Rotation.Period() != timectrl.DefaultRotationPeriod {
		t.Fatalf("period = %s, want %s", a.Rotation.Period(), timectrl.DefaultRotationPeriod)
	}
}

func TestAssembleRejectsBadSettings(t *testing.T) {
	cases := map[string]func(*config.Settings){
		"easing":    func(s *config.Settings) { s.Sim.Easing = "bounce" },
		"alignment": func(s *config.Settings) { s.Rotation.Alignment = "sideways" },
		"radius":    func(s *config.Settings) { s.Sim.Radius = 0 },
		"period":    func(s *config.Settings) { s.Rotation.Period = -time.Second },
		"influx":    func(s *config.Settings) { s.Influx.Enabled = true; s.Influx.Org = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := defaultSettings(t)
			mutate(&s)
			if a, err := Assemble(context.Background(), s, Offline()); err == nil {
				a.Close()
				t.Fatalf("expected error for bad %s", name)
			}
		})
	}

	s := defaultSettings(t)
	s.Storage.Type = "cassandra"
	_, err := Assemble(context.Background(), s, Offline())
	if !errors.Is(err, storage.ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestNewCatalogClientFallsBackWhenAPIDown(t *testing.T) {
	var hits int
	var mu sync.Mutex
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		if got := r.URL.Query().Get("api_key"); got != "test-key" {
			t.Errorf("api_key = %q, want test-key", got)
		}
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer api.Close()

	s := defaultSettings(t)
	s.NeoWs.BaseURL = api.URL
	s.NeoWs.APIKey = "test-key"
	s.NeoWs.MaxRetries = 0
	s.NeoWs.Timeout = 2 * time.Second

	a, err := Assemble(context.Background(), s)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	defer a.Close()

	res := a.Loader.Load(context.Background(), 0)
	if !res.Fallback {
		t.Fatalf("expected fallback when the API is down, got %+v", res)
	}
	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Fatalf("API hit %d times, want 1 with retries disabled", hits)
	}
}
