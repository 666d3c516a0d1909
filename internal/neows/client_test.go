package neows

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalsfoundry/impact-simulator/kb"
	"github.com/signalsfoundry/impact-simulator/model"
)

const browseBody = `{
  "links": {"next": "https://api.nasa.gov/neo/rest/v1/neo/browse?page=1&size=2"},
  "page": {"size": 2, "total_elements": 40000, "total_pages": 20000, "number": 0},
  "near_earth_objects": [
    {
      "id": "2000433",
      "name": "433 Eros (A898 PA)",
      "estimated_diameter": {"meters": {"estimated_diameter_min": 22006.4, "estimated_diameter_max": 49207.4}},
      "is_potentially_hazardous_asteroid": false,
      "close_approach_data": [{"relative_velocity": {"kilometers_per_second": "5.5786"}, "miss_distance": {"kilometers": "447000"}}]
    },
    {
      "id": "2001036",
      "name": "1036 Ganymed (A924 UB)",
      "estimated_diameter": {"meters": {"estimated_diameter_min": 37545.6, "estimated_diameter_max": 83953.3}},
      "is_potentially_hazardous_asteroid": false,
      "close_approach_data": []
    }
  ]
}`

const feedBody = `{
  "element_count": 3,
  "near_earth_objects": {
    "2026-10-20": [
      {"id": "b", "name": "(2026 BB)", "estimated_diameter": {"meters": {"estimated_diameter_min": 300, "estimated_diameter_max": 500}}, "is_potentially_hazardous_asteroid": true,
       "close_approach_data": [{"relative_velocity": {"kilometers_per_second": "18.2"}}]}
    ],
    "2026-10-19": [
      {"id": "a", "name": "(2026 AA)", "estimated_diameter": {"meters": {"estimated_diameter_min": 10, "estimated_diameter_max": 30}}, "is_potentially_hazardous_asteroid": false},
      {"id": "c", "name": "(2026 CC)", "estimated_diameter": {"meters": {"estimated_diameter_min": 100, "estimated_diameter_max": 140}}, "is_potentially_hazardous_asteroid": true}
    ]
  }
}`

func newTestClient(url string, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(url),
		WithRateLimit(0),
		WithInitialBackoff(time.Millisecond),
		WithAPIKey("test-key"),
	}
	return NewClient(append(base, opts...)...)
}

func TestClientBrowse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/neo/browse" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("api_key") != "test-key" || q.Get("page") != "0" || q.Get("size") != "2" {
			http.Error(w, "bad query "+r.URL.RawQuery, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(browseBody))
	}))
	defer server.Close()

	page, err := newTestClient(server.URL).Browse(context.Background(), 0, 2)
	if err != nil {
		t.Fatalf("Browse() error = %v", err)
	}
	if len(page.Objects) != 2 || !page.HasNext || page.TotalPages != 20000 {
		t.Fatalf("unexpected page: %+v", page)
	}
	eros := page.Objects[0]
	if v, ok := eros.VelocityKmPerSec(); !ok || v != 5.5786 {
		t.Errorf("Eros velocity = %v, %v", v, ok)
	}
	if _, ok := page.Objects[1].VelocityKmPerSec(); ok {
		t.Errorf("record without approaches reported a velocity")
	}
}

func TestClientFeedFlattensInDateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/feed" || q.Get("start_date") != "2026-10-19" || q.Get("end_date") != "2026-10-26" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(feedBody))
	}))
	defer server.Close()

	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	records, err := newTestClient(server.URL).Feed(context.Background(), start, start.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(records) != 3 || records[0].ID != "a" || records[2].ID != "b" {
		t.Fatalf("feed order = %v", records)
	}
}

func TestClientFeedRejectsBadRange(t *testing.T) {
	c := NewClient()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := c.Feed(context.Background(), start, start.AddDate(0, 0, 8)); err == nil {
		t.Fatalf("expected error for an 8-day range")
	}
	if _, err := c.Feed(context.Background(), start, start.AddDate(0, 0, -1)); err == nil {
		t.Fatalf("expected error for a reversed range")
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(browseBody))
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL, WithMaxRetries(3)).Browse(context.Background(), 0, 2); err != nil {
		t.Fatalf("Browse() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("server saw %d calls, want 3", got)
	}
}

func TestClientRateLimitsRetries(t *testing.T) {
	const limit = 60 * time.Millisecond
	var (
		mu    sync.Mutex
		times []time.Time
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		n := len(times)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(browseBody))
	}))
	defer server.Close()

	c := newTestClient(server.URL, WithMaxRetries(3), WithRateLimit(limit))
	if _, err := c.Browse(context.Background(), 0, 2); err != nil {
		t.Fatalf("Browse() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(times) != 3 {
		t.Fatalf("server saw %d calls, want 3", len(times))
	}
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < limit-5*time.Millisecond {
			t.Fatalf("attempt %d came %v after the previous one, want at least %v", i+1, gap, limit)
		}
	}
}

func TestClientRateLimitWaitHonoursContext(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	c := newTestClient(server.URL, WithMaxRetries(5), WithRateLimit(time.Hour))
	start := time.Now()
	_, err := c.Browse(ctx, 0, 2)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Browse() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Browse() took %v despite the deadline", elapsed)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("server saw %d calls, want 1", got)
	}
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, WithMaxRetries(2)).Browse(context.Background(), 0, 2)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Browse() error = %v, want ErrRateLimited", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("server saw %d calls, want 3", got)
	}
}

func TestClientDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, WithMaxRetries(3)).Browse(context.Background(), 0, 2)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Browse() error = %v, want ErrNotFound", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("server saw %d calls, want 1", got)
	}
}

func TestSelectImpactor(t *testing.T) {
	records := FallbackCatalog()[1:]
	got, found := SelectImpactor(records)
	if !found || got.ID != "2023-ABC" || got.Name != "IMPACTOR-2025 (2023 ABC (Simulation))" {
		t.Fatalf("SelectImpactor = %+v, %v", got, found)
	}
	if records[0].Name != "2023 ABC (Simulation)" {
		t.Fatalf("SelectImpactor renamed the input record")
	}

	synthetic, found := SelectImpactor(records[1:])
	if found || synthetic.MeanDiameterMeters() != 1000 || !HasImpactor([]model.NEORecord{synthetic}) {
		t.Fatalf("expected synthetic impactor, got %+v, %v", synthetic, found)
	}
	if p := synthetic.Profile(); p.VelocityKmPerSec != 28.5 {
		t.Fatalf("synthetic velocity = %v, want 28.5", p.VelocityKmPerSec)
	}
}

func TestLoaderFallsBackWhenOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := kb.NewKnowledgeBase()
	l := NewLoader(newTestClient(server.URL, WithMaxRetries(0)), store, nil, 20)
	res := l.Load(context.Background(), 0)
	if !res.Fallback || res.Added != 3 || store.Len() != 3 {
		t.Fatalf("Load() = %+v, store has %d", res, store.Len())
	}
	if _, ok := store.GetObject(ImpactorTag); !ok {
		t.Fatalf("fallback impactor missing from store")
	}
}

func TestLoaderAddsImpactorFromFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/neo/browse":
			_, _ = w.Write([]byte(browseBody))
		case "/feed":
			_, _ = w.Write([]byte(feedBody))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	store := kb.NewKnowledgeBase()
	l := NewLoader(newTestClient(server.URL), store, nil, 2)
	l.now = func() time.Time { return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC) }

	res := l.Load(context.Background(), 0)
	if res.Fallback || !res.HasNext || res.Added != 3 || res.Total != 3 {
		t.Fatalf("Load() = %+v", res)
	}
	got, ok := store.GetObject("b")
	if !ok || got.Name != "IMPACTOR-2025 ((2026 BB))" {
		t.Fatalf("impactor = %+v, %v", got, ok)
	}
	if first := store.ListObjects()[0]; first.ID != "b" {
		t.Fatalf("hazardous impactor should list first, got %s", first.ID)
	}

	// A second page does not fetch another impactor.
	res = l.Load(context.Background(), 1)
	if res.Added != 0 || res.Total != 3 {
		t.Fatalf("second Load() = %+v", res)
	}
}
