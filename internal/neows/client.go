// Package neows fetches near-Earth object data from NASA's NeoWs API.
package neows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/model"
)

const (
	// DefaultBaseURL is the NeoWs REST root.
	DefaultBaseURL = "https://api.nasa.gov/neo/rest/v1"
	// DefaultAPIKey is NASA's shared demo key, heavily rate limited.
	DefaultAPIKey = "DEMO_KEY"
	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
	// DefaultPageSize matches the page size the browse view requests.
	DefaultPageSize = 20
	// MaxFeedSpan is the longest date range the feed endpoint accepts.
	MaxFeedSpan = 7 * 24 * time.Hour

	tracerName = "github.com/signalsfoundry/impact-simulator/internal/neows"
	feedLayout = "2006-01-02"
)

var (
	ErrNotFound    = errors.New("neows: not found")
	ErrRateLimited = errors.New("neows: rate limited (429)")
	ErrServerError = errors.New("neows: server error")

	errClientStatus = errors.New("neows: unexpected status")
)

// Client is an HTTP client for the browse and feed endpoints.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	maxRetries     int
	initialBackoff time.Duration
	rateLimit      time.Duration
	log            logging.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the API root (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithAPIKey sets the api.nasa.gov key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if key != "" {
			c.apiKey = key
		}
	}
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithInitialBackoff sets the wait before the first retry; later waits grow
// exponentially.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.initialBackoff = d
		}
	}
}

// WithRateLimit sets the minimum spacing between requests.
func WithRateLimit(d time.Duration) Option {
	return func(c *Client) {
		c.rateLimit = d
	}
}

// WithLogger sets the client logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient builds a NeoWs client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:     &http.Client{Timeout: DefaultTimeout},
		baseURL:        DefaultBaseURL,
		apiKey:         DefaultAPIKey,
		maxRetries:     DefaultMaxRetries,
		initialBackoff: time.Second,
		log:            logging.Noop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Page is one page of the browse endpoint.
type Page struct {
	Objects       []model.NEORecord
	Number        int
	Size          int
	TotalPages    int
	TotalElements int
	HasNext       bool
}

type browseResponse struct {
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
	Page struct {
		Size          int `json:"size"`
		TotalElements int `json:"total_elements"`
		TotalPages    int `json:"total_pages"`
		Number        int `json:"number"`
	} `json:"page"`
	NearEarthObjects []model.NEORecord `json:"near_earth_objects"`
}

type feedResponse struct {
	ElementCount     int                          `json:"element_count"`
	NearEarthObjects map[string][]model.NEORecord `json:"near_earth_objects"`
}

// Browse fetches one page of the full NEO catalog. Pages are zero-based.
func (c *Client) Browse(ctx context.Context, page, size int) (Page, error) {
	if page < 0 {
		return Page{}, fmt.Errorf("neows: negative page %d", page)
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "neows.browse",
		trace.WithAttributes(attribute.Int("neows.page", page), attribute.Int("neows.size", size)))
	defer span.End()

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var body browseResponse
	if err := c.getJSON(ctx, "/neo/browse", q, &body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Page{}, fmt.Errorf("browsing page %d: %w", page, err)
	}
	span.SetAttributes(attribute.Int("neows.objects", len(body.NearEarthObjects)))

	return Page{
		Objects:       body.NearEarthObjects,
		Number:        body.Page.Number,
		Size:          body.Page.Size,
		TotalPages:    body.Page.TotalPages,
		TotalElements: body.Page.TotalElements,
		HasNext:       body.Links.Next != "",
	}, nil
}

// Feed lists objects with close approaches between start and end inclusive.
// The range may not exceed MaxFeedSpan. Results are flattened in date order.
func (c *Client) Feed(ctx context.Context, start, end time.Time) ([]model.NEORecord, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("neows: feed end %s before start %s", end.Format(feedLayout), start.Format(feedLayout))
	}
	if end.Sub(start) > MaxFeedSpan {
		return nil, fmt.Errorf("neows: feed range %s exceeds %s", end.Sub(start), MaxFeedSpan)
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "neows.feed",
		trace.WithAttributes(
			attribute.String("neows.start_date", start.Format(feedLayout)),
			attribute.String("neows.end_date", end.Format(feedLayout)),
		))
	defer span.End()

	q := url.Values{}
	q.Set("start_date", start.Format(feedLayout))
	q.Set("end_date", end.Format(feedLayout))

	var body feedResponse
	if err := c.getJSON(ctx, "/feed", q, &body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetching feed: %w", err)
	}

	dates := make([]string, 0, len(body.NearEarthObjects))
	for d := range body.NearEarthObjects {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var out []model.NEORecord
	for _, d := range dates {
		out = append(out, body.NearEarthObjects[d]...)
	}
	span.SetAttributes(attribute.Int("neows.objects", len(out)))
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, dst any) error {
	q.Set("api_key", c.apiKey)
	target := c.baseURL + path + "?" + q.Encode()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.RandomizationFactor = 0

	attempt := 0
	data, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		if err := c.waitForRateLimit(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		data, err := c.doRequest(ctx, target)
		if err == nil {
			return data, nil
		}
		// 404 and other 4xx answers will not change on retry.
		if errors.Is(err, ErrNotFound) || errors.Is(err, errClientStatus) {
			return nil, backoff.Permanent(err)
		}
		c.log.Debug(ctx, "neows request failed, retrying",
			logging.String("path", path),
			logging.Int("attempt", attempt),
			logging.Err(err),
		)
		return nil, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(c.maxRetries+1)))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// waitForRateLimit spaces every attempt, retries included, at least
// rateLimit apart.
func (c *Client) waitForRateLimit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastRequest)
	if wait := c.rateLimit - elapsed; wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	c.lastRequest = time.Now()
	return nil
}

func (c *Client) doRequest(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "impact-simulator/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %d", ErrServerError, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w %d", errClientStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}
