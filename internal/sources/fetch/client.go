// Package fetch provides the shared HTTP client every upstream source is
// built on: per-client rate limiting, a circuit breaker, and error
// classification into the service's error kinds.
package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"quote-api/internal/sources"
)

// Config configures a source's HTTP client.
type Config struct {
	SourceID    string
	BaseURL     string
	Timeout     time.Duration
	RateLimit   rate.Limit // requests per second
	Burst       int
	UserAgent   string
	Headers     map[string]string
	BreakerName string
}

// Client wraps http.Client with the cross-source concerns.
type Client struct {
	sourceID   string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	userAgent  string
	headers    map[string]string
}

// NewClient creates a source HTTP client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
	}
	if cfg.Burst == 0 {
		cfg.Burst = int(cfg.RateLimit)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "quote-api/1.0"
	}
	name := cfg.BreakerName
	if name == "" {
		name = cfg.SourceID
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		sourceID:   cfg.SourceID,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(cfg.RateLimit, cfg.Burst),
		breaker:    breaker,
		userAgent:  cfg.UserAgent,
		headers:    cfg.Headers,
	}
}

// Get issues a GET against the endpoint and returns the raw body.
// Non-2xx statuses, transport failures, and an open breaker all come back as
// classified SourceErrors.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, sources.NewError(c.sourceID, sources.KindRateLimit, "rate limit wait cancelled", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, endpoint, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, sources.NewError(c.sourceID, sources.KindNetwork, "circuit breaker open", err)
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, sources.NewError(c.sourceID, sources.KindOther, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, sources.ClassifyTransport(c.sourceID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, sources.ClassifyTransport(c.sourceID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, sources.ClassifyHTTP(c.sourceID, resp.StatusCode, string(body), parseRetryAfter(resp.Header))
	}
	return body, nil
}

// parseRetryAfter reads the Retry-After header as either seconds or an HTTP
// date.
func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
