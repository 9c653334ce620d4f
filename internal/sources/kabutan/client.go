// Package kabutan scrapes Japanese equity quotes from Kabutan stock pages.
package kabutan

import (
	"context"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"quote-api/internal/models"
	"quote-api/internal/sources"
	"quote-api/internal/sources/fetch"
)

const sourceID = "kabutan"

// Config configures the Kabutan client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit rate.Limit
	Burst     int
	Priority  int
}

// Client fetches JP stock quotes by scraping Kabutan.
type Client struct {
	http     *fetch.Client
	clock    func() time.Time
	priority int
}

// NewClient creates a Kabutan client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://kabutan.jp"
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1 // scraping target, keep it polite
	}
	if cfg.Priority == 0 {
		cfg.Priority = 1
	}
	return &Client{
		http: fetch.NewClient(fetch.Config{
			SourceID:  sourceID,
			BaseURL:   cfg.BaseURL,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			Burst:     cfg.Burst,
			UserAgent: "Mozilla/5.0 (compatible; quote-api/1.0)",
		}),
		clock:    func() time.Time { return time.Now().UTC() },
		priority: cfg.Priority,
	}
}

// ID returns the stable source id.
func (c *Client) ID() string { return sourceID }

// DataType returns the data type this source serves.
func (c *Client) DataType() models.DataType { return models.JPStock }

// DefaultPriority returns the initial position in the priority list.
func (c *Client) DefaultPriority() int { return c.priority }

// Fetch returns the current quote for a JP ticker code (e.g. "7203").
func (c *Client) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("code", symbol)

	body, err := c.http.Get(ctx, "/stock/", params)
	if err != nil {
		return nil, err
	}

	quote, err := parseStockPage(body, symbol, c.clock())
	if err != nil {
		return nil, err
	}
	quote.Source = sourceID
	return quote, nil
}

var _ sources.Source = (*Client)(nil)
