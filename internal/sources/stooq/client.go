// Package stooq fetches US equity quotes from the Stooq CSV endpoint, used
// as the fallback behind Yahoo.
package stooq

import (
	"context"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"quote-api/internal/models"
	"quote-api/internal/sources"
	"quote-api/internal/sources/fetch"
)

const sourceID = "stooq"

// Config configures the Stooq client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit rate.Limit
	Burst     int
	Priority  int
}

// Client fetches US stock quotes from Stooq.
type Client struct {
	http     *fetch.Client
	priority int
}

// NewClient creates a Stooq client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://stooq.com"
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 2
	}
	if cfg.Priority == 0 {
		cfg.Priority = 2
	}
	return &Client{
		http: fetch.NewClient(fetch.Config{
			SourceID:  sourceID,
			BaseURL:   cfg.BaseURL,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			Burst:     cfg.Burst,
		}),
		priority: cfg.Priority,
	}
}

// ID returns the stable source id.
func (c *Client) ID() string { return sourceID }

// DataType returns the data type this source serves.
func (c *Client) DataType() models.DataType { return models.USStock }

// DefaultPriority returns the initial position in the priority list.
func (c *Client) DefaultPriority() int { return c.priority }

// Fetch returns the current quote for a US ticker. Stooq uses ".us"
// suffixed lowercase symbols.
func (c *Client) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("s", strings.ToLower(symbol)+".us")
	params.Set("f", "sd2t2ohlcv")
	params.Set("h", "")
	params.Set("e", "csv")

	body, err := c.http.Get(ctx, "/q/l/", params)
	if err != nil {
		return nil, err
	}

	quote, err := parseQuoteCSV(body, symbol)
	if err != nil {
		return nil, err
	}
	quote.Source = sourceID
	return quote, nil
}

var _ sources.Source = (*Client)(nil)
