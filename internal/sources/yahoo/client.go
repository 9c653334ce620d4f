// Package yahoo fetches US equity quotes from the Yahoo Finance quote API.
package yahoo

import (
	"context"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"quote-api/internal/models"
	"quote-api/internal/sources"
	"quote-api/internal/sources/fetch"
)

const sourceID = "yahoo"

// Config configures the Yahoo client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit rate.Limit
	Burst     int
	Priority  int
}

// Client fetches US stock quotes from Yahoo Finance.
type Client struct {
	http     *fetch.Client
	priority int
}

// NewClient creates a Yahoo client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
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

// Fetch returns the current quote for a US ticker.
func (c *Client) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("fields", "regularMarketPrice,regularMarketChange,regularMarketChangePercent,currency,shortName,regularMarketTime")

	body, err := c.http.Get(ctx, "/v7/finance/quote", params)
	if err != nil {
		return nil, err
	}

	quote, err := parseQuoteResponse(body, symbol)
	if err != nil {
		return nil, err
	}
	quote.Source = sourceID
	return quote, nil
}

var _ sources.Source = (*Client)(nil)
