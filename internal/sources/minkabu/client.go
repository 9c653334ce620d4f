// Package minkabu scrapes Japanese equity quotes and mutual fund NAVs from
// Minkabu pages. The stock client backs up Kabutan; the fund client is the
// primary mutual fund source.
package minkabu

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"quote-api/internal/models"
	"quote-api/internal/sources"
	"quote-api/internal/sources/fetch"
)

const (
	stockSourceID = "minkabu"
	fundSourceID  = "minkabu-fund"
)

// Config configures a Minkabu client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit rate.Limit
	Burst     int
	Priority  int
}

func newFetchClient(cfg Config, sourceID string) *fetch.Client {
	return fetch.NewClient(fetch.Config{
		SourceID:  sourceID,
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
		UserAgent: "Mozilla/5.0 (compatible; quote-api/1.0)",
	})
}

// StockClient fetches JP stock quotes from Minkabu.
type StockClient struct {
	http     *fetch.Client
	clock    func() time.Time
	priority int
}

// NewStockClient creates the JP stock client.
func NewStockClient(cfg Config) *StockClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://minkabu.jp"
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1
	}
	if cfg.Priority == 0 {
		cfg.Priority = 2
	}
	return &StockClient{
		http:     newFetchClient(cfg, stockSourceID),
		clock:    func() time.Time { return time.Now().UTC() },
		priority: cfg.Priority,
	}
}

// ID returns the stable source id.
func (c *StockClient) ID() string { return stockSourceID }

// DataType returns the data type this source serves.
func (c *StockClient) DataType() models.DataType { return models.JPStock }

// DefaultPriority returns the initial position in the priority list.
func (c *StockClient) DefaultPriority() int { return c.priority }

// Fetch returns the current quote for a JP ticker code.
func (c *StockClient) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	body, err := c.http.Get(ctx, "/stock/"+symbol, nil)
	if err != nil {
		return nil, err
	}
	quote, err := parseStockPage(body, symbol, c.clock())
	if err != nil {
		return nil, err
	}
	quote.Source = stockSourceID
	return quote, nil
}

// FundClient fetches mutual fund NAVs from Minkabu's fund pages.
type FundClient struct {
	http     *fetch.Client
	clock    func() time.Time
	priority int
}

// NewFundClient creates the mutual fund client.
func NewFundClient(cfg Config) *FundClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://itf.minkabu.jp"
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1
	}
	if cfg.Priority == 0 {
		cfg.Priority = 1
	}
	return &FundClient{
		http:     newFetchClient(cfg, fundSourceID),
		clock:    func() time.Time { return time.Now().UTC() },
		priority: cfg.Priority,
	}
}

// ID returns the stable source id.
func (c *FundClient) ID() string { return fundSourceID }

// DataType returns the data type this source serves.
func (c *FundClient) DataType() models.DataType { return models.MutualFund }

// DefaultPriority returns the initial position in the priority list.
func (c *FundClient) DefaultPriority() int { return c.priority }

// Fetch returns the current NAV quote for a fund association code.
func (c *FundClient) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	body, err := c.http.Get(ctx, "/fund/"+symbol, nil)
	if err != nil {
		return nil, err
	}
	quote, err := parseFundPage(body, symbol, c.clock())
	if err != nil {
		return nil, err
	}
	quote.Source = fundSourceID
	return quote, nil
}

var (
	_ sources.Source = (*StockClient)(nil)
	_ sources.Source = (*FundClient)(nil)
)
