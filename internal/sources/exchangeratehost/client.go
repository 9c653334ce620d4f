// Package exchangeratehost fetches exchange rates from exchangerate.host,
// used as the fallback behind Frankfurter.
package exchangeratehost

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"quote-api/internal/models"
	"quote-api/internal/sources"
	"quote-api/internal/sources/fetch"
)

const sourceID = "exchangerate-host"

// Config configures the exchangerate.host client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit rate.Limit
	Burst     int
	Priority  int
}

// Client fetches exchange rates from exchangerate.host.
type Client struct {
	http     *fetch.Client
	clock    func() time.Time
	priority int
}

// NewClient creates an exchangerate.host client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.exchangerate.host"
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
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
		clock:    func() time.Time { return time.Now().UTC() },
		priority: cfg.Priority,
	}
}

// ID returns the stable source id.
func (c *Client) ID() string { return sourceID }

// DataType returns the data type this source serves.
func (c *Client) DataType() models.DataType { return models.ExchangeRate }

// DefaultPriority returns the initial position in the priority list.
func (c *Client) DefaultPriority() int { return c.priority }

type latestResponse struct {
	Success bool               `json:"success"`
	Base    string             `json:"base"`
	Date    string             `json:"date"`
	Rates   map[string]float64 `json:"rates"`
}

// Fetch returns the rate quote for a "BASE-TARGET" pair symbol.
func (c *Client) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	base, target, err := models.SplitPair(symbol)
	if err != nil {
		return nil, sources.NewError(sourceID, sources.KindValidation, err.Error(), err)
	}
	now := c.clock()
	if base == target {
		return buildQuote(base, target, decimal.NewFromInt(1), now), nil
	}

	params := url.Values{}
	params.Set("base", base)
	params.Set("symbols", target)

	body, err := c.http.Get(ctx, "/latest", params)
	if err != nil {
		return nil, err
	}

	var resp latestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, sources.NewError(sourceID, sources.KindValidation, "failed to parse rates response", err)
	}
	if !resp.Success && len(resp.Rates) == 0 {
		return nil, sources.NewError(sourceID, sources.KindOther, "upstream reported failure", nil)
	}
	value, ok := resp.Rates[target]
	if !ok {
		return nil, sources.NewError(sourceID, sources.KindNotFound, "no rate for "+symbol, nil)
	}
	if value <= 0 {
		return nil, sources.NewError(sourceID, sources.KindValidation, "non-positive rate", nil)
	}

	updated := now
	if t, err := time.Parse("2006-01-02", resp.Date); err == nil && t.Before(updated) {
		updated = t.UTC()
	}
	return buildQuote(base, target, decimal.NewFromFloat(value), updated), nil
}

func buildQuote(base, target string, value decimal.Decimal, updated time.Time) *models.Quote {
	return &models.Quote{
		Symbol:      models.PairSymbol(base, target),
		DataType:    models.ExchangeRate,
		Price:       value,
		Currency:    target,
		LastUpdated: updated,
		Source:      sourceID,
		Base:        base,
		Target:      target,
		Pair:        models.PairSymbol(base, target),
	}
}

var _ sources.Source = (*Client)(nil)
