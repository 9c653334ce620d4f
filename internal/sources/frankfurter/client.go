// Package frankfurter fetches exchange rates from the Frankfurter API
// (ECB reference rates).
package frankfurter

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

const sourceID = "frankfurter"

// Config configures the Frankfurter client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit rate.Limit
	Burst     int
	Priority  int
}

// Client fetches exchange rates from Frankfurter.
type Client struct {
	http     *fetch.Client
	clock    func() time.Time
	priority int
}

// NewClient creates a Frankfurter client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.frankfurter.app"
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
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// Fetch returns the rate quote for a "BASE-TARGET" pair symbol. Identity
// pairs are answered locally; the upstream rejects from == to.
func (c *Client) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	base, target, err := models.SplitPair(symbol)
	if err != nil {
		return nil, sources.NewError(sourceID, sources.KindValidation, err.Error(), err)
	}
	if base == target {
		return identityQuote(sourceID, base, c.clock()), nil
	}

	params := url.Values{}
	params.Set("from", base)
	params.Set("to", target)

	body, err := c.http.Get(ctx, "/latest", params)
	if err != nil {
		return nil, err
	}

	var resp latestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, sources.NewError(sourceID, sources.KindValidation, "failed to parse rates response", err)
	}
	value, ok := resp.Rates[target]
	if !ok {
		return nil, sources.NewError(sourceID, sources.KindNotFound, "no rate for "+symbol, nil)
	}
	if value <= 0 {
		return nil, sources.NewError(sourceID, sources.KindValidation, "non-positive rate", nil)
	}

	updated := c.clock()
	if t, err := time.Parse("2006-01-02", resp.Date); err == nil && t.Before(updated) {
		updated = t.UTC()
	}
	return rateQuote(sourceID, base, target, decimal.NewFromFloat(value), updated), nil
}

// rateQuote builds the canonical exchange-rate Quote shape.
func rateQuote(source, base, target string, value decimal.Decimal, updated time.Time) *models.Quote {
	return &models.Quote{
		Symbol:      models.PairSymbol(base, target),
		DataType:    models.ExchangeRate,
		Price:       value,
		Currency:    target,
		LastUpdated: updated,
		Source:      source,
		Base:        base,
		Target:      target,
		Pair:        models.PairSymbol(base, target),
	}
}

func identityQuote(source, currency string, now time.Time) *models.Quote {
	return rateQuote(source, currency, currency, decimal.NewFromInt(1), now)
}

var _ sources.Source = (*Client)(nil)
