package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DataType classifies the instruments the service can quote.
type DataType string

const (
	USStock      DataType = "US_STOCK"
	JPStock      DataType = "JP_STOCK"
	MutualFund   DataType = "MUTUAL_FUND"
	ExchangeRate DataType = "EXCHANGE_RATE"
)

// AllDataTypes lists every supported data type in a stable order.
var AllDataTypes = []DataType{USStock, JPStock, MutualFund, ExchangeRate}

// ParseDataType converts a string into a DataType.
func ParseDataType(s string) (DataType, error) {
	switch DataType(strings.ToUpper(strings.TrimSpace(s))) {
	case USStock:
		return USStock, nil
	case JPStock:
		return JPStock, nil
	case MutualFund:
		return MutualFund, nil
	case ExchangeRate:
		return ExchangeRate, nil
	default:
		return "", fmt.Errorf("unknown data type: %q", s)
	}
}

// IsValid reports whether the data type is one of the supported values.
func (d DataType) IsValid() bool {
	switch d {
	case USStock, JPStock, MutualFund, ExchangeRate:
		return true
	}
	return false
}

// Quote is the canonical normalized record for one symbol.
type Quote struct {
	Symbol        string          `json:"symbol" validate:"required"`
	DataType      DataType        `json:"dataType" validate:"required"`
	Price         decimal.Decimal `json:"price" validate:"gte=0"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Currency      string          `json:"currency"`
	Name          string          `json:"name,omitempty"`
	LastUpdated   time.Time       `json:"lastUpdated"`
	Source        string          `json:"source"`
	IsDefault     bool            `json:"isDefault"`

	// Mutual fund NAV label (e.g. "基準価額").
	PriceLabel string `json:"priceLabel,omitempty"`

	// Exchange rate triple; Pair is always Base + "-" + Target.
	Base   string `json:"base,omitempty"`
	Target string `json:"target,omitempty"`
	Pair   string `json:"pair,omitempty"`

	// Origin keeps the producing source id when Source is rewritten to
	// "Cache" on a cache hit.
	Origin string `json:"origin,omitempty"`
}

// MarshalJSON pins lastUpdated to ISO-8601 UTC with millisecond precision
// so the wire shape stays stable across clock sources.
func (q Quote) MarshalJSON() ([]byte, error) {
	type alias Quote
	return json.Marshal(struct {
		alias
		LastUpdated string `json:"lastUpdated"`
	}{
		alias:       alias(q),
		LastUpdated: q.LastUpdated.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// SourceCache tags a quote served from the cache tier; SourceDefault tags a
// synthesized degraded record. Every other source value is an upstream id.
const (
	SourceCache   = "Cache"
	SourceDefault = "Default"
)

// CacheKey returns the cache key for a (dataType, symbol) pair.
// Exchange-rate symbols are already in "BASE-TARGET" form.
func CacheKey(dataType DataType, symbol string) string {
	return string(dataType) + ":" + symbol
}

// CachePrefix returns the key prefix covering all entries of a data type.
func CachePrefix(dataType DataType) string {
	return string(dataType) + ":"
}

// PairSymbol builds the canonical "BASE-TARGET" symbol for an exchange rate.
func PairSymbol(base, target string) string {
	return strings.ToUpper(base) + "-" + strings.ToUpper(target)
}

// SplitPair splits a "BASE-TARGET" symbol into its currencies.
func SplitPair(pair string) (base, target string, err error) {
	parts := strings.SplitN(strings.ToUpper(pair), "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid currency pair: %q", pair)
	}
	return parts[0], parts[1], nil
}

// Validate checks the record invariants: non-negative price, a positive rate
// and consistent pair triple for exchange rates, lastUpdated not in the
// future relative to now.
func (q *Quote) Validate(now time.Time) error {
	if q.Symbol == "" {
		return fmt.Errorf("quote has empty symbol")
	}
	if !q.DataType.IsValid() {
		return fmt.Errorf("quote %s has invalid data type %q", q.Symbol, q.DataType)
	}
	if q.Price.IsNegative() {
		return fmt.Errorf("quote %s has negative price %s", q.Symbol, q.Price)
	}
	if q.DataType == ExchangeRate {
		if !q.Price.IsPositive() {
			return fmt.Errorf("rate %s must be positive, got %s", q.Symbol, q.Price)
		}
		if q.Pair != PairSymbol(q.Base, q.Target) {
			return fmt.Errorf("rate pair %q does not match %s-%s", q.Pair, q.Base, q.Target)
		}
	}
	if q.LastUpdated.After(now) {
		return fmt.Errorf("quote %s lastUpdated %s is in the future", q.Symbol, q.LastUpdated)
	}
	return nil
}

// WithCacheSource returns a copy tagged as served from cache, keeping the
// producing source id in Origin.
func (q Quote) WithCacheSource() Quote {
	if q.Source != SourceCache {
		q.Origin = q.Source
	}
	q.Source = SourceCache
	return q
}

// Clone returns a copy of the quote.
func (q *Quote) Clone() *Quote {
	c := *q
	return &c
}
