// Package fallback synthesizes marked-default quotes when every live source
// has failed or a symbol is in blacklist cooldown. Synthesis never fails:
// the public API's contract is that every call returns a Quote.
package fallback

import (
	"strings"

	"github.com/shopspring/decimal"

	"quote-api/internal/clock"
	"quote-api/internal/models"
)

// Defaults holds the per-data-type default prices and the hardcoded rate
// table for common currency pairs.
type Defaults struct {
	StockPrice decimal.Decimal
	FundNAV    decimal.Decimal
	RateTable  map[string]decimal.Decimal
}

// NewDefaults returns the service defaults. Stocks default to a zero price;
// funds to a nominal 10000 JPY NAV; rates come from the pair table.
func NewDefaults() Defaults {
	return Defaults{
		StockPrice: decimal.Zero,
		FundNAV:    decimal.NewFromInt(10000),
		RateTable: map[string]decimal.Decimal{
			"USD-JPY": decimal.NewFromInt(150),
			"EUR-JPY": decimal.NewFromInt(160),
			"GBP-JPY": decimal.NewFromInt(190),
			"AUD-JPY": decimal.NewFromInt(95),
			"EUR-USD": decimal.NewFromFloat(1.08),
			"GBP-USD": decimal.NewFromFloat(1.27),
		},
	}
}

// Synthesizer builds default quotes.
type Synthesizer struct {
	defaults Defaults
	clk      clock.Clock
}

// New creates a synthesizer.
func New(defaults Defaults, clk clock.Clock) *Synthesizer {
	if defaults.RateTable == nil {
		defaults.RateTable = NewDefaults().RateTable
	}
	return &Synthesizer{defaults: defaults, clk: clk}
}

// Synthesize returns a default quote for the symbol. For exchange rates the
// symbol must be in "BASE-TARGET" form; unparseable pairs fall back to an
// identity rate on the raw symbol.
func (s *Synthesizer) Synthesize(symbol string, dataType models.DataType) *models.Quote {
	quote := &models.Quote{
		Symbol:      symbol,
		DataType:    dataType,
		Currency:    currencyFor(dataType),
		LastUpdated: s.clk.Now(),
		Source:      models.SourceDefault,
		IsDefault:   true,
	}

	switch dataType {
	case models.MutualFund:
		quote.Price = s.defaults.FundNAV
		quote.PriceLabel = "基準価額"
	case models.ExchangeRate:
		base, target, err := models.SplitPair(symbol)
		if err != nil {
			base, target = symbol, symbol
		}
		quote.Base = base
		quote.Target = target
		quote.Pair = models.PairSymbol(base, target)
		quote.Symbol = quote.Pair
		quote.Currency = target
		quote.Price = s.defaultRate(base, target)
	default:
		quote.Price = s.defaults.StockPrice
	}
	return quote
}

// defaultRate resolves a pair against the table: identity when base equals
// target, the table value when known, the USD-JPY value when either side is
// JPY, otherwise 1.0.
func (s *Synthesizer) defaultRate(base, target string) decimal.Decimal {
	if base == target {
		return decimal.NewFromInt(1)
	}
	if rate, ok := s.defaults.RateTable[models.PairSymbol(base, target)]; ok {
		return rate
	}
	if strings.EqualFold(base, "JPY") || strings.EqualFold(target, "JPY") {
		if rate, ok := s.defaults.RateTable["USD-JPY"]; ok {
			return rate
		}
	}
	return decimal.NewFromInt(1)
}

func currencyFor(dataType models.DataType) string {
	switch dataType {
	case models.USStock:
		return "USD"
	default:
		return "JPY"
	}
}
