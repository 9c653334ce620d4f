package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataType(t *testing.T) {
	t.Run("parse valid types", func(t *testing.T) {
		for _, raw := range []string{"US_STOCK", "JP_STOCK", "MUTUAL_FUND", "EXCHANGE_RATE"} {
			dataType, err := ParseDataType(raw)
			assert.NoError(t, err)
			assert.True(t, dataType.IsValid())
		}
	})

	t.Run("reject unknown type", func(t *testing.T) {
		_, err := ParseDataType("CRYPTO")
		assert.Error(t, err)
	})
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "US_STOCK:AAPL", CacheKey(USStock, "AAPL"))
	assert.Equal(t, "EXCHANGE_RATE:USD-JPY", CacheKey(ExchangeRate, PairSymbol("usd", "jpy")))
	assert.Equal(t, "JP_STOCK:", CachePrefix(JPStock))
}

func TestSplitPair(t *testing.T) {
	t.Run("split valid pair", func(t *testing.T) {
		base, target, err := SplitPair("usd-jpy")
		assert.NoError(t, err)
		assert.Equal(t, "USD", base)
		assert.Equal(t, "JPY", target)
	})

	t.Run("reject malformed pairs", func(t *testing.T) {
		for _, raw := range []string{"USDJPY", "-JPY", "USD-", ""} {
			_, _, err := SplitPair(raw)
			assert.Error(t, err, raw)
		}
	})
}

func TestQuoteValidate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("accept well formed stock quote", func(t *testing.T) {
		quote := &Quote{
			Symbol:      "AAPL",
			DataType:    USStock,
			Price:       decimal.NewFromFloat(187.35),
			Currency:    "USD",
			LastUpdated: now.Add(-time.Minute),
			Source:      "yahoo",
		}
		assert.NoError(t, quote.Validate(now))
	})

	t.Run("reject negative price", func(t *testing.T) {
		quote := &Quote{
			Symbol:      "AAPL",
			DataType:    USStock,
			Price:       decimal.NewFromInt(-1),
			LastUpdated: now,
		}
		assert.Error(t, quote.Validate(now))
	})

	t.Run("reject zero exchange rate", func(t *testing.T) {
		quote := &Quote{
			Symbol:      "USD-JPY",
			DataType:    ExchangeRate,
			Price:       decimal.Zero,
			Base:        "USD",
			Target:      "JPY",
			Pair:        "USD-JPY",
			LastUpdated: now,
		}
		assert.Error(t, quote.Validate(now))
	})

	t.Run("reject inconsistent pair triple", func(t *testing.T) {
		quote := &Quote{
			Symbol:      "USD-JPY",
			DataType:    ExchangeRate,
			Price:       decimal.NewFromInt(150),
			Base:        "USD",
			Target:      "JPY",
			Pair:        "EUR-JPY",
			LastUpdated: now,
		}
		assert.Error(t, quote.Validate(now))
	})

	t.Run("reject future timestamp", func(t *testing.T) {
		quote := &Quote{
			Symbol:      "AAPL",
			DataType:    USStock,
			Price:       decimal.NewFromInt(100),
			LastUpdated: now.Add(time.Hour),
		}
		assert.Error(t, quote.Validate(now))
	})
}

func TestQuoteMarshalJSON(t *testing.T) {
	t.Run("lastUpdated is emitted with millisecond precision", func(t *testing.T) {
		quote := Quote{
			Symbol:      "AAPL",
			DataType:    USStock,
			Price:       decimal.NewFromInt(100),
			Source:      "yahoo",
			LastUpdated: time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC),
		}
		payload, err := json.Marshal(quote)
		require.NoError(t, err)
		assert.Contains(t, string(payload), `"lastUpdated":"2025-06-01T12:00:00.123Z"`)
	})

	t.Run("whole seconds keep the fixed fraction width", func(t *testing.T) {
		quote := Quote{
			Symbol:      "AAPL",
			DataType:    USStock,
			Price:       decimal.NewFromInt(100),
			LastUpdated: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		}
		payload, err := json.Marshal(quote)
		require.NoError(t, err)
		assert.Contains(t, string(payload), `"lastUpdated":"2025-06-01T12:00:00.000Z"`)
	})

	t.Run("marshal then unmarshal round trips to the millisecond", func(t *testing.T) {
		quote := Quote{
			Symbol:      "AAPL",
			DataType:    USStock,
			Price:       decimal.NewFromInt(100),
			LastUpdated: time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC),
		}
		payload, err := json.Marshal(quote)
		require.NoError(t, err)

		var decoded Quote
		require.NoError(t, json.Unmarshal(payload, &decoded))
		assert.Equal(t, quote.LastUpdated.Truncate(time.Millisecond), decoded.LastUpdated)
	})
}

func TestWithCacheSource(t *testing.T) {
	quote := Quote{Symbol: "AAPL", Source: "yahoo"}

	cached := quote.WithCacheSource()
	assert.Equal(t, SourceCache, cached.Source)
	assert.Equal(t, "yahoo", cached.Origin)

	// A second pass must not overwrite the recorded origin.
	again := cached.WithCacheSource()
	assert.Equal(t, "yahoo", again.Origin)
}
