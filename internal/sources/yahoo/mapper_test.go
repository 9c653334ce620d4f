package yahoo

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-api/internal/models"
	"quote-api/internal/sources"
)

const samplePayload = `{
	"quoteResponse": {
		"result": [
			{
				"symbol": "AAPL",
				"regularMarketPrice": 187.35,
				"regularMarketChange": 1.22,
				"regularMarketChangePercent": 0.6554,
				"currency": "USD",
				"shortName": "Apple Inc.",
				"regularMarketTime": 1717243200
			}
		],
		"error": null
	}
}`

func TestParseQuoteResponse(t *testing.T) {
	t.Run("parse a regular quote", func(t *testing.T) {
		quote, err := parseQuoteResponse([]byte(samplePayload), "AAPL")
		require.NoError(t, err)

		assert.Equal(t, "AAPL", quote.Symbol)
		assert.Equal(t, models.USStock, quote.DataType)
		assert.True(t, decimal.NewFromFloat(187.35).Equal(quote.Price))
		assert.True(t, decimal.NewFromFloat(1.22).Equal(quote.Change))
		assert.Equal(t, "USD", quote.Currency)
		assert.Equal(t, "Apple Inc.", quote.Name)
		assert.Equal(t, 2024, quote.LastUpdated.Year())
	})

	t.Run("symbol lookup is case insensitive", func(t *testing.T) {
		quote, err := parseQuoteResponse([]byte(samplePayload), "aapl")
		require.NoError(t, err)
		assert.Equal(t, "aapl", quote.Symbol)
	})

	t.Run("missing symbol maps to not found", func(t *testing.T) {
		_, err := parseQuoteResponse([]byte(samplePayload), "MSFT")
		assert.Equal(t, sources.KindNotFound, sources.Kind(err))
	})

	t.Run("empty result set maps to not found", func(t *testing.T) {
		payload := `{"quoteResponse": {"result": [], "error": null}}`
		_, err := parseQuoteResponse([]byte(payload), "AAPL")
		assert.Equal(t, sources.KindNotFound, sources.Kind(err))
	})

	t.Run("zero price maps to validation", func(t *testing.T) {
		payload := `{"quoteResponse": {"result": [{"symbol": "HALT", "regularMarketPrice": 0}], "error": null}}`
		_, err := parseQuoteResponse([]byte(payload), "HALT")
		assert.Equal(t, sources.KindValidation, sources.Kind(err))
	})

	t.Run("malformed json maps to validation", func(t *testing.T) {
		_, err := parseQuoteResponse([]byte("{not json"), "AAPL")
		assert.Equal(t, sources.KindValidation, sources.Kind(err))

		var se *sources.SourceError
		require.True(t, errors.As(err, &se))
		assert.False(t, se.IsRetryable())
	})

	t.Run("api error surfaces its description", func(t *testing.T) {
		payload := `{"quoteResponse": {"result": [], "error": {"code": "Bad Request", "description": "invalid crumb"}}}`
		_, err := parseQuoteResponse([]byte(payload), "AAPL")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid crumb")
	})
}
