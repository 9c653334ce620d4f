package stooq

import (
	"encoding/csv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quote-api/internal/models"
	"quote-api/internal/sources"
)

// parseQuoteCSV maps the Stooq light CSV (Symbol,Date,Time,Open,High,Low,
// Close,Volume) onto the canonical Quote. Stooq reports "N/D" for unknown
// symbols instead of a 404.
func parseQuoteCSV(body []byte, symbol string) (*models.Quote, error) {
	reader := csv.NewReader(strings.NewReader(string(body)))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, sources.NewError(sourceID, sources.KindValidation, "failed to parse csv response", err)
	}
	if len(records) < 2 || len(records[1]) < 7 {
		return nil, sources.NewError(sourceID, sources.KindValidation, "unexpected csv shape", nil)
	}

	row := records[1]
	closeStr := row[6]
	if closeStr == "N/D" || closeStr == "" {
		return nil, sources.NewError(sourceID, sources.KindNotFound, "symbol not found: "+symbol, nil)
	}

	closePrice, err := decimal.NewFromString(closeStr)
	if err != nil {
		return nil, sources.NewError(sourceID, sources.KindValidation, "invalid close price: "+closeStr, err)
	}
	if !closePrice.IsPositive() {
		return nil, sources.NewError(sourceID, sources.KindValidation, "non-positive close price", nil)
	}

	var change, changePercent decimal.Decimal
	if open, err := decimal.NewFromString(row[3]); err == nil && open.IsPositive() {
		change = closePrice.Sub(open)
		changePercent = change.Div(open).Mul(decimal.NewFromInt(100)).Round(4)
	}

	updated := time.Now().UTC()
	if t, err := time.Parse("2006-01-02 15:04:05", row[1]+" "+row[2]); err == nil {
		updated = t.UTC()
	}

	return &models.Quote{
		Symbol:        symbol,
		DataType:      models.USStock,
		Price:         closePrice,
		Change:        change,
		ChangePercent: changePercent,
		Currency:      "USD",
		LastUpdated:   updated,
	}, nil
}
