package yahoo

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quote-api/internal/models"
	"quote-api/internal/sources"
)

type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"quoteResponse"`
}

type quoteResult struct {
	Symbol                     string  `json:"symbol"`
	RegularMarketPrice         float64 `json:"regularMarketPrice"`
	RegularMarketChange        float64 `json:"regularMarketChange"`
	RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
	Currency                   string  `json:"currency"`
	ShortName                  string  `json:"shortName"`
	RegularMarketTime          int64   `json:"regularMarketTime"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// parseQuoteResponse maps the Yahoo quote payload onto the canonical Quote.
func parseQuoteResponse(body []byte, symbol string) (*models.Quote, error) {
	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, sources.NewError(sourceID, sources.KindValidation, "failed to parse quote response", err)
	}
	if resp.QuoteResponse.Error != nil {
		return nil, sources.NewError(sourceID, sources.KindOther, resp.QuoteResponse.Error.Description, nil)
	}

	for _, result := range resp.QuoteResponse.Result {
		if !strings.EqualFold(result.Symbol, symbol) {
			continue
		}
		if result.RegularMarketPrice <= 0 {
			return nil, sources.NewError(sourceID, sources.KindValidation, "quote has no market price", nil)
		}
		currency := result.Currency
		if currency == "" {
			currency = "USD"
		}
		updated := time.Now().UTC()
		if result.RegularMarketTime > 0 {
			updated = time.Unix(result.RegularMarketTime, 0).UTC()
		}
		return &models.Quote{
			Symbol:        symbol,
			DataType:      models.USStock,
			Price:         decimal.NewFromFloat(result.RegularMarketPrice),
			Change:        decimal.NewFromFloat(result.RegularMarketChange),
			ChangePercent: decimal.NewFromFloat(result.RegularMarketChangePercent),
			Currency:      currency,
			Name:          result.ShortName,
			LastUpdated:   updated,
		}, nil
	}
	return nil, sources.NewError(sourceID, sources.KindNotFound, "symbol not found: "+symbol, nil)
}
