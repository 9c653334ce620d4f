package kabutan

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quote-api/internal/models"
	"quote-api/internal/sources"
)

var (
	pricePattern   = regexp.MustCompile(`<span class="kabuka">([0-9,]+(?:\.[0-9]+)?)円?</span>`)
	namePattern    = regexp.MustCompile(`<div class="company_block">\s*<h3>([^<]+)</h3>`)
	changePattern  = regexp.MustCompile(`前日比[^0-9+\-]*([+\-]?[0-9,]+(?:\.[0-9]+)?)`)
	percentPattern = regexp.MustCompile(`\(([+\-]?[0-9]+(?:\.[0-9]+)?)%\)`)
)

// parseStockPage extracts price, change, and company name from a Kabutan
// stock page. Page layout changes surface as validation errors so the
// resolver moves on to the next source instead of retrying.
func parseStockPage(body []byte, symbol string, now time.Time) (*models.Quote, error) {
	page := string(body)

	if strings.Contains(page, "該当する銘柄は見つかりません") {
		return nil, sources.NewError(sourceID, sources.KindNotFound, "symbol not found: "+symbol, nil)
	}

	priceMatch := pricePattern.FindStringSubmatch(page)
	if priceMatch == nil {
		return nil, sources.NewError(sourceID, sources.KindValidation, "price element not found in page", nil)
	}
	price, err := parseNumber(priceMatch[1])
	if err != nil {
		return nil, sources.NewError(sourceID, sources.KindValidation, "invalid price: "+priceMatch[1], err)
	}
	if !price.IsPositive() {
		return nil, sources.NewError(sourceID, sources.KindValidation, "non-positive price", nil)
	}

	quote := &models.Quote{
		Symbol:      symbol,
		DataType:    models.JPStock,
		Price:       price,
		Currency:    "JPY",
		LastUpdated: now,
	}

	if m := namePattern.FindStringSubmatch(page); m != nil {
		quote.Name = strings.TrimSpace(m[1])
	}
	if m := changePattern.FindStringSubmatch(page); m != nil {
		if change, err := parseNumber(m[1]); err == nil {
			quote.Change = change
		}
	}
	if m := percentPattern.FindStringSubmatch(page); m != nil {
		if pct, err := decimal.NewFromString(m[1]); err == nil {
			quote.ChangePercent = pct
		}
	}
	return quote, nil
}

func parseNumber(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
}
