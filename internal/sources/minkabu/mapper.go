package minkabu

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quote-api/internal/models"
	"quote-api/internal/sources"
)

var (
	stockPricePattern = regexp.MustCompile(`<div class="stock_price">\s*([0-9,]+(?:\.[0-9]+)?)`)
	stockNamePattern  = regexp.MustCompile(`<p class="md_stockBoard_stockName">([^<]+)</p>`)
	stockDiffPattern  = regexp.MustCompile(`前日比</span>\s*<span[^>]*>([+\-]?[0-9,]+(?:\.[0-9]+)?)`)
	stockPctPattern   = regexp.MustCompile(`\(([+\-]?[0-9]+(?:\.[0-9]+)?)%\)`)

	fundNavPattern  = regexp.MustCompile(`基準価額[^0-9]*([0-9,]+)円`)
	fundNamePattern = regexp.MustCompile(`<h1[^>]*class="[^"]*fund_name[^"]*"[^>]*>([^<]+)</h1>`)
	fundDiffPattern = regexp.MustCompile(`前日比[^0-9+\-]*([+\-]?[0-9,]+)円`)
)

// fundPriceLabel is the NAV label attached to mutual fund quotes.
const fundPriceLabel = "基準価額"

func parseStockPage(body []byte, symbol string, now time.Time) (*models.Quote, error) {
	page := string(body)

	priceMatch := stockPricePattern.FindStringSubmatch(page)
	if priceMatch == nil {
		return nil, sources.NewError(stockSourceID, sources.KindValidation, "price element not found in page", nil)
	}
	price, err := parseNumber(priceMatch[1])
	if err != nil || !price.IsPositive() {
		return nil, sources.NewError(stockSourceID, sources.KindValidation, "invalid price: "+priceMatch[1], err)
	}

	quote := &models.Quote{
		Symbol:      symbol,
		DataType:    models.JPStock,
		Price:       price,
		Currency:    "JPY",
		LastUpdated: now,
	}
	if m := stockNamePattern.FindStringSubmatch(page); m != nil {
		quote.Name = strings.TrimSpace(m[1])
	}
	if m := stockDiffPattern.FindStringSubmatch(page); m != nil {
		if change, err := parseNumber(m[1]); err == nil {
			quote.Change = change
		}
	}
	if m := stockPctPattern.FindStringSubmatch(page); m != nil {
		if pct, err := decimal.NewFromString(m[1]); err == nil {
			quote.ChangePercent = pct
		}
	}
	return quote, nil
}

func parseFundPage(body []byte, symbol string, now time.Time) (*models.Quote, error) {
	page := string(body)

	navMatch := fundNavPattern.FindStringSubmatch(page)
	if navMatch == nil {
		return nil, sources.NewError(fundSourceID, sources.KindValidation, "NAV element not found in page", nil)
	}
	nav, err := parseNumber(navMatch[1])
	if err != nil || !nav.IsPositive() {
		return nil, sources.NewError(fundSourceID, sources.KindValidation, "invalid NAV: "+navMatch[1], err)
	}

	quote := &models.Quote{
		Symbol:      symbol,
		DataType:    models.MutualFund,
		Price:       nav,
		Currency:    "JPY",
		PriceLabel:  fundPriceLabel,
		LastUpdated: now,
	}
	if m := fundNamePattern.FindStringSubmatch(page); m != nil {
		quote.Name = strings.TrimSpace(m[1])
	}
	if m := fundDiffPattern.FindStringSubmatch(page); m != nil {
		if change, err := parseNumber(m[1]); err == nil {
			quote.Change = change
			if nav.Sub(change).IsPositive() {
				prev := nav.Sub(change)
				quote.ChangePercent = change.Div(prev).Mul(decimal.NewFromInt(100)).Round(4)
			}
		}
	}
	return quote, nil
}

func parseNumber(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
}
