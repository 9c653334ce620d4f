package minkabu

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-api/internal/models"
	"quote-api/internal/sources"
)

func TestParseStockPage(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("parse a regular stock page", func(t *testing.T) {
		page := `
<p class="md_stockBoard_stockName">ソニーグループ</p>
<div class="stock_price">
	13,050
</div>
<span>前日比</span> <span class="up">+150</span> (+1.16%)
`
		quote, err := parseStockPage([]byte(page), "6758", now)
		require.NoError(t, err)

		assert.Equal(t, models.JPStock, quote.DataType)
		assert.True(t, decimal.NewFromInt(13050).Equal(quote.Price))
		assert.Equal(t, "ソニーグループ", quote.Name)
		assert.True(t, decimal.NewFromInt(150).Equal(quote.Change))
	})

	t.Run("missing price maps to validation", func(t *testing.T) {
		_, err := parseStockPage([]byte("<html></html>"), "6758", now)
		assert.Equal(t, sources.KindValidation, sources.Kind(err))
	})
}

func TestParseFundPage(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("parse a regular fund page", func(t *testing.T) {
		page := `
<h1 class="fund_name">eMAXIS Slim 全世界株式</h1>
<dt>基準価額</dt><dd>21,530円</dd>
<dt>前日比</dt><dd>+130円</dd>
`
		quote, err := parseFundPage([]byte(page), "0331418A", now)
		require.NoError(t, err)

		assert.Equal(t, models.MutualFund, quote.DataType)
		assert.True(t, decimal.NewFromInt(21530).Equal(quote.Price))
		assert.Equal(t, "基準価額", quote.PriceLabel)
		assert.Equal(t, "eMAXIS Slim 全世界株式", quote.Name)
		assert.True(t, decimal.NewFromInt(130).Equal(quote.Change))
		assert.False(t, quote.ChangePercent.IsZero())
	})

	t.Run("missing NAV maps to validation", func(t *testing.T) {
		_, err := parseFundPage([]byte("<html></html>"), "0331418A", now)
		assert.Equal(t, sources.KindValidation, sources.Kind(err))
	})
}
