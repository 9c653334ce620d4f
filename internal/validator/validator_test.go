package validator

import (
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-api/internal/alerts"
	"quote-api/internal/clock"
	"quote-api/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// captureSink records delivered alerts.
type captureSink struct {
	delivered []alerts.Alert
}

func (s *captureSink) Deliver(alert alerts.Alert) {
	s.delivered = append(s.delivered, alert)
}

func newValidator(t *testing.T) (*Validator, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	notifier := alerts.NewNotifier(sink, clock.NewFake(time.Now()), time.Minute)
	return New(DefaultConfig(), notifier, testLogger()), sink
}

func stockQuote(symbol string, price float64) *models.Quote {
	return &models.Quote{
		Symbol:   symbol,
		DataType: models.USStock,
		Price:    decimal.NewFromFloat(price),
		Source:   "yahoo",
	}
}

func TestCheckJump(t *testing.T) {
	t.Run("no previous quote always passes", func(t *testing.T) {
		v, _ := newValidator(t)
		finding := v.CheckJump(stockQuote("AAPL", 100), nil)
		assert.Equal(t, SeverityNone, finding.Severity)
	})

	t.Run("previous default quote is ignored as a baseline", func(t *testing.T) {
		v, _ := newValidator(t)
		prev := stockQuote("AAPL", 100)
		prev.IsDefault = true
		finding := v.CheckJump(stockQuote("AAPL", 300), prev)
		assert.Equal(t, SeverityNone, finding.Severity)
	})

	t.Run("small move passes", func(t *testing.T) {
		v, _ := newValidator(t)
		finding := v.CheckJump(stockQuote("AAPL", 110), stockQuote("AAPL", 100))
		assert.Equal(t, SeverityNone, finding.Severity)
	})

	t.Run("move above the medium gate is flagged but accepted", func(t *testing.T) {
		v, sink := newValidator(t)
		finding := v.CheckJump(stockQuote("AAPL", 130), stockQuote("AAPL", 100))
		assert.Equal(t, SeverityMedium, finding.Severity)
		assert.Empty(t, sink.delivered)
	})

	t.Run("move above the high gate alerts", func(t *testing.T) {
		v, sink := newValidator(t)
		finding := v.CheckJump(stockQuote("AAPL", 160), stockQuote("AAPL", 100))
		assert.Equal(t, SeverityHigh, finding.Severity)
		require.Len(t, sink.delivered, 1)
		assert.Contains(t, sink.delivered[0].Key, "US_STOCK:AAPL")
	})

	t.Run("exchange rates use the tighter gates", func(t *testing.T) {
		v, _ := newValidator(t)
		prev := &models.Quote{Symbol: "USD-JPY", DataType: models.ExchangeRate, Price: decimal.NewFromInt(150)}
		fresh := &models.Quote{Symbol: "USD-JPY", DataType: models.ExchangeRate, Price: decimal.NewFromInt(162)}

		finding := v.CheckJump(fresh, prev)
		assert.Equal(t, SeverityMedium, finding.Severity)

		fresh.Price = decimal.NewFromInt(170)
		finding = v.CheckJump(fresh, prev)
		assert.Equal(t, SeverityHigh, finding.Severity)
	})

	t.Run("drops are gated like rises", func(t *testing.T) {
		v, _ := newValidator(t)
		finding := v.CheckJump(stockQuote("AAPL", 40), stockQuote("AAPL", 100))
		assert.Equal(t, SeverityHigh, finding.Severity)
	})
}

func TestSelectMedian(t *testing.T) {
	t.Run("single candidate is returned unchanged", func(t *testing.T) {
		v, _ := newValidator(t)
		quote := stockQuote("AAPL", 100)
		assert.Same(t, quote, v.SelectMedian([]*models.Quote{quote}))
	})

	t.Run("median of three wins", func(t *testing.T) {
		v, _ := newValidator(t)
		low := stockQuote("AAPL", 99)
		mid := stockQuote("AAPL", 100)
		high := stockQuote("AAPL", 101)

		selected := v.SelectMedian([]*models.Quote{high, low, mid})
		assert.Same(t, mid, selected)
	})

	t.Run("wide spread emits a source difference alert", func(t *testing.T) {
		v, sink := newValidator(t)
		v.SelectMedian([]*models.Quote{stockQuote("AAPL", 100), stockQuote("AAPL", 150)})
		require.Len(t, sink.delivered, 1)
		assert.Equal(t, "SOURCE_DIFFERENCE", sink.delivered[0].Title)
	})

	t.Run("tight spread stays quiet", func(t *testing.T) {
		v, sink := newValidator(t)
		v.SelectMedian([]*models.Quote{stockQuote("AAPL", 100), stockQuote("AAPL", 101)})
		assert.Empty(t, sink.delivered)
	})
}

func TestMedianEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MedianEnabled[models.ExchangeRate] = true
	v := New(cfg, nil, testLogger())

	assert.True(t, v.MedianEnabled(models.ExchangeRate))
	assert.False(t, v.MedianEnabled(models.USStock))
}
