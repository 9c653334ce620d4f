package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-api/internal/alerts"
	"quote-api/internal/blacklist"
	"quote-api/internal/cache"
	"quote-api/internal/clock"
	"quote-api/internal/dispatcher"
	"quote-api/internal/fallback"
	"quote-api/internal/metrics"
	"quote-api/internal/models"
	"quote-api/internal/resolver"
	"quote-api/internal/retry"
	"quote-api/internal/scheduler"
	"quote-api/internal/sources"
	"quote-api/internal/store"
	"quote-api/internal/validator"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fixedSource answers every symbol of its data type with a fixed price.
type fixedSource struct {
	id       string
	dataType models.DataType
}

func (s *fixedSource) ID() string                { return s.id }
func (s *fixedSource) DataType() models.DataType { return s.dataType }
func (s *fixedSource) DefaultPriority() int      { return 1 }

func (s *fixedSource) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	quote := &models.Quote{
		Symbol:      symbol,
		DataType:    s.dataType,
		Price:       decimal.NewFromFloat(151.5),
		Currency:    "USD",
		Source:      s.id,
		LastUpdated: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
	}
	if s.dataType == models.ExchangeRate {
		base, target, err := models.SplitPair(symbol)
		if err != nil {
			return nil, sources.NewError(s.id, sources.KindValidation, "bad pair", err)
		}
		quote.Base, quote.Target, quote.Pair = base, target, models.PairSymbol(base, target)
		quote.Currency = target
	}
	return quote, nil
}

type fixture struct {
	service   *QuoteService
	cache     *cache.QuoteCache
	blacklist *blacklist.Registry
	clk       *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	logger := testLogger()

	quoteCache := cache.New(store.NewMemoryStore(), clk, cache.DefaultTTLPolicy(), logger)
	bl := blacklist.New(store.NewMemoryStore(), clk, blacklist.DefaultPolicy(), logger)
	synth := fallback.New(fallback.NewDefaults(), clk)
	notifier := alerts.NewNotifier(alerts.NewLogSink(logger), clk, 30*time.Minute)

	res := resolver.New(resolver.Config{
		Cache:     quoteCache,
		Blacklist: bl,
		Registry: sources.NewRegistry(
			&fixedSource{id: "stock-src", dataType: models.USStock},
			&fixedSource{id: "fx-src", dataType: models.ExchangeRate},
		),
		Metrics:     metrics.NewSink(clk, nil),
		Validator:   validator.New(validator.DefaultConfig(), nil, logger),
		Synthesizer: synth,
		RetryPolicy: retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Clock:       clk,
		Logger:      logger,
	})
	disp := dispatcher.New(dispatcher.Config{
		Resolver:    res,
		Cache:       quoteCache,
		Blacklist:   bl,
		Synthesizer: synth,
		Notifier:    notifier,
		Logger:      logger,
	})
	sched := scheduler.New(quoteCache, bl, disp, notifier, scheduler.Config{
		Interval: time.Hour,
		HotSets:  scheduler.HotSets{models.USStock: {"AAPL"}},
		Clock:    clk,
	}, logger)

	return &fixture{
		service:   New(disp, quoteCache, bl, sched, logger),
		cache:     quoteCache,
		blacklist: bl,
		clk:       clk,
	}
}

func TestGetQuotes(t *testing.T) {
	ctx := context.Background()

	t.Run("batch resolves every symbol", func(t *testing.T) {
		f := newFixture(t)
		results, err := f.service.GetQuotes(ctx, models.USStock, []string{"AAPL", "MSFT"}, false)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("invalid data type is rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.GetQuotes(ctx, models.DataType("CRYPTO"), []string{"BTC"}, false)
		assert.Error(t, err)
	})
}

func TestGetQuote(t *testing.T) {
	ctx := context.Background()

	t.Run("single symbol round trip", func(t *testing.T) {
		f := newFixture(t)
		quote, err := f.service.GetQuote(ctx, models.USStock, "AAPL", false)
		require.NoError(t, err)
		assert.Equal(t, "AAPL", quote.Symbol)
		assert.Equal(t, "stock-src", quote.Source)
	})

	t.Run("empty symbol is rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.GetQuote(ctx, models.USStock, "", false)
		assert.Error(t, err)
	})
}

func TestGetExchangeRate(t *testing.T) {
	ctx := context.Background()

	t.Run("separate base and target", func(t *testing.T) {
		f := newFixture(t)
		quote, err := f.service.GetExchangeRate(ctx, "usd", "jpy", false)
		require.NoError(t, err)
		assert.Equal(t, "USD-JPY", quote.Symbol)
		assert.Equal(t, "JPY", quote.Currency)
	})

	t.Run("pre-joined pair in base", func(t *testing.T) {
		f := newFixture(t)
		quote, err := f.service.GetExchangeRate(ctx, "EUR-USD", "", false)
		require.NoError(t, err)
		assert.Equal(t, "EUR-USD", quote.Pair)
	})

	t.Run("malformed pair is rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.GetExchangeRate(ctx, "EURUSD", "", false)
		assert.Error(t, err)
	})
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()

	t.Run("invalidate drops cache entries but keeps the blacklist", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.GetQuote(ctx, models.USStock, "AAPL", false)
		require.NoError(t, err)
		f.blacklist.RecordFailure(ctx, "AAPL", models.USStock, "network")

		removed, err := f.service.Invalidate(ctx, models.USStock, []string{"AAPL"})
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, err = f.cache.Get(ctx, "US_STOCK:AAPL")
		assert.ErrorIs(t, err, cache.ErrMiss)

		entry, ok := f.blacklist.Entry(ctx, "AAPL", models.USStock)
		require.True(t, ok)
		assert.Equal(t, 1, entry.ConsecutiveFailures)
	})
}

func TestPreWarm(t *testing.T) {
	t.Run("manual pre-warm runs a tick", func(t *testing.T) {
		f := newFixture(t)
		summary, err := f.service.PreWarm(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Warmed[models.USStock])
	})
}
