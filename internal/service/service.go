// Package service is the public facade over the quote pipeline. The HTTP
// layer talks only to this package.
package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"quote-api/internal/blacklist"
	"quote-api/internal/cache"
	"quote-api/internal/dispatcher"
	"quote-api/internal/models"
	"quote-api/internal/scheduler"
)

// QuoteService exposes the batch and single-symbol entry points.
type QuoteService struct {
	dispatcher *dispatcher.Dispatcher
	cache      *cache.QuoteCache
	blacklist  *blacklist.Registry
	scheduler  *scheduler.Scheduler
	logger     logrus.FieldLogger
}

// New creates the service.
func New(disp *dispatcher.Dispatcher, c *cache.QuoteCache, bl *blacklist.Registry, sched *scheduler.Scheduler, logger logrus.FieldLogger) *QuoteService {
	return &QuoteService{
		dispatcher: disp,
		cache:      c,
		blacklist:  bl,
		scheduler:  sched,
		logger:     logger,
	}
}

// GetQuotes resolves a batch of symbols. The result always holds one entry
// per distinct input symbol.
func (s *QuoteService) GetQuotes(ctx context.Context, dataType models.DataType, symbols []string, refresh bool) (map[string]*models.Quote, error) {
	if !dataType.IsValid() {
		return nil, fmt.Errorf("invalid data type %q", dataType)
	}
	return s.dispatcher.Dispatch(ctx, dataType, symbols, refresh), nil
}

// GetQuote resolves a single symbol.
func (s *QuoteService) GetQuote(ctx context.Context, dataType models.DataType, symbol string, refresh bool) (*models.Quote, error) {
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}
	results, err := s.GetQuotes(ctx, dataType, []string{symbol}, refresh)
	if err != nil {
		return nil, err
	}
	quote, ok := results[symbol]
	if !ok {
		return nil, fmt.Errorf("no result for symbol %q", symbol)
	}
	return quote, nil
}

// GetExchangeRate resolves one currency pair. Accepts either separate
// base/target or a pre-joined "BASE-TARGET" in base with target empty.
func (s *QuoteService) GetExchangeRate(ctx context.Context, base, target string, refresh bool) (*models.Quote, error) {
	if target == "" {
		var err error
		base, target, err = models.SplitPair(base)
		if err != nil {
			return nil, err
		}
	}
	return s.GetQuote(ctx, models.ExchangeRate, models.PairSymbol(base, target), refresh)
}

// PreWarm triggers one maintenance tick immediately.
func (s *QuoteService) PreWarm(ctx context.Context) (*scheduler.Summary, error) {
	return s.scheduler.Tick(ctx)
}

// Invalidate removes the cache entries for the symbols. Blacklist counters
// are left untouched so a broken symbol does not regain live fetches just
// because its cache was cleared.
func (s *QuoteService) Invalidate(ctx context.Context, dataType models.DataType, symbols []string) (int, error) {
	if !dataType.IsValid() {
		return 0, fmt.Errorf("invalid data type %q", dataType)
	}
	removed := 0
	for _, symbol := range symbols {
		key := models.CacheKey(dataType, symbol)
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.WithField("key", key).WithError(err).Warn("Failed to invalidate cache entry")
			continue
		}
		removed++
	}
	return removed, nil
}
