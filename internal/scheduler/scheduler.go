// Package scheduler runs the periodic maintenance loop: sweep expired
// cache and blacklist entries, then pre-warm the configured hot symbol
// sets so popular quotes are always fresh.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"quote-api/internal/alerts"
	"quote-api/internal/blacklist"
	"quote-api/internal/cache"
	"quote-api/internal/clock"
	"quote-api/internal/dispatcher"
	"quote-api/internal/models"
)

// ErrTickInProgress is returned when a manual trigger overlaps a running
// tick.
var ErrTickInProgress = errors.New("scheduler: tick already in progress")

// HotSets lists the symbols pre-warmed per data type.
type HotSets map[models.DataType][]string

// DefaultHotSets returns the built-in hot sets.
func DefaultHotSets() HotSets {
	return HotSets{
		models.USStock:      {"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "BRK-B", "JPM", "V"},
		models.JPStock:      {"7203", "6758", "9984", "8306", "6861", "9432", "8035", "4063", "6098", "7974"},
		models.MutualFund:   {"0331418A", "03311187", "0431106B", "04312149", "89311199"},
		models.ExchangeRate: {"USD-JPY", "EUR-JPY", "GBP-JPY", "EUR-USD", "AUD-JPY"},
	}
}

// Summary reports what one tick did.
type Summary struct {
	StartedAt        time.Time                `json:"startedAt"`
	Duration         time.Duration            `json:"duration"`
	CacheSwept       int                      `json:"cacheSwept"`
	BlacklistSwept   int                      `json:"blacklistSwept"`
	Warmed           map[models.DataType]int  `json:"warmed"`
	Defaults         map[models.DataType]int  `json:"defaults"`
	AggregateFailure float64                  `json:"aggregateFailure"`
}

// Config configures the scheduler.
type Config struct {
	Interval time.Duration
	HotSets  HotSets
	// FailureAlertRate is the aggregate default ratio that triggers a
	// warning alert after pre-warm.
	FailureAlertRate float64
	// Clock defaults to the real clock when nil.
	Clock clock.Clock
}

// Scheduler owns the maintenance loop.
type Scheduler struct {
	cache      *cache.QuoteCache
	blacklist  *blacklist.Registry
	dispatcher *dispatcher.Dispatcher
	notifier   *alerts.Notifier
	cfg        Config
	clk        clock.Clock
	running    atomic.Bool
	logger     logrus.FieldLogger
}

// New creates a scheduler. A zero interval defaults to one hour.
func New(c *cache.QuoteCache, bl *blacklist.Registry, disp *dispatcher.Dispatcher, notifier *alerts.Notifier, cfg Config, logger logrus.FieldLogger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.HotSets == nil {
		cfg.HotSets = DefaultHotSets()
	}
	if cfg.FailureAlertRate <= 0 {
		cfg.FailureAlertRate = 0.20
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &Scheduler{
		cache:      c,
		blacklist:  bl,
		dispatcher: disp,
		notifier:   notifier,
		cfg:        cfg,
		clk:        cfg.Clock,
		logger:     logger,
	}
}

// Run ticks until the context ends. Ticks are single-flight: if the
// previous tick is still running the new one is skipped, and a missed tick
// is not caught up.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); errors.Is(err, ErrTickInProgress) {
				s.logger.Warn("Skipping maintenance tick, previous still running")
			}
		}
	}
}

// Tick performs one maintenance pass: sweeps, then pre-warms every hot set
// with refresh forced. Safe to call manually; overlapping calls return
// ErrTickInProgress.
func (s *Scheduler) Tick(ctx context.Context) (*Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrTickInProgress
	}
	defer s.running.Store(false)

	start := s.clk.Now()
	summary := &Summary{
		StartedAt: start,
		Warmed:    make(map[models.DataType]int),
		Defaults:  make(map[models.DataType]int),
	}

	if n, err := s.cache.Sweep(ctx); err != nil {
		s.logger.WithError(err).Warn("Cache sweep failed")
	} else {
		summary.CacheSwept = n
	}
	if n, err := s.blacklist.Sweep(ctx); err != nil {
		s.logger.WithError(err).Warn("Blacklist sweep failed")
	} else {
		summary.BlacklistSwept = n
	}

	total, defaults := 0, 0
	for _, dataType := range models.AllDataTypes {
		symbols := s.cfg.HotSets[dataType]
		if len(symbols) == 0 {
			continue
		}
		results := s.dispatcher.Dispatch(ctx, dataType, symbols, true)
		summary.Warmed[dataType] = len(results)
		for _, quote := range results {
			if quote.IsDefault {
				summary.Defaults[dataType]++
			}
		}
		total += len(results)
		defaults += summary.Defaults[dataType]
		if ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		summary.AggregateFailure = float64(defaults) / float64(total)
	}
	summary.Duration = s.clk.Now().Sub(start)

	s.logger.WithFields(logrus.Fields{
		"cache_swept":     summary.CacheSwept,
		"blacklist_swept": summary.BlacklistSwept,
		"warmed":          total,
		"defaults":        defaults,
		"duration":        summary.Duration,
	}).Info("Maintenance tick complete")

	if s.notifier != nil && summary.AggregateFailure >= s.cfg.FailureAlertRate {
		s.notifier.Notify(alerts.Alert{
			Key:      "scheduler:prewarm-failure",
			Severity: alerts.SeverityWarning,
			Title:    "Pre-warm failure rate high",
			Message:  "too many hot symbols fell back to defaults",
			Fields: map[string]interface{}{
				"failure_rate": summary.AggregateFailure,
				"warmed":       total,
				"defaults":     defaults,
			},
		})
	}
	return summary, nil
}
