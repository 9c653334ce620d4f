// Package dispatcher fans a batch of symbols across a bounded worker pool,
// short-circuiting cache hits and blacklisted symbols before any worker
// runs. Every input symbol gets exactly one entry in the result.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"quote-api/internal/alerts"
	"quote-api/internal/blacklist"
	"quote-api/internal/cache"
	"quote-api/internal/fallback"
	"quote-api/internal/models"
	"quote-api/internal/resolver"
)

// WorkerConfig sets the pool size per data type.
type WorkerConfig map[models.DataType]int

// DefaultWorkers returns the default pool sizes.
func DefaultWorkers() WorkerConfig {
	return WorkerConfig{
		models.USStock:      8,
		models.JPStock:      4,
		models.MutualFund:   4,
		models.ExchangeRate: 4,
	}
}

// For returns the pool size for the data type, defaulting to 4.
func (w WorkerConfig) For(dataType models.DataType) int {
	if n, ok := w[dataType]; ok && n > 0 {
		return n
	}
	return 4
}

// AlertConfig bounds the batch failure alert.
type AlertConfig struct {
	// FailureRate is the fraction of default results that triggers an
	// alert, in [0,1].
	FailureRate float64
	// MinBatch is the smallest batch size the alert applies to.
	MinBatch int
}

// DefaultAlertConfig returns the default alert bounds.
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{FailureRate: 0.20, MinBatch: 10}
}

// Dispatcher runs batches.
type Dispatcher struct {
	resolver    *resolver.Resolver
	cache       *cache.QuoteCache
	blacklist   *blacklist.Registry
	synthesizer *fallback.Synthesizer
	notifier    *alerts.Notifier
	workers     WorkerConfig
	alertCfg    AlertConfig
	group       singleflight.Group
	logger      logrus.FieldLogger
}

// Config bundles the dispatcher's collaborators.
type Config struct {
	Resolver    *resolver.Resolver
	Cache       *cache.QuoteCache
	Blacklist   *blacklist.Registry
	Synthesizer *fallback.Synthesizer
	Notifier    *alerts.Notifier
	Workers     WorkerConfig
	Alerts      AlertConfig
	Logger      logrus.FieldLogger
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Workers == nil {
		cfg.Workers = DefaultWorkers()
	}
	if cfg.Alerts.FailureRate <= 0 {
		cfg.Alerts = DefaultAlertConfig()
	}
	return &Dispatcher{
		resolver:    cfg.Resolver,
		cache:       cfg.Cache,
		blacklist:   cfg.Blacklist,
		synthesizer: cfg.Synthesizer,
		notifier:    cfg.Notifier,
		workers:     cfg.Workers,
		alertCfg:    cfg.Alerts,
		logger:      cfg.Logger,
	}
}

// Dispatch resolves all symbols and returns one quote per input symbol.
// Duplicate symbols are coalesced to a single job. Per-symbol failures
// never fail the batch; on cancellation the unfinished symbols come back
// as synthesized defaults.
func (d *Dispatcher) Dispatch(ctx context.Context, dataType models.DataType, symbols []string, refresh bool) map[string]*models.Quote {
	results := make(map[string]*models.Quote, len(symbols))
	if len(symbols) == 0 {
		return results
	}

	unique := dedupe(symbols)

	// Bulk cache pre-check. Hits go straight to the result and never
	// consume a worker.
	var pending []string
	if refresh {
		pending = unique
	} else {
		keys := make([]string, len(unique))
		for i, symbol := range unique {
			keys[i] = models.CacheKey(dataType, symbol)
		}
		hits := d.cache.GetMany(ctx, keys)
		for i, symbol := range unique {
			if entry, ok := hits[keys[i]]; ok {
				hit := entry.Quote.WithCacheSource()
				results[symbol] = &hit
			} else {
				pending = append(pending, symbol)
			}
		}
	}

	// Blacklist split. Cold symbols are served defaults without touching
	// the pool; the skip is not recorded as a new failure.
	var mu sync.Mutex
	var jobs []string
	for _, symbol := range pending {
		if d.blacklist.IsCold(ctx, symbol, dataType) {
			results[symbol] = d.synthesizer.Synthesize(symbol, dataType)
		} else {
			jobs = append(jobs, symbol)
		}
	}

	if len(jobs) > 0 {
		d.run(ctx, dataType, jobs, refresh, &mu, results)
	}

	d.maybeAlert(dataType, len(unique), results)
	return results
}

// run executes the jobs on a pool of W(dataType) workers.
func (d *Dispatcher) run(ctx context.Context, dataType models.DataType, jobs []string, refresh bool, mu *sync.Mutex, results map[string]*models.Quote) {
	queue := make(chan string)
	var wg sync.WaitGroup

	workers := d.workers.For(dataType)
	if workers > len(jobs) {
		workers = len(jobs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range queue {
				quote := d.resolveOne(ctx, dataType, symbol, refresh)
				mu.Lock()
				results[symbol] = quote
				mu.Unlock()
			}
		}()
	}

	for _, symbol := range jobs {
		queue <- symbol
	}
	close(queue)
	wg.Wait()
}

// resolveOne resolves a single symbol, coalescing concurrent requests for
// the same key through a single flight. A cancelled context yields a
// synthesized default immediately.
func (d *Dispatcher) resolveOne(ctx context.Context, dataType models.DataType, symbol string, refresh bool) *models.Quote {
	if ctx.Err() != nil {
		return d.synthesizer.Synthesize(symbol, dataType)
	}

	flightKey := fmt.Sprintf("%s|refresh=%t", models.CacheKey(dataType, symbol), refresh)
	v, err, _ := d.group.Do(flightKey, func() (interface{}, error) {
		return d.resolver.Resolve(ctx, dataType, symbol, refresh), nil
	})
	if err != nil || v == nil {
		return d.synthesizer.Synthesize(symbol, dataType)
	}
	return v.(*models.Quote)
}

// maybeAlert emits one high-failure-rate alert when enough of the batch
// ended in defaults.
func (d *Dispatcher) maybeAlert(dataType models.DataType, batchSize int, results map[string]*models.Quote) {
	if d.notifier == nil || batchSize < d.alertCfg.MinBatch {
		return
	}
	defaults := 0
	for _, quote := range results {
		if quote.IsDefault {
			defaults++
		}
	}
	ratio := float64(defaults) / float64(batchSize)
	if ratio < d.alertCfg.FailureRate {
		return
	}
	d.notifier.Notify(alerts.Alert{
		Key:      string(dataType) + ":high-failure-rate",
		Severity: alerts.SeverityWarning,
		Title:    "High batch failure rate",
		Message:  fmt.Sprintf("%d of %d symbols fell back to defaults", defaults, batchSize),
		Fields: map[string]interface{}{
			"data_type":    dataType,
			"batch_size":   batchSize,
			"defaults":     defaults,
			"failure_rate": fmt.Sprintf("%.2f", ratio),
		},
	})
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
