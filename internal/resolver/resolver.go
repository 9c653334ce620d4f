// Package resolver turns one (dataType, symbol) request into a quote by
// walking the cache, the blacklist and the prioritized source list, falling
// back to a synthesized default when everything fails.
package resolver

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"quote-api/internal/blacklist"
	"quote-api/internal/cache"
	"quote-api/internal/clock"
	"quote-api/internal/fallback"
	"quote-api/internal/metrics"
	"quote-api/internal/models"
	"quote-api/internal/retry"
	"quote-api/internal/sources"
	"quote-api/internal/validator"
)

// DefaultFallbackTTL is the short cache TTL for synthesized defaults so the
// next caller re-attempts live sources soon.
const DefaultFallbackTTL = 5 * time.Minute

// Pacer throttles issuance to an upstream. Acquire blocks until a token for
// the (source, dataType) bucket is available or the context ends.
type Pacer interface {
	Acquire(ctx context.Context, sourceID string, dataType models.DataType) error
}

// Resolver resolves single symbols.
type Resolver struct {
	cache       *cache.QuoteCache
	blacklist   *blacklist.Registry
	registry    *sources.Registry
	sink        *metrics.Sink
	validator   *validator.Validator
	synthesizer *fallback.Synthesizer
	pacer       Pacer
	retryPolicy retry.Policy
	fallbackTTL time.Duration
	clk         clock.Clock
	logger      logrus.FieldLogger
}

// Config bundles the resolver's collaborators.
type Config struct {
	Cache       *cache.QuoteCache
	Blacklist   *blacklist.Registry
	Registry    *sources.Registry
	Metrics     *metrics.Sink
	Validator   *validator.Validator
	Synthesizer *fallback.Synthesizer
	Pacer       Pacer
	RetryPolicy retry.Policy
	FallbackTTL time.Duration
	Clock       clock.Clock
	Logger      logrus.FieldLogger
}

// New creates a resolver.
func New(cfg Config) *Resolver {
	if cfg.FallbackTTL <= 0 {
		cfg.FallbackTTL = DefaultFallbackTTL
	}
	if cfg.RetryPolicy.MaxAttempts == 0 {
		cfg.RetryPolicy = retry.DefaultPolicy()
	}
	return &Resolver{
		cache:       cfg.Cache,
		blacklist:   cfg.Blacklist,
		registry:    cfg.Registry,
		sink:        cfg.Metrics,
		validator:   cfg.Validator,
		synthesizer: cfg.Synthesizer,
		pacer:       cfg.Pacer,
		retryPolicy: cfg.RetryPolicy,
		fallbackTTL: cfg.FallbackTTL,
		clk:         cfg.Clock,
		logger:      cfg.Logger,
	}
}

// Resolve returns a quote for the symbol. It never returns an error: on
// total failure the result is a synthesized default with a short cache TTL.
func (r *Resolver) Resolve(ctx context.Context, dataType models.DataType, symbol string, refresh bool) *models.Quote {
	key := models.CacheKey(dataType, symbol)

	var previous *models.Quote
	if entry, err := r.cache.Get(ctx, key); err == nil {
		if !refresh {
			hit := entry.Quote.WithCacheSource()
			return &hit
		}
		previous = entry.Quote
	}

	if r.blacklist.IsCold(ctx, symbol, dataType) {
		r.logger.WithFields(logrus.Fields{
			"symbol":    symbol,
			"data_type": dataType,
		}).Debug("Symbol in cooldown, serving default")
		return r.serveDefault(ctx, dataType, symbol, key)
	}

	ordered := r.registry.SourcesFor(dataType)
	if r.validator != nil && r.validator.MedianEnabled(dataType) {
		if quote := r.resolveMedian(ctx, ordered, symbol, previous); quote != nil {
			return r.accept(ctx, key, dataType, quote)
		}
	} else {
		for _, src := range ordered {
			quote, ok := r.trySource(ctx, src, symbol, previous)
			if ok {
				return r.accept(ctx, key, dataType, quote)
			}
			if ctx.Err() != nil {
				break
			}
		}
	}

	// A cancelled caller is not a symbol failure: only charge the streak
	// when the sources were genuinely exhausted.
	if ctx.Err() == nil {
		r.blacklist.RecordFailure(ctx, symbol, dataType, "all sources exhausted")
	}
	return r.serveDefault(ctx, dataType, symbol, key)
}

// trySource fetches from one source under the retry policy and validates
// the result. Returns (quote, true) on an accepted quote.
func (r *Resolver) trySource(ctx context.Context, src sources.Source, symbol string, previous *models.Quote) (*models.Quote, bool) {
	if r.pacer != nil {
		if err := r.pacer.Acquire(ctx, src.ID(), src.DataType()); err != nil {
			return nil, false
		}
	}

	attempt := r.sink.BeginAttempt(src.ID(), src.DataType())

	var quote *models.Quote
	err := retry.Do(ctx, r.clk, r.retryPolicy, func() error {
		var fetchErr error
		quote, fetchErr = src.Fetch(ctx, symbol)
		return fetchErr
	})
	if err != nil {
		if ctx.Err() != nil {
			// The caller went away mid-fetch; not the source's fault.
			return nil, false
		}
		kind := sources.Kind(err)
		attempt.Failure(kind)
		r.logger.WithFields(logrus.Fields{
			"symbol":     symbol,
			"source":     src.ID(),
			"error_kind": kind,
		}).WithError(err).Warn("Source fetch failed")
		return nil, false
	}

	if err := quote.Validate(r.clk.Now()); err != nil {
		attempt.Failure(sources.KindValidation)
		r.logger.WithField("source", src.ID()).WithError(err).Warn("Source returned malformed quote")
		return nil, false
	}
	if r.validator != nil {
		if finding := r.validator.CheckJump(quote, previous); finding.Severity == validator.SeverityHigh {
			attempt.Failure(sources.KindValidation)
			return nil, false
		}
	}

	attempt.Success()
	return quote, true
}

// resolveMedian fetches from every source and picks the median price. Used
// only for data types with median mode enabled.
func (r *Resolver) resolveMedian(ctx context.Context, ordered []sources.Source, symbol string, previous *models.Quote) *models.Quote {
	var candidates []*models.Quote
	for _, src := range ordered {
		if quote, ok := r.trySource(ctx, src, symbol, previous); ok {
			candidates = append(candidates, quote)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return r.validator.SelectMedian(candidates)
}

// accept records the success, caches the quote with the per-type TTL and
// returns it. Cache writes are skipped once the context is cancelled so a
// cancelled worker cannot leave a partial entry behind.
func (r *Resolver) accept(ctx context.Context, key string, dataType models.DataType, quote *models.Quote) *models.Quote {
	r.blacklist.RecordSuccess(ctx, quote.Symbol, dataType)
	if ctx.Err() == nil {
		if err := r.cache.Set(ctx, key, quote, r.cache.TTLFor(dataType)); err != nil {
			r.logger.WithField("key", key).WithError(err).Warn("Failed to cache quote")
		}
	}
	return quote
}

// serveDefault synthesizes a default quote and caches it with the short
// fallback TTL.
func (r *Resolver) serveDefault(ctx context.Context, dataType models.DataType, symbol, key string) *models.Quote {
	quote := r.synthesizer.Synthesize(symbol, dataType)
	if ctx.Err() == nil {
		if err := r.cache.Set(ctx, key, quote, r.fallbackTTL); err != nil {
			r.logger.WithField("key", key).WithError(err).Warn("Failed to cache default quote")
		}
	}
	return quote
}
