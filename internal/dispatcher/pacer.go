package dispatcher

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"quote-api/internal/models"
)

// RateConfig is the token-bucket setting for one (source, dataType) bucket.
type RateConfig struct {
	QPS   float64
	Burst int
}

// TokenPacer hands out tokens per (source, dataType) so workers cannot
// exceed the configured upstream QPS regardless of pool size.
type TokenPacer struct {
	defaults RateConfig
	configs  map[string]RateConfig

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// DefaultRate is used for buckets with no explicit configuration.
var DefaultRate = RateConfig{QPS: 5, Burst: 5}

// NewTokenPacer creates a pacer. The configs map is keyed by
// "<sourceId>:<dataType>"; missing keys fall back to defaults.
func NewTokenPacer(defaults RateConfig, configs map[string]RateConfig) *TokenPacer {
	if defaults.QPS <= 0 {
		defaults = DefaultRate
	}
	if defaults.Burst <= 0 {
		defaults.Burst = 1
	}
	return &TokenPacer{
		defaults: defaults,
		configs:  configs,
		buckets:  make(map[string]*rate.Limiter),
	}
}

// Acquire blocks until a token is available for the bucket or the context
// is cancelled.
func (p *TokenPacer) Acquire(ctx context.Context, sourceID string, dataType models.DataType) error {
	return p.bucket(sourceID, dataType).Wait(ctx)
}

func (p *TokenPacer) bucket(sourceID string, dataType models.DataType) *rate.Limiter {
	key := sourceID + ":" + string(dataType)

	p.mu.Lock()
	defer p.mu.Unlock()
	if limiter, ok := p.buckets[key]; ok {
		return limiter
	}
	cfg, ok := p.configs[key]
	if !ok {
		cfg = p.defaults
	}
	if cfg.QPS <= 0 {
		cfg.QPS = p.defaults.QPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.QPS), cfg.Burst)
	p.buckets[key] = limiter
	return limiter
}
