package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"quote-api/internal/clock"
	"quote-api/internal/models"
	"quote-api/internal/store"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// TTLPolicy holds the per-data-type freshness windows and the short TTL
// applied to synthesized default quotes.
type TTLPolicy struct {
	USStock      time.Duration
	JPStock      time.Duration
	MutualFund   time.Duration
	ExchangeRate time.Duration
	Default      time.Duration
}

// DefaultTTLPolicy returns the service defaults.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		USStock:      time.Hour,
		JPStock:      time.Hour,
		MutualFund:   3 * time.Hour,
		ExchangeRate: 6 * time.Hour,
		Default:      5 * time.Minute,
	}
}

// For returns the TTL for a data type.
func (p TTLPolicy) For(dataType models.DataType) time.Duration {
	switch dataType {
	case models.USStock:
		return p.USStock
	case models.JPStock:
		return p.JPStock
	case models.MutualFund:
		return p.MutualFund
	case models.ExchangeRate:
		return p.ExchangeRate
	default:
		return p.USStock
	}
}

// Entry is a cache read result: the payload plus its remaining freshness.
type Entry struct {
	Key          string
	Quote        *models.Quote
	RemainingTTL time.Duration
}

// QuoteCache is the TTL-keyed quote store. Serialization happens here so the
// rest of the system only ever sees the canonical Quote shape. Expired
// entries are reported as misses even when physically present; the periodic
// Sweep removes them.
type QuoteCache struct {
	store      store.Store
	clk        clock.Clock
	ttl        TTLPolicy
	sweepBatch int
	log        logrus.FieldLogger
}

// New creates a quote cache over the given store.
func New(st store.Store, clk clock.Clock, ttl TTLPolicy, log logrus.FieldLogger) *QuoteCache {
	return &QuoteCache{
		store:      st,
		clk:        clk,
		ttl:        ttl,
		sweepBatch: 100,
		log:        log,
	}
}

// TTLFor exposes the policy TTL for a data type.
func (c *QuoteCache) TTLFor(dataType models.DataType) time.Duration {
	return c.ttl.For(dataType)
}

// DefaultTTL exposes the short TTL used for synthesized defaults.
func (c *QuoteCache) DefaultTTL() time.Duration {
	return c.ttl.Default
}

// Get returns the cached quote and its remaining TTL. ErrMiss covers both
// absent and expired entries; any other error is a store failure the caller
// may choose to treat as a miss.
func (c *QuoteCache) Get(ctx context.Context, key string) (*Entry, error) {
	item, err := c.store.Get(ctx, key)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache get %q: %w", key, err)
	}

	now := c.clk.Now()
	if item.Expired(now) {
		return nil, ErrMiss
	}

	quote, err := decode(item.Value)
	if err != nil {
		// A payload we cannot decode is useless; drop it and report a miss.
		if derr := c.store.Delete(ctx, key); derr != nil {
			c.log.WithError(derr).WithField("key", key).Warn("failed to drop undecodable cache entry")
		}
		return nil, ErrMiss
	}

	entry := &Entry{Key: key, Quote: quote}
	if !item.ExpiresAt.IsZero() {
		entry.RemainingTTL = item.ExpiresAt.Sub(now)
	}
	return entry, nil
}

// Set writes the quote under the key with the given TTL. Writes are
// last-writer-wins and idempotent in shape.
func (c *QuoteCache) Set(ctx context.Context, key string, quote *models.Quote, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache set %q: non-positive ttl %s", key, ttl)
	}
	payload, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	expiresAt := c.clk.Now().Add(ttl)
	if err := c.store.Put(ctx, key, payload, expiresAt); err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// Delete removes the key.
func (c *QuoteCache) Delete(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}

// GetWithPrefix scans keys under the prefix, omitting expired and
// undecodable entries.
func (c *QuoteCache) GetWithPrefix(ctx context.Context, prefix string) ([]*Entry, error) {
	items, err := c.store.ScanByPrefix(ctx, prefix, 0)
	if err != nil {
		return nil, fmt.Errorf("cache scan %q: %w", prefix, err)
	}

	now := c.clk.Now()
	entries := make([]*Entry, 0, len(items))
	for _, item := range items {
		if item.Expired(now) {
			continue
		}
		quote, err := decode(item.Value)
		if err != nil {
			continue
		}
		entry := &Entry{Key: item.Key, Quote: quote}
		if !item.ExpiresAt.IsZero() {
			entry.RemainingTTL = item.ExpiresAt.Sub(now)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetMany bulk-reads the given keys in one store round trip, returning only
// fresh, decodable hits keyed by cache key. A store failure degrades to an
// empty result so the batch path falls through to live fetches.
func (c *QuoteCache) GetMany(ctx context.Context, keys []string) map[string]*Entry {
	hits := make(map[string]*Entry, len(keys))
	if len(keys) == 0 {
		return hits
	}

	items, err := c.store.GetMany(ctx, keys)
	if err != nil {
		c.log.WithError(err).Warn("bulk cache read failed")
		return hits
	}

	now := c.clk.Now()
	for key, item := range items {
		if item.Expired(now) {
			continue
		}
		quote, err := decode(item.Value)
		if err != nil {
			continue
		}
		entry := &Entry{Key: key, Quote: quote}
		if !item.ExpiresAt.IsZero() {
			entry.RemainingTTL = item.ExpiresAt.Sub(now)
		}
		hits[key] = entry
	}
	return hits
}

// Sweep removes expired entries under every data-type prefix in bounded
// batches and returns the number removed. A failure mid-sweep keeps partial
// progress and returns the error alongside the count.
func (c *QuoteCache) Sweep(ctx context.Context) (int, error) {
	removed := 0
	now := c.clk.Now()

	for _, dataType := range models.AllDataTypes {
		items, err := c.store.ScanByPrefix(ctx, models.CachePrefix(dataType), 0)
		if err != nil {
			return removed, fmt.Errorf("cache sweep scan %s: %w", dataType, err)
		}
		batch := 0
		for _, item := range items {
			if !item.Expired(now) {
				continue
			}
			if err := c.store.Delete(ctx, item.Key); err != nil {
				return removed, fmt.Errorf("cache sweep delete %q: %w", item.Key, err)
			}
			removed++
			batch++
			if batch >= c.sweepBatch {
				// Yield between batches so a huge backlog cannot pin the loop.
				if err := ctx.Err(); err != nil {
					return removed, err
				}
				batch = 0
			}
		}
	}
	return removed, nil
}

func decode(payload []byte) (*models.Quote, error) {
	var quote models.Quote
	if err := json.Unmarshal(payload, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}
