package blacklist

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"quote-api/internal/clock"
	"quote-api/internal/models"
	"quote-api/internal/store"
)

// Entry tracks consecutive upstream failures for one (symbol, dataType).
// Once the counter crosses the data type's threshold the entry turns cold
// and the resolver skips upstream work until CooldownUntil passes.
type Entry struct {
	Symbol              string          `json:"symbol"`
	DataType            models.DataType `json:"dataType"`
	ConsecutiveFailures int             `json:"consecutiveFailures"`
	FirstFailureAt      time.Time       `json:"firstFailureAt"`
	LastFailureAt       time.Time       `json:"lastFailureAt"`
	CooldownUntil       time.Time       `json:"cooldownUntil,omitempty"`
	LastReason          string          `json:"lastReason,omitempty"`
}

// Policy holds the per-data-type failure thresholds and cooldown windows.
type Policy struct {
	Threshold map[models.DataType]int
	Cooldown  map[models.DataType]time.Duration
}

// DefaultPolicy returns the service defaults: 5 failures / 6 h cooldown for
// stocks and funds, 10 failures / 1 h for exchange rates.
func DefaultPolicy() Policy {
	return Policy{
		Threshold: map[models.DataType]int{
			models.USStock:      5,
			models.JPStock:      5,
			models.MutualFund:   5,
			models.ExchangeRate: 10,
		},
		Cooldown: map[models.DataType]time.Duration{
			models.USStock:      6 * time.Hour,
			models.JPStock:      6 * time.Hour,
			models.MutualFund:   6 * time.Hour,
			models.ExchangeRate: time.Hour,
		},
	}
}

// ThresholdFor returns the failure threshold for a data type.
func (p Policy) ThresholdFor(dataType models.DataType) int {
	if v, ok := p.Threshold[dataType]; ok && v > 0 {
		return v
	}
	return 5
}

// CooldownFor returns the cooldown window for a data type.
func (p Policy) CooldownFor(dataType models.DataType) time.Duration {
	if v, ok := p.Cooldown[dataType]; ok && v > 0 {
		return v
	}
	return 6 * time.Hour
}

// Registry tracks per-symbol failure streaks. Failures are attributed per
// symbol, not per source: a symbol failing across every source goes cold
// here, while a single flaky source is the metrics sink's concern. State is
// write-through persisted so replicas sharing the store converge.
type Registry struct {
	store  store.Store
	clk    clock.Clock
	policy Policy
	log    logrus.FieldLogger

	mu      sync.RWMutex
	entries map[string]*Entry
	loaded  bool
}

// New creates a blacklist registry over the given store table.
func New(st store.Store, clk clock.Clock, policy Policy, log logrus.FieldLogger) *Registry {
	return &Registry{
		store:   st,
		clk:     clk,
		policy:  policy,
		log:     log,
		entries: make(map[string]*Entry),
	}
}

func key(symbol string, dataType models.DataType) string {
	return string(dataType) + ":" + symbol
}

// IsCold reports whether the symbol is in cooldown.
func (r *Registry) IsCold(ctx context.Context, symbol string, dataType models.DataType) bool {
	r.ensureLoaded(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[key(symbol, dataType)]
	if !ok {
		return false
	}
	return entry.CooldownUntil.After(r.clk.Now())
}

// Entry returns a copy of the tracked entry, if any.
func (r *Registry) Entry(ctx context.Context, symbol string, dataType models.DataType) (*Entry, bool) {
	r.ensureLoaded(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[key(symbol, dataType)]
	if !ok {
		return nil, false
	}
	cp := *entry
	return &cp, true
}

// RecordFailure increments the streak and, when it crosses the threshold,
// starts the cooldown window.
func (r *Registry) RecordFailure(ctx context.Context, symbol string, dataType models.DataType, reason string) {
	r.ensureLoaded(ctx)
	now := r.clk.Now()

	r.mu.Lock()
	k := key(symbol, dataType)
	entry, ok := r.entries[k]
	if !ok {
		entry = &Entry{
			Symbol:         symbol,
			DataType:       dataType,
			FirstFailureAt: now,
		}
		r.entries[k] = entry
	}
	entry.ConsecutiveFailures++
	entry.LastFailureAt = now
	entry.LastReason = reason

	threshold := r.policy.ThresholdFor(dataType)
	if entry.ConsecutiveFailures >= threshold {
		entry.CooldownUntil = entry.LastFailureAt.Add(r.policy.CooldownFor(dataType))
	}
	cp := *entry
	r.mu.Unlock()

	r.persist(ctx, k, &cp)

	if cp.CooldownUntil.After(now) {
		r.log.WithFields(logrus.Fields{
			"symbol":        symbol,
			"dataType":      dataType,
			"failures":      cp.ConsecutiveFailures,
			"cooldownUntil": cp.CooldownUntil,
		}).Warn("symbol entered blacklist cooldown")
	}
}

// RecordSuccess clears the streak and cooldown for the symbol.
func (r *Registry) RecordSuccess(ctx context.Context, symbol string, dataType models.DataType) {
	r.ensureLoaded(ctx)

	r.mu.Lock()
	k := key(symbol, dataType)
	_, existed := r.entries[k]
	delete(r.entries, k)
	r.mu.Unlock()

	if existed {
		if err := r.store.Delete(ctx, k); err != nil {
			r.log.WithError(err).WithField("key", k).Warn("failed to clear blacklist entry")
		}
	}
}

// Sweep removes entries whose cooldown has elapsed and returns the count.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	r.ensureLoaded(ctx)
	now := r.clk.Now()

	r.mu.Lock()
	var expired []string
	for k, entry := range r.entries {
		if !entry.CooldownUntil.IsZero() && entry.CooldownUntil.Before(now) {
			expired = append(expired, k)
			delete(r.entries, k)
		}
	}
	r.mu.Unlock()

	for _, k := range expired {
		if err := r.store.Delete(ctx, k); err != nil {
			return len(expired), err
		}
	}
	return len(expired), nil
}

// persist writes the entry through to the store; blacklist entries outlive
// the cooldown so the streak survives restarts, bounded by a generous TTL.
func (r *Registry) persist(ctx context.Context, k string, entry *Entry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		r.log.WithError(err).WithField("key", k).Warn("failed to encode blacklist entry")
		return
	}
	expiresAt := entry.LastFailureAt.Add(2 * r.policy.CooldownFor(entry.DataType))
	if err := r.store.Put(ctx, k, payload, expiresAt); err != nil {
		r.log.WithError(err).WithField("key", k).Warn("failed to persist blacklist entry")
	}
}

// ensureLoaded lazily hydrates the in-process map from the store once.
func (r *Registry) ensureLoaded(ctx context.Context) {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return
	}
	r.loaded = true

	items, err := r.store.ScanByPrefix(ctx, "", 0)
	if err != nil {
		r.log.WithError(err).Warn("failed to hydrate blacklist from store")
		return
	}
	now := r.clk.Now()
	for _, item := range items {
		if item.Expired(now) {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(item.Value, &entry); err != nil {
			continue
		}
		r.entries[item.Key] = &entry
	}
}
