package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-process Store used by tests and local
// runs. Expired items stay physically present until deleted, which makes the
// cache tier's sweep observable.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Item
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Item)}
}

// Get returns the stored item, expired or not.
func (m *MemoryStore) Get(ctx context.Context, key string) (*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[key]
	if !ok {
		return nil, NewStoreError("get", key, ErrCodeKeyNotFound, ErrNotFound)
	}
	cp := *item
	cp.Value = append([]byte(nil), item.Value...)
	return &cp, nil
}

// GetMany returns the present items under one lock, expired included.
func (m *MemoryStore) GetMany(ctx context.Context, keys []string) (map[string]*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make(map[string]*Item, len(keys))
	for _, k := range keys {
		item, ok := m.items[k]
		if !ok {
			continue
		}
		cp := *item
		cp.Value = append([]byte(nil), item.Value...)
		items[k] = &cp
	}
	return items, nil
}

// Put overwrites the key atomically.
func (m *MemoryStore) Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = &Item{
		Key:       key,
		Value:     append([]byte(nil), value...),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// Delete removes the key; missing keys are not an error.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// ScanByPrefix returns items under the prefix in key order, expired included.
func (m *MemoryStore) ScanByPrefix(ctx context.Context, prefix string, limit int) ([]*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	items := make([]*Item, 0, len(keys))
	for _, k := range keys {
		item := m.items[k]
		cp := *item
		cp.Value = append([]byte(nil), item.Value...)
		items = append(items, &cp)
	}
	return items, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// Len reports the number of physically present items, expired included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
