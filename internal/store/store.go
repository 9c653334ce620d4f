package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Item is a stored record. A zero ExpiresAt means the item never expires.
// Implementations may keep expired items physically present; readers above
// the store are responsible for treating them as absent.
type Item struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the item's expiry has passed at now.
func (it *Item) Expired(now time.Time) bool {
	return !it.ExpiresAt.IsZero() && it.ExpiresAt.Before(now)
}

// Store is the abstract key-value table the cache and blacklist tiers
// persist through. Implementations must provide atomic Put/Delete per key.
type Store interface {
	Get(ctx context.Context, key string) (*Item, error)

	// GetMany fetches the keys in a single round trip. Missing keys are
	// simply absent from the result; expired items may be included.
	GetMany(ctx context.Context, keys []string) (map[string]*Item, error)

	Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	Delete(ctx context.Context, key string) error

	// ScanByPrefix returns up to limit items whose keys begin with prefix
	// (limit <= 0 means no limit). Expired items may be included.
	ScanByPrefix(ctx context.Context, prefix string, limit int) ([]*Item, error)

	Ping(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned by Get when the key is missing.
var ErrNotFound = errors.New("store: key not found")

// Error codes.
const (
	ErrCodeKeyNotFound      = "KEY_NOT_FOUND"
	ErrCodeConnectionFailed = "CONNECTION_FAILED"
	ErrCodeSerialization    = "SERIALIZATION"
)

// StoreError wraps an underlying store failure with the operation and key.
type StoreError struct {
	Op   string
	Key  string
	Code string
	Err  error
}

// NewStoreError creates a StoreError.
func NewStoreError(op, key, code string, err error) *StoreError {
	return &StoreError{Op: op, Key: key, Code: code, Err: err}
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store %s %q: %s: %v", e.Op, e.Key, e.Code, e.Err)
	}
	return fmt.Sprintf("store %s: %s: %v", e.Op, e.Code, e.Err)
}

// Unwrap exposes the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
