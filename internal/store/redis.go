package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis keyspace. The table name is used as
// a key namespace ("<table>:<key>") and item expiry maps onto Redis TTLs, so
// expired entries are dropped server-side and never observed by readers.
type RedisStore struct {
	client redis.UniversalClient
	table  string
}

// RedisConfig holds connection settings for a Redis-backed table.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg *RedisConfig, table string) (*RedisStore, error) {
	if cfg == nil {
		cfg = defaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, NewStoreError("connect", "", ErrCodeConnectionFailed, err)
	}

	return &RedisStore{client: client, table: table}, nil
}

// NewRedisStoreWithClient wraps an existing client; used by tests and when
// several tables share one connection pool.
func NewRedisStoreWithClient(client redis.UniversalClient, table string) *RedisStore {
	return &RedisStore{client: client, table: table}
}

func (r *RedisStore) namespaced(key string) string {
	return r.table + ":" + key
}

func (r *RedisStore) stripNamespace(key string) string {
	return key[len(r.table)+1:]
}

// Get fetches an item and its remaining TTL in one round trip.
func (r *RedisStore) Get(ctx context.Context, key string) (*Item, error) {
	nk := r.namespaced(key)

	pipe := r.client.Pipeline()
	getCmd := pipe.Get(ctx, nk)
	ttlCmd := pipe.PTTL(ctx, nk)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, NewStoreError("get", key, ErrCodeConnectionFailed, err)
	}

	value, err := getCmd.Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, NewStoreError("get", key, ErrCodeKeyNotFound, ErrNotFound)
		}
		return nil, NewStoreError("get", key, ErrCodeConnectionFailed, err)
	}

	item := &Item{Key: key, Value: value}
	if ttl, err := ttlCmd.Result(); err == nil && ttl > 0 {
		item.ExpiresAt = time.Now().UTC().Add(ttl)
	}
	return item, nil
}

// GetMany fetches every key's value and TTL in a single pipelined round
// trip.
func (r *RedisStore) GetMany(ctx context.Context, keys []string) (map[string]*Item, error) {
	items := make(map[string]*Item, len(keys))
	if len(keys) == 0 {
		return items, nil
	}

	pipe := r.client.Pipeline()
	gets := make([]*redis.StringCmd, len(keys))
	ttls := make([]*redis.DurationCmd, len(keys))
	for i, key := range keys {
		nk := r.namespaced(key)
		gets[i] = pipe.Get(ctx, nk)
		ttls[i] = pipe.PTTL(ctx, nk)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, NewStoreError("getmany", "", ErrCodeConnectionFailed, err)
	}

	for i, key := range keys {
		value, err := gets[i].Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, NewStoreError("getmany", key, ErrCodeConnectionFailed, err)
		}
		item := &Item{Key: key, Value: value}
		if ttl, err := ttls[i].Result(); err == nil && ttl > 0 {
			item.ExpiresAt = time.Now().UTC().Add(ttl)
		}
		items[key] = item
	}
	return items, nil
}

// Put writes the item, mapping expiresAt onto a Redis TTL.
func (r *RedisStore) Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	var ttl time.Duration
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt)
		if ttl <= 0 {
			// Already expired; writing would be a no-op read-side, so drop it.
			return r.Delete(ctx, key)
		}
	}
	if err := r.client.Set(ctx, r.namespaced(key), value, ttl).Err(); err != nil {
		return NewStoreError("put", key, ErrCodeConnectionFailed, err)
	}
	return nil
}

// Delete removes the key. Deleting a missing key is not an error.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.namespaced(key)).Err(); err != nil {
		return NewStoreError("delete", key, ErrCodeConnectionFailed, err)
	}
	return nil
}

// ScanByPrefix enumerates keys under the prefix with SCAN and bulk-fetches
// their values.
func (r *RedisStore) ScanByPrefix(ctx context.Context, prefix string, limit int) ([]*Item, error) {
	match := r.namespaced(prefix) + "*"

	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, NewStoreError("scan", prefix, ErrCodeConnectionFailed, err)
		}
		keys = append(keys, batch...)
		if limit > 0 && len(keys) >= limit {
			keys = keys[:limit]
			break
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	items := make([]*Item, 0, len(keys))
	for _, nk := range keys {
		item, err := r.Get(ctx, r.stripNamespace(nk))
		if err != nil {
			if IsNotFound(err) {
				continue // expired between scan and get
			}
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Ping verifies connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return NewStoreError("ping", "", ErrCodeConnectionFailed, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func defaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         fmt.Sprintf("%s:%d", "localhost", 6379),
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}
