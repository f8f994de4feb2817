// Package cache implements the read-through response cache that fronts the
// upstream metadata provider and the catalog/collection list views.
//
// Entries are addressed by a fingerprint of the logical query and expire
// after a per-call TTL. Concurrent misses on the same key are not coalesced:
// each caller fetches independently and the last write wins.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Entry is one stored payload with its expiry.
type Entry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store is the key-value backend behind a Cache. Implementations must write
// entries atomically.
type Store interface {
	Get(key string) (Entry, bool, error)
	Set(key string, entry Entry) error
	DeletePrefix(prefix string) (int, error)
	DeleteExpired(now time.Time) (int, error)
	Clear() (int, error)
	Close() error
}

// FetchFunc loads a value on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Params are the named parameters of a cached query.
type Params map[string]string

// Cache is the injected response cache service.
type Cache struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a Cache on top of store.
func New(store Store, logger *zap.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{store: store, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fingerprint derives the cache key for operation op. Parameters are encoded
// sorted by name, so insertion order never changes the key and values can
// not be confused across parameter positions.
func Fingerprint(op string, params Params) string {
	values := url.Values{}
	for name, value := range params {
		values.Set(name, value)
	}
	return KeyPrefix(op) + values.Encode()
}

// KeyPrefix returns the prefix shared by every fingerprint of op.
func KeyPrefix(op string) string {
	return op + "?"
}

// GetOrFetch returns the cached value for key, or calls fetch on a miss and
// stores its result for ttl. The boolean reports a cache hit. Fetch errors are
// returned unchanged and nothing is stored.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch FetchFunc[T]) (T, bool, error) {
	var zero T

	if value, ok := lookup[T](c, key); ok {
		c.logger.Debug("cache hit", zap.String("key", key))
		return value, true, nil
	}

	c.logger.Debug("cache miss", zap.String("key", key))
	value, err := fetch(ctx)
	if err != nil {
		return zero, false, err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return value, false, nil
	}
	entry := Entry{Value: payload, ExpiresAt: c.now().Add(ttl)}
	if err := c.store.Set(key, entry); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, false, nil
}

func lookup[T any](c *Cache, key string) (T, bool) {
	var value T
	entry, ok, err := c.store.Get(key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return value, false
	}
	if !ok || !c.now().Before(entry.ExpiresAt) {
		return value, false
	}
	if err := json.Unmarshal(entry.Value, &value); err != nil {
		c.logger.Warn("cache decode failed", zap.String("key", key), zap.Error(err))
		var zero T
		return zero, false
	}
	return value, true
}

// Clear removes every entry. Intended for administrative use.
func (c *Cache) Clear() (int, error) {
	removed, err := c.store.Clear()
	if err != nil {
		return 0, err
	}
	c.logger.Info("cache cleared", zap.Int("removed", removed))
	return removed, nil
}

// ClearPrefix removes every entry whose key starts with prefix.
func (c *Cache) ClearPrefix(prefix string) (int, error) {
	if prefix == "" {
		return 0, errors.New("cache: empty prefix")
	}
	removed, err := c.store.DeletePrefix(prefix)
	if err != nil {
		return 0, err
	}
	c.logger.Debug("cache prefix cleared", zap.String("prefix", prefix), zap.Int("removed", removed))
	return removed, nil
}

// Sweep drops expired entries so the backing store does not grow without bound.
func (c *Cache) Sweep() (int, error) {
	return c.store.DeleteExpired(c.now())
}

// RunJanitor sweeps expired entries every interval until ctx is done.
func (c *Cache) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := c.Sweep()
			if err != nil {
				c.logger.Warn("cache sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				c.logger.Debug("cache sweep", zap.Int("removed", removed))
			}
		}
	}
}

// Close releases the backing store.
func (c *Cache) Close() error {
	return c.store.Close()
}
