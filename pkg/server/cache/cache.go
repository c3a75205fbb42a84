// Package cache provides a short-lived response cache in front of the
// aggregator, with in-memory and Redis backends.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/StrathCole/pricespread/pkg/logging"
	"github.com/StrathCole/pricespread/pkg/metrics"
)

// Backend names accepted in configuration.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// DefaultLoadTimeout bounds a shared load once it is detached from the
// caller that started it.
const DefaultLoadTimeout = 30 * time.Second

// ErrUnknownBackend indicates an unsupported cache backend name.
var ErrUnknownBackend = errors.New("unknown cache backend")

// Store is a byte-oriented key/value store with per-entry expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Cache stores JSON-encoded values and coalesces concurrent misses for the
// same key into one load. A nil *Cache, or one with zero TTL, always loads.
type Cache struct {
	store       Store
	backend     string
	ttl         time.Duration
	loadTimeout time.Duration
	group       singleflight.Group
	logger      *logging.Logger
}

// New wraps a store. backend is only used as a metrics label.
func New(store Store, backend string, ttl time.Duration, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Cache{
		store:       store,
		backend:     backend,
		ttl:         ttl,
		loadTimeout: DefaultLoadTimeout,
		logger:      logger,
	}
}

// SetLoadTimeout overrides DefaultLoadTimeout. Non-positive values are ignored.
func (c *Cache) SetLoadTimeout(d time.Duration) {
	if c != nil && d > 0 {
		c.loadTimeout = d
	}
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}

// Fetch returns the cached value for key or calls load once per key across
// concurrent callers. Errors are never cached. The shared load does not
// inherit the cancellation of whichever caller started it; each caller
// stops waiting when its own ctx is done.
func Fetch[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	if c == nil || c.store == nil || c.ttl <= 0 {
		return load(ctx)
	}

	var zero T
	if raw, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warn("Cache read failed", "backend", c.backend, "key", key, "error", err)
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			metrics.RecordCacheLookup(c.backend, true)
			return v, nil
		}
		c.logger.Warn("Discarding undecodable cache entry", "backend", c.backend, "key", key)
	}
	metrics.RecordCacheLookup(c.backend, false)

	ch := c.group.DoChan(key, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		v, err := load(lctx)
		if err != nil {
			return v, err
		}
		if raw, merr := json.Marshal(v); merr == nil {
			if serr := c.store.Set(lctx, key, raw, c.ttl); serr != nil {
				c.logger.Warn("Cache write failed", "backend", c.backend, "key", key, "error", serr)
			}
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		v, ok := r.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache: unexpected value type %T for %s", r.Val, key)
		}
		return v, nil
	}
}

// Options selects and configures a backend.
type Options struct {
	Backend  string
	TTL      time.Duration
	Addr     string
	Password string
	DB       int
	Prefix   string
	// LoadTimeout bounds a shared load. Zero keeps DefaultLoadTimeout.
	LoadTimeout time.Duration
}

// Open builds a Cache for the configured backend. BackendNone returns a
// pass-through cache.
func Open(ctx context.Context, opts Options, logger *logging.Logger) (*Cache, error) {
	switch opts.Backend {
	case "", BackendNone:
		return New(nil, BackendNone, 0, logger), nil
	case BackendMemory:
		c := New(NewMemoryStore(time.Minute), BackendMemory, opts.TTL, logger)
		c.SetLoadTimeout(opts.LoadTimeout)
		return c, nil
	case BackendRedis:
		store, err := NewRedisStore(ctx, RedisOptions{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
			Prefix:   opts.Prefix,
		})
		if err != nil {
			return nil, err
		}
		c := New(store, BackendRedis, opts.TTL, logger)
		c.SetLoadTimeout(opts.LoadTimeout)
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, opts.Backend)
	}
}
