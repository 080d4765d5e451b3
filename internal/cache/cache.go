// ABOUTME: Injected key/value cache with per-key mutual exclusion
// ABOUTME: Drivers are selected by name so gateway code never sees the backend

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache errors
var (
	ErrInvalidDriver = errors.New("invalid cache driver")
	ErrInvalidConfig = errors.New("invalid cache configuration")
	ErrClosed        = errors.New("cache closed")
)

// Unlock releases a lock obtained from Cache.Lock. It is safe to call more
// than once.
type Unlock func()

// Cache is the capability the assistant gateway needs from a cache: point
// reads, point writes, and a lock scoped to one key.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Lock blocks until the caller holds the lock for key or ctx is done.
	Lock(ctx context.Context, key string) (Unlock, error)

	// Close releases resources held by the driver.
	Close() error
}

// Driver names a cache backend.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
)

// config holds driver options.
type config struct {
	redisClient *redis.Client
	keyPrefix   string
	ttl         time.Duration
	maxEntries  int
	lockTTL     time.Duration
	lockRetry   time.Duration
}

// Option is a functional option for configuring a cache.
type Option func(*config)

// WithRedisClient sets the Redis client for the Redis driver.
func WithRedisClient(client *redis.Client) Option {
	return func(c *config) {
		c.redisClient = client
	}
}

// WithKeyPrefix namespaces every key written by the driver.
func WithKeyPrefix(prefix string) Option {
	return func(c *config) {
		c.keyPrefix = prefix
	}
}

// WithTTL sets how long entries live after their last write.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.ttl = ttl
	}
}

// WithMaxEntries bounds the memory driver; the oldest entry is evicted first.
func WithMaxEntries(n int) Option {
	return func(c *config) {
		c.maxEntries = n
	}
}

// WithLockTTL bounds how long a Redis lock survives a crashed holder. A live
// holder renews the lock every third of this interval.
func WithLockTTL(ttl time.Duration) Option {
	return func(c *config) {
		if ttl > 0 {
			c.lockTTL = ttl
		}
	}
}

// New creates a cache for the given driver.
// The Redis driver requires WithRedisClient.
func New(driver Driver, opts ...Option) (Cache, error) {
	cfg := &config{
		ttl:        24 * time.Hour,
		maxEntries: 10000,
		lockTTL:    2 * time.Minute,
		lockRetry:  25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch driver {
	case DriverMemory, "":
		return newMemoryCache(cfg), nil
	case DriverRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return newRedisCache(cfg), nil
	default:
		return nil, ErrInvalidDriver
	}
}
