// ABOUTME: Redis cache driver for sharing summaries and histories across processes
// ABOUTME: Locks are SET NX PX tokens, renewed while held and released by compare-and-delete

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lock only if it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// redisCache implements Cache on a shared Redis instance.
type redisCache struct {
	client    *redis.Client
	prefix    string
	ttl       time.Duration
	lockTTL   time.Duration
	lockRetry time.Duration
}

func newRedisCache(cfg *config) *redisCache {
	return &redisCache{
		client:    cfg.redisClient,
		prefix:    cfg.keyPrefix,
		ttl:       cfg.ttl,
		lockTTL:   cfg.lockTTL,
		lockRetry: cfg.lockRetry,
	}
}

func (c *redisCache) key(key string) string {
	return c.prefix + key
}

// Get implements Cache.
func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Put implements Cache.
func (c *redisCache) Put(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.key(key), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete implements Cache.
func (c *redisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Lock implements Cache. The lock expires after lockTTL if the holder dies;
// while held it is renewed so a long turn keeps exclusive access.
func (c *redisCache) Lock(ctx context.Context, key string) (Unlock, error) {
	lockKey := c.key("lock:" + key)
	token := uuid.NewString()

	for {
		ok, err := c.client.SetNX(ctx, lockKey, token, c.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(c.lockRetry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go c.renew(lockKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = unlockScript.Run(ctx, c.client, []string{lockKey}, token).Err()
		})
	}, nil
}

// renew extends lockKey every lockTTL/3 until stop closes or the lock is lost.
func (c *redisCache) renew(lockKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.lockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.lockTTL/3)
		held, err := renewScript.Run(ctx, c.client, []string{lockKey}, token, c.lockTTL.Milliseconds()).Int()
		cancel()
		if err == nil && held == 0 {
			// Expired and possibly taken by another holder; nothing left to renew.
			return
		}
	}
}

// Close implements Cache.
func (c *redisCache) Close() error {
	return c.client.Close()
}
