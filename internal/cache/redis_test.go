// ABOUTME: Tests for the Redis cache driver against an in-process Redis server
// ABOUTME: Validates prefixes, TTLs, and token-guarded locks

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T, opts ...Option) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	opts = append([]Option{WithRedisClient(client)}, opts...)
	c, err := New(DriverRedis, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisCache_GetPut(t *testing.T) {
	c, mr := newTestRedisCache(t, WithKeyPrefix("km:"), WithTTL(time.Hour))
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "summary:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "summary:1", []byte("grows wheat")))

	got, ok, err := c.Get(ctx, "summary:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "grows wheat", string(got))

	assert.True(t, mr.Exists("km:summary:1"))
	assert.Equal(t, time.Hour, mr.TTL("km:summary:1"))

	mr.FastForward(2 * time.Hour)
	_, ok, err = c.Get(ctx, "summary:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_Lock(t *testing.T) {
	c, mr := newTestRedisCache(t, WithLockTTL(time.Minute))
	ctx := context.Background()

	unlock, err := c.Lock(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:user:1"))

	timeout, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = c.Lock(timeout, "user:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.False(t, mr.Exists("lock:user:1"))

	again, err := c.Lock(ctx, "user:1")
	require.NoError(t, err)
	again()
}

func TestRedisCache_UnlockDoesNotStealForeignLock(t *testing.T) {
	c, mr := newTestRedisCache(t, WithLockTTL(time.Second))
	ctx := context.Background()

	unlock, err := c.Lock(ctx, "user:2")
	require.NoError(t, err)

	// The lock expires and another holder takes it.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("lock:user:2", "someone-else"))

	unlock()
	got, err := mr.Get("lock:user:2")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisCache_Delete(t *testing.T) {
	c, mr := newTestRedisCache(t, WithKeyPrefix("km:"))
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "summary:1", []byte("stale")))
	require.NoError(t, c.Delete(ctx, "summary:1"))
	assert.False(t, mr.Exists("km:summary:1"))

	require.NoError(t, c.Delete(ctx, "summary:missing"))
}

func TestRedisCache_LockRenewedWhileHeld(t *testing.T) {
	c, mr := newTestRedisCache(t, WithLockTTL(300*time.Millisecond))
	ctx := context.Background()

	unlock, err := c.Lock(ctx, "user:3")
	require.NoError(t, err)

	// Without renewal 400ms of server time would expire a 300ms lock.
	mr.FastForward(200 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL("lock:user:3") == 300*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)
	mr.FastForward(200 * time.Millisecond)
	assert.True(t, mr.Exists("lock:user:3"))

	unlock()
	assert.False(t, mr.Exists("lock:user:3"))
}
