// ABOUTME: In-process cache driver with TTL and size-bounded eviction
// ABOUTME: Per-key locks are reference counted so idle keys leave no residue

package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryEntry stores a value with its write time and list position.
type memoryEntry struct {
	value     []byte
	timestamp time.Time
	element   *list.Element
}

// keyLock is a context-aware mutex shared by every waiter on one key.
type keyLock struct {
	ch   chan struct{}
	refs int
}

// memoryCache keeps entries in a map with a list tracking write order for
// O(1) eviction of the oldest entry.
type memoryCache struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	order      *list.List // keys, oldest write at front
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	locksMu sync.Mutex
	locks   map[string]*keyLock

	done   chan struct{}
	closed bool
}

func newMemoryCache(cfg *config) *memoryCache {
	c := &memoryCache{
		entries:    make(map[string]*memoryEntry),
		order:      list.New(),
		ttl:        cfg.ttl,
		maxEntries: cfg.maxEntries,
		now:        time.Now,
		locks:      make(map[string]*keyLock),
		done:       make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get implements Cache.
func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false, ErrClosed
	}
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.expired(entry) {
		c.removeLocked(key, entry)
		return nil, false, nil
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Put implements Cache. At capacity the oldest entry is evicted.
func (c *memoryCache) Put(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	if entry, exists := c.entries[key]; exists {
		entry.value = stored
		entry.timestamp = c.now()
		c.order.MoveToBack(entry.element)
		return nil
	}

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &memoryEntry{
		value:     stored,
		timestamp: c.now(),
		element:   elem,
	}
	return nil
}

// Delete implements Cache.
func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if entry, exists := c.entries[key]; exists {
		c.removeLocked(key, entry)
	}
	return nil
}

// Lock implements Cache.
func (c *memoryCache) Lock(ctx context.Context, key string) (Unlock, error) {
	c.locksMu.Lock()
	l, ok := c.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		c.locks[key] = l
	}
	l.refs++
	c.locksMu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		c.release(key, l, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.release(key, l, true) })
	}, nil
}

// release drops a reference to l, freeing the held slot when acquired.
func (c *memoryCache) release(key string, l *keyLock, acquired bool) {
	if acquired {
		<-l.ch
	}
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(c.locks, key)
	}
}

func (c *memoryCache) expired(entry *memoryEntry) bool {
	return c.ttl > 0 && c.now().Sub(entry.timestamp) >= c.ttl
}

// removeLocked deletes key. Must be called with mu held.
func (c *memoryCache) removeLocked(key string, entry *memoryEntry) {
	c.order.Remove(entry.element)
	delete(c.entries, key)
}

// evictOldest removes the oldest entry from the cache.
// Must be called with mu held.
func (c *memoryCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *memoryCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *memoryCache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if c.expired(entry) {
			c.removeLocked(key, entry)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *memoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
		c.entries = make(map[string]*memoryEntry)
		c.order.Init()
	}
	return nil
}
