// ABOUTME: Thread-safe TTL cache for expiring values, size-limited with O(1) eviction
// ABOUTME: Used to throttle repeated canister queries like quota lookups

package cache

import (
	"container/list"
	"sync"
	"time"
)

// entry stores a cached value with its timestamp and list element.
type entry struct {
	value     any
	timestamp time.Time
	element   *list.Element
}

// TTL is a thread-safe, size-limited cache whose values expire after a
// fixed duration. A doubly-linked list maintains insertion order for O(1)
// eviction of the oldest entry when at capacity.
type TTL struct {
	mu      sync.RWMutex
	values  map[string]*entry
	order   *list.List // keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a TTL cache. A background goroutine periodically removes
// expired entries.
func New(ttl time.Duration, maxSize int) *TTL {
	c := &TTL{
		values:  make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns the cached value for key, or false if absent or expired.
func (c *TTL) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.values[key]
	if !ok || time.Since(e.timestamp) >= c.ttl {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key. If the cache is at capacity, the oldest
// entry is evicted to make room.
func (c *TTL) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	// Existing key: refresh value and move to back
	if e, exists := c.values[key]; exists {
		e.value = value
		e.timestamp = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.values) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.values[key] = &entry{value: value, timestamp: now, element: elem}
}

// Invalidate removes key from the cache.
func (c *TTL) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.values[key]; ok {
		c.order.Remove(e.element)
		delete(c.values, key)
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *TTL) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.values, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *TTL) cleanup() {
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
func (c *TTL) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.values {
		if now.Sub(e.timestamp) > c.ttl {
			c.order.Remove(e.element)
			delete(c.values, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (c *TTL) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
