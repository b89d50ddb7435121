// ABOUTME: Tests for the TTL value cache.
// ABOUTME: Validates expiration, size limits, eviction, invalidation, and concurrency safety.

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTL_GetMiss(t *testing.T) {
	c := New(5*time.Minute, 100)
	defer c.Close()

	_, ok := c.Get("never-set")
	assert.False(t, ok)
}

func TestTTL_SetAndGet(t *testing.T) {
	c := New(5*time.Minute, 100)
	defer c.Close()

	c.Set("key", 42)

	v, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestTTL_Expiration(t *testing.T) {
	c := New(10*time.Millisecond, 100)
	defer c.Close()

	c.Set("expiring", "value")

	_, ok := c.Get("expiring")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = c.Get("expiring")
	assert.False(t, ok)
}

func TestTTL_SetRefreshesTimestamp(t *testing.T) {
	c := New(50*time.Millisecond, 100)
	defer c.Close()

	c.Set("refresh", 1)
	time.Sleep(30 * time.Millisecond)
	c.Set("refresh", 2)
	time.Sleep(30 * time.Millisecond)

	// 60ms after the first set, but only 30ms after the refresh.
	v, ok := c.Get("refresh")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTTL_EvictsOldestAtCapacity(t *testing.T) {
	c := New(5*time.Minute, 2)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestTTL_Invalidate(t *testing.T) {
	c := New(5*time.Minute, 100)
	defer c.Close()

	c.Set("key", 1)
	c.Invalidate("key")

	_, ok := c.Get("key")
	assert.False(t, ok)

	// Invalidating a missing key is a no-op.
	c.Invalidate("missing")
}

func TestTTL_ConcurrentAccess(t *testing.T) {
	c := New(5*time.Minute, 1000)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", n, j)
				c.Set(key, j)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
}

func TestTTL_CloseTwice(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
