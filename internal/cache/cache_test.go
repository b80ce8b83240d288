package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(maxSize int, ttl time.Duration) (*Cache, *fakeClock) {
	clock := newFakeClock()
	return New(maxSize, ttl, WithClock(clock.Now)), clock
}

func TestNew_Defaults(t *testing.T) {
	c := New(0, 0)
	assert.Equal(t, 1000, c.maxSize)
	assert.Equal(t, time.Hour, c.defaultTTL)
}

func TestCache_SetGet(t *testing.T) {
	c, clock := newTestCache(10, time.Hour)

	c.Set("analysis:repo", "result", 10*time.Second)

	v, ok := c.Get("analysis:repo")
	require.True(t, ok)
	assert.Equal(t, "result", v)

	clock.Advance(9 * time.Second)
	_, ok = c.Get("analysis:repo")
	assert.True(t, ok, "entry is valid until its TTL elapses")

	clock.Advance(time.Second)
	_, ok = c.Get("analysis:repo")
	assert.False(t, ok, "entry must not be returned once its TTL elapsed")
	assert.Equal(t, 0, c.Len(), "expired entry is removed on read")
}

func TestCache_DefaultTTL(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)

	c.Set("a", 1, 0)
	c.Set("b", 2, -time.Second)

	clock.Advance(59 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCache_Overwrite(t *testing.T) {
	c, clock := newTestCache(2, time.Hour)

	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Hour)
	c.Set("a", 3, time.Hour)

	clock.Advance(2 * time.Second)
	v, ok := c.Get("a")
	require.True(t, ok, "overwrite resets the expiry")
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint64(0), c.Stats().Evictions, "updating an existing key never evicts")
}

func TestCache_LRUEviction(t *testing.T) {
	c, clock := newTestCache(2, time.Hour)

	c.Set("A", "a", 0)
	clock.Advance(time.Millisecond)
	c.Set("B", "b", 0)
	clock.Advance(time.Millisecond)

	_, ok := c.Get("A")
	require.True(t, ok)
	clock.Advance(time.Millisecond)

	c.Set("C", "c", 0)

	_, ok = c.Get("B")
	assert.False(t, ok, "least recently accessed entry is evicted")
	_, ok = c.Get("A")
	assert.True(t, ok)
	_, ok = c.Get("C")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCache_SizeNeverExceedsMax(t *testing.T) {
	c, _ := newTestCache(10, time.Hour)

	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i, 0)
		require.LessOrEqual(t, c.Len(), 10)
	}
	assert.Equal(t, uint64(90), c.Stats().Evictions)
}

func TestCache_CleanupExpired(t *testing.T) {
	c, clock := newTestCache(10, time.Hour)

	c.Set("short-1", 1, time.Second)
	c.Set("short-2", 2, time.Second)
	c.Set("long", 3, time.Hour)

	assert.Equal(t, 0, c.CleanupExpired())

	clock.Advance(2 * time.Second)
	assert.Equal(t, 2, c.CleanupExpired())
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("long")
	assert.True(t, ok)
}

func TestCache_Stats(t *testing.T) {
	c, clock := newTestCache(4, time.Hour)

	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Hour)
	clock.Advance(2 * time.Second)

	_, _ = c.Get("b")       // hit
	_, _ = c.Get("missing") // miss

	stats := c.Stats()
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 1, stats.Valid)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 4, stats.Capacity)
	assert.InDelta(t, 50.0, stats.UsagePercent, 0.001)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestCache_DeleteAndClear(t *testing.T) {
	c, _ := newTestCache(10, time.Hour)

	c.Set("analysis:1", 1, 0)
	c.Set("analysis:2", 2, 0)
	c.Set("report:1", 3, 0)

	assert.True(t, c.Delete("report:1"))
	assert.False(t, c.Delete("report:1"))

	assert.Equal(t, 2, c.DeletePrefix("analysis:"))
	assert.Equal(t, 0, c.Len())

	c.Set("x", 1, 0)
	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("x")
	assert.False(t, ok)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(50, time.Hour)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k-%d", (w*200+i)%75)
				c.Set(key, i, 0)
				c.Get(key)
				if i%50 == 0 {
					c.CleanupExpired()
					c.Stats()
				}
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
