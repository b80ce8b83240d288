package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"
)

// Entry is a single cached value.
type Entry struct {
	Key        string
	Value      any
	CreatedAt  time.Time
	ExpiresAt  time.Time
	AccessedAt time.Time
}

// expired reports whether the entry's TTL has elapsed at now.
func (e *Entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Stats describes the cache contents and lifetime counters.
type Stats struct {
	Count        int     `json:"count"`
	Valid        int     `json:"valid"`
	Expired      int     `json:"expired"`
	Capacity     int     `json:"capacity"`
	UsagePercent float64 `json:"usage_percent"`
	Hits         uint64  `json:"hits"`
	Misses       uint64  `json:"misses"`
	Evictions    uint64  `json:"evictions"`
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache is a TTL + LRU bounded store safe for concurrent use. The entry map
// and its recency order live in one simplelru.LRU guarded by mu.
type Cache struct {
	mu         sync.Mutex
	entries    *simplelru.LRU[string, *Entry]
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64

	group singleflight.Group
}

// New creates a cache holding at most maxSize entries. Entries stored without
// an explicit TTL expire after defaultTTL. Non-positive arguments fall back
// to 1000 entries and one hour.
func New(maxSize int, defaultTTL time.Duration, opts ...Option) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}

	// NewLRU only fails for a non-positive size
	entries, _ := simplelru.NewLRU[string, *Entry](maxSize, nil)

	c := &Cache{
		entries:    entries,
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value stored under key. An expired entry is removed and
// reported as absent. A hit marks the entry as most recently used.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.entries.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if e.expired(now) {
		c.entries.Remove(key)
		c.misses++
		return nil, false
	}

	e.AccessedAt = now
	c.hits++
	return e.Value, true
}

// Set stores value under key for ttl, or for the default TTL when ttl <= 0.
// When the cache is full and key is new, the least recently used entry is
// evicted first.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.entries.Contains(key) && c.entries.Len() >= c.maxSize {
		if _, _, ok := c.entries.RemoveOldest(); ok {
			c.evictions++
		}
	}

	c.entries.Add(key, &Entry{
		Key:        key,
		Value:      value,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		AccessedAt: now,
	})
}

// Delete removes key and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Remove(key)
}

// DeletePrefix removes every key starting with prefix and returns how many
// were removed.
func (c *Cache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Clear removes every entry. Lifetime counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Len returns the number of stored entries, including expired ones not yet removed.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// CleanupExpired eagerly removes every expired entry and returns how many
// were removed.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, key := range c.entries.Keys() {
		// Peek leaves the recency order untouched
		if e, ok := c.entries.Peek(key); ok && e.expired(now) {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of the cache contents and counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stats := Stats{
		Count:     c.entries.Len(),
		Capacity:  c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Peek(key); ok && e.expired(now) {
			stats.Expired++
		}
	}
	stats.Valid = stats.Count - stats.Expired
	stats.UsagePercent = float64(stats.Count) / float64(c.maxSize) * 100
	return stats
}
