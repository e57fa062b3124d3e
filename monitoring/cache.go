package monitoring

import (
	"sync"
	"time"
)

type cacheEntry struct {
	value     float64
	expiresAt time.Time
}

// Cache memoizes query results for a fixed TTL so dashboard refreshes
// do not hammer the telemetry backend.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

// NewCache creates a TTL cache. A non-positive ttl disables caching.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, entries: map[string]cacheEntry{}}
}

// Get returns the cached value for key if it has not expired.
func (c *Cache) Get(key string, now time.Time) (float64, bool) {
	if c == nil || c.ttl <= 0 {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || now.After(entry.expiresAt) {
		delete(c.entries, key)
		return 0, false
	}
	return entry.value, true
}

// Put stores value under key until the TTL elapses.
func (c *Cache) Put(key string, value float64, now time.Time) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops every cached entry.
func (c *Cache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = map[string]cacheEntry{}
	c.mu.Unlock()
}
