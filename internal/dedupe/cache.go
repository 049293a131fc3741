// Package dedupe remembers recently handled keys so redelivered Kafka
// messages are not applied twice.
package dedupe

import (
	"sync"
	"time"
)

type entry struct {
	key string
	ts  time.Time
}

// Cache is a bounded set of keys with a ttl. The oldest keys are evicted
// first once capacity is exceeded.
type Cache struct {
	mu       sync.Mutex
	items    map[string]time.Time
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		items:    make(map[string]time.Time, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// Claim records key and reports whether the caller is the first to see it
// inside the ttl window. A false result means the key is a duplicate.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if ts, ok := c.items[key]; ok && now.Sub(ts) <= c.ttl {
		return false
	}
	c.items[key] = now
	c.order = append(c.order, entry{key: key, ts: now})
	c.compact(now)
	return true
}

// Release forgets key so a later redelivery is processed again. Used when
// handling a claimed key failed.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of live keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		// A re-claimed key has a newer timestamp; only the matching entry owns it.
		if ts, ok := c.items[oldest.key]; ok && ts.Equal(oldest.ts) {
			delete(c.items, oldest.key)
		}
	}
}
