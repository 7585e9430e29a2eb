// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package resolve

import (
	"sync"
	"time"
)

// =============================================================================
// VALUE CACHE
// =============================================================================

// Cache is an LRU cache of fetched values whose entries expire after a TTL.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]*cacheEntry
	accessOrder []string // least recently used first
	maxEntries  int
	ttl         time.Duration
	now         func() time.Time

	hits   int
	misses int
}

type cacheEntry struct {
	value    string
	storedAt time.Time
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Hits       int
	Misses     int
	EntryCount int
	HitRate    float64
}

// NewCache creates a cache. A ttl of zero or less disables caching.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 128
	}
	return &Cache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get returns the cached value for key if it has not expired.
func (c *Cache) Get(key string) (string, bool) {
	if c.ttl <= 0 {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return "", false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.removeLocked(key)
		c.misses++
		return "", false
	}
	c.touchLocked(key)
	c.hits++
	return e.value, true
}

// Put stores value under key, evicting the least recently used entry when full.
func (c *Cache) Put(key, value string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		for len(c.entries) >= c.maxEntries && len(c.accessOrder) > 0 {
			c.removeLocked(c.accessOrder[0])
		}
	}
	c.entries[key] = &cacheEntry{value: value, storedAt: c.now()}
	c.touchLocked(key)
}

// Invalidate drops key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.accessOrder = nil
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := 0.0
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return CacheStats{Hits: c.hits, Misses: c.misses, EntryCount: len(c.entries), HitRate: hitRate}
}

// removeLocked removes an entry (must hold lock).
func (c *Cache) removeLocked(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.accessOrder {
		if k == key {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			break
		}
	}
}

// touchLocked moves key to the most recently used end (must hold lock).
func (c *Cache) touchLocked(key string) {
	for i, k := range c.accessOrder {
		if k == key {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			break
		}
	}
	c.accessOrder = append(c.accessOrder, key)
}
