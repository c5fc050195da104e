// Package cache provides a small TTL cache for query API responses.
// Directory pages poll the stream list far more often than rooms
// change; a short-lived snapshot absorbs that read load.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

func (e *entry) expired() bool {
	return time.Now().After(e.expiresAt)
}

// Cache is a thread-safe in-memory TTL cache. A background sweep
// evicts expired entries; reads never return stale values regardless.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	defaultTTL time.Duration
	stopSweep  chan struct{}
}

func NewCache(defaultTTL time.Duration) *Cache {
	c := &Cache{
		entries:    make(map[string]*entry),
		defaultTTL: defaultTTL,
		stopSweep:  make(chan struct{}),
	}
	go c.sweep(defaultTTL / 2)
	return c
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.expired() {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Invalidate drops every key with the given prefix; the empty prefix
// drops only expired entries.
func (c *Cache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if prefix == "" {
			if e.expired() {
				delete(c.entries, key)
			}
			continue
		}
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) Stop() {
	close(c.stopSweep)
}

func (c *Cache) sweep(interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Invalidate("")
		case <-c.stopSweep:
			return
		}
	}
}

// CacheWithFallback backs cache misses with a loader function.
type CacheWithFallback struct {
	cache *Cache
}

func NewCacheWithFallback(defaultTTL time.Duration) *CacheWithFallback {
	return &CacheWithFallback{cache: NewCache(defaultTTL)}
}

// GetOrSet returns the cached value for key, or runs load and caches
// its result. A load error is returned uncached so the next call
// retries.
func (c *CacheWithFallback) GetOrSet(ctx context.Context, key string, load func(context.Context) (interface{}, error), ttl time.Duration) (interface{}, error) {
	if value, ok := c.cache.Get(key); ok {
		return value, nil
	}

	value, err := load(ctx)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, value, ttl)
	return value, nil
}

func (c *CacheWithFallback) Invalidate(prefix string) {
	c.cache.Invalidate(prefix)
}

func (c *CacheWithFallback) Stop() {
	c.cache.Stop()
}
