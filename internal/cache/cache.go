// Package cache provides a small thread-safe TTL cache, used in front of
// the transcript provider and the status endpoint's payload assembly.
package cache

import (
	"sync"
	"time"
)

// item is a cached value with its expiration.
type item[T any] struct {
	value     T
	expiresAt time.Time
}

func (i item[T]) expired() bool {
	return time.Now().After(i.expiresAt)
}

// Cache is a thread-safe TTL cache.
type Cache[T any] struct {
	mu    sync.RWMutex
	items map[string]item[T]
	ttl   time.Duration
}

// New creates a cache with the given TTL and starts its cleanup loop.
func New[T any](ttl time.Duration) *Cache[T] {
	c := &Cache[T]{
		items: make(map[string]item[T]),
		ttl:   ttl,
	}

	go c.cleanup()

	return c
}

// cleanup removes expired items periodically.
func (c *Cache[T]) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		for key, it := range c.items {
			if it.expired() {
				delete(c.items, key)
			}
		}
		c.mu.Unlock()
	}
}

// Get retrieves a value; the second return reports whether a live entry
// existed.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	it, exists := c.items[key]
	c.mu.RUnlock()

	if !exists || it.expired() {
		var zero T
		return zero, false
	}
	return it.value, true
}

// Set stores a value under key for the cache's TTL.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item[T]{value: value, expiresAt: time.Now().Add(c.ttl)}
}

// Delete removes a key.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of entries, expired included.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
