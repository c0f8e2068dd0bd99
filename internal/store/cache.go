package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LoadFunc fetches the value for a key on a cache miss.
type LoadFunc[T any] func(ctx context.Context, key string) (T, error)

// Cache is a generic, concurrency-safe, in-memory key-value cache.
// Successful loads are kept for the lifetime of the cache; failed loads
// are not cached so the next caller retries.
type Cache[T any] struct {
	mu          sync.RWMutex
	items       map[string]T
	hits        atomic.Int64
	misses      atomic.Int64
	lastUpdated atomic.Int64 // UnixMilli timestamp of last Set
}

// NewCache creates a new, empty Cache.
func NewCache[T any]() *Cache[T] {
	c := &Cache[T]{
		items: make(map[string]T),
	}
	c.lastUpdated.Store(time.Now().UnixMilli())
	return c
}

// Set inserts or updates a value for the given key.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	c.items[key] = value
	c.mu.Unlock()
	c.lastUpdated.Store(time.Now().UnixMilli())
}

// Get retrieves a value by key. Returns the value and true if found,
// or the zero value and false if not.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	v, ok := c.items[key]
	c.mu.RUnlock()
	return v, ok
}

// GetOrLoad returns the cached value for key, calling load on a miss.
// Concurrent misses for the same key may each call load; the last
// successful result wins.
func (c *Cache[T]) GetOrLoad(ctx context.Context, key string, load LoadFunc[T]) (T, error) {
	if v, ok := c.Get(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	v, err := load(ctx, key)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}

// Len returns the number of items in the cache.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	n := len(c.items)
	c.mu.RUnlock()
	return n
}

// Stats returns the hit and miss counts since creation.
func (c *Cache[T]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// LastUpdated returns the UnixMilli timestamp of the last modification.
func (c *Cache[T]) LastUpdated() int64 {
	return c.lastUpdated.Load()
}

// Snapshot returns a shallow copy of all items. Mutations to the returned
// map do not affect the cache.
func (c *Cache[T]) Snapshot() map[string]T {
	c.mu.RLock()
	cp := make(map[string]T, len(c.items))
	for k, v := range c.items {
		cp[k] = v
	}
	c.mu.RUnlock()
	return cp
}

// Clear removes all items from the cache.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]T)
	c.mu.Unlock()
	c.lastUpdated.Store(time.Now().UnixMilli())
}
