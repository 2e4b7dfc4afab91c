// Package clientcache memoizes expensive-to-build clients (HTTP clients
// with pooled connections, per-endpoint notifier transports) by key.
package clientcache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache is a concurrency-safe memoization map. Concurrent GetOrCreate
// calls for the same key collapse into one factory invocation.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
	group   singleflight.Group
}

func NewCache[T any]() *Cache[T] {
	return &Cache[T]{entries: make(map[string]T)}
}

// GetOrCreate returns the cached value for key, building it with factory
// on first use. A factory error is not cached; the next call retries.
func (c *Cache[T]) GetOrCreate(key string, factory func() (T, error)) (T, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return entry, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return entry, nil
		}

		built, err := factory()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = built
		c.mu.Unlock()
		return built, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Delete evicts the value for key, if present.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
