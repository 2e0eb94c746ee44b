package fluent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Cache is the interface for caching models looked up by identifier.
// Users may implement it with their preferred caching solution
// (e.g., Redis, Memcached); NewMemoryCache returns an in-process one.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// CacheKey identifies a cached lookup.
type CacheKey struct {
	Entity    string
	Operation string
	ID        any
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s:%v", k.Entity, k.Operation, k.ID)
}

// MemoryCache is a Cache backed by a map.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value   []byte
	expires time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem), now: time.Now}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !it.expires.IsZero() && !c.now().Before(it.expires) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, nil
	}
	return it.value, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	it := memoryItem{value: value}
	if ttl > 0 {
		it.expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = it
	c.mu.Unlock()
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// DeletePrefix implements Cache.
func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
	return nil
}

// Clear implements Cache.
func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	clear(c.items)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored values, including expired ones not yet evicted.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

var _ Cache = (*MemoryCache)(nil)
