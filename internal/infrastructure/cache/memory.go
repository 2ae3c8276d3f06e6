package cache

import (
	"context"
	"sync"
	"time"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/metrics"
)

// cacheItem represents a single item in the cache with expiration
type cacheItem struct {
	Value      interface{}
	CreatedAt  time.Time
	Expiration time.Time
}

// MemoryCache is a thread-safe in-memory cache with TTL support.
// Entries are evicted by age only.
type MemoryCache struct {
	name  string
	data  map[string]cacheItem
	mutex sync.RWMutex
	now   func() time.Time

	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

// Option configures a MemoryCache
type Option func(*MemoryCache)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(c *MemoryCache) { c.now = now }
}

// WithCleanupInterval sets how often expired entries are swept. Zero disables the sweeper.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *MemoryCache) { c.cleanupInterval = d }
}

// WithName labels the cache in metrics
func WithName(name string) Option {
	return func(c *MemoryCache) { c.name = name }
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(opts ...Option) *MemoryCache {
	cache := &MemoryCache{
		name:            "default",
		data:            make(map[string]cacheItem),
		now:             time.Now,
		cleanupInterval: 10 * time.Minute,
		stop:            make(chan struct{}),
	}
	for _, o := range opts {
		o(cache)
	}

	if cache.cleanupInterval > 0 {
		go cache.cleanupExpired()
	}

	return cache
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, exists := c.data[key]
	if !exists || !c.now().Before(item.Expiration) {
		metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
		return nil, domain.ErrCacheMiss
	}

	metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	return item.Value, nil
}

// Set stores a value in the cache with TTL
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	c.data[key] = cacheItem{
		Value:      value,
		CreatedAt:  now,
		Expiration: now.Add(ttl),
	}

	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
	return nil
}

// Exists checks if a key exists in the cache and is not expired
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, exists := c.data[key]
	if !exists {
		return false, nil
	}

	return c.now().Before(item.Expiration), nil
}

// cleanupExpired removes expired entries from the cache periodically
func (c *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Purge()
		}
	}
}

// Purge drops every expired entry now
func (c *MemoryCache) Purge() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	for key, item := range c.data {
		if !now.Before(item.Expiration) {
			delete(c.data, key)
		}
	}
}

// Close stops the cleanup goroutine
func (c *MemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Size returns the current number of items in the cache (for debugging/monitoring)
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data = make(map[string]cacheItem)
}
