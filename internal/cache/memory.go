package cache

import (
	"sync"
	"time"

	"github.com/ytget/twitvid/types"
)

type memoryEntry struct {
	value     types.VideoInfo
	expiresAt time.Time
}

// MemoryCache is a mutex-protected in-process cache. Expired entries are
// dropped lazily on Get and in bulk once the map reaches maxEntries.
type MemoryCache struct {
	mu         sync.RWMutex
	data       map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

// NewMemoryCache creates a new in-memory cache. maxEntries <= 0 means unbounded.
func NewMemoryCache(maxEntries int) *MemoryCache {
	return &MemoryCache{
		data:       make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get retrieves a cached value by key
func (c *MemoryCache) Get(key string) (types.VideoInfo, bool) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return types.VideoInfo{}, false
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.data[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return types.VideoInfo{}, false
	}
	return e.value, true
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value types.VideoInfo, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxEntries > 0 && len(c.data) >= c.maxEntries {
		c.evictLocked()
	}
	c.data[key] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Close implements Cache.
func (c *MemoryCache) Close() error { return nil }

// evictLocked removes expired entries, then the soonest-expiring one if the
// map is still full.
func (c *MemoryCache) evictLocked() {
	now := c.now()
	var oldestKey string
	var oldest time.Time
	for k, e := range c.data {
		if !now.Before(e.expiresAt) {
			delete(c.data, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	if len(c.data) >= c.maxEntries && oldestKey != "" {
		delete(c.data, oldestKey)
	}
}
