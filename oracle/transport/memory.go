package transport

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

type (
	// MemoryCache is an LRU cache with per-entry TTLs. Reads never return
	// expired entries; expired entries are dropped on access.
	MemoryCache struct {
		entries    *lru.Cache
		defaultTTL time.Duration
	}

	memoryEntry struct {
		value     []byte
		expiresAt time.Time
	}
)

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an in-memory cache holding at most maxSize entries.
func NewMemoryCache(maxSize int, defaultTTL time.Duration) (*MemoryCache, error) {
	if maxSize <= 0 {
		maxSize = DefaultMemoryCacheSize
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultCacheTTL
	}

	entries, err := lru.New(maxSize)
	if err != nil {
		return nil, err
	}

	return &MemoryCache{
		entries:    entries,
		defaultTTL: defaultTTL,
	}, nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		cacheMiss("memory")
		return nil, false
	}

	entry := v.(memoryEntry)
	if time.Now().After(entry.expiresAt) {
		c.entries.Remove(key)
		cacheMiss("memory")
		return nil, false
	}

	cacheHit("memory")
	return entry.value, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	evicted := c.entries.Add(key, memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	if evicted {
		cacheEviction("memory")
	}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.entries.Purge()
	return nil
}

// Exists reports whether a live entry is present without refreshing its
// recency in the LRU order.
func (c *MemoryCache) Exists(_ context.Context, key string) bool {
	v, ok := c.entries.Peek(key)
	if !ok {
		return false
	}
	if time.Now().After(v.(memoryEntry).expiresAt) {
		c.entries.Remove(key)
		return false
	}
	return true
}

// Len returns the number of cached entries, expired ones included.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
