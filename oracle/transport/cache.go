package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"oracle-router/oracle/types"
)

const (
	// DefaultCacheTTL applies when no category-specific TTL matches.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultMemoryCacheSize bounds the in-memory LRU entry count.
	DefaultMemoryCacheSize = 1000
)

// categoryTTLs maps data categories to how long their responses stay fresh.
// Prices go stale in a minute; macro indicators are good for an hour.
var categoryTTLs = map[types.DataCategory]time.Duration{
	types.CategoryPrice:    time.Minute,
	types.CategorySports:   5 * time.Minute,
	types.CategoryWeather:  10 * time.Minute,
	"news":                 30 * time.Minute,
	types.CategoryEconomic: time.Hour,
}

// Cache is the contract shared by every cache backend. Get treats backend
// failures as misses so a degraded cache never fails a request.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Exists(ctx context.Context, key string) bool
}

// TTLForCategory returns the freshness window for a data category.
func TTLForCategory(category types.DataCategory) time.Duration {
	if ttl, ok := categoryTTLs[category]; ok {
		return ttl
	}
	return DefaultCacheTTL
}

// CacheKey derives a stable key from the canonical JSON encoding of the
// request. Struct fields marshal in declaration order and map keys sort
// lexically, so equal requests always hash to the same key.
func CacheKey(req types.OracleRequest) string {
	raw, err := json.Marshal(req)
	if err != nil {
		raw = []byte(fmt.Sprintf("%s|%s|%d", req.Query, req.DataType, req.TimeoutMs))
	}
	return hashKey(string(raw))
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
