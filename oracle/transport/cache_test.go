package transport

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"oracle-router/oracle/types"
)

func TestCacheKeyStable(t *testing.T) {
	first := types.NewOracleRequest("BTC/USD spot", types.CategoryPrice)
	first.Parameters = map[string]any{"chain": "ethereum", "pair": "BTC/USD"}

	second := types.NewOracleRequest("BTC/USD spot", types.CategoryPrice)
	second.Parameters = map[string]any{"pair": "BTC/USD", "chain": "ethereum"}

	require.Equal(t, CacheKey(first), CacheKey(second),
		"It should derive the same key for equal requests")
	require.Len(t, CacheKey(first), 64)

	second.Query = "ETH/USD spot"
	require.NotEqual(t, CacheKey(first), CacheKey(second))
}

func TestTTLForCategory(t *testing.T) {
	require.Equal(t, time.Minute, TTLForCategory(types.CategoryPrice))
	require.Equal(t, 5*time.Minute, TTLForCategory(types.CategorySports))
	require.Equal(t, 10*time.Minute, TTLForCategory(types.CategoryWeather))
	require.Equal(t, time.Hour, TTLForCategory(types.CategoryEconomic))
	require.Equal(t, DefaultCacheTTL, TTLForCategory(types.CategoryCustom),
		"It should fall back to the default TTL for unlisted categories")
}

func TestMemoryCacheTTL(t *testing.T) {
	cache, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "key", []byte("value"), 30*time.Millisecond))

	got, ok := cache.Get(ctx, "key")
	require.True(t, ok)
	require.Equal(t, []byte("value"), got)
	require.True(t, cache.Exists(ctx, "key"))

	time.Sleep(50 * time.Millisecond)

	_, ok = cache.Get(ctx, "key")
	require.False(t, ok, "It should never return an expired entry")
	require.False(t, cache.Exists(ctx, "key"))
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache, err := NewMemoryCache(2, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), 0))
	cache.Get(ctx, "a")
	require.NoError(t, cache.Set(ctx, "c", []byte("3"), 0))

	require.False(t, cache.Exists(ctx, "b"), "It should evict the least recently used entry")
	require.True(t, cache.Exists(ctx, "a"))
	require.True(t, cache.Exists(ctx, "c"))
}

func TestMemoryCacheDeleteAndClear(t *testing.T) {
	cache, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), 0))

	require.NoError(t, cache.Delete(ctx, "a"))
	require.False(t, cache.Exists(ctx, "a"))

	require.NoError(t, cache.Clear(ctx))
	require.Zero(t, cache.Len())
}

func TestFileCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cache, err := NewFileCache(dir, 1<<20, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "question", []byte("payload"), time.Minute))

	values, err := filepath.Glob(filepath.Join(dir, "*"+cacheFileExt))
	require.NoError(t, err)
	require.Len(t, values, 1, "It should write one value file per key")

	metas, err := filepath.Glob(filepath.Join(dir, "*"+metaFileExt))
	require.NoError(t, err)
	require.Len(t, metas, 1, "It should write one meta file per key")

	got, ok := cache.Get(ctx, "question")
	require.True(t, ok)
	require.Equal(t, []byte("payload"), got)

	reopened, err := NewFileCache(dir, 1<<20, zerolog.Nop())
	require.NoError(t, err, "It should rebuild the index from disk")
	got, ok = reopened.Get(ctx, "question")
	require.True(t, ok)
	require.Equal(t, []byte("payload"), got)

	require.NoError(t, cache.Delete(ctx, "question"))
	_, ok = cache.Get(ctx, "question")
	require.False(t, ok)
}

func TestFileCacheNeverReturnsExpired(t *testing.T) {
	cache, err := NewFileCache(t.TempDir(), 1<<20, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "key", []byte("stale soon"), 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	_, ok := cache.Get(ctx, "key")
	require.False(t, ok)
	require.False(t, cache.Exists(ctx, "key"))
}

func TestFileCacheEvictsToTarget(t *testing.T) {
	cache, err := NewFileCache(t.TempDir(), 1000, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	value := []byte(strings.Repeat("x", 100))
	keys := []string{"k0", "k1", "k2", "k3", "k4", "k5", "k6", "k7", "k8", "k9"}
	for _, key := range keys {
		require.NoError(t, cache.Set(ctx, key, value, time.Minute))
	}
	require.EqualValues(t, 1000, cache.SizeBytes())

	// Touch k0 so it is the most recently accessed entry.
	_, ok := cache.Get(ctx, "k0")
	require.True(t, ok)

	require.NoError(t, cache.Set(ctx, "k10", value, time.Minute))

	require.LessOrEqual(t, cache.SizeBytes(), int64(800),
		"It should evict down to 80 percent of the capacity")
	require.True(t, cache.Exists(ctx, "k0"), "It should keep recently accessed entries")
	require.True(t, cache.Exists(ctx, "k10"))
	require.False(t, cache.Exists(ctx, "k1"), "It should drop the least recently accessed entries")
	require.False(t, cache.Exists(ctx, "k2"))
	require.False(t, cache.Exists(ctx, "k3"))
}
