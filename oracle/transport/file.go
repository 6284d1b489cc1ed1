package transport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	cacheFileExt = ".cache"
	metaFileExt  = ".meta"

	// evictTargetPct is how full the cache may stay after an eviction pass.
	evictTargetPct = 80
)

type (
	// FileCache persists entries on disk, one value file plus one meta file
	// per key. Total value bytes are capped; crossing the cap evicts the
	// least-recently-accessed entries until usage is back under 80% of it.
	FileCache struct {
		mtx        sync.Mutex
		dir        string
		maxBytes   int64
		totalBytes int64
		index      map[string]*fileMeta
		logger     zerolog.Logger
	}

	fileMeta struct {
		Key           string `json:"key"`
		Size          int64  `json:"size"`
		ExpiresAtMs   int64  `json:"expires_at_unix_ms"`
		LastAccessNs  int64  `json:"last_access_unix_ns"`
	}
)

var _ Cache = (*FileCache)(nil)

// NewFileCache opens a file cache rooted at dir, creating it if needed and
// rebuilding the index from the meta files already present.
func NewFileCache(dir string, maxBytes int64, logger zerolog.Logger) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	c := &FileCache{
		dir:      dir,
		maxBytes: maxBytes,
		index:    make(map[string]*fileMeta),
		logger:   logger.With().Str("module", "cache").Logger(),
	}
	if err := c.loadIndex(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *FileCache) loadIndex() error {
	names, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}

	for _, entry := range names {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaFileExt) {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(c.dir, entry.Name()))
		if err != nil {
			continue
		}

		var meta fileMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			c.logger.Warn().Str("file", entry.Name()).Msg("dropping unreadable cache meta")
			continue
		}

		hash := strings.TrimSuffix(entry.Name(), metaFileExt)
		c.index[hash] = &meta
		c.totalBytes += meta.Size
	}

	return nil
}

func (c *FileCache) Get(_ context.Context, key string) ([]byte, bool) {
	hash := hashKey(key)

	c.mtx.Lock()
	defer c.mtx.Unlock()

	meta, ok := c.index[hash]
	if !ok {
		cacheMiss("file")
		return nil, false
	}
	if time.Now().UnixMilli() >= meta.ExpiresAtMs {
		c.removeLocked(hash)
		cacheMiss("file")
		return nil, false
	}

	value, err := os.ReadFile(c.valuePath(hash))
	if err != nil {
		c.removeLocked(hash)
		cacheMiss("file")
		return nil, false
	}

	meta.LastAccessNs = time.Now().UnixNano()
	c.writeMeta(hash, meta)

	cacheHit("file")
	return value, true
}

func (c *FileCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	hash := hashKey(key)
	now := time.Now()
	meta := &fileMeta{
		Key:           key,
		Size:          int64(len(value)),
		ExpiresAtMs:   now.Add(ttl).UnixMilli(),
		LastAccessNs:  now.UnixNano(),
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	// Meta goes to disk before the value so a reader never observes a value
	// without its expiry metadata.
	if err := c.writeMeta(hash, meta); err != nil {
		return err
	}
	if err := atomicWriteFile(c.valuePath(hash), value); err != nil {
		os.Remove(c.metaPath(hash))
		return err
	}

	if prev, ok := c.index[hash]; ok {
		c.totalBytes -= prev.Size
	}
	c.index[hash] = meta
	c.totalBytes += meta.Size

	if c.maxBytes > 0 && c.totalBytes > c.maxBytes {
		c.evictLocked()
	}

	return nil
}

func (c *FileCache) Delete(_ context.Context, key string) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.removeLocked(hashKey(key))
	return nil
}

func (c *FileCache) Clear(_ context.Context) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	for hash := range c.index {
		c.removeLocked(hash)
	}
	return nil
}

func (c *FileCache) Exists(_ context.Context, key string) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	meta, ok := c.index[hashKey(key)]
	return ok && time.Now().UnixMilli() < meta.ExpiresAtMs
}

// SizeBytes returns the total bytes of cached values currently indexed.
func (c *FileCache) SizeBytes() int64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.totalBytes
}

// evictLocked drops expired entries first, then the least recently accessed,
// until usage is at or under the eviction target.
func (c *FileCache) evictLocked() {
	target := c.maxBytes * evictTargetPct / 100
	now := time.Now().UnixMilli()

	type candidate struct {
		hash string
		meta *fileMeta
	}
	candidates := make([]candidate, 0, len(c.index))
	for hash, meta := range c.index {
		if now >= meta.ExpiresAtMs {
			c.removeLocked(hash)
			continue
		}
		candidates = append(candidates, candidate{hash, meta})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].meta.LastAccessNs < candidates[j].meta.LastAccessNs
	})

	for _, cand := range candidates {
		if c.totalBytes <= target {
			break
		}
		c.removeLocked(cand.hash)
		cacheEviction("file")
	}
}

func (c *FileCache) removeLocked(hash string) {
	if meta, ok := c.index[hash]; ok {
		c.totalBytes -= meta.Size
		delete(c.index, hash)
	}
	os.Remove(c.valuePath(hash))
	os.Remove(c.metaPath(hash))
}

func (c *FileCache) writeMeta(hash string, meta *fileMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return atomicWriteFile(c.metaPath(hash), raw)
}

func (c *FileCache) valuePath(hash string) string {
	return filepath.Join(c.dir, hash+cacheFileExt)
}

func (c *FileCache) metaPath(hash string) string {
	return filepath.Join(c.dir, hash+metaFileExt)
}

// atomicWriteFile writes through a temp file and renames so readers see
// either the old or the new content, never a torn write.
func atomicWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
