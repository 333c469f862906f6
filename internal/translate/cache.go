// Package translate implements the translation stage of the pipeline: a
// keyed cache of previous translations and a parallel fan-out translator
// that consults the cache before calling the external backend.
package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// defaultMaxEntries bounds the in-memory cache size.
	defaultMaxEntries = 10000

	// defaultTTL is how long a cached translation stays valid.
	defaultTTL = 3600 * time.Second
)

// CacheKey derives the lookup key for a (source, target, text) triple. The
// text is trimmed and lowercased before hashing so trivially different
// spellings of the same utterance share an entry.
func CacheKey(source, target, text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%s:%s:%s", source, target, hex.EncodeToString(sum[:])[:16])
}

// CacheStore is the persistence abstraction for cached translations.
// [MemoryCache] is the default; internal/store/postgres provides a durable
// implementation.
type CacheStore interface {
	// Get returns the cached translation for the triple, if present and
	// unexpired. A hit refreshes the entry's access statistics.
	Get(ctx context.Context, source, target, text string) (string, bool, error)

	// Put stores a translation, evicting least-accessed entries when full.
	Put(ctx context.Context, source, target, text, translation string) error
}

// CacheStats is a snapshot of a cache's counters.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

// HitRate returns hits / (hits + misses), or 0 when the cache is untouched.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// cacheEntry is one stored translation with its access bookkeeping.
type cacheEntry struct {
	key            string
	translation    string
	accessCount    uint64
	lastAccessedAt time.Time
	expiresAt      time.Time
}

// MemoryCacheConfig holds the tuning knobs for a [MemoryCache]. Zero values
// are replaced with defaults.
type MemoryCacheConfig struct {
	// MaxEntries caps the cache size; the least-accessed entries are
	// evicted to make room. Default: 10000.
	MaxEntries int

	// TTL is how long an entry stays valid after insertion. Default: 1h.
	TTL time.Duration
}

// MemoryCache is the in-memory [CacheStore]. Eviction removes entries in
// ascending (accessCount, lastAccessedAt) order so rarely used entries go
// first and ties fall to the oldest.
//
// Safe for concurrent use.
type MemoryCache struct {
	mu        sync.Mutex
	entries   map[string]*cacheEntry
	max       int
	ttl       time.Duration
	hits      uint64
	misses    uint64
	evictions uint64

	now func() time.Time
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache(cfg MemoryCacheConfig) *MemoryCache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	return &MemoryCache{
		entries: make(map[string]*cacheEntry),
		max:     cfg.MaxEntries,
		ttl:     cfg.TTL,
		now:     time.Now,
	}
}

// Get implements [CacheStore].
func (c *MemoryCache) Get(_ context.Context, source, target, text string) (string, bool, error) {
	key := CacheKey(source, target, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.now().After(e.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		return "", false, nil
	}
	e.accessCount++
	e.lastAccessedAt = c.now()
	c.hits++
	return e.translation, true, nil
}

// Put implements [CacheStore].
func (c *MemoryCache) Put(_ context.Context, source, target, text, translation string) error {
	key := CacheKey(source, target, text)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.translation = translation
		e.expiresAt = now.Add(c.ttl)
		return nil
	}
	if len(c.entries) >= c.max {
		c.evictLocked(len(c.entries) - c.max + 1)
	}
	c.entries[key] = &cacheEntry{
		key:            key,
		translation:    translation,
		lastAccessedAt: now,
		expiresAt:      now.Add(c.ttl),
	}
	return nil
}

// evictLocked removes n entries, expired ones first, then ascending by
// (accessCount, lastAccessedAt). Must be called with c.mu held.
func (c *MemoryCache) evictLocked(n int) {
	now := c.now()
	for key, e := range c.entries {
		if n <= 0 {
			return
		}
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			c.evictions++
			n--
		}
	}
	if n <= 0 {
		return
	}

	victims := make([]*cacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		victims = append(victims, e)
	}
	sort.Slice(victims, func(i, j int) bool {
		if victims[i].accessCount != victims[j].accessCount {
			return victims[i].accessCount < victims[j].accessCount
		}
		return victims[i].lastAccessedAt.Before(victims[j].lastAccessedAt)
	})
	for i := 0; i < n && i < len(victims); i++ {
		delete(c.entries, victims[i].key)
		c.evictions++
	}
}

// Stats returns a snapshot of the cache counters.
func (c *MemoryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
}

// Ensure MemoryCache implements CacheStore at compile time.
var _ CacheStore = (*MemoryCache)(nil)
