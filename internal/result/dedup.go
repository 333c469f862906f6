package result

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// defaultDedupTTL is how long a text hash suppresses re-forwarding.
const defaultDedupTTL = 10 * time.Second

// DedupCache is a content-addressed set with per-entry TTL. It suppresses
// re-translation of semantically identical text: the same normalized text
// forwarded twice within the TTL yields at most one downstream job.
//
// Expired entries are purged lazily on access. Safe for concurrent use.
type DedupCache struct {
	mu      sync.Mutex
	entries map[string]time.Time // hash → addedAt
	ttl     time.Duration

	now func() time.Time
}

// NewDedupCache creates a [DedupCache] with the given TTL.
// A non-positive ttl selects the default of 10 seconds.
func NewDedupCache(ttl time.Duration) *DedupCache {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &DedupCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Add records text in the cache. It returns false — and leaves the original
// entry untouched — iff an unexpired entry for the same normalized text is
// already present.
func (c *DedupCache) Add(text string) bool {
	h := TextHash(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if added, ok := c.entries[h]; ok {
		if now.Sub(added) <= c.ttl {
			return false
		}
	}
	c.entries[h] = now
	c.purgeLocked(now)
	return true
}

// Contains reports whether an unexpired entry for text is present.
func (c *DedupCache) Contains(text string) bool {
	h := TextHash(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	added, ok := c.entries[h]
	if !ok {
		return false
	}
	if now.Sub(added) > c.ttl {
		delete(c.entries, h)
		return false
	}
	return true
}

// Len returns the number of entries, including any not yet lazily purged.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// purgeLocked drops expired entries. Must be called with c.mu held.
func (c *DedupCache) purgeLocked(now time.Time) {
	for h, added := range c.entries {
		if now.Sub(added) > c.ttl {
			delete(c.entries, h)
		}
	}
}

// TextHash returns the hex sha256 of the normalized text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}

// NormalizeText trims, lowercases, and collapses internal whitespace so that
// trivially different renderings of the same utterance hash identically.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
