package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lingocast/lingocast/internal/translate"
)

const (
	// cacheTTL is how long a cached translation stays valid.
	cacheTTL = time.Hour

	// cacheMaxEntries caps the table size; the least-accessed entries are
	// evicted past this point.
	cacheMaxEntries = 10000
)

// Cache is the PostgreSQL [translate.CacheStore]. Keys come from
// [translate.CacheKey]; a hit bumps the entry's access statistics so
// eviction can prefer rarely used entries, matching the in-memory cache.
//
// Obtain one via [Store.Cache] rather than constructing directly.
type Cache struct {
	pool *pgxpool.Pool
}

// Get implements [translate.CacheStore].
func (c *Cache) Get(ctx context.Context, source, target, text string) (string, bool, error) {
	const q = `
		UPDATE translation_cache
		SET    access_count = access_count + 1, last_accessed_at = now()
		WHERE  key = $1 AND expires_at > now()
		RETURNING translation`

	var translation string
	err := c.pool.QueryRow(ctx, q, translate.CacheKey(source, target, text)).Scan(&translation)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("translation cache: get: %w", err)
	}
	return translation, true, nil
}

// Put implements [translate.CacheStore]. Expired rows and, past the size
// cap, the least-accessed rows are dropped on the way in.
func (c *Cache) Put(ctx context.Context, source, target, text, translation string) error {
	const upsert = `
		INSERT INTO translation_cache (key, translation, expires_at)
		VALUES ($1, $2, now() + $3::interval)
		ON CONFLICT (key) DO UPDATE
		SET translation = EXCLUDED.translation,
		    expires_at  = EXCLUDED.expires_at`

	ttl := fmt.Sprintf("%d seconds", int(cacheTTL.Seconds()))
	if _, err := c.pool.Exec(ctx, upsert, translate.CacheKey(source, target, text), translation, ttl); err != nil {
		return fmt.Errorf("translation cache: put: %w", err)
	}

	const evict = `
		DELETE FROM translation_cache
		WHERE expires_at <= now()
		   OR key IN (
		        SELECT key FROM translation_cache
		        ORDER BY access_count DESC, last_accessed_at DESC
		        OFFSET $1
		   )`

	if _, err := c.pool.Exec(ctx, evict, cacheMaxEntries); err != nil {
		return fmt.Errorf("translation cache: evict: %w", err)
	}
	return nil
}
