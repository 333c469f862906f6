// Package postgres provides the PostgreSQL-backed implementations of the
// session store, connection store, and translation cache.
//
// All three share a single [pgxpool.Pool]. [Migrate] is idempotent and runs
// on every start. Conditional semantics match internal/store's in-memory
// implementations: single-statement conditional UPDATEs give the same
// linearizable counter behavior across processes.
//
// Usage:
//
//	st, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	sessions := st.Sessions()
//	conns := st.Connections()
//	cache := st.Cache()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id                      TEXT              PRIMARY KEY,
    speaker_connection_id   TEXT              NOT NULL,
    speaker_user_id         TEXT              NOT NULL DEFAULT '',
    source_language         TEXT              NOT NULL,
    quality_tier            TEXT              NOT NULL DEFAULT 'standard',
    created_at              BIGINT            NOT NULL,
    expires_at              BIGINT            NOT NULL,
    is_active               BOOLEAN           NOT NULL DEFAULT TRUE,
    listener_count          INTEGER           NOT NULL DEFAULT 0,
    broadcast               JSONB             NOT NULL DEFAULT '{}',
    partial_results_enabled BOOLEAN,
    min_stability           DOUBLE PRECISION,
    max_buffer_timeout_ms   BIGINT
);

CREATE INDEX IF NOT EXISTS idx_sessions_active
    ON sessions (is_active, expires_at);
`

const ddlConnections = `
CREATE TABLE IF NOT EXISTS connections (
    id               TEXT    PRIMARY KEY,
    session_id       TEXT    NOT NULL,
    role             TEXT    NOT NULL,
    target_language  TEXT,
    connected_at     BIGINT  NOT NULL,
    last_activity_at BIGINT  NOT NULL DEFAULT 0,
    ttl              BIGINT  NOT NULL,
    ip_address       TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_connections_session
    ON connections (session_id);

CREATE INDEX IF NOT EXISTS idx_connections_session_language
    ON connections (session_id, target_language);
`

const ddlTranslationCache = `
CREATE TABLE IF NOT EXISTS translation_cache (
    key              TEXT         PRIMARY KEY,
    translation      TEXT         NOT NULL,
    access_count     BIGINT       NOT NULL DEFAULT 0,
    last_accessed_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
    expires_at       TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_translation_cache_expiry
    ON translation_cache (expires_at);

CREATE INDEX IF NOT EXISTS idx_translation_cache_eviction
    ON translation_cache (access_count, last_accessed_at);
`

// Migrate creates or ensures all required tables and indexes exist. It is
// idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlSessions,
		ddlConnections,
		ddlTranslationCache,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
