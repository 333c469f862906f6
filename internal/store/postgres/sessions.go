package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lingocast/lingocast/internal/store"
)

// Sessions is the PostgreSQL [store.SessionStore]. Conditional mutations
// are single UPDATE statements whose WHERE clause carries the precondition,
// so concurrent processes cannot clobber each other.
//
// Obtain one via [Store.Sessions] rather than constructing directly.
type Sessions struct {
	pool *pgxpool.Pool
}

const sessionColumns = `
	id, speaker_connection_id, speaker_user_id, source_language,
	quality_tier, created_at, expires_at, is_active, listener_count,
	broadcast, partial_results_enabled, min_stability, max_buffer_timeout_ms`

// CreateSession implements [store.SessionStore].
func (s *Sessions) CreateSession(ctx context.Context, sess store.Session) error {
	broadcast, err := json.Marshal(sess.Broadcast)
	if err != nil {
		return fmt.Errorf("session store: encode broadcast state: %w", err)
	}

	var bufferMs *int64
	if sess.MaxBufferTimeout != nil {
		ms := sess.MaxBufferTimeout.Milliseconds()
		bufferMs = &ms
	}

	const q = `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, q,
		sess.ID,
		sess.SpeakerConnectionID,
		sess.SpeakerUserID,
		sess.SourceLanguage,
		sess.QualityTier,
		sess.CreatedAt,
		sess.ExpiresAt,
		sess.IsActive,
		sess.ListenerCount,
		broadcast,
		sess.PartialResultsEnabled,
		sess.MinStability,
		bufferMs,
	)
	if err != nil {
		return fmt.Errorf("session store: create: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConditionalFailed
	}
	return nil
}

// GetSession implements [store.SessionStore].
func (s *Sessions) GetSession(ctx context.Context, id string) (store.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	sess, err := scanSession(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Session{}, store.ErrNotFound
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("session store: get: %w", err)
	}
	return sess, nil
}

// IncrementListenerCount implements [store.SessionStore]. The increment is
// conditional on the session being active; a missing or inactive session
// fails the precondition.
func (s *Sessions) IncrementListenerCount(ctx context.Context, id string) (int, error) {
	const q = `
		UPDATE sessions
		SET    listener_count = listener_count + 1
		WHERE  id = $1 AND is_active
		RETURNING listener_count`

	var count int
	err := s.pool.QueryRow(ctx, q, id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrConditionalFailed
	}
	if err != nil {
		return 0, fmt.Errorf("session store: increment listeners: %w", err)
	}
	return count, nil
}

// DecrementListenerCount implements [store.SessionStore]. The count floors
// at zero.
func (s *Sessions) DecrementListenerCount(ctx context.Context, id string) (int, error) {
	const q = `
		UPDATE sessions
		SET    listener_count = GREATEST(listener_count - 1, 0)
		WHERE  id = $1
		RETURNING listener_count`

	var count int
	err := s.pool.QueryRow(ctx, q, id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("session store: decrement listeners: %w", err)
	}
	return count, nil
}

// UpdateSpeakerConnection implements [store.SessionStore].
func (s *Sessions) UpdateSpeakerConnection(ctx context.Context, id, connectionID string) error {
	const q = `
		UPDATE sessions
		SET    speaker_connection_id = $2
		WHERE  id = $1 AND is_active`

	tag, err := s.pool.Exec(ctx, q, id, connectionID)
	if err != nil {
		return fmt.Errorf("session store: update speaker connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConditionalFailed
	}
	return nil
}

// UpdateBroadcastState implements [store.SessionStore].
func (s *Sessions) UpdateBroadcastState(ctx context.Context, id string, state store.BroadcastState) error {
	broadcast, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session store: encode broadcast state: %w", err)
	}

	const q = `UPDATE sessions SET broadcast = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id, broadcast)
	if err != nil {
		return fmt.Errorf("session store: update broadcast state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkInactive implements [store.SessionStore].
func (s *Sessions) MarkInactive(ctx context.Context, id string) error {
	const q = `UPDATE sessions SET is_active = FALSE WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("session store: mark inactive: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListActiveSessions implements [store.SessionStore]. Pages are keyset
// paginated on the session ID.
func (s *Sessions) ListActiveSessions(ctx context.Context, pageSize int, cursor string) ([]store.Session, string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	// Fetch one extra row to decide whether another page exists.
	const q = `
		SELECT ` + sessionColumns + `
		FROM   sessions
		WHERE  is_active AND ($1 = '' OR id > $1)
		ORDER  BY id
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, cursor, pageSize+1)
	if err != nil {
		return nil, "", fmt.Errorf("session store: list active: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Session, error) {
		return scanSession(row)
	})
	if err != nil {
		return nil, "", fmt.Errorf("session store: scan rows: %w", err)
	}

	next := ""
	if len(sessions) > pageSize {
		sessions = sessions[:pageSize]
		next = sessions[len(sessions)-1].ID
	}
	return sessions, next, nil
}

// scanSession reads one session row.
func scanSession(row pgx.Row) (store.Session, error) {
	var (
		sess      store.Session
		broadcast []byte
		bufferMs  *int64
	)
	err := row.Scan(
		&sess.ID,
		&sess.SpeakerConnectionID,
		&sess.SpeakerUserID,
		&sess.SourceLanguage,
		&sess.QualityTier,
		&sess.CreatedAt,
		&sess.ExpiresAt,
		&sess.IsActive,
		&sess.ListenerCount,
		&broadcast,
		&sess.PartialResultsEnabled,
		&sess.MinStability,
		&bufferMs,
	)
	if err != nil {
		return store.Session{}, err
	}
	if len(broadcast) > 0 {
		if err := json.Unmarshal(broadcast, &sess.Broadcast); err != nil {
			return store.Session{}, fmt.Errorf("decode broadcast state: %w", err)
		}
	}
	if bufferMs != nil {
		d := time.Duration(*bufferMs) * time.Millisecond
		sess.MaxBufferTimeout = &d
	}
	return sess, nil
}
