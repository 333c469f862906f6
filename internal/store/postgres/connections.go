package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lingocast/lingocast/internal/store"
)

// Connections is the PostgreSQL [store.ConnectionStore].
//
// Obtain one via [Store.Connections] rather than constructing directly.
type Connections struct {
	pool *pgxpool.Pool
}

const connectionColumns = `
	id, session_id, role, target_language, connected_at,
	last_activity_at, ttl, ip_address`

// CreateConnection implements [store.ConnectionStore].
func (c *Connections) CreateConnection(ctx context.Context, conn store.Connection) error {
	const q = `
		INSERT INTO connections (` + connectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	tag, err := c.pool.Exec(ctx, q,
		conn.ID,
		conn.SessionID,
		string(conn.Role),
		conn.TargetLanguage,
		conn.ConnectedAt,
		conn.LastActivityAt,
		conn.TTL,
		conn.IPAddress,
	)
	if err != nil {
		return fmt.Errorf("connection store: create: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConditionalFailed
	}
	return nil
}

// GetConnection implements [store.ConnectionStore].
func (c *Connections) GetConnection(ctx context.Context, id string) (store.Connection, error) {
	const q = `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	conn, err := scanConnection(c.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Connection{}, store.ErrNotFound
	}
	if err != nil {
		return store.Connection{}, fmt.Errorf("connection store: get: %w", err)
	}
	return conn, nil
}

// DeleteConnection implements [store.ConnectionStore]. Deleting a missing
// connection is not an error.
func (c *Connections) DeleteConnection(ctx context.Context, id string) error {
	const q = `DELETE FROM connections WHERE id = $1`
	if _, err := c.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("connection store: delete: %w", err)
	}
	return nil
}

// TouchConnection implements [store.ConnectionStore].
func (c *Connections) TouchConnection(ctx context.Context, id string, atMillis int64) error {
	const q = `UPDATE connections SET last_activity_at = $2 WHERE id = $1`
	tag, err := c.pool.Exec(ctx, q, id, atMillis)
	if err != nil {
		return fmt.Errorf("connection store: touch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdateTargetLanguage implements [store.ConnectionStore].
func (c *Connections) UpdateTargetLanguage(ctx context.Context, id, language string) error {
	const q = `UPDATE connections SET target_language = $2 WHERE id = $1`
	tag, err := c.pool.Exec(ctx, q, id, language)
	if err != nil {
		return fmt.Errorf("connection store: update language: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListenersByLanguage implements [store.ConnectionStore].
func (c *Connections) ListenersByLanguage(ctx context.Context, sessionID, language string) ([]string, error) {
	const q = `
		SELECT id
		FROM   connections
		WHERE  session_id = $1 AND role = 'listener' AND target_language = $2
		ORDER  BY id`

	rows, err := c.pool.Query(ctx, q, sessionID, language)
	if err != nil {
		return nil, fmt.Errorf("connection store: listeners by language: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("connection store: scan rows: %w", err)
	}
	return ids, nil
}

// UniqueTargetLanguages implements [store.ConnectionStore].
func (c *Connections) UniqueTargetLanguages(ctx context.Context, sessionID string) ([]string, error) {
	const q = `
		SELECT DISTINCT target_language
		FROM   connections
		WHERE  session_id = $1 AND role = 'listener' AND target_language IS NOT NULL
		ORDER  BY target_language`

	rows, err := c.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("connection store: unique languages: %w", err)
	}
	langs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("connection store: scan rows: %w", err)
	}
	return langs, nil
}

// ScanConnections implements [store.ConnectionStore]. Pages are keyset
// paginated on the connection ID.
func (c *Connections) ScanConnections(ctx context.Context, pageSize int, cursor string) ([]store.Connection, string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	const q = `
		SELECT ` + connectionColumns + `
		FROM   connections
		WHERE  $1 = '' OR id > $1
		ORDER  BY id
		LIMIT  $2`

	rows, err := c.pool.Query(ctx, q, cursor, pageSize+1)
	if err != nil {
		return nil, "", fmt.Errorf("connection store: scan: %w", err)
	}
	conns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Connection, error) {
		return scanConnection(row)
	})
	if err != nil {
		return nil, "", fmt.Errorf("connection store: scan rows: %w", err)
	}

	next := ""
	if len(conns) > pageSize {
		conns = conns[:pageSize]
		next = conns[len(conns)-1].ID
	}
	return conns, next, nil
}

// BatchDelete implements [store.ConnectionStore]. Missing IDs are treated
// as already deleted, so the failed list is empty unless the statement
// itself fails.
func (c *Connections) BatchDelete(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `DELETE FROM connections WHERE id = ANY($1)`
	if _, err := c.pool.Exec(ctx, q, ids); err != nil {
		return ids, fmt.Errorf("connection store: batch delete: %w", err)
	}
	return nil, nil
}

// scanConnection reads one connection row.
func scanConnection(row pgx.Row) (store.Connection, error) {
	var (
		conn store.Connection
		role string
	)
	err := row.Scan(
		&conn.ID,
		&conn.SessionID,
		&role,
		&conn.TargetLanguage,
		&conn.ConnectedAt,
		&conn.LastActivityAt,
		&conn.TTL,
		&conn.IPAddress,
	)
	if err != nil {
		return store.Connection{}, err
	}
	conn.Role = store.Role(role)
	return conn, nil
}
