package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lingocast/lingocast/internal/store"
	"github.com/lingocast/lingocast/internal/translate"
)

// Compile-time interface checks.
var (
	_ store.SessionStore    = (*Sessions)(nil)
	_ store.ConnectionStore = (*Connections)(nil)
	_ translate.CacheStore  = (*Cache)(nil)
)

// Store is the central PostgreSQL-backed store. It holds a single
// [pgxpool.Pool] and exposes the three persistence surfaces:
//
//   - [Store.Sessions] implements [store.SessionStore]
//   - [Store.Connections] implements [store.ConnectionStore]
//   - [Store.Cache] implements [translate.CacheStore]
//
// All operations are safe for concurrent use.
type Store struct {
	pool        *pgxpool.Pool
	sessions    *Sessions
	connections *Connections
	cache       *Cache
}

// New creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, and runs [Migrate] to ensure all tables exist.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{
		pool:        pool,
		sessions:    &Sessions{pool: pool},
		connections: &Connections{pool: pool},
		cache:       &Cache{pool: pool},
	}, nil
}

// Sessions returns the session store implementation.
func (s *Store) Sessions() *Sessions { return s.sessions }

// Connections returns the connection store implementation.
func (s *Store) Connections() *Connections { return s.connections }

// Cache returns the translation cache implementation.
func (s *Store) Cache() *Cache { return s.cache }

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
