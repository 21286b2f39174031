// Package postgres stores the preference document in a single-row JSONB
// table. It suits deployments where the client state should live next to
// the backend's own database.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MihirPatel5/WhisperBrain/pkg/prefs"
)

// Compile-time interface check.
var _ prefs.Store = (*Store)(nil)

// The CHECK constraint pins the table to one row; Save is an upsert
// against it.
const ddlPreferences = `
CREATE TABLE IF NOT EXISTS preferences (
    id         SMALLINT     PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    document   JSONB        NOT NULL,
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Store is a PostgreSQL-backed [prefs.Store]. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn and runs
// [Migrate] to ensure the preferences table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate creates the preferences table if it does not exist. It is safe
// to run repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlPreferences); err != nil {
		return fmt.Errorf("create preferences table: %w", err)
	}
	return nil
}

// Load reads the stored document. An empty table is reported as
// [prefs.ErrNotFound].
func (s *Store) Load(ctx context.Context) (prefs.Preferences, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM preferences WHERE id = 1`).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return prefs.Preferences{}, fmt.Errorf("postgres: %w", prefs.ErrNotFound)
	}
	if err != nil {
		return prefs.Preferences{}, fmt.Errorf("postgres: select document: %w", err)
	}

	var p prefs.Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return prefs.Preferences{}, fmt.Errorf("postgres: decode document: %w", err)
	}
	return p, nil
}

// Save upserts the single document row.
func (s *Store) Save(ctx context.Context, p prefs.Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("postgres: encode document: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO preferences (id, document, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE
		SET document = EXCLUDED.document, updated_at = now()`,
		data,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert document: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
