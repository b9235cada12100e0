// Package capture persists the email addresses collected by the export
// gate. Capture is best effort; a failed insert is logged by the caller and
// never blocks a download.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store records one export request per accepted email.
type Store interface {
	Record(ctx context.Context, email string, requestedLimit int) error
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS export_captures (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL,
	requested_limit INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

// NewPostgresStore connects to the capture database and ensures the table
// exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("capture: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("capture: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("capture: ensure table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Record inserts one capture row stamped with the request time.
func (s *PostgresStore) Record(ctx context.Context, email string, requestedLimit int) error {
	const query = `INSERT INTO export_captures (id, email, requested_limit, created_at) VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, query, uuid.New(), email, requestedLimit, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("capture: record %s: %w", email, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
