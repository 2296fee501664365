// internal/store/store.go
// Package store is the optional Postgres archive of completed interactions.
// It is wired in only when database.url is configured; the CLI works fully
// without it.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Close()
}

// Record is one archived interaction.
type Record struct {
	ID        string
	SessionID string
	Query     string
	Content   string
	Model     string
	TimedOut  bool
	CreatedAt time.Time
}

// Store provides the PostgreSQL response archive.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// Connect opens a pool against the URL, verifies the connection, and ensures
// the schema exists.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS responses (
		id         UUID PRIMARY KEY,
		session_id TEXT NOT NULL,
		query      TEXT NOT NULL,
		content    TEXT NOT NULL,
		model      TEXT NOT NULL DEFAULT '',
		timed_out  BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	);
`

// EnsureSchema creates the responses table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

const insertSQL = `
	INSERT INTO responses (id, session_id, query, content, model, timed_out, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7);
`

// SaveResponse archives one completed interaction. Timestamps are stored in
// UTC to avoid ambiguity.
func (s *Store) SaveResponse(ctx context.Context, rec Record) error {
	createdAt := rec.CreatedAt.UTC()
	if _, err := s.pool.Exec(ctx, insertSQL,
		rec.ID, rec.SessionID, rec.Query, rec.Content, rec.Model, rec.TimedOut, createdAt); err != nil {
		return fmt.Errorf("failed to insert response %s: %w", rec.ID, err)
	}

	s.log.Debug("Response archived",
		zap.String("id", rec.ID),
		zap.String("session_id", rec.SessionID),
		zap.Int("content_len", len(rec.Content)))
	return nil
}

const recentSQL = `
	SELECT id, session_id, query, content, model, timed_out, created_at
	FROM responses
	ORDER BY created_at DESC
	LIMIT $1;
`

// Recent returns the newest archived responses, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx, recentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Query, &r.Content, &r.Model, &r.TimedOut, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan response row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
