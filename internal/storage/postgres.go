// Package storage persists materialized document snapshots to Postgres.
// The collaboration core holds the operation log and version in memory;
// this sink is the persist-on-interval collaborator that makes the replayed
// text durable.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS document_snapshots (
	doc_id     TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	version    BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// SnapshotStore stores one row per document, upserted to the latest version.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres and ensures the snapshot table exists.
func Open(ctx context.Context, databaseURL string) (*SnapshotStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &SnapshotStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *SnapshotStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create snapshot table: %w", err)
	}
	return nil
}

// Save upserts a snapshot. Rows never move backwards: a stale flush racing a
// fresher one is discarded by the version guard.
func (s *SnapshotStore) Save(ctx context.Context, docID, content string, version int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO document_snapshots (doc_id, content, version, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (doc_id) DO UPDATE
		SET content = EXCLUDED.content, version = EXCLUDED.version, updated_at = now()
		WHERE document_snapshots.version < EXCLUDED.version`,
		docID, content, version)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", docID, err)
	}
	return nil
}

// Load returns the stored snapshot for a document, with found=false for a
// never-saved document.
func (s *SnapshotStore) Load(ctx context.Context, docID string) (content string, version int, found bool, err error) {
	row := s.pool.QueryRow(ctx,
		`SELECT content, version FROM document_snapshots WHERE doc_id = $1`, docID)
	if err := row.Scan(&content, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, false, nil
		}
		return "", 0, false, fmt.Errorf("load snapshot %s: %w", docID, err)
	}
	return content, version, true, nil
}

// Close releases the connection pool.
func (s *SnapshotStore) Close() {
	s.pool.Close()
}
