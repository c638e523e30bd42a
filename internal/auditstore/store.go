package auditstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avelis/boardsync/internal/auditlog"
)

// Store persists audit log batches to the audit_log table.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Postgres-backed audit sink.
func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// PersistLogBatch writes all entries in one batch. Any statement failure
// fails the whole batch so the batcher can requeue it intact.
func (s *Store) PersistLogBatch(ctx context.Context, entries []auditlog.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		var metadata []byte
		if e.Metadata != nil {
			m, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata for %s: %w", e.Action, err)
			}
			metadata = m
		}
		batch.Queue(`
			INSERT INTO audit_log (action, status, detail, metadata, created_at, retry_count)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, e.Action, string(e.Status), e.Detail, metadata, e.Timestamp, e.RetryCount)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert audit batch: %w", err)
		}
	}

	return nil
}
