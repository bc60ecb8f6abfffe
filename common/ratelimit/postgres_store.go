package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/openraffle/raffle/common/db"
)

// PostgresStore keeps records in the rate_limit_record table.
// Attempts on one key are serialized with a transaction-scoped advisory lock.
type PostgresStore struct {
	db *db.DB
}

// NewPostgresStore creates a Postgres-backed store
func NewPostgresStore(database *db.DB) *PostgresStore {
	return &PostgresStore{db: database}
}

// Attempt implements Store
func (s *PostgresStore) Attempt(ctx context.Context, rec Record, limit Limit) (Window, error) {
	var win Window

	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return win, fmt.Errorf("marshal rate limit metadata: %w", err)
	}
	if rec.Metadata == nil {
		metadata = []byte("{}")
	}

	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		key := storeKey(rec.Identifier, rec.Operation)
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("lock rate limit key: %w", err)
		}

		var oldest *time.Time
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*), MIN(observed_at)
			FROM rate_limit_record
			WHERE identifier = $1 AND operation_type = $2 AND observed_at >= $3
		`, rec.Identifier, string(rec.Operation), rec.ObservedAt.Add(-limit.Window)).Scan(&win.Count, &oldest)
		if err != nil {
			return fmt.Errorf("count rate limit window: %w", err)
		}
		if oldest != nil {
			win.Oldest = *oldest
		}

		if win.Count >= limit.MaxRequests {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO rate_limit_record (identifier, operation_type, observed_at, consecutive_attempts, metadata)
			VALUES ($1, $2, $3, $4, $5::jsonb)
		`, rec.Identifier, string(rec.Operation), rec.ObservedAt, win.Count+1, string(metadata))
		if err != nil {
			return fmt.Errorf("insert rate limit record: %w", err)
		}
		win.Recorded = true
		return nil
	})
	if err != nil {
		return Window{}, err
	}
	return win, nil
}

// Prune implements Store
func (s *PostgresStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM rate_limit_record WHERE observed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete old rate limit records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping implements Store
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Health(ctx)
}
