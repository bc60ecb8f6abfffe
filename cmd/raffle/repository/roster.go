package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/openraffle/raffle/cmd/raffle/models"
	"github.com/openraffle/raffle/common/db"
)

// RosterRepository handles database operations for the current roster
type RosterRepository struct {
	db *db.DB
}

// NewRosterRepository creates a new roster repository
func NewRosterRepository(db *db.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// Insert adds one entry and returns the stored row. admitted_at is assigned
// by the database at insert time, so admission order is commit-side order.
func (r *RosterRepository) Insert(ctx context.Context, entry models.CandidateEntry) (models.CandidateEntry, error) {
	query := `
		INSERT INTO roster_entry (display_name, chosen_affiliate, reward_platform)
		VALUES ($1, $2, $3)
		RETURNING id, admitted_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.DisplayName,
		entry.ChosenAffiliate,
		entry.RewardPlatform,
	).Scan(&entry.ID, &entry.AdmittedAt)

	if err != nil {
		return models.CandidateEntry{}, fmt.Errorf("failed to insert roster entry: %w", err)
	}

	return entry, nil
}

// BulkInsert copies all entries in one statement. Either every row lands or none.
func (r *RosterRepository) BulkInsert(ctx context.Context, entries []models.CandidateEntry) (int64, error) {
	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = []any{e.DisplayName, e.ChosenAffiliate, string(e.RewardPlatform)}
	}

	n, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"roster_entry"},
		[]string{"display_name", "chosen_affiliate", "reward_platform"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk insert roster entries: %w", err)
	}

	return n, nil
}

// ReadAll returns the full roster in admission order
func (r *RosterRepository) ReadAll(ctx context.Context) ([]models.CandidateEntry, error) {
	query := `
		SELECT id, display_name, chosen_affiliate, reward_platform, admitted_at
		FROM roster_entry
		ORDER BY admitted_at, id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}

	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.CandidateEntry])
	if err != nil {
		return nil, fmt.Errorf("failed to scan roster: %w", err)
	}

	return entries, nil
}

// Count returns the roster size
func (r *RosterRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM roster_entry`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count roster: %w", err)
	}
	return n, nil
}

// clearRoster deletes every entry inside tx. It runs only as part of
// reopening the cycle.
func clearRoster(ctx context.Context, tx pgx.Tx) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM roster_entry`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear roster: %w", err)
	}
	return tag.RowsAffected(), nil
}
