package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/openraffle/raffle/cmd/raffle/models"
	"github.com/openraffle/raffle/common/db"
)

// DrawRepository handles draw history and roster snapshots
type DrawRepository struct {
	db *db.DB
}

// NewDrawRepository creates a new draw repository
func NewDrawRepository(db *db.DB) *DrawRepository {
	return &DrawRepository{db: db}
}

const insertDrawRecord = `
	INSERT INTO draw_record (id, drawn_at, winner_name, winner_affiliate, reward_platform, sequence_number, roster_size, cycle_version)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING
`

func drawRecordArgs(rec *models.DrawRecord) []any {
	return []any{
		rec.ID,
		rec.DrawnAt,
		rec.WinnerName,
		rec.WinnerAffiliate,
		rec.RewardPlatform,
		rec.SequenceNumber,
		rec.RosterSize,
		rec.CycleVersion,
	}
}

// InsertRecordWithSnapshot writes the record and the whole snapshot in one
// transaction, the snapshot through COPY. Fails if any snapshot row exists.
func (r *DrawRepository) InsertRecordWithSnapshot(ctx context.Context, rec *models.DrawRecord, snapshot []models.RosterSnapshotEntry) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertDrawRecord, drawRecordArgs(rec)...); err != nil {
			return fmt.Errorf("failed to insert draw record: %w", err)
		}

		rows := make([][]any, len(snapshot))
		for i, s := range snapshot {
			rows[i] = []any{s.DrawID, s.DisplayName, s.ChosenAffiliate, string(s.RewardPlatform), s.OriginalPosition}
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"roster_snapshot_entry"},
			[]string{"draw_id", "display_name", "chosen_affiliate", "reward_platform", "original_position"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to copy roster snapshot: %w", err)
		}
		return nil
	})
}

// InsertRecord writes the draw record if absent
func (r *DrawRepository) InsertRecord(ctx context.Context, rec *models.DrawRecord) error {
	if _, err := r.db.Exec(ctx, insertDrawRecord, drawRecordArgs(rec)...); err != nil {
		return fmt.Errorf("failed to insert draw record: %w", err)
	}
	return nil
}

// InsertSnapshotEntry writes one snapshot row if absent
func (r *DrawRepository) InsertSnapshotEntry(ctx context.Context, entry models.RosterSnapshotEntry) error {
	query := `
		INSERT INTO roster_snapshot_entry (draw_id, display_name, chosen_affiliate, reward_platform, original_position)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (draw_id, original_position) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query,
		entry.DrawID,
		entry.DisplayName,
		entry.ChosenAffiliate,
		entry.RewardPlatform,
		entry.OriginalPosition,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot entry %d: %w", entry.OriginalPosition, err)
	}
	return nil
}

const selectDrawRecord = `
	SELECT id, drawn_at, winner_name, winner_affiliate, reward_platform, sequence_number, roster_size, cycle_version
	FROM draw_record
`

// Get retrieves one draw
func (r *DrawRepository) Get(ctx context.Context, id uuid.UUID) (*models.DrawRecord, error) {
	rows, err := r.db.Query(ctx, selectDrawRecord+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get draw: %w", err)
	}

	rec, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[models.DrawRecord])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("draw %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan draw: %w", err)
	}

	return rec, nil
}

// List returns the most recent draws first
func (r *DrawRepository) List(ctx context.Context, limit int) ([]models.DrawRecord, error) {
	rows, err := r.db.Query(ctx, selectDrawRecord+` ORDER BY drawn_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list draws: %w", err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.DrawRecord])
	if err != nil {
		return nil, fmt.Errorf("failed to scan draws: %w", err)
	}

	return records, nil
}

// Snapshot returns the archived roster of a draw in original order
func (r *DrawRepository) Snapshot(ctx context.Context, drawID uuid.UUID) ([]models.RosterSnapshotEntry, error) {
	query := `
		SELECT draw_id, display_name, chosen_affiliate, reward_platform, original_position
		FROM roster_snapshot_entry
		WHERE draw_id = $1
		ORDER BY original_position
	`

	rows, err := r.db.Query(ctx, query, drawID)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.RosterSnapshotEntry])
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	return entries, nil
}

// SnapshotCount returns how many snapshot rows a draw has
func (r *DrawRepository) SnapshotCount(ctx context.Context, drawID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM roster_snapshot_entry WHERE draw_id = $1`, drawID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshot: %w", err)
	}
	return n, nil
}
