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

// CycleRepository handles the single-row cycle state machine
type CycleRepository struct {
	db *db.DB
}

// NewCycleRepository creates a new cycle repository
func NewCycleRepository(db *db.DB) *CycleRepository {
	return &CycleRepository{db: db}
}

// Get reads the current cycle
func (r *CycleRepository) Get(ctx context.Context) (*models.Cycle, error) {
	query := `
		SELECT state, version, drawn_draw_id, drawn_sequence, drawn_roster_size, drawn_at, updated_at
		FROM cycle_state
		WHERE id = 1
	`

	cycle := &models.Cycle{}
	err := r.db.QueryRow(ctx, query).Scan(
		&cycle.State,
		&cycle.Version,
		&cycle.DrawID,
		&cycle.Sequence,
		&cycle.RosterSize,
		&cycle.DrawnAt,
		&cycle.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("cycle state row missing: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle state: %w", err)
	}

	return cycle, nil
}

// Freeze moves open -> frozen. Returns false when the cycle was not open.
func (r *CycleRepository) Freeze(ctx context.Context) (bool, error) {
	query := `
		UPDATE cycle_state
		SET state = 'frozen', version = version + 1, updated_at = NOW()
		WHERE id = 1 AND state = 'open'
	`

	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return false, fmt.Errorf("failed to freeze cycle: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Claim performs the compare-and-swap frozen -> drawn for the version the
// caller read. Returns false when another caller moved the cycle first.
func (r *CycleRepository) Claim(ctx context.Context, version int64, claim models.Claim) (bool, error) {
	query := `
		UPDATE cycle_state
		SET state = 'drawn', version = version + 1,
		    drawn_draw_id = $2, drawn_sequence = $3, drawn_roster_size = $4, drawn_at = $5,
		    updated_at = NOW()
		WHERE id = 1 AND state = 'frozen' AND version = $1
	`

	tag, err := r.db.Exec(ctx, query,
		version,
		claim.DrawID,
		claim.Sequence,
		claim.RosterSize,
		claim.DrawnAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim cycle: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Reset clears the roster and reopens the cycle in one transaction,
// whatever the current state. Returns the number of entries removed.
func (r *CycleRepository) Reset(ctx context.Context) (int64, error) {
	return r.reset(ctx, nil)
}

// ResetDrawn is Reset guarded on the cycle still holding drawID's claim.
// Returns -1 when the guard fails, so a late duplicate cannot wipe a
// roster admitted after the cycle already reopened.
func (r *CycleRepository) ResetDrawn(ctx context.Context, drawID uuid.UUID) (int64, error) {
	return r.reset(ctx, &drawID)
}

func (r *CycleRepository) reset(ctx context.Context, drawID *uuid.UUID) (int64, error) {
	cleared := int64(-1)

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			UPDATE cycle_state
			SET state = 'open', version = version + 1,
			    drawn_draw_id = NULL, drawn_sequence = NULL, drawn_roster_size = NULL, drawn_at = NULL,
			    updated_at = NOW()
			WHERE id = 1
		`
		args := []any{}
		if drawID != nil {
			query += ` AND state = 'drawn' AND drawn_draw_id = $1`
			args = append(args, *drawID)
		}

		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to reopen cycle: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		cleared, err = clearRoster(ctx, tx)
		return err
	})
	if err != nil {
		return 0, err
	}

	return cleared, nil
}
