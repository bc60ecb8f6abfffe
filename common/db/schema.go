package db

import (
	"context"
	"fmt"
)

// CreateSchema creates all tables needed by the raffle service.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *DB) error {
	ctx := context.Background()

	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	db.log.Info("database schema ready")
	return nil
}

const schema = `
-- Current roster (open cycle only)
CREATE TABLE IF NOT EXISTS roster_entry (
    id BIGSERIAL PRIMARY KEY,
    display_name TEXT NOT NULL CHECK (char_length(display_name) BETWEEN 1 AND 25),
    chosen_affiliate TEXT NOT NULL CHECK (char_length(chosen_affiliate) BETWEEN 1 AND 25),
    reward_platform TEXT NOT NULL,
    admitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_roster_entry_admitted ON roster_entry(admitted_at, id);

-- Single-row cycle state machine
CREATE TABLE IF NOT EXISTS cycle_state (
    id SMALLINT PRIMARY KEY CHECK (id = 1),
    state TEXT NOT NULL DEFAULT 'open' CHECK (state IN ('open', 'frozen', 'drawn')),
    version BIGINT NOT NULL DEFAULT 1,
    drawn_draw_id UUID,
    drawn_sequence INTEGER,
    drawn_roster_size INTEGER,
    drawn_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

INSERT INTO cycle_state (id) VALUES (1) ON CONFLICT (id) DO NOTHING;

-- Draw history
CREATE TABLE IF NOT EXISTS draw_record (
    id UUID PRIMARY KEY,
    drawn_at TIMESTAMPTZ NOT NULL,
    winner_name TEXT NOT NULL,
    winner_affiliate TEXT NOT NULL,
    reward_platform TEXT NOT NULL,
    sequence_number INTEGER NOT NULL CHECK (sequence_number >= 1),
    roster_size INTEGER NOT NULL CHECK (roster_size >= sequence_number),
    cycle_version BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_draw_record_drawn_at ON draw_record(drawn_at DESC);

CREATE TABLE IF NOT EXISTS roster_snapshot_entry (
    draw_id UUID NOT NULL REFERENCES draw_record(id),
    original_position INTEGER NOT NULL CHECK (original_position >= 1),
    display_name TEXT NOT NULL,
    chosen_affiliate TEXT NOT NULL,
    reward_platform TEXT NOT NULL,
    PRIMARY KEY (draw_id, original_position)
);

-- Sliding-window admission control
CREATE TABLE IF NOT EXISTS rate_limit_record (
    id BIGSERIAL PRIMARY KEY,
    identifier TEXT NOT NULL,
    operation_type TEXT NOT NULL,
    observed_at TIMESTAMPTZ NOT NULL,
    consecutive_attempts INTEGER NOT NULL DEFAULT 1,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_rate_limit_window ON rate_limit_record(identifier, operation_type, observed_at);
CREATE INDEX IF NOT EXISTS idx_rate_limit_observed ON rate_limit_record(observed_at);
`
