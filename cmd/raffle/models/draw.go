package models

import (
	"time"

	"github.com/google/uuid"
)

// DrawRecord is the immutable result of one realized draw
// Maps to: draw_record table
type DrawRecord struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	DrawnAt         time.Time      `db:"drawn_at" json:"drawn_at"`
	WinnerName      string         `db:"winner_name" json:"winner_name"`
	WinnerAffiliate string         `db:"winner_affiliate" json:"winner_affiliate"`
	RewardPlatform  RewardPlatform `db:"reward_platform" json:"reward_platform"`

	// 1-based position of the winner in the roster read used for selection
	SequenceNumber int `db:"sequence_number" json:"sequence_number"`
	RosterSize     int `db:"roster_size" json:"roster_size"`

	// Cycle version that was claimed
	CycleVersion int64 `db:"cycle_version" json:"cycle_version"`
}

// RosterSnapshotEntry is one archived roster row of a draw
// Maps to: roster_snapshot_entry table
type RosterSnapshotEntry struct {
	DrawID           uuid.UUID      `db:"draw_id" json:"draw_id"`
	DisplayName      string         `db:"display_name" json:"display_name"`
	ChosenAffiliate  string         `db:"chosen_affiliate" json:"chosen_affiliate"`
	RewardPlatform   RewardPlatform `db:"reward_platform" json:"reward_platform"`
	OriginalPosition int            `db:"original_position" json:"original_position"`
}

// SnapshotFromRoster builds snapshot rows for drawID in admission order
func SnapshotFromRoster(drawID uuid.UUID, roster []CandidateEntry) []RosterSnapshotEntry {
	out := make([]RosterSnapshotEntry, len(roster))
	for i, e := range roster {
		out[i] = RosterSnapshotEntry{
			DrawID:           drawID,
			DisplayName:      e.DisplayName,
			ChosenAffiliate:  e.ChosenAffiliate,
			RewardPlatform:   e.RewardPlatform,
			OriginalPosition: i + 1,
		}
	}
	return out
}
