package models

import (
	"time"

	"github.com/google/uuid"
)

// CycleState is the raffle lifecycle position
type CycleState string

const (
	// CycleOpen accepts admissions
	CycleOpen CycleState = "open"
	// CycleFrozen rejects admissions and waits for a draw
	CycleFrozen CycleState = "frozen"
	// CycleDrawn has a claimed draw; archive and reset may still be pending
	CycleDrawn CycleState = "drawn"
)

// Cycle is the single-row state machine
// Maps to: cycle_state table
type Cycle struct {
	State   CycleState `db:"state" json:"state"`
	Version int64      `db:"version" json:"version"`

	// Claim fields, set only while State is drawn
	DrawID     *uuid.UUID `db:"drawn_draw_id" json:"drawn_draw_id,omitempty"`
	Sequence   *int       `db:"drawn_sequence" json:"drawn_sequence,omitempty"`
	RosterSize *int       `db:"drawn_roster_size" json:"drawn_roster_size,omitempty"`
	DrawnAt    *time.Time `db:"drawn_at" json:"drawn_at,omitempty"`

	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Frozen is the flag exposed to callers: anything but open rejects admissions
func (c *Cycle) Frozen() bool {
	return c.State != CycleOpen
}

// Claim is what a draw writes into the cycle row when it wins the CAS
type Claim struct {
	DrawID     uuid.UUID
	Sequence   int
	RosterSize int
	DrawnAt    time.Time
}
