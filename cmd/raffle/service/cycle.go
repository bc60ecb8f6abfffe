package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openraffle/raffle/cmd/raffle/models"
	"github.com/openraffle/raffle/common/logger"
)

// CycleService handles freeze, reset and status of the cycle
type CycleService struct {
	roster  RosterStore
	cycles  CycleStore
	draws   DrawStore
	log     *logger.Logger
	timeout time.Duration
}

// NewCycleService creates a new cycle service
func NewCycleService(roster RosterStore, cycles CycleStore, draws DrawStore, log *logger.Logger, timeout time.Duration) *CycleService {
	return &CycleService{
		roster:  roster,
		cycles:  cycles,
		draws:   draws,
		log:     log,
		timeout: timeout,
	}
}

// FreezeResult says whether Freeze moved the cycle
type FreezeResult struct {
	Changed bool              `json:"changed"`
	State   models.CycleState `json:"state"`
}

// Freeze closes admissions. A cycle that is already frozen or drawn is left alone.
func (s *CycleService) Freeze(ctx context.Context) (*FreezeResult, error) {
	ctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	changed, err := s.cycles.Freeze(ctx)
	if err != nil {
		return nil, storeError("freeze", err)
	}

	cycle, err := s.cycles.Get(ctx)
	if err != nil {
		return nil, storeError("read cycle", err)
	}

	if changed {
		s.log.Info("cycle frozen", "version", cycle.Version)
	}
	return &FreezeResult{Changed: changed, State: cycle.State}, nil
}

// ResetResult reports a reset
type ResetResult struct {
	Cleared int64 `json:"cleared"`
	// Skipped is set when a guarded reset found the cycle no longer holding its draw
	Skipped bool `json:"skipped,omitempty"`
}

// Reset clears the roster and reopens admissions from any state. Idempotent.
func (s *CycleService) Reset(ctx context.Context) (*ResetResult, error) {
	ctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	cleared, err := s.cycles.Reset(ctx)
	if err != nil {
		return nil, storeError("reset", err)
	}

	s.log.Info("cycle reset", "cleared", cleared)
	return &ResetResult{Cleared: cleared}, nil
}

// ResetAfterDraw resets only while the cycle still holds drawID's claim
func (s *CycleService) ResetAfterDraw(ctx context.Context, drawID uuid.UUID) (*ResetResult, error) {
	ctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	cleared, err := s.cycles.ResetDrawn(ctx, drawID)
	if err != nil {
		return nil, storeError("reset", err)
	}
	if cleared < 0 {
		s.log.Info("cycle already reset for draw", "draw_id", drawID)
		return &ResetResult{Skipped: true}, nil
	}

	s.log.Info("cycle reset after draw", "draw_id", drawID, "cleared", cleared)
	return &ResetResult{Cleared: cleared}, nil
}

// Status is the read-only view of the cycle
type Status struct {
	State         models.CycleState  `json:"state"`
	Frozen        bool               `json:"frozen"`
	Version       int64              `json:"version"`
	RosterSize    int                `json:"roster_size"`
	PendingDrawID *uuid.UUID         `json:"pending_draw_id,omitempty"`
	LastDraw      *models.DrawRecord `json:"last_draw,omitempty"`
}

// Status reads the cycle, roster size and most recent draw
func (s *CycleService) Status(ctx context.Context) (*Status, error) {
	ctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	cycle, err := s.cycles.Get(ctx)
	if err != nil {
		return nil, storeError("read cycle", err)
	}

	size, err := s.roster.Count(ctx)
	if err != nil {
		return nil, storeError("count roster", err)
	}

	recent, err := s.draws.List(ctx, 1)
	if err != nil {
		return nil, storeError("read last draw", err)
	}

	status := &Status{
		State:         cycle.State,
		Frozen:        cycle.Frozen(),
		Version:       cycle.Version,
		RosterSize:    size,
		PendingDrawID: cycle.DrawID,
	}
	if len(recent) > 0 {
		status.LastDraw = &recent[0]
	}
	return status, nil
}
