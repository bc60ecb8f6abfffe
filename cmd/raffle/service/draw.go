package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/openraffle/raffle/cmd/raffle/models"
	"github.com/openraffle/raffle/cmd/raffle/repository"
	"github.com/openraffle/raffle/common/logger"
)

// Picker returns an index in [0, n)
type Picker func(n int) (int, error)

// CryptoPicker picks uniformly using crypto/rand
func CryptoPicker(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// Outcome is the result of a draw attempt. Not realized and already drawn
// are ordinary outcomes, not errors.
type Outcome struct {
	Realized     bool                    `json:"realized"`
	AlreadyDrawn bool                    `json:"already_drawn,omitempty"`
	Reason       string                  `json:"reason,omitempty"`
	Draw         *models.DrawRecord      `json:"draw,omitempty"`
	Roster       []models.CandidateEntry `json:"-"`
}

const (
	reasonNotFrozen    = "cycle is open; freeze it before drawing"
	reasonNoEntrants   = "no participants in this cycle"
	reasonAlreadyDrawn = "a winner was already drawn this cycle"
)

// DrawService is the only component that moves the cycle to drawn
type DrawService struct {
	roster  RosterStore
	cycles  CycleStore
	draws   DrawStore
	log     *logger.Logger
	pick    Picker
	timeout time.Duration
	now     func() time.Time
}

// NewDrawService creates a new draw service. A nil picker uses CryptoPicker.
func NewDrawService(roster RosterStore, cycles CycleStore, draws DrawStore, log *logger.Logger, pick Picker, timeout time.Duration) *DrawService {
	if pick == nil {
		pick = CryptoPicker
	}
	return &DrawService{
		roster:  roster,
		cycles:  cycles,
		draws:   draws,
		log:     log,
		pick:    pick,
		timeout: timeout,
		now:     time.Now,
	}
}

// Draw selects a winner from a frozen cycle. The roster is read once; that
// same read is used for selection and returned for archiving. The cycle
// moves to drawn through a version-stamped claim, so of two racing draws
// exactly one is realized.
func (s *DrawService) Draw(ctx context.Context) (*Outcome, error) {
	ctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	cycle, err := s.cycles.Get(ctx)
	if err != nil {
		return nil, storeError("read cycle", err)
	}

	switch cycle.State {
	case models.CycleOpen:
		return &Outcome{Reason: reasonNotFrozen}, nil
	case models.CycleDrawn:
		return &Outcome{AlreadyDrawn: true, Reason: reasonAlreadyDrawn}, nil
	}

	roster, err := s.roster.ReadAll(ctx)
	if err != nil {
		return nil, storeError("read roster", err)
	}
	if len(roster) == 0 {
		s.log.Info("draw not realized", "reason", reasonNoEntrants)
		return &Outcome{Reason: reasonNoEntrants}, nil
	}

	idx, err := s.pick(len(roster))
	if err != nil {
		return nil, fmt.Errorf("pick winner: %w", err)
	}
	if idx < 0 || idx >= len(roster) {
		return nil, fmt.Errorf("pick winner: index %d out of range [0,%d)", idx, len(roster))
	}

	winner := roster[idx]
	rec := &models.DrawRecord{
		ID:              uuid.New(),
		DrawnAt:         s.now().UTC(),
		WinnerName:      winner.DisplayName,
		WinnerAffiliate: winner.ChosenAffiliate,
		RewardPlatform:  winner.RewardPlatform,
		SequenceNumber:  idx + 1,
		RosterSize:      len(roster),
		CycleVersion:    cycle.Version,
	}

	claimed, err := s.cycles.Claim(ctx, cycle.Version, models.Claim{
		DrawID:     rec.ID,
		Sequence:   rec.SequenceNumber,
		RosterSize: rec.RosterSize,
		DrawnAt:    rec.DrawnAt,
	})
	if err != nil {
		return nil, storeError("claim cycle", err)
	}
	if !claimed {
		s.log.Info("draw claim lost to a concurrent draw", "version", cycle.Version)
		return &Outcome{AlreadyDrawn: true, Reason: reasonAlreadyDrawn}, nil
	}

	s.log.WithDrawID(rec.ID.String()).Info("winner drawn",
		"sequence", rec.SequenceNumber,
		"roster_size", rec.RosterSize,
		"version", cycle.Version)

	return &Outcome{Realized: true, Draw: rec, Roster: roster}, nil
}

// Recover rebuilds the draw held by a drawn cycle whose archive or reset did
// not finish. The frozen roster is re-read and cut to the claimed size; the
// record comes from history when it was written, otherwise from the claim.
// Returns nil when the cycle is not drawn.
func (s *DrawService) Recover(ctx context.Context) (*Outcome, error) {
	ctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	cycle, err := s.cycles.Get(ctx)
	if err != nil {
		return nil, storeError("read cycle", err)
	}
	if cycle.State != models.CycleDrawn {
		return nil, nil
	}
	if cycle.DrawID == nil || cycle.Sequence == nil || cycle.RosterSize == nil || cycle.DrawnAt == nil {
		return nil, fmt.Errorf("drawn cycle %d has no claim", cycle.Version)
	}

	roster, err := s.roster.ReadAll(ctx)
	if err != nil {
		return nil, storeError("read roster", err)
	}
	size := *cycle.RosterSize
	if *cycle.Sequence < 1 || *cycle.Sequence > size {
		return nil, fmt.Errorf("claimed sequence %d outside roster of %d", *cycle.Sequence, size)
	}
	if len(roster) < size {
		// a concurrent invocation may have finished and reset in between
		again, err := s.cycles.Get(ctx)
		if err != nil {
			return nil, storeError("read cycle", err)
		}
		if again.State != models.CycleDrawn || again.DrawID == nil || *again.DrawID != *cycle.DrawID {
			return nil, nil
		}
		return nil, fmt.Errorf("roster has %d entries, claim recorded %d", len(roster), size)
	}
	// entries that slipped in after the claim are not part of this draw
	roster = roster[:size]

	rec, err := s.draws.Get(ctx, *cycle.DrawID)
	if errors.Is(err, repository.ErrNotFound) {
		winner := roster[*cycle.Sequence-1]
		rec = &models.DrawRecord{
			ID:              *cycle.DrawID,
			DrawnAt:         cycle.DrawnAt.UTC(),
			WinnerName:      winner.DisplayName,
			WinnerAffiliate: winner.ChosenAffiliate,
			RewardPlatform:  winner.RewardPlatform,
			SequenceNumber:  *cycle.Sequence,
			RosterSize:      size,
			CycleVersion:    cycle.Version - 1,
		}
	} else if err != nil {
		return nil, storeError("read draw", err)
	}

	s.log.WithDrawID(rec.ID.String()).Warn("resuming unfinished draw", "sequence", rec.SequenceNumber)
	return &Outcome{Realized: true, Draw: rec, Roster: roster}, nil
}
