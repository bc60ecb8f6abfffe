package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openraffle/raffle/cmd/raffle/models"
	"github.com/openraffle/raffle/common/fallback"
	"github.com/openraffle/raffle/common/logger"
	"github.com/openraffle/raffle/common/ratelimit"
	"github.com/openraffle/raffle/common/validation"
)

// AdmissionService admits candidates into the open cycle
type AdmissionService struct {
	roster   RosterStore
	cycles   CycleStore
	limiter  Limiter
	log      *logger.Logger
	batchMax int
	timeout  time.Duration
}

// NewAdmissionService creates a new admission service
func NewAdmissionService(roster RosterStore, cycles CycleStore, limiter Limiter, log *logger.Logger, batchMax int, timeout time.Duration) *AdmissionService {
	return &AdmissionService{
		roster:   roster,
		cycles:   cycles,
		limiter:  limiter,
		log:      log,
		batchMax: batchMax,
		timeout:  timeout,
	}
}

// BatchResult reports how many of the requested copies landed
type BatchResult struct {
	Requested int    `json:"requested"`
	Inserted  int    `json:"inserted"`
	Failed    int    `json:"failed"`
	Strategy  string `json:"strategy"`
}

// AddOne admits a single entry for origin
func (s *AdmissionService) AddOne(ctx context.Context, origin string, in models.EntryInput) (*models.CandidateEntry, error) {
	entry, err := s.prepare(in)
	if err != nil {
		return nil, err
	}

	if err := s.admit(ctx, origin, ratelimit.OpAdmissionIndividual, nil); err != nil {
		return nil, err
	}

	ctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	stored, err := s.roster.Insert(ctx, entry)
	if err != nil {
		return nil, storeError("insert entry", err)
	}

	s.log.Info("entry admitted",
		"id", stored.ID,
		"origin", origin,
		"platform", stored.RewardPlatform)

	return &stored, nil
}

// AddMany admits count identical copies of one entry. A failed bulk insert
// falls back to row-by-row inserts and partial success is reported, not
// rolled back.
func (s *AdmissionService) AddMany(ctx context.Context, origin string, in models.EntryInput, count int) (*BatchResult, error) {
	if count < 1 || count > s.batchMax {
		return nil, &ValidationError{Field: "count", Message: fmt.Sprintf("must be between 1 and %d", s.batchMax)}
	}

	entry, err := s.prepare(in)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{"count": strconv.Itoa(count)}
	if err := s.admit(ctx, origin, ratelimit.OpAdmissionBatch, metadata); err != nil {
		return nil, err
	}

	entries := make([]models.CandidateEntry, count)
	for i := range entries {
		entries[i] = entry
	}

	result := &BatchResult{Requested: count}
	res, err := fallback.Run(ctx, s.log,
		fallback.Strategy[int]{
			Name: "bulk",
			Run: func(ctx context.Context) (int, error) {
				ctx, cancel := bounded(ctx, s.timeout)
				defer cancel()
				n, err := s.roster.BulkInsert(ctx, entries)
				return int(n), err
			},
		},
		fallback.Strategy[int]{
			Name: "row-by-row",
			Run: func(ctx context.Context) (int, error) {
				return s.insertEach(ctx, entries)
			},
		},
	)

	result.Strategy = res.Strategy
	result.Inserted = res.Value
	result.Failed = count - res.Value

	if err != nil {
		return result, storeError("batch insert", err)
	}

	if result.Failed > 0 {
		s.log.Warn("batch admission partially failed",
			"origin", origin,
			"requested", count,
			"inserted", result.Inserted,
			"failed", result.Failed)
	} else {
		s.log.Info("batch admitted",
			"origin", origin,
			"count", count,
			"strategy", result.Strategy)
	}

	return result, nil
}

// insertEach inserts rows one at a time. It fails only when nothing landed.
func (s *AdmissionService) insertEach(ctx context.Context, entries []models.CandidateEntry) (int, error) {
	inserted := 0
	var errs []error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rowCtx, cancel := bounded(ctx, s.timeout)
		_, err := s.roster.Insert(rowCtx, e)
		cancel()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		inserted++
	}

	if inserted == 0 {
		return 0, errors.Join(errs...)
	}
	return inserted, nil
}

// ReadAll returns the roster in admission order
func (s *AdmissionService) ReadAll(ctx context.Context) ([]models.CandidateEntry, error) {
	ctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	entries, err := s.roster.ReadAll(ctx)
	if err != nil {
		return nil, storeError("read roster", err)
	}
	return entries, nil
}

// admit rejects frozen cycles before consulting the limiter, so a frozen
// rejection never spends rate limit budget
func (s *AdmissionService) admit(ctx context.Context, origin string, op ratelimit.Operation, metadata map[string]string) error {
	cycleCtx, cancel := bounded(ctx, s.timeout)
	cycle, err := s.cycles.Get(cycleCtx)
	cancel()
	if err != nil {
		return storeError("read cycle", err)
	}
	if cycle.Frozen() {
		return ErrFrozen
	}

	result, err := s.limiter.Check(ctx, origin, op, ratelimit.FailOpen, metadata)
	if err != nil {
		return storeError("rate limit", err)
	}
	if !result.Allowed {
		return &RateLimitError{
			Operation:         op,
			Limit:             result.Limit,
			RetryAfterSeconds: result.RetryAfterSeconds,
		}
	}
	return nil
}

// prepare sanitizes and validates raw input. AdmittedAt is left to the
// store: a timestamp taken here, before the frozen check, could sort a late
// admission ahead of entries the draw already counted.
func (s *AdmissionService) prepare(in models.EntryInput) (models.CandidateEntry, error) {
	name := validation.Sanitize(in.DisplayName)
	if name == "" {
		return models.CandidateEntry{}, &ValidationError{Field: "display_name", Message: "is required"}
	}

	affiliate := validation.Sanitize(in.ChosenAffiliate)
	if affiliate == "" {
		return models.CandidateEntry{}, &ValidationError{Field: "chosen_affiliate", Message: "is required"}
	}

	platform := models.RewardPlatform(strings.ToLower(strings.TrimSpace(string(in.RewardPlatform))))
	if !platform.Valid() {
		return models.CandidateEntry{}, &ValidationError{Field: "reward_platform", Message: "must be one of " + models.RewardPlatformNames()}
	}

	return models.CandidateEntry{
		DisplayName:     name,
		ChosenAffiliate: affiliate,
		RewardPlatform:  platform,
	}, nil
}
