package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/openraffle/raffle/cmd/raffle/models"
	"github.com/openraffle/raffle/cmd/raffle/repository"
	"github.com/openraffle/raffle/common/cache"
	"github.com/openraffle/raffle/common/logger"
)

// ErrDrawNotFound is returned for an unknown draw id
var ErrDrawNotFound = errors.New("draw not found")

const maxHistory = 100

// HistoryService reads archived draws
type HistoryService struct {
	draws   DrawStore
	timeout time.Duration

	cache    cache.Cache
	cacheTTL time.Duration
	log      *logger.Logger
}

// NewHistoryService creates a new history service
func NewHistoryService(draws DrawStore, timeout time.Duration) *HistoryService {
	return &HistoryService{draws: draws, timeout: timeout}
}

// WithCache serves Get from c. Archived draws never change, so only a
// complete snapshot is cached; cache failures fall through to the store.
func (s *HistoryService) WithCache(c cache.Cache, ttl time.Duration, log *logger.Logger) *HistoryService {
	s.cache = c
	s.cacheTTL = ttl
	s.log = log
	return s
}

// DrawDetail is one draw with its archived roster
type DrawDetail struct {
	Draw     *models.DrawRecord           `json:"draw"`
	Snapshot []models.RosterSnapshotEntry `json:"snapshot"`
}

// List returns up to limit draws, newest first
func (s *HistoryService) List(ctx context.Context, limit int) ([]models.DrawRecord, error) {
	if limit < 1 || limit > maxHistory {
		limit = maxHistory
	}

	ctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	records, err := s.draws.List(ctx, limit)
	if err != nil {
		return nil, storeError("list draws", err)
	}
	return records, nil
}

// Get returns a draw and its snapshot
func (s *HistoryService) Get(ctx context.Context, id uuid.UUID) (*DrawDetail, error) {
	ctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	if detail := s.cached(ctx, id); detail != nil {
		return detail, nil
	}

	rec, err := s.draws.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrDrawNotFound
	}
	if err != nil {
		return nil, storeError("read draw", err)
	}

	snapshot, err := s.draws.Snapshot(ctx, id)
	if err != nil {
		return nil, storeError("read snapshot", err)
	}

	detail := &DrawDetail{Draw: rec, Snapshot: snapshot}
	// a row-by-row archive may still be writing the snapshot
	if len(snapshot) == rec.RosterSize {
		s.store(ctx, detail)
	}
	return detail, nil
}

func cacheKey(id uuid.UUID) string {
	return "draw:" + id.String()
}

func (s *HistoryService) cached(ctx context.Context, id uuid.UUID) *DrawDetail {
	if s.cache == nil {
		return nil
	}
	raw, ok, err := s.cache.Get(ctx, cacheKey(id))
	if err != nil {
		s.log.Warn("draw cache read failed", "draw_id", id, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var detail DrawDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil
	}
	return &detail
}

func (s *HistoryService) store(ctx context.Context, detail *DrawDetail) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(detail.Draw.ID), raw, s.cacheTTL); err != nil {
		s.log.Warn("draw cache write failed", "draw_id", detail.Draw.ID, "error", err)
	}
}
