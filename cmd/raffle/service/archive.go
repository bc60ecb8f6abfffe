package service

import (
	"context"
	"fmt"
	"time"

	"github.com/openraffle/raffle/cmd/raffle/models"
	"github.com/openraffle/raffle/common/fallback"
	"github.com/openraffle/raffle/common/logger"
)

// ArchiveService writes the draw record and roster snapshot
type ArchiveService struct {
	draws   DrawStore
	log     *logger.Logger
	timeout time.Duration
}

// NewArchiveService creates a new archive service
func NewArchiveService(draws DrawStore, log *logger.Logger, timeout time.Duration) *ArchiveService {
	return &ArchiveService{
		draws:   draws,
		log:     log,
		timeout: timeout,
	}
}

// ArchiveResult reports which strategy wrote the archive
type ArchiveResult struct {
	Strategy      string `json:"strategy"`
	SnapshotCount int    `json:"snapshot_count"`
}

// Archive persists rec and one snapshot row per roster entry, positions
// 1..N in roster order. Tries a single bulk transaction first, then an
// idempotent row-by-row write that also completes a partial earlier
// archive. The record is never removed once written.
func (s *ArchiveService) Archive(ctx context.Context, rec *models.DrawRecord, roster []models.CandidateEntry) (*ArchiveResult, error) {
	log := s.log.WithDrawID(rec.ID.String())
	snapshot := models.SnapshotFromRoster(rec.ID, roster)

	res, err := fallback.Run(ctx, log,
		fallback.Strategy[int]{
			Name: "bulk",
			Run: func(ctx context.Context) (int, error) {
				ctx, cancel := bounded(ctx, s.timeout)
				defer cancel()
				if err := s.draws.InsertRecordWithSnapshot(ctx, rec, snapshot); err != nil {
					return 0, err
				}
				return len(snapshot), nil
			},
		},
		fallback.Strategy[int]{
			Name: "row-by-row",
			Run: func(ctx context.Context) (int, error) {
				return s.writeEach(ctx, rec, snapshot)
			},
		},
	)
	if err != nil {
		return nil, storeError("archive", err)
	}

	log.Info("draw archived", "strategy", res.Strategy, "snapshot_rows", res.Value)
	return &ArchiveResult{Strategy: res.Strategy, SnapshotCount: res.Value}, nil
}

func (s *ArchiveService) writeEach(ctx context.Context, rec *models.DrawRecord, snapshot []models.RosterSnapshotEntry) (int, error) {
	recCtx, cancel := bounded(ctx, s.timeout)
	err := s.draws.InsertRecord(recCtx, rec)
	cancel()
	if err != nil {
		return 0, err
	}

	for i, entry := range snapshot {
		rowCtx, cancel := bounded(ctx, s.timeout)
		err := s.draws.InsertSnapshotEntry(rowCtx, entry)
		cancel()
		if err != nil {
			return i, err
		}
	}

	countCtx, cancel := bounded(ctx, s.timeout)
	defer cancel()
	n, err := s.draws.SnapshotCount(countCtx, rec.ID)
	if err != nil {
		return len(snapshot), err
	}
	if n != len(snapshot) {
		return n, fmt.Errorf("snapshot has %d rows, expected %d", n, len(snapshot))
	}
	return n, nil
}
