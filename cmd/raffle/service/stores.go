package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openraffle/raffle/cmd/raffle/models"
	"github.com/openraffle/raffle/common/ratelimit"
)

// RosterStore is the candidate roster persistence
type RosterStore interface {
	Insert(ctx context.Context, entry models.CandidateEntry) (models.CandidateEntry, error)
	BulkInsert(ctx context.Context, entries []models.CandidateEntry) (int64, error)
	ReadAll(ctx context.Context) ([]models.CandidateEntry, error)
	Count(ctx context.Context) (int, error)
}

// CycleStore is the single-row cycle state machine
type CycleStore interface {
	Get(ctx context.Context) (*models.Cycle, error)
	Freeze(ctx context.Context) (bool, error)
	Claim(ctx context.Context, version int64, claim models.Claim) (bool, error)
	Reset(ctx context.Context) (int64, error)
	ResetDrawn(ctx context.Context, drawID uuid.UUID) (int64, error)
}

// DrawStore is draw history and roster snapshots
type DrawStore interface {
	InsertRecordWithSnapshot(ctx context.Context, rec *models.DrawRecord, snapshot []models.RosterSnapshotEntry) error
	InsertRecord(ctx context.Context, rec *models.DrawRecord) error
	InsertSnapshotEntry(ctx context.Context, entry models.RosterSnapshotEntry) error
	Get(ctx context.Context, id uuid.UUID) (*models.DrawRecord, error)
	List(ctx context.Context, limit int) ([]models.DrawRecord, error)
	Snapshot(ctx context.Context, drawID uuid.UUID) ([]models.RosterSnapshotEntry, error)
	SnapshotCount(ctx context.Context, drawID uuid.UUID) (int, error)
}

// Limiter is the slice of ratelimit.RateLimiter the services use
type Limiter interface {
	Check(ctx context.Context, identifier string, op ratelimit.Operation, policy ratelimit.Policy, metadata map[string]string) (*ratelimit.RateLimitResult, error)
	Prune(ctx context.Context, retention time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// Pinger is anything with a connectivity check
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

func bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
