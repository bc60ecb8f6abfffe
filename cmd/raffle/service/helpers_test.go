package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openraffle/raffle/cmd/raffle/models"
	"github.com/openraffle/raffle/cmd/raffle/testutil"
	"github.com/openraffle/raffle/common/logger"
	"github.com/openraffle/raffle/common/ratelimit"
)

type harness struct {
	stores     *testutil.Stores
	limitStore *ratelimit.MemoryStore
	limiter    *ratelimit.RateLimiter
	admission  *AdmissionService
	cycles     *CycleService
	draws      *DrawService
	archive    *ArchiveService
	history    *HistoryService
	admin      *AdminService
	dispatcher *DispatcherService
	seeded     int
}

func newHarness(t *testing.T, pick Picker) *harness {
	t.Helper()
	log := logger.Discard()
	stores := testutil.NewStores()
	limitStore := ratelimit.NewMemoryStore()
	limiter := ratelimit.NewRateLimiter(limitStore, log)

	cycles := NewCycleService(stores.Roster, stores.Cycle, stores.Draws, log, time.Second)
	draws := NewDrawService(stores.Roster, stores.Cycle, stores.Draws, log, pick, time.Second)
	archive := NewArchiveService(stores.Draws, log, time.Second)

	return &harness{
		stores:     stores,
		limitStore: limitStore,
		limiter:    limiter,
		admission:  NewAdmissionService(stores.Roster, stores.Cycle, limiter, log, 10, time.Second),
		cycles:     cycles,
		draws:      draws,
		archive:    archive,
		history:    NewHistoryService(stores.Draws, time.Second),
		admin:      NewAdminService(cycles, limiter, "admin-token", log),
		dispatcher: NewDispatcherService(cycles, draws, archive, limiter, DispatcherConfig{
			Secret:    "draw-secret",
			Retention: time.Hour,
			Timeout:   time.Second,
			Checks: map[string]Pinger{
				"database":         PingFunc(func(context.Context) error { return nil }),
				"rate_limit_store": limiter,
			},
		}, log),
	}
}

func fixedPicker(idx int) Picker {
	return func(int) (int, error) { return idx, nil }
}

// seed inserts entries directly, bypassing admission limits
func (h *harness) seed(t *testing.T, names ...string) {
	t.Helper()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, name := range names {
		h.seeded++
		_, err := h.stores.Roster.Insert(context.Background(), models.CandidateEntry{
			DisplayName:     name,
			ChosenAffiliate: "aff-" + name,
			RewardPlatform:  models.PlatformPix,
			AdmittedAt:      base.Add(time.Duration(h.seeded) * time.Second),
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

// failingStore is a rate limit store that cannot be reached
type failingStore struct{}

var errLimiterDown = errors.New("limiter store down")

func (failingStore) Attempt(context.Context, ratelimit.Record, ratelimit.Limit) (ratelimit.Window, error) {
	return ratelimit.Window{}, errLimiterDown
}
func (failingStore) Prune(context.Context, time.Time) (int64, error) { return 0, errLimiterDown }
func (failingStore) Ping(context.Context) error                      { return errLimiterDown }

// downLimiter is a real limiter whose store is unreachable, so each call
// site's policy decides the outcome
func downLimiter() *ratelimit.RateLimiter {
	return ratelimit.NewRateLimiter(failingStore{}, logger.Discard())
}

func input(name string) models.EntryInput {
	return models.EntryInput{DisplayName: name, ChosenAffiliate: "casa", RewardPlatform: models.PlatformPix}
}
