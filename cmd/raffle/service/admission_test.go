package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/openraffle/raffle/cmd/raffle/models"
	"github.com/openraffle/raffle/cmd/raffle/testutil"
	"github.com/openraffle/raffle/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddOne_SanitizesAndInserts(t *testing.T) {
	h := newHarness(t, nil)

	entry, err := h.admission.AddOne(context.Background(), "10.0.0.1", models.EntryInput{
		DisplayName:     "  <b>Maria</b>  ",
		ChosenAffiliate: "casa;--",
		RewardPlatform:  "PIX",
	})
	require.NoError(t, err)
	assert.Equal(t, "bMariab", entry.DisplayName)
	assert.Equal(t, "casa", entry.ChosenAffiliate)
	assert.Equal(t, models.PlatformPix, entry.RewardPlatform)
	assert.NotZero(t, entry.ID)
	assert.Equal(t, 1, h.stores.Roster.Len())
}

// recordingRoster captures what the service hands to the store
type recordingRoster struct {
	RosterStore
	sent  []models.CandidateEntry
	batch []models.CandidateEntry
}

func (r *recordingRoster) Insert(ctx context.Context, entry models.CandidateEntry) (models.CandidateEntry, error) {
	r.sent = append(r.sent, entry)
	return r.RosterStore.Insert(ctx, entry)
}

func (r *recordingRoster) BulkInsert(ctx context.Context, entries []models.CandidateEntry) (int64, error) {
	r.batch = append(r.batch, entries...)
	return r.RosterStore.BulkInsert(ctx, entries)
}

func TestAdmission_StoreAssignsAdmittedAt(t *testing.T) {
	h := newHarness(t, nil)
	rec := &recordingRoster{RosterStore: h.stores.Roster}
	svc := NewAdmissionService(rec, h.stores.Cycle, h.limiter, logger.Discard(), 10, time.Second)
	ctx := context.Background()

	stored, err := svc.AddOne(ctx, "origin", input("Ana"))
	require.NoError(t, err)
	_, err = svc.AddMany(ctx, "origin", input("Bia"), 2)
	require.NoError(t, err)

	require.Len(t, rec.sent, 1)
	assert.True(t, rec.sent[0].AdmittedAt.IsZero())
	require.Len(t, rec.batch, 2)
	for _, e := range rec.batch {
		assert.True(t, e.AdmittedAt.IsZero())
	}

	assert.False(t, stored.AdmittedAt.IsZero())
	assert.Equal(t, rec.sent[0].DisplayName, stored.DisplayName)
}

func TestAddOne_Validation(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name  string
		in    models.EntryInput
		field string
	}{
		{"empty name", models.EntryInput{DisplayName: "", ChosenAffiliate: "x", RewardPlatform: "pix"}, "display_name"},
		{"name only forbidden chars", models.EntryInput{DisplayName: "<>{}", ChosenAffiliate: "x", RewardPlatform: "pix"}, "display_name"},
		{"empty affiliate", models.EntryInput{DisplayName: "x", ChosenAffiliate: "   ", RewardPlatform: "pix"}, "chosen_affiliate"},
		{"unknown platform", models.EntryInput{DisplayName: "x", ChosenAffiliate: "y", RewardPlatform: "venmo"}, "reward_platform"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.admission.AddOne(context.Background(), "origin", tt.in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Equal(t, 0, h.stores.Roster.Len())
	assert.Equal(t, 0, h.limitStore.Len(), "invalid input spends no budget")
}

func TestAddOne_RateLimitDeniesExactlyOneOfMaxPlusOne(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	denials := 0
	for i := 0; i < 6; i++ {
		_, err := h.admission.AddOne(ctx, "10.0.0.1", input(fmt.Sprintf("user%d", i)))
		if err != nil {
			var rlErr *RateLimitError
			require.ErrorAs(t, err, &rlErr)
			assert.Positive(t, rlErr.RetryAfterSeconds)
			denials++
		}
	}

	assert.Equal(t, 1, denials)
	assert.Equal(t, 5, h.stores.Roster.Len())

	_, err := h.admission.AddOne(ctx, "10.0.0.2", input("other"))
	assert.NoError(t, err, "other origin has its own window")
}

func TestAddOne_FrozenWinsOverRateLimit(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := h.admission.AddOne(ctx, "10.0.0.1", input("u"))
		require.NoError(t, err)
	}
	_, err := h.admission.AddOne(ctx, "10.0.0.1", input("u"))
	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)

	_, err = h.cycles.Freeze(ctx)
	require.NoError(t, err)

	recorded := h.limitStore.Len()
	for _, origin := range []string{"10.0.0.1", "10.0.0.9"} {
		_, err = h.admission.AddOne(ctx, origin, input("late"))
		assert.ErrorIs(t, err, ErrFrozen, origin)

		_, err = h.admission.AddMany(ctx, origin, input("late"), 3)
		assert.ErrorIs(t, err, ErrFrozen, origin)
	}
	assert.Equal(t, recorded, h.limitStore.Len(), "frozen rejections spend no budget")
	assert.Equal(t, 5, h.stores.Roster.Len())
}

func TestAddOne_LimiterDownFailsOpen(t *testing.T) {
	h := newHarness(t, nil)
	h.admission.limiter = downLimiter()

	_, err := h.admission.AddOne(context.Background(), "origin", input("a"))
	require.NoError(t, err)

	res, err := h.admission.AddMany(context.Background(), "origin", input("b"), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 3, h.stores.Roster.Len())
}

func TestAddOne_CycleUnreadable(t *testing.T) {
	h := newHarness(t, nil)
	h.stores.Cycle.GetErr = testutil.ErrInjected

	_, err := h.admission.AddOne(context.Background(), "origin", input("a"))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestAddMany_BulkInsert(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.admission.AddMany(context.Background(), "origin", input("Joao"), 10)
	require.NoError(t, err)
	assert.Equal(t, &BatchResult{Requested: 10, Inserted: 10, Failed: 0, Strategy: "bulk"}, res)

	roster, err := h.admission.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, roster, 10)
	for _, e := range roster {
		assert.Equal(t, "Joao", e.DisplayName, "copies are identical")
	}
}

func TestAddMany_FallsBackRowByRowAndCountsFailures(t *testing.T) {
	h := newHarness(t, nil)
	h.stores.Roster.BulkErr = testutil.ErrInjected
	h.stores.Roster.FailInsertEvery = 4

	res, err := h.admission.AddMany(context.Background(), "origin", input("Ana"), 10)
	require.NoError(t, err)
	assert.Equal(t, "row-by-row", res.Strategy)
	assert.Equal(t, 10, res.Requested)
	assert.Equal(t, 8, res.Inserted)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 8, h.stores.Roster.Len())
}

func TestAddMany_EveryStrategyFails(t *testing.T) {
	h := newHarness(t, nil)
	h.stores.Roster.BulkErr = testutil.ErrInjected
	h.stores.Roster.FailInsertEvery = 1

	res, err := h.admission.AddMany(context.Background(), "origin", input("Ana"), 4)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 4, res.Failed)
}

func TestAddMany_CountBounds(t *testing.T) {
	h := newHarness(t, nil)
	for _, n := range []int{0, -1, 11} {
		_, err := h.admission.AddMany(context.Background(), "origin", input("x"), n)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "count %d", n)
		assert.Equal(t, "count", verr.Field)
	}
}

func TestAddMany_BatchRateLimit(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := h.admission.AddMany(ctx, "origin", input("x"), 2)
		require.NoError(t, err)
	}
	_, err := h.admission.AddMany(ctx, "origin", input("x"), 2)
	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, 300, rlErr.RetryAfterSeconds)
}
