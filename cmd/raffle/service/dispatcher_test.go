package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/openraffle/raffle/cmd/raffle/models"
	"github.com/openraffle/raffle/cmd/raffle/testutil"
	"github.com/openraffle/raffle/common/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepStatuses(res *StepResult) map[string]string {
	out := map[string]string{}
	for _, s := range res.Steps {
		out[s.Name] = s.Status
	}
	return out
}

func TestScenario_ThreeEntrantsFullCycle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for i, name := range []string{"A", "B", "C"} {
		_, err := h.admission.AddOne(ctx, fmt.Sprintf("10.0.0.%d", i), input(name))
		require.NoError(t, err)
	}
	before, err := h.admission.ReadAll(ctx)
	require.NoError(t, err)

	_, err = h.dispatcher.Run(ctx, ActionFreeze)
	require.NoError(t, err)

	res, err := h.dispatcher.Run(ctx, ActionDraw)
	require.NoError(t, err)
	require.NotNil(t, res.Draw)

	rec := res.Draw
	require.GreaterOrEqual(t, rec.SequenceNumber, 1)
	require.LessOrEqual(t, rec.SequenceNumber, 3)
	assert.Equal(t, before[rec.SequenceNumber-1].DisplayName, rec.WinnerName)
	assert.Contains(t, []string{"A", "B", "C"}, rec.WinnerName)
	assert.Equal(t, 3, rec.RosterSize)

	snapshot, err := h.stores.Draws.Snapshot(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, snapshot, 3)
	for i, s := range snapshot {
		assert.Equal(t, i+1, s.OriginalPosition)
		assert.Equal(t, before[i].DisplayName, s.DisplayName)
	}

	assert.Equal(t, map[string]string{
		"freeze":  "unchanged",
		"draw":    "realized",
		"archive": "archived",
		"reset":   "reset",
	}, stepStatuses(res))

	assert.Equal(t, 0, h.stores.Roster.Len())
	assert.Equal(t, models.CycleOpen, h.stores.Cycle.State())
}

func TestScenario_EmptyRosterNotRealized(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res, err := h.dispatcher.Run(ctx, ActionDraw)
	require.NoError(t, err)
	require.NotNil(t, res.Outcome)
	assert.False(t, res.Outcome.Realized)
	assert.NotEmpty(t, res.Outcome.Reason)
	assert.Nil(t, res.Draw)
	assert.Equal(t, "not_realized", stepStatuses(res)["draw"])

	assert.Empty(t, h.stores.Draws.Records())
	assert.Equal(t, models.CycleFrozen, h.stores.Cycle.State(), "stays frozen until an explicit reset")

	_, err = h.dispatcher.Run(ctx, ActionReset)
	require.NoError(t, err)
	assert.Equal(t, models.CycleOpen, h.stores.Cycle.State())
}

func TestScenario_BatchFallback(t *testing.T) {
	h := newHarness(t, nil)
	h.stores.Roster.BulkErr = testutil.ErrInjected
	h.stores.Roster.FailInsertEvery = 3

	res, err := h.admission.AddMany(context.Background(), "origin", input("Bia"), 10)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Inserted)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, res.Inserted, h.stores.Roster.Len())
}

func TestDraw_SnapshotMatchesSelectionRead(t *testing.T) {
	for n := 1; n <= 12; n++ {
		t.Run(fmt.Sprintf("roster_%d", n), func(t *testing.T) {
			h := newHarness(t, fixedPicker(n-1))
			ctx := context.Background()

			names := make([]string, n)
			for i := range names {
				names[i] = fmt.Sprintf("p%02d", i)
			}
			h.seed(t, names...)
			before, err := h.stores.Roster.ReadAll(ctx)
			require.NoError(t, err)

			res, err := h.dispatcher.Run(ctx, ActionDraw)
			require.NoError(t, err)
			require.NotNil(t, res.Draw)
			assert.Equal(t, n, res.Draw.SequenceNumber)
			assert.Equal(t, before[n-1].DisplayName, res.Draw.WinnerName)

			snapshot, err := h.stores.Draws.Snapshot(ctx, res.Draw.ID)
			require.NoError(t, err)
			require.Len(t, snapshot, n)
			for i, s := range snapshot {
				assert.Equal(t, i+1, s.OriginalPosition)
				assert.Equal(t, before[i].DisplayName, s.DisplayName)
				assert.Equal(t, before[i].ChosenAffiliate, s.ChosenAffiliate)
			}
			assert.Len(t, h.stores.Draws.Records(), 1)
		})
	}
}

func TestReset_Idempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seed(t, "a", "b")
	_, err := h.cycles.Freeze(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := h.dispatcher.Run(ctx, ActionReset)
		require.NoError(t, err)
		assert.Equal(t, "reset", stepStatuses(res)["reset"])
		assert.Equal(t, 0, h.stores.Roster.Len())
		assert.Equal(t, models.CycleOpen, h.stores.Cycle.State())
	}
}

func TestFreeze_Idempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.cycles.Freeze(ctx)
	require.NoError(t, err)
	assert.True(t, first.Changed)

	second, err := h.cycles.Freeze(ctx)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, models.CycleFrozen, second.State)
}

func TestDraw_OpenCycleIsNotRealized(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "a")

	out, err := h.draws.Draw(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Realized)
	assert.Equal(t, models.CycleOpen, h.stores.Cycle.State())
}

func TestDraw_SecondDrawOnSameCycleIsAlreadyDrawn(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seed(t, "a", "b")
	_, _ = h.cycles.Freeze(ctx)

	first, err := h.draws.Draw(ctx)
	require.NoError(t, err)
	require.True(t, first.Realized)

	second, err := h.draws.Draw(ctx)
	require.NoError(t, err)
	assert.False(t, second.Realized)
	assert.True(t, second.AlreadyDrawn)
}

func TestDraw_ConcurrentTriggersAwardOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seed(t, "a", "b", "c", "d", "e")

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.dispatcher.Run(ctx, ActionDraw); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	records := h.stores.Draws.Records()
	require.Len(t, records, 1)
	snapshot, err := h.stores.Draws.Snapshot(ctx, records[0].ID)
	require.NoError(t, err)
	assert.Len(t, snapshot, 5)
	// late duplicates may freeze the next, empty cycle; they never draw it
	assert.Equal(t, 0, h.stores.Roster.Len())
}

func TestDraw_LostClaimReportsAlreadyDrawn(t *testing.T) {
	h := newHarness(t, fixedPicker(0))
	ctx := context.Background()
	h.seed(t, "a", "b")
	_, _ = h.cycles.Freeze(ctx)

	// another trigger wins between our read and our claim
	h.stores.Cycle.OnClaim = func() {
		h.stores.Cycle.OnClaim = nil
		out, err := h.draws.Draw(ctx)
		require.NoError(t, err)
		require.True(t, out.Realized)
	}

	out, err := h.draws.Draw(ctx)
	require.NoError(t, err)
	assert.False(t, out.Realized)
	assert.True(t, out.AlreadyDrawn)
}

func TestDraw_ArchiveFailureKeepsDrawAndSkipsReset(t *testing.T) {
	h := newHarness(t, fixedPicker(1))
	ctx := context.Background()
	h.seed(t, "a", "b", "c")
	h.stores.Draws.BulkErr = testutil.ErrInjected
	h.stores.Draws.SnapshotErr = testutil.ErrInjected

	res, err := h.dispatcher.Run(ctx, ActionDraw)
	var partial *PartialPostDrawError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "archive", partial.Stage)
	assert.Equal(t, "b", partial.Draw.WinnerName)
	assert.Equal(t, "failed", stepStatuses(res)["archive"])
	assert.NotContains(t, stepStatuses(res), "reset")

	// record written by the row-by-row strategy is never rolled back
	require.Len(t, h.stores.Draws.Records(), 1)
	assert.Equal(t, models.CycleDrawn, h.stores.Cycle.State())
	assert.Equal(t, 3, h.stores.Roster.Len(), "roster kept for the archive retry")

	// store recovers; the next trigger finishes the same draw
	h.stores.Draws.BulkErr = nil
	h.stores.Draws.SnapshotErr = nil

	res, err = h.dispatcher.Run(ctx, ActionDraw)
	require.NoError(t, err)
	assert.Equal(t, "resumed", stepStatuses(res)["draw"])
	assert.Equal(t, partial.Draw.ID, res.Draw.ID)

	require.Len(t, h.stores.Draws.Records(), 1)
	n, _ := h.stores.Draws.SnapshotCount(ctx, partial.Draw.ID)
	assert.Equal(t, 3, n)
	assert.Equal(t, models.CycleOpen, h.stores.Cycle.State())
}

func TestDraw_ResetFailureKeepsArchivedDraw(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seed(t, "a", "b")
	h.stores.Cycle.ResetErr = testutil.ErrInjected

	res, err := h.dispatcher.Run(ctx, ActionDraw)
	var partial *PartialPostDrawError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "reset", partial.Stage)
	assert.Equal(t, "archived", stepStatuses(res)["archive"])
	require.Len(t, h.stores.Draws.Records(), 1)

	h.stores.Cycle.ResetErr = nil
	res, err = h.dispatcher.Run(ctx, ActionDraw)
	require.NoError(t, err)
	assert.Equal(t, "resumed", stepStatuses(res)["draw"])
	assert.Len(t, h.stores.Draws.Records(), 1, "resume never draws again")
	assert.Equal(t, models.CycleOpen, h.stores.Cycle.State())
}

func TestDraw_ResumeRebuildsMissingRecordFromClaim(t *testing.T) {
	h := newHarness(t, fixedPicker(2))
	ctx := context.Background()
	h.seed(t, "a", "b", "c", "d")
	_, _ = h.cycles.Freeze(ctx)

	// claim succeeded, then the invocation died before archiving
	out, err := h.draws.Draw(ctx)
	require.NoError(t, err)
	require.True(t, out.Realized)
	assert.Empty(t, h.stores.Draws.Records())

	res, err := h.dispatcher.Run(ctx, ActionDraw)
	require.NoError(t, err)
	require.NotNil(t, res.Draw)
	assert.Equal(t, out.Draw.ID, res.Draw.ID)
	assert.Equal(t, out.Draw.WinnerName, res.Draw.WinnerName)
	assert.Equal(t, out.Draw.SequenceNumber, res.Draw.SequenceNumber)
	assert.Equal(t, out.Draw.CycleVersion, res.Draw.CycleVersion)

	records := h.stores.Draws.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "c", records[0].WinnerName)
}

func TestDraw_ResumeIgnoresEntriesAfterClaim(t *testing.T) {
	h := newHarness(t, fixedPicker(0))
	ctx := context.Background()
	h.seed(t, "a", "b")
	_, _ = h.cycles.Freeze(ctx)

	out, err := h.draws.Draw(ctx)
	require.NoError(t, err)
	require.True(t, out.Realized)

	// an admission that read "open" before the freeze lands late
	h.seed(t, "zz-late")

	res, err := h.dispatcher.Run(ctx, ActionDraw)
	require.NoError(t, err)
	snapshot, _ := h.stores.Draws.Snapshot(ctx, res.Draw.ID)
	assert.Len(t, snapshot, 2)
}

func TestDiagnostics_ReportsChecksWithoutMutating(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seed(t, "a", "b")
	h.dispatcher.checks["database"] = PingFunc(func(context.Context) error { return testutil.ErrInjected })

	res, err := h.dispatcher.Run(ctx, ActionStatus)
	require.NoError(t, err)
	assert.Equal(t, "unavailable", res.Checks["database"])
	assert.Equal(t, "ok", res.Checks["rate_limit_store"])
	assert.Equal(t, "degraded", stepStatuses(res)["connectivity"])
	require.NotNil(t, res.Status)
	assert.Equal(t, 2, res.Status.RosterSize)
	assert.False(t, res.Status.Frozen)
	assert.Equal(t, models.CycleOpen, h.stores.Cycle.State())

	require.Len(t, res.Limits, 4)
	assert.Equal(t, LimitInfo{
		Operation:     ratelimit.OpAdmissionIndividual,
		MaxRequests:   5,
		WindowSeconds: 60,
		Description:   "Single entries - 5 per minute per origin",
	}, res.Limits[0])
	assert.Equal(t, ratelimit.OpVerification, res.Limits[3].Operation)
	assert.Equal(t, 900, res.Limits[3].WindowSeconds)
}

func TestPruneAction(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.admission.AddOne(context.Background(), "origin", input("a"))
	require.NoError(t, err)

	res, err := h.dispatcher.Run(context.Background(), ActionPrune)
	require.NoError(t, err)
	require.NotNil(t, res.Pruned)
	assert.Equal(t, int64(0), *res.Pruned, "fresh records are within retention")

	h.dispatcher.limiter = downLimiter()
	_, err = h.dispatcher.Run(context.Background(), ActionPrune)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestParseAction(t *testing.T) {
	tests := map[string]Action{
		"freeze": ActionFreeze, "congelar": ActionFreeze,
		"draw": ActionDraw, "sorteio": ActionDraw, " SORTEIO ": ActionDraw,
		"reset": ActionReset, "resetar": ActionReset,
		"status": ActionStatus, "diagnostico": ActionStatus,
		"prune": ActionPrune, "limpar": ActionPrune,
	}
	for in, want := range tests {
		got, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseAction("explode")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestAuthenticate(t *testing.T) {
	h := newHarness(t, nil)
	assert.True(t, h.dispatcher.Authenticate("draw-secret"))
	assert.False(t, h.dispatcher.Authenticate("draw-secre"))
	assert.False(t, h.dispatcher.Authenticate(""))

	assert.False(t, SecretMatches("", ""), "empty secret never matches")
}
