package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type brokenStore struct{}

func (brokenStore) Attempt(context.Context, Record, Limit) (Window, error) {
	return Window{}, errors.New("connection refused")
}
func (brokenStore) Prune(context.Context, time.Time) (int64, error) {
	return 0, errors.New("connection refused")
}
func (brokenStore) Ping(context.Context) error { return errors.New("connection refused") }

func newTestLimiter(store Store) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewRateLimiter(store, nopLogger{}, WithClock(clock.Now)), clock
}

func TestCheckAndRecord_DeniesOnlyTheCallPastTheLimit(t *testing.T) {
	store := NewMemoryStore()
	limiter, clock := newTestLimiter(store)
	ctx := context.Background()
	limit := Limit{MaxRequests: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		res, err := limiter.CheckAndRecord(ctx, "10.0.0.1", OpAdmissionIndividual, limit, FailOpen, nil)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d", i+1)
		assert.Equal(t, 2-i, res.Remaining)
		clock.Advance(time.Second)
	}

	res, err := limiter.CheckAndRecord(ctx, "10.0.0.1", OpAdmissionIndividual, limit, FailOpen, nil)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Positive(t, res.RetryAfterSeconds)
	// oldest record at t0, now t0+3s, window 60s
	assert.Equal(t, 57, res.RetryAfterSeconds)
}

func TestCheckAndRecord_DeniedCallsWriteNothing(t *testing.T) {
	store := NewMemoryStore()
	limiter, _ := newTestLimiter(store)
	ctx := context.Background()
	limit := Limit{MaxRequests: 2, Window: time.Minute}

	for i := 0; i < 10; i++ {
		_, err := limiter.CheckAndRecord(ctx, "origin", OpAdmissionBatch, limit, FailOpen, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, store.Len())
}

func TestCheckAndRecord_WindowSlides(t *testing.T) {
	limiter, clock := newTestLimiter(NewMemoryStore())
	ctx := context.Background()
	limit := Limit{MaxRequests: 1, Window: time.Minute}

	res, err := limiter.CheckAndRecord(ctx, "origin", OpDrawTrigger, limit, FailOpen, nil)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	clock.Advance(30 * time.Second)
	res, err = limiter.CheckAndRecord(ctx, "origin", OpDrawTrigger, limit, FailOpen, nil)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30, res.RetryAfterSeconds)

	clock.Advance(31 * time.Second)
	res, err = limiter.CheckAndRecord(ctx, "origin", OpDrawTrigger, limit, FailOpen, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckAndRecord_KeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(NewMemoryStore())
	ctx := context.Background()
	limit := Limit{MaxRequests: 1, Window: time.Minute}

	res, _ := limiter.CheckAndRecord(ctx, "a", OpAdmissionIndividual, limit, FailOpen, nil)
	assert.True(t, res.Allowed)
	res, _ = limiter.CheckAndRecord(ctx, "b", OpAdmissionIndividual, limit, FailOpen, nil)
	assert.True(t, res.Allowed, "other identifier")
	res, _ = limiter.CheckAndRecord(ctx, "a", OpAdmissionBatch, limit, FailOpen, nil)
	assert.True(t, res.Allowed, "other operation")
	res, _ = limiter.CheckAndRecord(ctx, "a", OpAdmissionIndividual, limit, FailOpen, nil)
	assert.False(t, res.Allowed)
}

func TestCheckAndRecord_ConcurrentCallersNeverExceedLimit(t *testing.T) {
	store := NewMemoryStore()
	limiter, _ := newTestLimiter(store)
	limit := Limit{MaxRequests: 5, Window: time.Minute}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.CheckAndRecord(context.Background(), "origin", OpAdmissionIndividual, limit, FailOpen, nil)
			if err == nil && res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, allowed)
	assert.Equal(t, 5, store.Len())
}

func TestCheckAndRecord_StoreFailure(t *testing.T) {
	limiter, _ := newTestLimiter(brokenStore{})
	limit := Limit{MaxRequests: 5, Window: 15 * time.Minute}

	t.Run("fail open allows", func(t *testing.T) {
		res, err := limiter.CheckAndRecord(context.Background(), "origin", OpAdmissionIndividual, limit, FailOpen, nil)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.True(t, res.Degraded)
	})

	t.Run("fail closed denies", func(t *testing.T) {
		res, err := limiter.CheckAndRecord(context.Background(), "origin", OpVerification, limit, FailClosed, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.False(t, res.Allowed)
		assert.True(t, res.Degraded)
		assert.Equal(t, 900, res.RetryAfterSeconds)
	})
}

func TestCheckAndRecord_InvalidLimit(t *testing.T) {
	limiter, _ := newTestLimiter(NewMemoryStore())
	_, err := limiter.CheckAndRecord(context.Background(), "origin", OpAdmissionIndividual, Limit{}, FailOpen, nil)
	assert.Error(t, err)
}

func TestCheck_UsesDefaultTable(t *testing.T) {
	limiter, _ := newTestLimiter(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.Check(ctx, "origin", OpAdmissionBatch, FailOpen, map[string]string{"size": "3"})
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2, res.Limit)
	}
	res, err := limiter.Check(ctx, "origin", OpAdmissionBatch, FailOpen, nil)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestLimitFor_UnknownOperationIsMostRestrictive(t *testing.T) {
	assert.Equal(t, DefaultLimits[OpVerification].Limit, LimitFor("bogus"))
	assert.Len(t, GetAllOperations(), 4)
}

func TestPrune(t *testing.T) {
	store := NewMemoryStore()
	limiter, clock := newTestLimiter(store)
	ctx := context.Background()
	limit := Limit{MaxRequests: 10, Window: time.Minute}

	_, _ = limiter.CheckAndRecord(ctx, "a", OpAdmissionIndividual, limit, FailOpen, nil)
	clock.Advance(2 * time.Hour)
	_, _ = limiter.CheckAndRecord(ctx, "b", OpAdmissionIndividual, limit, FailOpen, nil)

	n, err := limiter.Prune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())

	_, err = NewRateLimiter(brokenStore{}, nopLogger{}).Prune(ctx, time.Hour)
	assert.Error(t, err)
}

func TestJanitor_RunOnce(t *testing.T) {
	store := NewMemoryStore()
	limiter, clock := newTestLimiter(store)
	ctx := context.Background()

	_, _ = limiter.CheckAndRecord(ctx, "a", OpAdmissionIndividual, Limit{MaxRequests: 1, Window: time.Minute}, FailOpen, nil)
	clock.Advance(48 * time.Hour)

	NewJanitor(limiter, nopLogger{}, time.Minute, 24*time.Hour, time.Second).RunOnce(ctx)
	assert.Equal(t, 0, store.Len())
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	limiter, _ := newTestLimiter(NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewJanitor(limiter, nopLogger{}, 10*time.Millisecond, time.Hour, time.Second).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		oldest time.Time
		window time.Duration
		want   int
	}{
		{"no records", time.Time{}, time.Minute, 60},
		{"rounds up", now.Add(-59500 * time.Millisecond), time.Minute, 1},
		{"already expired", now.Add(-2 * time.Minute), time.Minute, 1},
		{"fresh", now, 5 * time.Minute, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryAfterSeconds(tt.oldest, tt.window, now))
		})
	}
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "fail-open", FailOpen.String())
	assert.Equal(t, "fail-closed", FailClosed.String())
	assert.Equal(t, "unknown", Policy(9).String())
}
