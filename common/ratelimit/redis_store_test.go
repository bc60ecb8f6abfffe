package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func TestRedisStore_Attempt(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	limit := Limit{MaxRequests: 2, Window: time.Minute}
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	win, err := store.Attempt(ctx, Record{Identifier: "1.2.3.4", Operation: OpAdmissionIndividual, ObservedAt: t0}, limit)
	require.NoError(t, err)
	assert.True(t, win.Recorded)
	assert.Equal(t, 0, win.Count)

	win, err = store.Attempt(ctx, Record{Identifier: "1.2.3.4", Operation: OpAdmissionIndividual, ObservedAt: t0.Add(time.Second),
		Metadata: map[string]string{"ua": "curl"}}, limit)
	require.NoError(t, err)
	assert.True(t, win.Recorded)
	assert.Equal(t, 1, win.Count)
	assert.True(t, t0.Equal(win.Oldest))

	win, err = store.Attempt(ctx, Record{Identifier: "1.2.3.4", Operation: OpAdmissionIndividual, ObservedAt: t0.Add(2 * time.Second)}, limit)
	require.NoError(t, err)
	assert.False(t, win.Recorded)
	assert.Equal(t, 2, win.Count)

	members, err := mr.ZMembers("rate_limit:admission-individual:1.2.3.4")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	// first record has left the window
	win, err = store.Attempt(ctx, Record{Identifier: "1.2.3.4", Operation: OpAdmissionIndividual, ObservedAt: t0.Add(61 * time.Second)}, limit)
	require.NoError(t, err)
	assert.True(t, win.Recorded)
	assert.Equal(t, 1, win.Count)
}

func TestRedisStore_WithLimiter(t *testing.T) {
	store, _ := newRedisStore(t)
	limiter, _ := newTestLimiter(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := limiter.Check(ctx, "origin", OpAdmissionIndividual, FailOpen, nil)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := limiter.Check(ctx, "origin", OpAdmissionIndividual, FailOpen, nil)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 60, res.RetryAfterSeconds)
}

func TestRedisStore_Prune(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	limit := Limit{MaxRequests: 10, Window: time.Hour}
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := store.Attempt(ctx, Record{Identifier: "a", Operation: OpDrawTrigger, ObservedAt: t0.Add(time.Duration(i) * time.Minute)}, limit)
		require.NoError(t, err)
	}
	_, err := store.Attempt(ctx, Record{Identifier: "b", Operation: OpVerification, ObservedAt: t0}, limit)
	require.NoError(t, err)

	n, err := store.Prune(ctx, t0.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	members, err := mr.ZMembers("rate_limit:draw-trigger:a")
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	require.Error(t, store.Ping(context.Background()))

	limiter, _ := newTestLimiter(store)
	_, err := limiter.Check(context.Background(), "origin", OpVerification, FailClosed, nil)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
