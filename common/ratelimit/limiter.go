package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed           bool   // Whether the request is allowed
	Remaining         int    // Attempts left in the window after this one
	Limit             int    // The limit that was checked
	RetryAfterSeconds int    // Seconds until an attempt frees up (0 if allowed)
	Policy            Policy // Failure policy of the call site
	Degraded          bool   // Store was unreachable and Policy decided
}

// RateLimiter provides sliding-window admission control keyed by
// (identifier, operation) over a shared Store
type RateLimiter struct {
	store  Store
	logger Logger
	now    func() time.Time
}

// Option configures a RateLimiter
type Option func(*RateLimiter)

// WithClock overrides the time source (tests)
func WithClock(now func() time.Time) Option {
	return func(r *RateLimiter) { r.now = now }
}

// NewRateLimiter creates a rate limiter over store
func NewRateLimiter(store Store, logger Logger, opts ...Option) *RateLimiter {
	r := &RateLimiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Check runs CheckAndRecord with the operation's default limit
func (r *RateLimiter) Check(ctx context.Context, identifier string, op Operation, policy Policy, metadata map[string]string) (*RateLimitResult, error) {
	return r.CheckAndRecord(ctx, identifier, op, LimitFor(op), policy, metadata)
}

// CheckAndRecord counts the identifier's attempts for op inside the window.
// Below the limit the attempt is allowed and one record is appended; at the
// limit it is denied without writing anything, with RetryAfterSeconds derived
// from the oldest in-window record.
//
// When the store fails, FailOpen returns an allowed result and no error;
// FailClosed returns a denied result and an error wrapping ErrStoreUnavailable.
func (r *RateLimiter) CheckAndRecord(ctx context.Context, identifier string, op Operation, limit Limit, policy Policy, metadata map[string]string) (*RateLimitResult, error) {
	if limit.MaxRequests <= 0 || limit.Window <= 0 {
		return nil, fmt.Errorf("invalid limit for %s: %d per %s", op, limit.MaxRequests, limit.Window)
	}

	now := r.now()
	rec := Record{
		Identifier: identifier,
		Operation:  op,
		ObservedAt: now,
		Metadata:   metadata,
	}

	win, err := r.store.Attempt(ctx, rec, limit)
	if err != nil {
		return r.degraded(identifier, op, limit, policy, err)
	}

	if win.Recorded {
		r.logger.Debug("rate limit check passed",
			"identifier", identifier,
			"operation", op,
			"current", win.Count+1,
			"limit", limit.MaxRequests)

		return &RateLimitResult{
			Allowed:   true,
			Remaining: max(limit.MaxRequests-win.Count-1, 0),
			Limit:     limit.MaxRequests,
			Policy:    policy,
		}, nil
	}

	retryAfter := retryAfterSeconds(win.Oldest, limit.Window, now)
	r.logger.Warn("rate limit exceeded",
		"identifier", identifier,
		"operation", op,
		"current", win.Count,
		"limit", limit.MaxRequests,
		"retry_after", retryAfter)

	return &RateLimitResult{
		Allowed:           false,
		Remaining:         0,
		Limit:             limit.MaxRequests,
		RetryAfterSeconds: retryAfter,
		Policy:            policy,
	}, nil
}

func (r *RateLimiter) degraded(identifier string, op Operation, limit Limit, policy Policy, cause error) (*RateLimitResult, error) {
	r.logger.Error("rate limit store unavailable",
		"identifier", identifier,
		"operation", op,
		"policy", policy.String(),
		"error", cause)

	if policy == FailClosed {
		return &RateLimitResult{
			Allowed:           false,
			Limit:             limit.MaxRequests,
			RetryAfterSeconds: int(limit.Window.Seconds()),
			Policy:            policy,
			Degraded:          true,
		}, fmt.Errorf("%w: %w", ErrStoreUnavailable, cause)
	}

	return &RateLimitResult{
		Allowed:   true,
		Remaining: limit.MaxRequests,
		Limit:     limit.MaxRequests,
		Policy:    policy,
		Degraded:  true,
	}, nil
}

// Prune deletes records older than retention and returns how many went away
func (r *RateLimiter) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := r.now().Add(-retention)
	n, err := r.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune rate limit records: %w", err)
	}
	r.logger.Info("pruned rate limit records", "deleted", n, "before", cutoff)
	return n, nil
}

// Ping checks the backing store
func (r *RateLimiter) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// retryAfterSeconds is the time until the oldest in-window record leaves the
// window, rounded up, never below one second
func retryAfterSeconds(oldest time.Time, window time.Duration, now time.Time) int {
	if oldest.IsZero() {
		return int(math.Ceil(window.Seconds()))
	}
	wait := oldest.Add(window).Sub(now)
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
