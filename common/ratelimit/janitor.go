package ratelimit

import (
	"context"
	"time"
)

// Janitor prunes expired records on a fixed interval until ctx is done
type Janitor struct {
	limiter   *RateLimiter
	logger    Logger
	interval  time.Duration
	retention time.Duration
	timeout   time.Duration
}

// NewJanitor creates a janitor. Records older than retention are deleted
// every interval; each pass gets at most timeout.
func NewJanitor(limiter *RateLimiter, logger Logger, interval, retention, timeout time.Duration) *Janitor {
	return &Janitor{
		limiter:   limiter,
		logger:    logger,
		interval:  interval,
		retention: retention,
		timeout:   timeout,
	}
}

// Run blocks until ctx is cancelled
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		j.logger.Info("rate limit janitor disabled")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("rate limit janitor started", "interval", j.interval, "retention", j.retention)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("rate limit janitor stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single prune pass
func (j *Janitor) RunOnce(ctx context.Context) {
	pruneCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if _, err := j.limiter.Prune(pruneCtx, j.retention); err != nil {
		j.logger.Error("rate limit prune failed", "error", err)
	}
}
