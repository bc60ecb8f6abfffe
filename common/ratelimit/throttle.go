package ratelimit

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// GlobalThrottle is a process-wide token bucket in front of all routes.
// It protects the store from floods; fairness per origin is the sliding
// window limiter's job.
type GlobalThrottle struct {
	limiter *rate.Limiter
}

// NewGlobalThrottle allows rps requests per second with the given burst.
// A non-positive rps disables throttling.
func NewGlobalThrottle(rps float64, burst int) *GlobalThrottle {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &GlobalThrottle{limiter: rate.NewLimiter(limit, burst)}
}

// Allow reports whether a request may proceed now. When it may not, the
// returned duration is a hint for Retry-After.
func (g *GlobalThrottle) Allow() (bool, time.Duration) {
	r := g.limiter.Reserve()
	if !r.OK() {
		return false, time.Second
	}
	delay := r.Delay()
	if delay == 0 {
		return true, 0
	}
	r.Cancel()
	return false, delay
}

// RetryAfterSeconds rounds d up to whole seconds, minimum one
func RetryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
