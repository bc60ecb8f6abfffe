package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/openraffle/raffle/common/ratelimit"
)

// GlobalThrottleMiddleware applies the process-wide token bucket.
// Health checks are never throttled.
func GlobalThrottleMiddleware(throttle *ratelimit.GlobalThrottle) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/health" {
				return next(c)
			}

			ok, wait := throttle.Allow()
			if ok {
				return next(c)
			}

			retryAfter := ratelimit.RetryAfterSeconds(wait)
			c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"error":   "global_rate_limit_exceeded",
				"message": "Service is experiencing high load. Please try again later.",
				"details": map[string]interface{}{
					"retry_after_seconds": retryAfter,
				},
			})
		}
	}
}

// OriginRateLimitMiddleware applies a per-origin sliding window for op to
// every request of the group it is mounted on. The origin is the client IP.
func OriginRateLimitMiddleware(limiter *ratelimit.RateLimiter, op ratelimit.Operation, policy ratelimit.Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result, err := limiter.Check(c.Request().Context(), c.RealIP(), op, policy, map[string]string{
				"path":       c.Path(),
				"user_agent": c.Request().UserAgent(),
			})
			if err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
					"error":   "rate_limit_unavailable",
					"message": "Unable to verify request quota. Please try again later.",
				})
			}

			if !result.Allowed {
				c.Response().Header().Set("Retry-After", strconv.Itoa(result.RetryAfterSeconds))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "rate_limit_exceeded",
					"message": "You have exceeded your request quota. Please wait before trying again.",
					"details": map[string]interface{}{
						"operation":           op,
						"limit":               result.Limit,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
