package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/openraffle/raffle/cmd/raffle/container"
	"github.com/openraffle/raffle/cmd/raffle/handlers"
	raffleMiddleware "github.com/openraffle/raffle/cmd/raffle/middleware"
	"github.com/openraffle/raffle/common/middleware"
	"github.com/openraffle/raffle/common/ratelimit"
)

// RegisterCycleRoutes registers the scheduler trigger endpoint.
// Authentication runs first; only authenticated calls reach the limiter.
func RegisterCycleRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewTriggerHandler(c)

	cycle := e.Group("/api/v1/cycle",
		raffleMiddleware.RequireTriggerSecret(c.DispatcherService.Authenticate),
		middleware.OriginRateLimitMiddleware(c.RateLimiter, ratelimit.OpDrawTrigger, ratelimit.FailOpen))
	{
		cycle.POST("", h.RunCycleStep) // POST /api/v1/cycle {"action": "draw"}
	}
}
