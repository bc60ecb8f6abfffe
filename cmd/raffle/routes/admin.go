package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/openraffle/raffle/cmd/raffle/container"
	"github.com/openraffle/raffle/cmd/raffle/handlers"
	raffleMiddleware "github.com/openraffle/raffle/cmd/raffle/middleware"
)

// RegisterAdminRoutes registers admin UI routes
func RegisterAdminRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewAdminHandler(c)

	admin := e.Group("/api/v1/admin")
	{
		// verify is rate limited per origin inside the admin service
		admin.POST("/verify", h.Verify) // POST /api/v1/admin/verify

		admin.GET("/status", h.Status, raffleMiddleware.RequireAdminToken(h.Authorized)) // GET /api/v1/admin/status
	}
}
