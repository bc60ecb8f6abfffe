package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/openraffle/raffle/cmd/raffle/container"
	"github.com/openraffle/raffle/cmd/raffle/handlers"
)

// RegisterDrawRoutes registers draw history routes
func RegisterDrawRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewDrawHandler(c)

	draws := e.Group("/api/v1/draws")
	{
		draws.GET("", h.ListDraws)   // GET /api/v1/draws?limit=20
		draws.GET("/:id", h.GetDraw) // GET /api/v1/draws/{draw_id}
	}
}
