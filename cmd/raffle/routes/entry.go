package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/openraffle/raffle/cmd/raffle/container"
	"github.com/openraffle/raffle/cmd/raffle/handlers"
)

// RegisterEntryRoutes registers roster admission routes.
// Per-origin limits are applied inside the admission service, after
// validation and the frozen check.
func RegisterEntryRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewEntryHandler(c)

	entries := e.Group("/api/v1/entries")
	{
		entries.POST("", h.CreateEntry)       // POST /api/v1/entries
		entries.POST("/batch", h.CreateBatch) // POST /api/v1/entries/batch
		entries.GET("", h.ListEntries)        // GET /api/v1/entries
	}
}
