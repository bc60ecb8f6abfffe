package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/openraffle/raffle/cmd/raffle/container"
	"github.com/openraffle/raffle/cmd/raffle/service"
	"github.com/openraffle/raffle/common/bootstrap"
)

// DrawHandler serves draw history
type DrawHandler struct {
	components *bootstrap.Components
	history    *service.HistoryService
}

// NewDrawHandler creates a new draw handler
func NewDrawHandler(c *container.Container) *DrawHandler {
	return &DrawHandler{
		components: c.Components,
		history:    c.HistoryService,
	}
}

// ListDraws lists recent draws
// GET /api/v1/draws?limit=20
// An absent limit means the default page; values above the maximum are clamped.
func (h *DrawHandler) ListDraws(c echo.Context) error {
	var limit int
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return respondError(c, h.components, &service.ValidationError{Field: "limit", Message: "must be a positive integer"})
		}
		limit = n
	}

	draws, err := h.history.List(c.Request().Context(), limit)
	if err != nil {
		return respondError(c, h.components, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"draws": draws,
		"count": len(draws),
	})
}

// GetDraw returns one draw with its roster snapshot
// GET /api/v1/draws/:id
func (h *DrawHandler) GetDraw(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, h.components, service.ErrDrawNotFound)
	}

	detail, err := h.history.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.components, err)
	}

	return c.JSON(http.StatusOK, detail)
}
