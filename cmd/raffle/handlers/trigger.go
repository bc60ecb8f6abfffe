package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/openraffle/raffle/cmd/raffle/container"
	"github.com/openraffle/raffle/cmd/raffle/service"
	"github.com/openraffle/raffle/common/bootstrap"
)

// TriggerHandler is the scheduler/operator entry point for cycle steps
type TriggerHandler struct {
	components *bootstrap.Components
	dispatcher *service.DispatcherService
}

// NewTriggerHandler creates a new trigger handler
func NewTriggerHandler(c *container.Container) *TriggerHandler {
	return &TriggerHandler{
		components: c.Components,
		dispatcher: c.DispatcherService,
	}
}

// RunCycleStep runs one action. The bearer secret is checked by
// middleware.RequireTriggerSecret before this handler.
// POST /api/v1/cycle
func (h *TriggerHandler) RunCycleStep(c echo.Context) error {
	var req struct {
		Action string `json:"action"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	action, err := service.ParseAction(req.Action)
	if err != nil {
		return respondError(c, h.components, err)
	}

	res, err := h.dispatcher.Run(c.Request().Context(), action)
	redactSteps(res, h.components)
	if err != nil {
		var partialErr *service.PartialPostDrawError
		if res == nil || !errors.As(err, &partialErr) {
			return respondError(c, h.components, err)
		}
		h.components.Logger.Error("cycle action left unfinished bookkeeping",
			"action", action,
			"stage", partialErr.Stage,
			"draw_id", partialErr.Draw.ID,
			"error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error":  "post_draw_failure",
			"stage":  partialErr.Stage,
			"result": res,
		})
	}

	return c.JSON(http.StatusOK, res)
}
