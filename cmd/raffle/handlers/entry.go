package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/openraffle/raffle/cmd/raffle/container"
	"github.com/openraffle/raffle/cmd/raffle/models"
	"github.com/openraffle/raffle/cmd/raffle/service"
	"github.com/openraffle/raffle/common/bootstrap"
)

// EntryHandler handles roster admissions
type EntryHandler struct {
	components *bootstrap.Components
	admission  *service.AdmissionService
}

// NewEntryHandler creates a new entry handler
func NewEntryHandler(c *container.Container) *EntryHandler {
	return &EntryHandler{
		components: c.Components,
		admission:  c.AdmissionService,
	}
}

// CreateEntry admits one entry
// POST /api/v1/entries
func (h *EntryHandler) CreateEntry(c echo.Context) error {
	var req models.EntryInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	entry, err := h.admission.AddOne(c.Request().Context(), c.RealIP(), req)
	if err != nil {
		return respondError(c, h.components, err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"entry":   entry,
		"message": "You are in! Good luck.",
	})
}

// CreateBatch admits count identical copies of one entry
// POST /api/v1/entries/batch
func (h *EntryHandler) CreateBatch(c echo.Context) error {
	var req struct {
		models.EntryInput
		Count int `json:"count"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	res, err := h.admission.AddMany(c.Request().Context(), c.RealIP(), req.EntryInput, req.Count)
	if err != nil {
		if res != nil && res.Inserted > 0 {
			return c.JSON(http.StatusMultiStatus, res)
		}
		return respondError(c, h.components, err)
	}

	status := http.StatusCreated
	if res.Failed > 0 {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, res)
}

// ListEntries returns the roster in admission order
// GET /api/v1/entries
func (h *EntryHandler) ListEntries(c echo.Context) error {
	entries, err := h.admission.ReadAll(c.Request().Context())
	if err != nil {
		return respondError(c, h.components, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
