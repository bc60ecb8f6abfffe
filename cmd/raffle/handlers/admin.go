package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/openraffle/raffle/cmd/raffle/container"
	"github.com/openraffle/raffle/cmd/raffle/service"
	"github.com/openraffle/raffle/common/bootstrap"
)

// AdminHandler serves the admin UI
type AdminHandler struct {
	components *bootstrap.Components
	admin      *service.AdminService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(c *container.Container) *AdminHandler {
	return &AdminHandler{
		components: c.Components,
		admin:      c.AdminService,
	}
}

// Status returns the read-only cycle status
// GET /api/v1/admin/status
func (h *AdminHandler) Status(c echo.Context) error {
	status, err := h.admin.Status(c.Request().Context())
	if err != nil {
		return respondError(c, h.components, err)
	}
	return c.JSON(http.StatusOK, status)
}

// Verify checks an admin token for the UI login
// POST /api/v1/admin/verify
func (h *AdminHandler) Verify(c echo.Context) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	ok, err := h.admin.Verify(c.Request().Context(), c.RealIP(), req.Token)
	if err != nil {
		return respondError(c, h.components, err)
	}
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]interface{}{
			"valid": false,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"valid": true,
	})
}

// Authorized exposes the admin token check for route middleware
func (h *AdminHandler) Authorized(token string) bool {
	return h.admin.Authorized(token)
}
