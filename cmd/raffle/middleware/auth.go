package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/openraffle/raffle/common/logger"
)

// AdminTokenHeader carries the admin UI token
const AdminTokenHeader = "X-Admin-Token"

// RequireAdminToken rejects requests whose X-Admin-Token is not accepted by authorized
func RequireAdminToken(authorized func(token string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !authorized(c.Request().Header.Get(AdminTokenHeader)) {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "unauthorized",
				})
			}
			return next(c)
		}
	}
}

// RequireTriggerSecret answers any request without an accepted bearer
// secret with the same 404 an unknown route gets. Mount it ahead of rate
// limiting so unauthenticated calls neither learn the endpoint exists nor
// spend the scheduler's budget.
func RequireTriggerSecret(authenticate func(secret string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			secret, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if !ok || !authenticate(secret) {
				return c.JSON(http.StatusNotFound, map[string]interface{}{
					"error": "not_found",
				})
			}
			return next(c)
		}
	}
}

// RequestIDContext copies the echo request id into the request context so
// logger.WithContext picks it up. Must run after echo's RequestID middleware.
func RequestIDContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(context.WithValue(req.Context(), logger.RequestIDKey, id)))
			}
			return next(c)
		}
	}
}
