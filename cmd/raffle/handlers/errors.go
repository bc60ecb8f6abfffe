package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/openraffle/raffle/cmd/raffle/service"
	"github.com/openraffle/raffle/common/bootstrap"
	"github.com/openraffle/raffle/common/ratelimit"
)

// respondError maps service errors to HTTP responses. Store failure detail
// is only shown outside production.
func respondError(c echo.Context, components *bootstrap.Components, err error) error {
	var validationErr *service.ValidationError
	var rateLimitErr *service.RateLimitError
	var partialErr *service.PartialPostDrawError

	switch {
	case errors.As(err, &validationErr):
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error":   "validation_failed",
			"field":   validationErr.Field,
			"message": validationErr.Message,
		})

	case errors.Is(err, service.ErrFrozen):
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":   "list_closed",
			"message": "The list is closed for this cycle. Please wait for the next one.",
		})

	case errors.As(err, &rateLimitErr):
		c.Response().Header().Set("Retry-After", strconv.Itoa(rateLimitErr.RetryAfterSeconds))
		return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
			"error":   "rate_limit_exceeded",
			"message": "Too many attempts. Please wait before trying again.",
			"details": map[string]interface{}{
				"operation":           rateLimitErr.Operation,
				"limit":               rateLimitErr.Limit,
				"retry_after_seconds": rateLimitErr.RetryAfterSeconds,
			},
		})

	case errors.Is(err, service.ErrDrawNotFound):
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "draw_not_found",
		})

	case errors.As(err, &partialErr):
		components.Logger.ErrorContext(c.Request().Context(), "post-draw step failed", "stage", partialErr.Stage, "error", err)
		body := map[string]interface{}{
			"error": "post_draw_failure",
			"stage": partialErr.Stage,
			"draw":  partialErr.Draw,
		}
		addDetail(body, components, err)
		return c.JSON(http.StatusInternalServerError, body)

	case errors.Is(err, service.ErrStoreUnavailable), errors.Is(err, ratelimit.ErrStoreUnavailable):
		components.Logger.WithContext(c.Request().Context()).Warn("store unavailable", "error", err)
		body := map[string]interface{}{
			"error":   "service_unavailable",
			"message": "Temporarily unavailable. Please try again shortly.",
		}
		addDetail(body, components, err)
		return c.JSON(http.StatusServiceUnavailable, body)

	default:
		components.Logger.ErrorContext(c.Request().Context(), "unexpected error", "error", err)
		body := map[string]interface{}{
			"error": "internal_error",
		}
		addDetail(body, components, err)
		return c.JSON(http.StatusInternalServerError, body)
	}
}

func addDetail(body map[string]interface{}, components *bootstrap.Components, err error) {
	if !components.Config.IsProduction() {
		body["detail"] = err.Error()
	}
}

// redactSteps blanks failure details before a step result leaves the
// service in production
func redactSteps(res *service.StepResult, components *bootstrap.Components) {
	if res == nil || !components.Config.IsProduction() {
		return
	}
	for i := range res.Steps {
		switch res.Steps[i].Status {
		case "failed", "degraded":
			res.Steps[i].Detail = ""
		}
	}
}
