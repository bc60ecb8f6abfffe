package service

import (
	"errors"
	"fmt"

	"github.com/openraffle/raffle/cmd/raffle/models"
	"github.com/openraffle/raffle/common/ratelimit"
)

// ErrFrozen is returned when an admission arrives while the cycle is not open
var ErrFrozen = errors.New("the list is closed for this cycle")

// ErrStoreUnavailable wraps any failure of the backing store
var ErrStoreUnavailable = errors.New("store unavailable")

// ValidationError represents a user-correctable problem with submitted fields
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Operation         ratelimit.Operation
	Limit             int
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s allows %d requests per window, retry after %d seconds",
		e.Operation, e.Limit, e.RetryAfterSeconds)
}

// PartialPostDrawError is a failure after a winner was already claimed.
// The draw stands; Stage says which bookkeeping step did not finish.
type PartialPostDrawError struct {
	Draw  *models.DrawRecord
	Stage string
	Err   error
}

func (e *PartialPostDrawError) Error() string {
	if e.Draw == nil {
		return fmt.Sprintf("draw recorded but %s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("draw %s recorded but %s failed: %v", e.Draw.ID, e.Stage, e.Err)
}

func (e *PartialPostDrawError) Unwrap() error {
	return e.Err
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
