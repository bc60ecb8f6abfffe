package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable is returned when a fail-closed check cannot reach the store
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Record is one admitted attempt. Records are append/prune only.
type Record struct {
	Identifier          string            `json:"identifier"`
	Operation           Operation         `json:"operation_type"`
	ObservedAt          time.Time         `json:"observed_at"`
	ConsecutiveAttempts int               `json:"consecutive_attempts"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// Window is the state of a key's sliding window as seen by one attempt
type Window struct {
	// Count of records in the window before this attempt
	Count int
	// Oldest in-window record, zero when Count is 0
	Oldest time.Time
	// Recorded is true when the attempt was appended (Count < max)
	Recorded bool
}

// Store persists rate limit records.
//
// Attempt must, as one atomic step for the record's (identifier, operation)
// key, count records observed at or after rec.ObservedAt-limit.Window and
// append rec only when that count is below limit.MaxRequests.
type Store interface {
	Attempt(ctx context.Context, rec Record, limit Limit) (Window, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Ping(ctx context.Context) error
}
