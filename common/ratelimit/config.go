package ratelimit

import "time"

// Operation identifies the kind of call being rate limited
type Operation string

const (
	OpAdmissionIndividual Operation = "admission-individual"
	OpAdmissionBatch      Operation = "admission-batch"
	OpDrawTrigger         Operation = "draw-trigger"
	OpVerification        Operation = "verification"
)

// Limit is a sliding window allowance
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// OperationConfig defines the default limit for an operation
type OperationConfig struct {
	Operation   Operation
	Limit       Limit
	Description string
}

// DefaultLimits is the fixed per-operation table
var DefaultLimits = map[Operation]OperationConfig{
	OpAdmissionIndividual: {
		Operation:   OpAdmissionIndividual,
		Limit:       Limit{MaxRequests: 5, Window: time.Minute},
		Description: "Single entries - 5 per minute per origin",
	},
	OpAdmissionBatch: {
		Operation:   OpAdmissionBatch,
		Limit:       Limit{MaxRequests: 2, Window: 5 * time.Minute},
		Description: "Batch entries - 2 batches per 5 minutes per origin",
	},
	OpDrawTrigger: {
		Operation:   OpDrawTrigger,
		Limit:       Limit{MaxRequests: 10, Window: time.Minute},
		Description: "Cycle trigger calls - 10 per minute per origin",
	},
	OpVerification: {
		Operation:   OpVerification,
		Limit:       Limit{MaxRequests: 5, Window: 15 * time.Minute},
		Description: "Admin verification - 5 attempts per 15 minutes per origin",
	},
}

// LimitFor returns the default limit for an operation.
// Unknown operations get the most restrictive entry.
func LimitFor(op Operation) Limit {
	if cfg, ok := DefaultLimits[op]; ok {
		return cfg.Limit
	}
	return DefaultLimits[OpVerification].Limit
}

// GetAllOperations returns every configured operation in a stable order
func GetAllOperations() []OperationConfig {
	return []OperationConfig{
		DefaultLimits[OpAdmissionIndividual],
		DefaultLimits[OpAdmissionBatch],
		DefaultLimits[OpDrawTrigger],
		DefaultLimits[OpVerification],
	}
}

// Policy decides what happens when the backing store cannot be reached
type Policy int

const (
	// FailOpen allows the call (availability first). General API calls.
	FailOpen Policy = iota
	// FailClosed denies the call (security first). Sensitive verification flows.
	FailClosed
)

// String returns the policy name used in logs and responses
func (p Policy) String() string {
	switch p {
	case FailOpen:
		return "fail-open"
	case FailClosed:
		return "fail-closed"
	default:
		return "unknown"
	}
}
