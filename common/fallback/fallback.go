// Package fallback runs an ordered list of interchangeable strategies and
// returns the first success. Used for store writes that have a slower but
// more tolerant secondary path (bulk insert -> row-by-row insert).
package fallback

import (
	"context"
	"errors"
	"fmt"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Strategy is one way of producing a T
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Result carries the value of the winning strategy, or of the last one tried
// when all of them failed
type Result[T any] struct {
	Value    T
	Strategy string
	Attempts []Attempt
}

// Attempt records a failed strategy
type Attempt struct {
	Strategy string
	Err      error
}

// ErrNoStrategies is returned when Run is called with an empty list
var ErrNoStrategies = errors.New("fallback: no strategies")

// Run tries each strategy in order and stops at the first that succeeds.
// A cancelled context stops the chain. When every strategy fails the
// returned error joins all failures.
func Run[T any](ctx context.Context, log Logger, strategies ...Strategy[T]) (Result[T], error) {
	var res Result[T]
	if len(strategies) == 0 {
		return res, ErrNoStrategies
	}

	for i, s := range strategies {
		if err := ctx.Err(); err != nil {
			res.Attempts = append(res.Attempts, Attempt{Strategy: s.Name, Err: err})
			break
		}

		value, err := s.Run(ctx)
		res.Value = value
		res.Strategy = s.Name
		if err == nil {
			if i > 0 {
				log.Info("fallback strategy succeeded", "strategy", s.Name, "failed_before", len(res.Attempts))
			}
			return res, nil
		}

		res.Attempts = append(res.Attempts, Attempt{Strategy: s.Name, Err: err})
		if i < len(strategies)-1 {
			log.Warn("strategy failed, trying next", "strategy", s.Name, "next", strategies[i+1].Name, "error", err)
		}
	}

	errs := make([]error, 0, len(res.Attempts))
	for _, a := range res.Attempts {
		errs = append(errs, fmt.Errorf("%s: %w", a.Strategy, a.Err))
	}
	return res, errors.Join(errs...)
}
