// Package fallback evaluates an ordered list of strategies until one
// produces a result, and reports which one did.
package fallback

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/platform/metrics"
)

// ErrNext tells the runner that a strategy has nothing to offer and the
// next one should be tried. It is not logged as a failure.
var ErrNext = errors.New("fallback: next strategy")

// ErrExhausted is returned when no strategy produced a result.
var ErrExhausted = errors.New("fallback: all strategies exhausted")

// Strategy is one step of a chain.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Attempt records a strategy that did not satisfy the chain.
type Attempt struct {
	Strategy string
	Err      error
}

// Outcome is the result of a chain.
type Outcome[T any] struct {
	Value    T
	Strategy string
	Attempts []Attempt
}

// Degraded reports whether the winning strategy was not the first one.
func (o Outcome[T]) Degraded() bool {
	return len(o.Attempts) > 0
}

// Run tries strategies in order. The first nil error wins. Every attempt is
// counted under chain in the fallback metrics.
func Run[T any](ctx context.Context, chain string, strategies ...Strategy[T]) (Outcome[T], error) {
	var out Outcome[T]
	for _, s := range strategies {
		value, err := s.Run(ctx)
		if err == nil {
			metrics.RecordFallback(chain, s.Name, "ok")
			out.Value = value
			out.Strategy = s.Name
			return out, nil
		}
		if errors.Is(err, ErrNext) {
			metrics.RecordFallback(chain, s.Name, "skipped")
		} else {
			metrics.RecordFallback(chain, s.Name, "error")
		}
		out.Attempts = append(out.Attempts, Attempt{Strategy: s.Name, Err: err})
	}

	errs := make([]error, 0, len(out.Attempts)+1)
	errs = append(errs, ErrExhausted)
	for _, a := range out.Attempts {
		errs = append(errs, fmt.Errorf("%s: %w", a.Strategy, a.Err))
	}
	return out, fmt.Errorf("%s: %w", chain, errors.Join(errs...))
}
