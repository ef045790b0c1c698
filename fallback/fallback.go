// Package fallback runs an ordered list of alternative strategies for one
// task until the first one succeeds. Each pipeline stage (metadata,
// transcript, AI generation) is one chain; the stages differ only in their
// attempt lists and in how the orchestrator reacts to exhaustion.
package fallback

import (
	"context"
	"errors"
	"fmt"
)

// ErrExhausted reports that every attempt in a chain failed. The last
// attempt's error is wrapped and reachable through errors.Unwrap.
var ErrExhausted = errors.New("all fallback attempts exhausted")

// Attempt is one named strategy in a chain.
type Attempt[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Outcome reports which attempt won.
type Outcome[T any] struct {
	Value T
	// Winner is the Name of the successful attempt.
	Winner string
	// Index is the zero-based position of the winner in the chain.
	Index int
}

// Observer is called once per attempt with its result. Success and failure
// both pass through it, so per-layer metrics flags and logging stay uniform
// across stages instead of being re-implemented in each one.
type Observer func(name string, index int, err error)

// Run evaluates attempts in order and stops at the first success. An
// attempt's failure is never propagated on its own; only full exhaustion
// returns an error, wrapping the last failure. A cancelled context stops the
// chain between attempts.
func Run[T any](ctx context.Context, attempts []Attempt[T], observe Observer) (Outcome[T], error) {
	var zero Outcome[T]
	var lastErr error

	for i, a := range attempts {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := a.Run(ctx)
		if observe != nil {
			observe(a.Name, i, err)
		}
		if err != nil {
			lastErr = err
			continue
		}

		return Outcome[T]{Value: value, Winner: a.Name, Index: i}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no attempts configured")
	}
	return zero, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}
