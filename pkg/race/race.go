// Package race provides a structured-concurrency combinator that runs
// several attempts at the same logical operation and keeps the first
// success.
package race

import (
	"context"
	"errors"
)

// ErrAllFailed is returned by First when no attempt succeeds.
var ErrAllFailed = errors.New("race: all attempts failed")

// Attempt is one independently cancellable unit of work.
type Attempt[T any] func(ctx context.Context) (T, error)

// Result carries the winning value and which attempt produced it.
type Result[T any] struct {
	Value T
	Index int
}

// First runs every attempt concurrently and returns the first one to
// complete without error, cancelling the rest. Individual failures
// are collected and ignored unless every attempt fails, in which case
// the joined errors are wrapped under ErrAllFailed. Cancellation of
// the parent ctx cancels all attempts.
func First[T any](ctx context.Context, attempts []Attempt[T]) (Result[T], error) {
	var zero Result[T]
	if len(attempts) == 0 {
		return zero, ErrAllFailed
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		value T
		index int
		err   error
	}

	results := make(chan outcome, len(attempts))
	for i, attempt := range attempts {
		go func(i int, attempt Attempt[T]) {
			value, err := attempt(raceCtx)
			results <- outcome{value: value, index: i, err: err}
		}(i, attempt)
	}

	var failures []error
	for range attempts {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case out := <-results:
			if out.err != nil {
				failures = append(failures, out.err)
				continue
			}
			// Winner: stop the siblings; their results are
			// discarded via the buffered channel.
			cancel()
			return Result[T]{Value: out.value, Index: out.index}, nil
		}
	}

	return zero, errors.Join(ErrAllFailed, errors.Join(failures...))
}
