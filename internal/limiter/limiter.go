// Package limiter bounds the number of in-flight backend calls.
//
// Run is a chunked throttle, not a work-stealing pool: tasks are split into
// consecutive chunks of maxInFlight, each chunk runs concurrently, and the
// next chunk starts only after every task of the current one has returned.
// A slow task therefore delays the start of the next chunk.
package limiter

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of work. Tasks own their error policy; the limiter only
// reports what they return.
type Task[T any] func(ctx context.Context) (T, error)

// TaskError annotates a task failure with the task's submission index.
type TaskError struct {
	Index int
	Err   error
}

// Error implements the error interface for TaskError.
func (e *TaskError) Error() string { return fmt.Sprintf("task %d: %v", e.Index, e.Err) }

// Unwrap returns the task's error.
func (e *TaskError) Unwrap() error { return e.Err }

// Run executes tasks in chunks of maxInFlight and returns their results in
// submission order. A maxInFlight below 1 is treated as 1.
//
// Every task error is returned, joined and wrapped in a *TaskError; no error
// stops the tasks of its own chunk. When ctx is done between chunks the
// remaining chunks are not started and ctx.Err() is joined into the result.
// Slots for failed or unstarted tasks hold the zero value.
func Run[T any](ctx context.Context, tasks []Task[T], maxInFlight int) ([]T, error) {
	if maxInFlight < 1 {
		maxInFlight = 1
	}

	results := make([]T, len(tasks))
	errs := make([]error, len(tasks))

	for start := 0; start < len(tasks); start += maxInFlight {
		if err := ctx.Err(); err != nil {
			return results, errors.Join(errors.Join(errs...), fmt.Errorf("limiter stopped before task %d: %w", start, err))
		}

		end := min(start+maxInFlight, len(tasks))

		// errgroup.Group without WithContext: one failure must not cancel
		// its siblings, and every error is collected per slot.
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				v, err := tasks[i](ctx)
				results[i] = v
				if err != nil {
					errs[i] = &TaskError{Index: i, Err: err}
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	return results, errors.Join(errs...)
}

