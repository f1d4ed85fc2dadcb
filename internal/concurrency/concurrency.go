package concurrency

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"

	"github.com/openfga/mpath/pkg/storage"
)

// DefaultStreamWorkers is the number of in-flight operations Stream allows when none is configured.
const DefaultStreamWorkers = 5

// ErrInvalidWorker is returned synchronously by Stream when it is misconfigured.
var ErrInvalidWorker = errors.New("invalid stream worker")

// StreamFunc is applied by Stream to every item of an iterator.
type StreamFunc[T any] func(ctx context.Context, item T) error

// NewPool returns a new pool that runs at most maxGoroutines tasks at once.
// Wait() returns the first error seen. A failing task does not cancel the others.
func NewPool(maxGoroutines int) *pool.ErrorPool {
	return pool.New().
		WithErrors().
		WithFirstError().
		WithMaxGoroutines(maxGoroutines)
}

// Stream pulls items from iter and applies fn to each of them, keeping at most
// maxWorkers applications in flight. Items are pulled one at a time, and only when
// a worker slot is free, so iter is never read ahead of the workers.
//
// Once an application fails no more items are pulled, but the applications already
// dispatched run to completion. Stream then returns the first error observed and
// the number of successful applications. Nothing is rolled back.
//
// There is no ordering guarantee between applications when maxWorkers > 1.
// iter is always stopped before Stream returns.
func Stream[T any](ctx context.Context, iter storage.Iterator[T], maxWorkers int, fn StreamFunc[T]) (int64, error) {
	if iter == nil {
		return 0, fmt.Errorf("%w: nil iterator", ErrInvalidWorker)
	}
	defer iter.Stop()

	if fn == nil {
		return 0, fmt.Errorf("%w: nil stream function", ErrInvalidWorker)
	}
	if maxWorkers < 1 {
		return 0, fmt.Errorf("%w: maxWorkers must be at least 1, got %d", ErrInvalidWorker, maxWorkers)
	}

	var (
		failed    atomic.Bool
		processed atomic.Int64
		pullErr   error
	)

	p := NewPool(maxWorkers)
	for !failed.Load() {
		item, err := iter.Next(ctx)
		if err != nil {
			if !errors.Is(err, storage.ErrIteratorDone) {
				pullErr = err
			}
			break
		}

		// blocks until a worker slot is available
		p.Go(func() error {
			if err := fn(ctx, item); err != nil {
				failed.Store(true)
				return err
			}
			processed.Add(1)
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return processed.Load(), err
	}

	return processed.Load(), pullErr
}
