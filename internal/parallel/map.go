// Package parallel implements the bounded, ordered, per-item-isolated
// fan-out primitive every non-trivial processor uses for its per-item
// work (frame extraction, centering, background removal, commercial
// synthesis, upload). Unifying it here means rate/retry/back-pressure
// behavior is reasoned about once.
//
// The concurrency shape (buffered job channel, worker goroutines,
// sync.WaitGroup, atomic counters) follows
// internal/pipeline/stages/logocaching/stage.go's worker pool. That
// pool reads results off an unordered channel; this primitive instead
// writes each result into a pre-sized slice at the item's original
// index, so Map's output preserves input order as the contract
// requires (see DESIGN.md, internal/parallel entry).
package parallel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrCancelled marks a result slot whose item never completed because
// the enclosing context was cancelled before its worker reached it.
type ErrCancelled struct {
	Index int
}

func (e *ErrCancelled) Error() string {
	return fmt.Sprintf("item %d: cancelled", e.Index)
}

// Result holds the outcome of one item's invocation of Fn.
type Result[O any] struct {
	Value O
	Err   error
}

// MapResult is parallelMap's return value.
type MapResult[O any] struct {
	Results      []Result[O]
	SuccessCount int
	ErrorCount   int
}

// OnItemError, when non-nil, is called synchronously for every failed
// item (used to log at debug level with the item index, per the
// per-item-isolation contract). It must not block.
type Options struct {
	Concurrency int
	OnItemError func(index int, err error)
}

// Map runs fn over items with at most opts.Concurrency invocations in
// flight, preserving input order in the returned Results. An item's
// failure does not cancel siblings. Map returns only after every item
// has completed or failed; if ctx is cancelled, in-flight items are
// allowed to finish naturally and any items whose worker never started
// them are marked with *ErrCancelled.
func Map[I, O any](ctx context.Context, items []I, fn func(context.Context, I) (O, error), opts Options) MapResult[O] {
	n := len(items)
	if n == 0 {
		return MapResult[O]{}
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > n {
		concurrency = n
	}

	results := make([]Result[O], n)
	var successCount, errorCount atomic.Int32

	type job struct {
		index int
		item  I
	}

	jobs := make(chan job, n)
	for i, it := range items {
		jobs <- job{index: i, item: it}
	}
	close(jobs)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for w := 0; w < concurrency; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case <-ctx.Done():
					results[j.index] = Result[O]{Err: &ErrCancelled{Index: j.index}}
					errorCount.Add(1)
					if opts.OnItemError != nil {
						opts.OnItemError(j.index, results[j.index].Err)
					}
					continue
				default:
				}

				val, err := fn(ctx, j.item)
				if err != nil {
					results[j.index] = Result[O]{Err: err}
					errorCount.Add(1)
					if opts.OnItemError != nil {
						opts.OnItemError(j.index, err)
					}
					continue
				}
				results[j.index] = Result[O]{Value: val}
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	return MapResult[O]{
		Results:      results,
		SuccessCount: int(successCount.Load()),
		ErrorCount:   int(errorCount.Load()),
	}
}
