// Package batch runs collections of independent operations under a bounded
// concurrency cap with partial-failure semantics: one item's fault never
// prevents sibling items from completing. An optional circuit-breaker mode
// short-circuits the remainder of a batch once a failure threshold is hit.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dskow/ragshield/circuitbreaker"
)

// DefaultConcurrency is the in-flight cap used when Config.Concurrency is
// unset.
const DefaultConcurrency = 4

// Config controls one batch execution.
type Config struct {
	// Concurrency caps simultaneously in-flight item operations. Values
	// below 1 fall back to DefaultConcurrency; set 1 for fully sequential
	// processing.
	Concurrency int

	// FailureThreshold, when positive, gates the batch through a
	// consecutive-failure circuit breaker: once that many items fail in a
	// row, remaining items fail fast with a circuit-open error instead of
	// being attempted.
	FailureThreshold int

	// ResetTimeout is the breaker cooldown in breaker mode. Within a single
	// batch it effectively determines whether a long-running batch retries
	// the resource after the cooldown.
	ResetTimeout time.Duration

	// Logger receives breaker state transitions. Defaults to slog.Default.
	Logger *slog.Logger
}

// Result is the outcome of one item in a batch. Exactly one of Value and Err
// is meaningful; Item is always present so callers can recover result
// identity without relying on position.
type Result[I, R any] struct {
	Item  I
	Value R
	Err   error
}

// Failed reports whether the item's operation returned an error.
func (r Result[I, R]) Failed() bool { return r.Err != nil }

// ProcessBatch runs fn for every item with at most cfg.Concurrency
// invocations in flight, returning one Result per item. Per-item errors are
// captured in the Result and never abort sibling items. Items that were not
// started before ctx was cancelled fail with the context error.
func ProcessBatch[I, R any](ctx context.Context, cfg Config, items []I, fn func(context.Context, I) (R, error)) []Result[I, R] {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	var breaker *circuitbreaker.ConsecutiveBreaker
	if cfg.FailureThreshold > 0 {
		breaker = circuitbreaker.NewConsecutiveBreaker("batch", cfg.FailureThreshold, cfg.ResetTimeout, cfg.Logger)
	}

	results := make([]Result[I, R], len(items))

	// A plain errgroup (not WithContext) so one item's failure cannot
	// cancel its siblings; item errors stay inside their Result.
	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result[I, R]{Item: item, Err: err}
				return nil
			}
			value, err := runItem(ctx, breaker, item, fn)
			results[i] = Result[I, R]{Item: item, Value: value, Err: err}
			return nil
		})
	}

	g.Wait() //nolint:errcheck // item errors are captured per Result
	return results
}

func runItem[I, R any](ctx context.Context, breaker *circuitbreaker.ConsecutiveBreaker, item I, fn func(context.Context, I) (R, error)) (R, error) {
	if breaker == nil {
		return fn(ctx, item)
	}
	var value R
	err := circuitbreaker.Do(breaker, func() error {
		var err error
		value, err = fn(ctx, item)
		return err
	})
	return value, err
}

// ProcessInBatches partitions items into contiguous chunks of batchSize (the
// last chunk may be smaller), calls fn once per chunk in order, and
// concatenates the chunk outputs. fn must return exactly one result per
// chunk input, positionally aligned, so the concatenated output is aligned
// to the full input. Any chunk error aborts the whole call.
func ProcessInBatches[I, R any](ctx context.Context, items []I, batchSize int, fn func(context.Context, []I) ([]R, error)) ([]R, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}

	out := make([]R, 0, len(items))
	for start := 0; start < len(items); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+batchSize, len(items))
		chunk := items[start:end]

		chunkOut, err := fn(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("batch %d..%d: %w", start, end-1, err)
		}
		if len(chunkOut) != len(chunk) {
			return nil, fmt.Errorf("batch %d..%d: processor returned %d results for %d inputs", start, end-1, len(chunkOut), len(chunk))
		}
		out = append(out, chunkOut...)
	}
	return out, nil
}

// ExecuteWithBreaker applies circuit breaker semantics to a single operation,
// independent of the strategy-owned breaker pool. Failures before the breaker
// trips propagate the underlying error unchanged; calls made while the
// breaker is open fail with *circuitbreaker.OpenError without invoking op.
func ExecuteWithBreaker[T any](ctx context.Context, b circuitbreaker.Breaker, op func(context.Context) (T, error)) (T, error) {
	var value T
	err := circuitbreaker.Do(b, func() error {
		var err error
		value, err = op(ctx)
		return err
	})
	return value, err
}
