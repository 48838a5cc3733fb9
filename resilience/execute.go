package resilience

import (
	"context"
	"sort"
	"time"

	"github.com/dskow/ragshield/circuitbreaker"
	"github.com/dskow/ragshield/provider"
)

// ExecuteEmbedding runs op against the primary embedder with the full
// protection stack, falling back to the fallback embedder (when non-nil)
// after the primary is exhausted. key is the metrics key prefix; logCtx is
// attached to every log record emitted for this call.
//
// The category execute functions are package-level because Go methods cannot
// be generic; the strategy carries all per-category state.
func ExecuteEmbedding[T any](ctx context.Context, s *Strategy, primary, fallback provider.Embedder, op func(context.Context, provider.Embedder) (T, error), key string, logCtx map[string]any) (T, error) {
	var fb func(context.Context) (T, error)
	if fallback != nil {
		fb = func(ctx context.Context) (T, error) { return op(ctx, fallback) }
	}
	return execute(ctx, s, CategoryEmbedding, key, logCtx,
		func(ctx context.Context) (T, error) { return op(ctx, primary) },
		fb,
		func(cause error) error { return &EmbeddingError{Op: key, Cause: cause} },
	)
}

// ExecuteVectorStore is ExecuteEmbedding for vector index operations.
func ExecuteVectorStore[T any](ctx context.Context, s *Strategy, primary, fallback provider.VectorIndex, op func(context.Context, provider.VectorIndex) (T, error), key string, logCtx map[string]any) (T, error) {
	var fb func(context.Context) (T, error)
	if fallback != nil {
		fb = func(ctx context.Context) (T, error) { return op(ctx, fallback) }
	}
	return execute(ctx, s, CategoryVectorStore, key, logCtx,
		func(ctx context.Context) (T, error) { return op(ctx, primary) },
		fb,
		func(cause error) error { return &VectorStoreError{Op: key, Cause: cause} },
	)
}

// ExecuteGeneration is ExecuteEmbedding for text-generation operations.
func ExecuteGeneration[T any](ctx context.Context, s *Strategy, primary, fallback provider.Generator, op func(context.Context, provider.Generator) (T, error), key string, logCtx map[string]any) (T, error) {
	var fb func(context.Context) (T, error)
	if fallback != nil {
		fb = func(ctx context.Context) (T, error) { return op(ctx, fallback) }
	}
	return execute(ctx, s, CategoryGeneration, key, logCtx,
		func(ctx context.Context) (T, error) { return op(ctx, primary) },
		fb,
		func(cause error) error { return &GenerationError{Op: key, Cause: cause} },
	)
}

// ExecuteOperation runs an arbitrary operation with attempt/failure counters,
// timing, and retry, but no collaborator indirection, breaker, or fallback.
// mapErr, when non-nil, translates the raw failure into a caller-chosen error
// kind (commonly *ProcessingError); a nil mapErr wraps it in *ExecutionError.
func ExecuteOperation[T any](ctx context.Context, s *Strategy, op func(context.Context) (T, error), key string, mapErr func(error) error, logCtx map[string]any) (T, error) {
	s.metrics.IncrCounter(key + ".attempts")

	start := time.Now()
	var value T
	err := s.withRetry(ctx, func() error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err == nil {
		s.metrics.RecordTimer(key, time.Since(start), nil)
		return value, nil
	}

	s.metrics.IncrCounter(key + ".failures")
	s.logger.Error("operation failed", logArgs(key, "", logCtx, err)...)

	var zero T
	if mapErr != nil {
		return zero, mapErr(err)
	}
	return zero, &ExecutionError{Op: key, Cause: err}
}

// execute is the shared per-call shape: attempt counter, rate limiter,
// breaker-gated primary with retry, fallback, typed failure. The attempts
// counter moves exactly once per call regardless of outcome; the failures
// counter moves only on ultimate failure; a timer sample is recorded only
// for the winning branch.
func execute[T any](
	ctx context.Context,
	s *Strategy,
	cat Category,
	key string,
	logCtx map[string]any,
	primary func(context.Context) (T, error),
	fallback func(context.Context) (T, error),
	wrap func(cause error) error,
) (T, error) {
	s.metrics.IncrCounter(key + ".attempts")

	var zero T
	br := s.breaker(cat)
	defer func() {
		s.metrics.SetGauge("circuitbreaker."+string(cat)+".state", int64(br.State()))
	}()

	if lim := s.limiter(cat); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			s.metrics.IncrCounter(key + ".failures")
			s.logger.Error("rate limit wait aborted", logArgs(key, cat, logCtx, err)...)
			return zero, wrap(err)
		}
	}

	start := time.Now()
	var value T
	primaryErr := s.withRetry(ctx, func() error {
		return circuitbreaker.Do(br, func() error {
			v, err := primary(ctx)
			if err != nil {
				return err
			}
			value = v
			return nil
		})
	})
	if primaryErr == nil {
		s.metrics.RecordTimer(key, time.Since(start), map[string]string{"category": string(cat)})
		return value, nil
	}

	s.logger.Warn("primary call failed", logArgs(key, cat, logCtx, primaryErr)...)

	if fallback != nil {
		fbStart := time.Now()
		v, fbErr := fallback(ctx)
		if fbErr == nil {
			// The only caller-visible marker of the fallback path is this
			// warning; the returned value is indistinguishable.
			s.logger.Warn("fallback succeeded after primary failure", logArgs(key, cat, logCtx, nil)...)
			s.metrics.RecordTimer(key, time.Since(fbStart), map[string]string{"category": string(cat), "branch": "fallback"})
			return v, nil
		}
		s.logger.Warn("fallback call failed", logArgs(key, cat, logCtx, fbErr)...)
	}

	s.metrics.IncrCounter(key + ".failures")
	s.logger.Error("operation exhausted primary and fallback", logArgs(key, cat, logCtx, primaryErr)...)
	return zero, wrap(primaryErr)
}

// logArgs flattens the caller's log-context map into slog key-value pairs in
// deterministic order, prefixed with the operation key and category.
func logArgs(key string, cat Category, logCtx map[string]any, err error) []any {
	args := make([]any, 0, 2*(len(logCtx)+3))
	args = append(args, "operation", key)
	if cat != "" {
		args = append(args, "category", string(cat))
	}

	keys := make([]string, 0, len(logCtx))
	for k := range logCtx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, logCtx[k])
	}

	if err != nil {
		args = append(args, "error", err)
	}
	return args
}
