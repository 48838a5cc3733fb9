package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dskow/ragshield/circuitbreaker"
	"github.com/dskow/ragshield/config"
	"github.com/dskow/ragshield/metrics"
	"github.com/dskow/ragshield/provider"
)

func newRetryStrategy(threshold, maxRetries int) *Strategy {
	cfg := config.ResilienceConfig{
		Embedding:   testCategory(threshold),
		VectorStore: testCategory(threshold),
		Generation:  testCategory(threshold),
		Retry: config.RetryConfig{
			MaxRetries:     maxRetries,
			InitialBackoff: time.Millisecond,
		},
	}
	return NewStrategy(cfg, metrics.NewRegistry(), testLogger())
}

type flakyEmbedder struct {
	calls     atomic.Int64
	succeedOn int64
}

func (f *flakyEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.calls.Add(1) < f.succeedOn {
		return nil, errors.New("transient")
	}
	return []float32{1}, nil
}

func (f *flakyEmbedder) BatchEmbed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("unused")
}

func TestRetry_SucceedsOnThirdAttempt(t *testing.T) {
	s := newRetryStrategy(10, 2)
	primary := &flakyEmbedder{succeedOn: 3}

	vec, err := ExecuteEmbedding(context.Background(), s, primary, nil, embedOp("x"), "embed", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 1 {
		t.Fatalf("expected vector, got %v", vec)
	}
	if got := primary.calls.Load(); got != 3 {
		t.Fatalf("expected 3 provider calls, got %d", got)
	}

	// Retries are internal to one logical attempt.
	if got := s.Metrics().Counter("embed.attempts"); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
	if got := s.Metrics().Counter("embed.failures"); got != 0 {
		t.Fatalf("expected 0 failures, got %d", got)
	}
}

func TestRetry_ExhaustedReturnsTypedError(t *testing.T) {
	s := newRetryStrategy(10, 2)
	primary := &fakeEmbedder{err: errors.New("always down")}

	_, err := ExecuteEmbedding(context.Background(), s, primary, nil, embedOp("x"), "embed", nil)
	var ee *EmbeddingError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *EmbeddingError, got %v", err)
	}
	if got := primary.calls.Load(); got != 3 {
		t.Fatalf("expected 3 provider calls (1 + 2 retries), got %d", got)
	}
}

func TestRetry_StopsWhenBreakerOpens(t *testing.T) {
	s := newRetryStrategy(1, 3)
	primary := &fakeEmbedder{err: errors.New("down")}

	_, err := ExecuteEmbedding(context.Background(), s, primary, nil, embedOp("x"), "embed", nil)
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("expected circuit-open cause once the breaker trips mid-retry, got %v", err)
	}
	// The first attempt trips the breaker; the retry is rejected without
	// another provider call and no further retries follow.
	if got := primary.calls.Load(); got != 1 {
		t.Fatalf("expected 1 provider call, got %d", got)
	}
}

func TestRetry_CancelledContextSkipsCall(t *testing.T) {
	s := newRetryStrategy(10, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := &fakeEmbedder{err: errors.New("down")}

	_, err := ExecuteEmbedding(ctx, s, primary, nil, embedOp("x"), "embed", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation to surface, got %v", err)
	}
	if got := primary.calls.Load(); got != 0 {
		t.Fatalf("expected no provider calls after cancellation, got %d", got)
	}
}

func TestUpdateConfig_TightensThreshold(t *testing.T) {
	s := newTestStrategy(5)
	primary := &fakeEmbedder{err: errors.New("down")}

	cfg := config.ResilienceConfig{
		Embedding:   testCategory(1),
		VectorStore: testCategory(1),
		Generation:  testCategory(1),
		Retry:       config.RetryConfig{InitialBackoff: time.Millisecond},
	}
	s.UpdateConfig(cfg)

	_, _ = ExecuteEmbedding(context.Background(), s, primary, nil, embedOp("x"), "embed", nil)
	if got := s.BreakerState(CategoryEmbedding); got != circuitbreaker.StateOpen {
		t.Fatalf("expected breaker to trip at updated threshold, got %v", got)
	}
}

func TestUpdateConfig_ConsecutiveKeepsState(t *testing.T) {
	s := newTestStrategy(1)
	primary := &fakeEmbedder{err: errors.New("down")}

	_, _ = ExecuteEmbedding(context.Background(), s, primary, nil, embedOp("x"), "embed", nil)
	if got := s.BreakerState(CategoryEmbedding); got != circuitbreaker.StateOpen {
		t.Fatalf("expected open breaker, got %v", got)
	}

	// Updating settings on a consecutive breaker must not reset it closed.
	s.UpdateConfig(config.ResilienceConfig{
		Embedding:   testCategory(3),
		VectorStore: testCategory(3),
		Generation:  testCategory(3),
		Retry:       config.RetryConfig{InitialBackoff: time.Millisecond},
	})
	if got := s.BreakerState(CategoryEmbedding); got != circuitbreaker.StateOpen {
		t.Fatalf("expected breaker state preserved across update, got %v", got)
	}
}

func TestUpdateConfig_SwitchToRateRebuildsClosed(t *testing.T) {
	s := newTestStrategy(1)
	primary := &fakeEmbedder{err: errors.New("down")}
	_, _ = ExecuteEmbedding(context.Background(), s, primary, nil, embedOp("x"), "embed", nil)

	rateCat := config.CategoryConfig{
		Breaker: config.BreakerConfig{
			TripStrategy: config.TripRate,
			WindowSize:   10,
			FailureRatio: 0.5,
			ResetTimeout: time.Minute,
			HalfOpenMax:  1,
		},
	}
	s.UpdateConfig(config.ResilienceConfig{
		Embedding:   rateCat,
		VectorStore: rateCat,
		Generation:  rateCat,
		Retry:       config.RetryConfig{InitialBackoff: time.Millisecond},
	})
	if got := s.BreakerState(CategoryEmbedding); got != circuitbreaker.StateClosed {
		t.Fatalf("expected rebuilt breaker to start closed, got %v", got)
	}
}

func TestRateLimiter_AttemptsStillCounted(t *testing.T) {
	cat := testCategory(5)
	cat.RateLimit = config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 10}
	cfg := config.ResilienceConfig{
		Embedding:   cat,
		VectorStore: testCategory(5),
		Generation:  testCategory(5),
		Retry:       config.RetryConfig{InitialBackoff: time.Millisecond},
	}
	s := NewStrategy(cfg, metrics.NewRegistry(), testLogger())
	primary := &fakeEmbedder{vec: []float32{1}}

	for i := 0; i < 3; i++ {
		if _, err := ExecuteEmbedding(context.Background(), s, primary, nil, embedOp("x"), "embed", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := s.Metrics().Counter("embed.attempts"); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestStrategy_CategoriesAreIndependent(t *testing.T) {
	s := newTestStrategy(1)
	badEmbedder := &fakeEmbedder{err: errors.New("down")}
	gen := &fakeGenerator{text: "ok"}

	_, _ = ExecuteEmbedding(context.Background(), s, badEmbedder, nil, embedOp("x"), "embed", nil)
	if got := s.BreakerState(CategoryEmbedding); got != circuitbreaker.StateOpen {
		t.Fatalf("expected embedding breaker open, got %v", got)
	}

	// An open embedding breaker must not block generation calls.
	text, err := ExecuteGeneration(context.Background(), s, gen, nil,
		func(ctx context.Context, g provider.Generator) (string, error) {
			return g.Generate(ctx, "p", nil)
		}, "generate", nil)
	if err != nil || text != "ok" {
		t.Fatalf("expected independent generation success, got %q, %v", text, err)
	}
	if got := s.BreakerState(CategoryGeneration); got != circuitbreaker.StateClosed {
		t.Fatalf("expected generation breaker closed, got %v", got)
	}
}

func TestNewStrategy_NilRegistryAndLogger(t *testing.T) {
	s := NewStrategy(config.ResilienceConfig{
		Embedding:   testCategory(5),
		VectorStore: testCategory(5),
		Generation:  testCategory(5),
	}, nil, testLogger())
	if s.Metrics() == nil {
		t.Fatal("expected a private registry when reg is nil")
	}
}
