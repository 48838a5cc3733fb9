// Package resilience composes circuit breaking, retry, fallback, client-side
// rate limiting, metrics, and structured logging around calls to the
// external providers a RAG pipeline depends on. It is the entry point the
// orchestration layer uses for every embedding, vector store, and generation
// call.
package resilience

import (
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/dskow/ragshield/circuitbreaker"
	"github.com/dskow/ragshield/config"
	"github.com/dskow/ragshield/metrics"
)

// Category identifies the resource class a call targets. Each category owns
// one circuit breaker and, optionally, one rate limiter for the lifetime of
// the strategy.
type Category string

const (
	CategoryEmbedding   Category = "embedding"
	CategoryVectorStore Category = "vectorstore"
	CategoryGeneration  Category = "generation"
)

var categories = []Category{CategoryEmbedding, CategoryVectorStore, CategoryGeneration}

// Strategy wraps provider calls with the full protection stack. It is safe
// for concurrent use from any number of goroutines; the breakers and the
// metrics registry carry their own synchronization.
type Strategy struct {
	logger  *slog.Logger
	metrics *metrics.Registry

	mu       sync.RWMutex
	breakers map[Category]circuitbreaker.Breaker
	limiters map[Category]*rate.Limiter
	retry    config.RetryConfig
}

// NewStrategy builds a strategy from cfg, recording into reg and logging to
// logger. A nil reg gets a private registry; a nil logger falls back to
// slog.Default.
func NewStrategy(cfg config.ResilienceConfig, reg *metrics.Registry, logger *slog.Logger) *Strategy {
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Strategy{
		logger:   logger,
		metrics:  reg,
		breakers: make(map[Category]circuitbreaker.Breaker, len(categories)),
		limiters: make(map[Category]*rate.Limiter, len(categories)),
	}
	s.UpdateConfig(cfg)
	return s
}

// Metrics returns the registry the strategy records into.
func (s *Strategy) Metrics() *metrics.Registry { return s.metrics }

// BreakerState returns the current state of the category's breaker.
func (s *Strategy) BreakerState(cat Category) circuitbreaker.State {
	return s.breaker(cat).State()
}

// UpdateConfig applies new breaker, retry, and rate limit settings at
// runtime, typically from a config.Reloader callback. Consecutive breakers
// keep their state and failure run across updates; changing a category's
// trip strategy, or any rate-breaker parameter, rebuilds that breaker
// closed.
func (s *Strategy) UpdateConfig(cfg config.ResilienceConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retry = cfg.Retry

	for cat, catCfg := range map[Category]config.CategoryConfig{
		CategoryEmbedding:   cfg.Embedding,
		CategoryVectorStore: cfg.VectorStore,
		CategoryGeneration:  cfg.Generation,
	} {
		bc := catCfg.Breaker
		if existing, ok := s.breakers[cat].(*circuitbreaker.ConsecutiveBreaker); ok && bc.TripStrategy == config.TripConsecutive {
			existing.UpdateSettings(bc.FailureThreshold, bc.ResetTimeout)
		} else {
			s.breakers[cat] = buildBreaker(cat, bc, s.logger)
		}

		if rl := catCfg.RateLimit; rl.RequestsPerSecond > 0 {
			s.limiters[cat] = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), rl.Burst)
		} else {
			delete(s.limiters, cat)
		}
	}
}

func buildBreaker(cat Category, bc config.BreakerConfig, logger *slog.Logger) circuitbreaker.Breaker {
	if bc.TripStrategy == config.TripRate {
		return circuitbreaker.NewRateBreaker(string(cat), bc.WindowSize, bc.FailureRatio, bc.ResetTimeout, bc.HalfOpenMax, logger)
	}
	return circuitbreaker.NewConsecutiveBreaker(string(cat), bc.FailureThreshold, bc.ResetTimeout, logger)
}

func (s *Strategy) breaker(cat Category) circuitbreaker.Breaker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.breakers[cat]
}

func (s *Strategy) limiter(cat Category) *rate.Limiter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limiters[cat]
}

func (s *Strategy) retryConfig() config.RetryConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retry
}
