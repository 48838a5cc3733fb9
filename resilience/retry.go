package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/dskow/ragshield/circuitbreaker"
)

// maxBackoff caps the exponential backoff between retry attempts.
const maxBackoff = 30 * time.Second

// withRetry runs fn up to MaxRetries+1 times with exponential backoff and
// jitter, respecting context cancellation. Circuit-open rejections are
// surfaced immediately and never retried: while the breaker cools down,
// repeating the call cannot succeed.
func (s *Strategy) withRetry(ctx context.Context, fn func() error) error {
	cfg := s.retryConfig()

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, circuitbreaker.ErrOpen) {
			return lastErr
		}

		if attempt < cfg.MaxRetries {
			backoff := cfg.InitialBackoff << attempt
			if backoff > maxBackoff || backoff <= 0 {
				backoff = maxBackoff
			}
			jitter := time.Duration(rand.Int63n(int64(backoff/2 + 1)))

			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(backoff + jitter):
			}
		}
	}
	return lastErr
}
