package circuitbreaker

import (
	"log/slog"
	"sync"
	"time"
)

// RateBreaker is a sliding-window failure-ratio gate. It opens when the
// failure ratio over the most recent windowSize outcomes reaches
// failureRatio, and requires halfOpenMax consecutive probe successes before
// closing again. Compared to ConsecutiveBreaker it tolerates sporadic
// failures under sustained load, at the cost of needing a full window of
// observations before it can trip.
type RateBreaker struct {
	mu sync.Mutex

	name   string
	logger *slog.Logger
	state  State

	// Sliding window implemented as a ring buffer of failure flags.
	window   []bool
	head     int
	count    int
	failures int

	windowSize   int
	failureRatio float64
	resetTimeout time.Duration
	halfOpenMax  int

	halfOpenSuccess int
	openedAt        time.Time
}

// NewRateBreaker creates a closed failure-ratio breaker for the named resource.
func NewRateBreaker(name string, windowSize int, failureRatio float64, resetTimeout time.Duration, halfOpenMax int, logger *slog.Logger) *RateBreaker {
	if windowSize < 1 {
		windowSize = 1
	}
	if halfOpenMax < 1 {
		halfOpenMax = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateBreaker{
		name:         name,
		logger:       logger,
		state:        StateClosed,
		window:       make([]bool, windowSize),
		windowSize:   windowSize,
		failureRatio: failureRatio,
		resetTimeout: resetTimeout,
		halfOpenMax:  halfOpenMax,
	}
}

func (b *RateBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.openedAt) >= b.resetTimeout {
			b.transitionTo(StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return true
	}
}

func (b *RateBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.recordOutcome(false)
	case StateHalfOpen:
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.halfOpenMax {
			b.transitionTo(StateClosed)
		}
	}
}

func (b *RateBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.recordOutcome(true)
		if b.count >= b.windowSize && b.currentRatio() >= b.failureRatio {
			b.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		b.transitionTo(StateOpen)
	}
}

func (b *RateBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *RateBreaker) Name() string { return b.name }

func (b *RateBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed)
}

// cooldown returns the remaining open cooldown for OpenError.RetryAfter.
func (b *RateBreaker) cooldown() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0
	}
	remaining := b.resetTimeout - time.Since(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// recordOutcome writes a result into the ring buffer and maintains the
// running failure count. Must be called with b.mu held.
func (b *RateBreaker) recordOutcome(failed bool) {
	if b.count == b.windowSize {
		if b.window[b.head] {
			b.failures--
		}
	} else {
		b.count++
	}

	b.window[b.head] = failed
	if failed {
		b.failures++
	}
	b.head = (b.head + 1) % b.windowSize
}

// currentRatio returns the failure ratio in the window. Must be called with
// b.mu held.
func (b *RateBreaker) currentRatio() float64 {
	if b.count == 0 {
		return 0
	}
	return float64(b.failures) / float64(b.count)
}

// transitionTo changes the breaker state and logs the change.
// Must be called with b.mu held.
func (b *RateBreaker) transitionTo(newState State) {
	if b.state == newState {
		return
	}

	from := b.state
	b.state = newState

	b.logger.Info("circuit breaker state change",
		"breaker", b.name,
		"from", from.String(),
		"to", newState.String(),
	)

	switch newState {
	case StateClosed:
		b.head = 0
		b.count = 0
		b.failures = 0
		b.halfOpenSuccess = 0
	case StateOpen:
		b.openedAt = time.Now()
		b.halfOpenSuccess = 0
	case StateHalfOpen:
		b.halfOpenSuccess = 0
	}
}
