package circuitbreaker

import (
	"log/slog"
	"sync"
	"time"
)

// ConsecutiveBreaker trips after a run of consecutive failures. It is the
// default gate for provider calls: failureThreshold consecutive failures move
// it to open, calls are rejected until resetTimeout elapses, then a single
// half-open trial call decides between closing and re-opening.
type ConsecutiveBreaker struct {
	mu sync.Mutex

	name   string
	logger *slog.Logger

	state               State
	consecutiveFailures int
	lastFailure         time.Time
	trialInFlight       bool

	failureThreshold int
	resetTimeout     time.Duration
}

// NewConsecutiveBreaker creates a closed breaker for the named resource.
// failureThreshold values below 1 are clamped to 1.
func NewConsecutiveBreaker(name string, failureThreshold int, resetTimeout time.Duration, logger *slog.Logger) *ConsecutiveBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if resetTimeout < 0 {
		resetTimeout = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsecutiveBreaker{
		name:             name,
		logger:           logger,
		state:            StateClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
	}
}

func (b *ConsecutiveBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastFailure) >= b.resetTimeout {
			b.transitionTo(StateHalfOpen)
			b.trialInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		// At most one trial at a time; concurrent callers arriving while
		// the trial is in flight are rejected as open.
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return true
	}
}

func (b *ConsecutiveBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutiveFailures = 0
	case StateHalfOpen:
		b.trialInFlight = false
		b.transitionTo(StateClosed)
	}
}

func (b *ConsecutiveBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		// Trial failed: back to open with a fresh cooldown. No threshold
		// check — the breaker is already known unhealthy.
		b.trialInFlight = false
		b.transitionTo(StateOpen)
	}
}

func (b *ConsecutiveBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *ConsecutiveBreaker) Name() string { return b.name }

func (b *ConsecutiveBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false
	b.transitionTo(StateClosed)
}

// UpdateSettings changes the threshold and cooldown at runtime (config hot
// reload). The current state and failure run are preserved.
func (b *ConsecutiveBreaker) UpdateSettings(failureThreshold int, resetTimeout time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if resetTimeout < 0 {
		resetTimeout = 0
	}
	b.failureThreshold = failureThreshold
	b.resetTimeout = resetTimeout
}

// cooldown returns the remaining open cooldown. Used by Do to populate
// OpenError.RetryAfter.
func (b *ConsecutiveBreaker) cooldown() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0
	}
	remaining := b.resetTimeout - time.Since(b.lastFailure)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// transitionTo changes the breaker state and logs the change.
// Must be called with b.mu held.
func (b *ConsecutiveBreaker) transitionTo(newState State) {
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
		b.consecutiveFailures = 0
	case StateOpen:
		b.lastFailure = time.Now()
	}
}
