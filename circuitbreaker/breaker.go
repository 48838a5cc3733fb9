// Package circuitbreaker provides failure gates for protecting calls to
// unreliable external providers. A breaker is scoped to one named resource
// and stops calling it for a cooldown period once it is deemed unhealthy,
// avoiding cascading failure while the resource recovers.
package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation; calls pass through.
	StateOpen                  // Failing; calls are rejected immediately.
	StateHalfOpen              // Probing; a single trial call tests recovery.
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is the sentinel matched by errors.Is for rejections from an open
// breaker, regardless of which breaker produced them.
var ErrOpen = errors.New("circuit breaker open")

// OpenError is returned when a breaker rejects a call without running it.
// RetryAfter is the remaining cooldown at rejection time; zero when the
// breaker cannot estimate it (e.g. a trial call is already in flight).
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker %q open, retry after %s", e.Name, e.RetryAfter)
	}
	return fmt.Sprintf("circuit breaker %q open", e.Name)
}

// Is reports ErrOpen equivalence so callers can match rejections with
// errors.Is(err, ErrOpen).
func (e *OpenError) Is(target error) bool { return target == ErrOpen }

// Breaker is the common interface for all circuit breaker types.
type Breaker interface {
	// Allow reports whether a call may proceed. When it returns true the
	// caller MUST follow up with exactly one RecordSuccess or RecordFailure.
	Allow() bool

	// RecordSuccess records a successful call against the breaker.
	RecordSuccess()

	// RecordFailure records a failed call against the breaker.
	RecordFailure()

	// State returns the current breaker state.
	State() State

	// Name returns the protected resource name.
	Name() string

	// Reset forces the breaker back to closed state.
	Reset()
}

// Do runs op through b: rejected calls return an *OpenError without invoking
// op, and op's outcome is recorded on the breaker. The rejection path records
// nothing, since the underlying call never ran.
func Do(b Breaker, op func() error) error {
	if !b.Allow() {
		oe := &OpenError{Name: b.Name()}
		if c, ok := b.(interface{ cooldown() time.Duration }); ok {
			oe.RetryAfter = c.cooldown()
		}
		return oe
	}
	if err := op(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}
