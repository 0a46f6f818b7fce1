package store

import (
	"sync"
	"time"

	"github.com/plantforge/equipment-pipeline/pkg/metrics"
)

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

const (
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 30 * time.Second
)

// CircuitBreaker isolates a failing backend. It is shared by every gateway
// call in the process: a failure storm from one run opens the breaker for all.
//
// State machine: consecutive failures in closed state open the breaker once
// the threshold is reached. While open, calls fail fast until the cooldown
// elapses, then exactly one probe is admitted (half_open). A probe success
// closes the breaker and resets the failure counter; a probe failure re-opens
// it and restarts the cooldown clock.
type CircuitBreaker struct {
	mu            sync.Mutex
	state         BreakerState
	failureCount  int
	lastFailureAt time.Time
	probing       bool

	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	return &CircuitBreaker{
		state:     BreakerClosed,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. It returns a *CircuitOpenError
// when the breaker is open and the cooldown has not elapsed, and transitions
// open -> half_open when it has, admitting a single probe.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.now().Sub(b.lastFailureAt) < b.cooldown {
			return NewCircuitOpenError()
		}
		b.setState(BreakerHalfOpen)
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			return NewCircuitOpenError()
		}
		b.probing = true
		return nil
	}
	return nil
}

// RecordSuccess resets the breaker after a successful call.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	b.failureCount = 0
	b.setState(BreakerClosed)
}

// RecordFailure counts a failed call and opens the breaker when warranted.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureAt = b.now()

	switch b.state {
	case BreakerClosed:
		b.failureCount++
		if b.failureCount >= b.threshold {
			b.setState(BreakerOpen)
		}
	case BreakerHalfOpen:
		// failed probe: re-open and restart the cooldown clock
		b.probing = false
		b.setState(BreakerOpen)
	case BreakerOpen:
	}
}

func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// setState must be called with the lock held.
func (b *CircuitBreaker) setState(s BreakerState) {
	b.state = s
	metrics.UpdateBreakerStateMetric(string(s))
}
