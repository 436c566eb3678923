package cache

import (
	"sync"
	"time"

	"github.com/sh03m2a5h/edusync-session-go/internal/metrics"
	"go.uber.org/zap"
)

// BreakerState represents the state of the circuit breaker
type BreakerState int

const (
	// StateClosed lets commands through and counts consecutive failures
	StateClosed BreakerState = iota
	// StateOpen rejects commands until the timeout elapses
	StateOpen
	// StateHalfOpen lets commands through to probe whether the backend recovered
	StateHalfOpen
)

// String returns string representation of breaker state
func (s BreakerState) String() string {
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

// CircuitBreaker stops sending commands to a backend that keeps failing
// after retries, so requests degrade immediately instead of waiting out a
// full backoff cycle each.
type CircuitBreaker struct {
	mu           sync.Mutex
	threshold    int
	timeout      time.Duration
	failures     int
	lastFailTime time.Time
	state        BreakerState
	now          func() time.Time
	logger       *zap.Logger
}

// NewCircuitBreaker creates a circuit breaker. A threshold of 0 or less
// disables it: Allow always returns true.
func NewCircuitBreaker(threshold int, timeout time.Duration, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		threshold: threshold,
		timeout:   timeout,
		state:     StateClosed,
		now:       time.Now,
		logger:    logger,
	}
}

// Allow reports whether a command may be sent
func (cb *CircuitBreaker) Allow() bool {
	if cb == nil || cb.threshold <= 0 {
		return true
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailTime) > cb.timeout {
			cb.setState(StateHalfOpen)
			cb.logger.Info("Cache circuit breaker half-open, probing backend")
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a command that reached the backend
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil || cb.threshold <= 0 {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
		cb.logger.Info("Cache circuit breaker closed")
	}
}

// RecordFailure records a command that failed after exhausting retries
func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil || cb.threshold <= 0 {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailTime = cb.now()
	metrics.CircuitBreakerFailures.Inc()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.threshold {
			cb.setState(StateOpen)
			cb.logger.Warn("Cache circuit breaker opened",
				zap.Int("failures", cb.failures),
				zap.Int("threshold", cb.threshold),
				zap.Duration("timeout", cb.timeout),
			)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
		cb.logger.Warn("Cache circuit breaker re-opened after failed probe")
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker and clears its failure count
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.setState(StateClosed)
}

// setState must be called with mu held
func (cb *CircuitBreaker) setState(state BreakerState) {
	cb.state = state
	metrics.CircuitBreakerState.Set(float64(state))
}
