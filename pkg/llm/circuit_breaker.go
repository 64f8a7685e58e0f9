package llm

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // calls flow
	CircuitOpen                         // calls rejected until ResetAfter passes
	CircuitHalfOpen                     // one probe call in flight
)

// String returns a human-readable string for the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	Threshold  int           // consecutive failures that trip the circuit
	ResetAfter time.Duration // wait before a probe call is let through
}

// DefaultCircuitBreakerConfig trips after 5 failures and probes after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Threshold: 5, ResetAfter: 30 * time.Second}
}

// CircuitBreaker stops calling a provider that keeps failing. Safe for
// concurrent use; one breaker is shared by every turn.
type CircuitBreaker struct {
	mu               sync.Mutex
	cfg              CircuitBreakerConfig
	consecutiveFails int
	lastFailure      time.Time
	state            CircuitState
	now              func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultCircuitBreakerConfig().Threshold
	}
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed, now: time.Now}
}

// Allow returns nil when a call may proceed. An open circuit whose reset
// period has elapsed moves to half-open and admits exactly one call.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		since := cb.now().Sub(cb.lastFailure)
		if since > cb.cfg.ResetAfter {
			cb.state = CircuitHalfOpen
			return nil
		}
		return NewError(ErrorTypeCircuitOpen,
			fmt.Sprintf("provider unavailable after %d consecutive failures, last %v ago", cb.consecutiveFails, since.Round(time.Second)),
			false, nil)
	case CircuitHalfOpen:
		return NewError(ErrorTypeCircuitOpen, "probe call in flight", false, nil)
	default:
		return fmt.Errorf("circuit breaker in unknown state: %v", cb.state)
	}
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a failure, tripping the circuit at the threshold. A
// failed half-open probe reopens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()
	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.cfg.Threshold {
		cb.state = CircuitOpen
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the current failure streak.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFails
}
