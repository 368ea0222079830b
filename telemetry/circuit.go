package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsneelabh/callmetrics/core"
)

// Circuit breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
	StateDisabled = "disabled"
)

// CircuitConfig configures the export circuit breaker.
type CircuitConfig struct {
	Enabled      bool
	MaxFailures  int
	RecoveryTime time.Duration
	HalfOpenMax  int // Max requests in half-open state
}

// CircuitBreaker stops an exporter from hammering a backend that keeps failing.
// A nil *CircuitBreaker allows everything.
type CircuitBreaker struct {
	config CircuitConfig
	logger core.Logger

	state           atomic.Value // string
	failures        atomic.Int64
	successes       atomic.Int64
	lastFailureTime atomic.Value // time.Time

	mu sync.Mutex
}

// NewCircuitBreaker creates a circuit breaker. It returns nil when the
// config is disabled.
func NewCircuitBreaker(config CircuitConfig, logger core.Logger) *CircuitBreaker {
	if !config.Enabled {
		return nil
	}

	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.RecoveryTime <= 0 {
		config.RecoveryTime = 30 * time.Second
	}
	if config.HalfOpenMax <= 0 {
		config.HalfOpenMax = 2
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	cb := &CircuitBreaker{config: config, logger: logger}
	cb.state.Store(StateClosed)
	cb.lastFailureTime.Store(time.Time{})
	return cb
}

// Allow reports whether the next call may go through.
func (cb *CircuitBreaker) Allow() bool {
	if cb == nil {
		return true
	}

	switch cb.State() {
	case StateOpen:
		lastFailure, _ := cb.lastFailureTime.Load().(time.Time)
		if lastFailure.IsZero() || time.Since(lastFailure) <= cb.config.RecoveryTime {
			return false
		}
		cb.mu.Lock()
		// Double-check after acquiring lock
		if cb.State() == StateOpen {
			cb.state.Store(StateHalfOpen)
			cb.successes.Store(0)
			cb.logger.Info("Circuit breaker entering HALF-OPEN state", map[string]interface{}{
				"recovery_wait":     cb.config.RecoveryTime.String(),
				"max_test_requests": cb.config.HalfOpenMax,
			})
		}
		cb.mu.Unlock()
		return true

	case StateHalfOpen:
		return cb.successes.Load() < int64(cb.config.HalfOpenMax)

	default:
		return true
	}
}

// RecordSuccess records a successful call. Enough successes in half-open
// state close the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}

	successes := cb.successes.Add(1)
	switch cb.State() {
	case StateHalfOpen:
		if successes < int64(cb.config.HalfOpenMax) {
			return
		}
		cb.mu.Lock()
		if cb.State() == StateHalfOpen {
			cb.state.Store(StateClosed)
			cb.failures.Store(0)
			cb.logger.Info("Circuit breaker CLOSED - export recovered", map[string]interface{}{
				"recovery_tests": successes,
			})
		}
		cb.mu.Unlock()
	case StateClosed:
		cb.failures.Store(0)
	}
}

// RecordFailure records a failed call and opens the circuit once
// MaxFailures consecutive failures have been seen.
func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}

	failures := cb.failures.Add(1)
	cb.lastFailureTime.Store(time.Now())

	// A failed trial call reopens the circuit right away.
	if failures >= int64(cb.config.MaxFailures) || cb.State() == StateHalfOpen {
		cb.mu.Lock()
		if previous := cb.State(); previous != StateOpen {
			cb.state.Store(StateOpen)
			cb.successes.Store(0)
			cb.logger.Warn("Circuit breaker OPENED - exports will be skipped", map[string]interface{}{
				"previous_state": previous,
				"failure_count":  failures,
				"max_failures":   cb.config.MaxFailures,
				"recovery_time":  cb.config.RecoveryTime.String(),
			})
		}
		cb.mu.Unlock()
		return
	}

	if failures == 1 {
		cb.logger.Info("Circuit breaker recorded first failure", map[string]interface{}{
			"max_failures": cb.config.MaxFailures,
		})
	}
}

// Execute runs fn when the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.Allow() {
		return fmt.Errorf("%w (state %s)", core.ErrCircuitBreakerOpen, cb.State())
	}
	if err := fn(ctx); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// State returns the current state.
func (cb *CircuitBreaker) State() string {
	if cb == nil {
		return StateDisabled
	}
	return cb.state.Load().(string)
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int64 {
	if cb == nil {
		return 0
	}
	return cb.failures.Load()
}
