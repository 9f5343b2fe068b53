// Package resilience provides circuit breaker and retry patterns for external service calls.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until the reset timeout elapses.
	CircuitOpen
	// CircuitHalfOpen lets probe requests through to test recovery.
	CircuitHalfOpen
)

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

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// Name identifies the protected service in logs.
	Name string

	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Default: 5.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before a probe is
	// allowed. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMaxProbes is the number of successful probes needed to close
	// the circuit again, and the most probes allowed in flight at once while
	// half-open. Default: 1.
	HalfOpenMaxProbes int

	// ShouldTrip decides which errors count as failures. If nil every error
	// counts.
	ShouldTrip func(err error) bool
}

// NewCircuitConfig builds a breaker config from raw settings, keeping the
// defaults for non-positive values.
func NewCircuitConfig(name string, failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := CircuitBreakerConfig{
		Name:              name,
		FailureThreshold:  5,
		ResetTimeout:      30 * time.Second,
		HalfOpenMaxProbes: 1,
	}
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}

// CircuitBreaker implements the circuit breaker pattern for a single service.
type CircuitBreaker struct {
	cfg   CircuitBreakerConfig
	mu    sync.Mutex
	state CircuitState

	consecutiveFailures int
	lastFailureTime     time.Time
	halfOpenSuccesses   int
	halfOpenInFlight    int
	// probeGen increments on every entry to half-open so results from an
	// earlier period never release a probe slot.
	probeGen uint64

	nowFunc func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = 1
	}
	return &CircuitBreaker{
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// Execute runs fn through the breaker, returning ErrCircuitOpen without
// calling fn while the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, err := cb.allowRequest()
	if err != nil {
		return err
	}

	err = fn(ctx)
	cb.recordResult(probe, err)
	return err
}

// ExecuteVal is like Execute but preserves a return value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	probe, err := cb.allowRequest()
	if err != nil {
		return zero, err
	}

	val, err := fn(ctx)
	cb.recordResult(probe, err)
	return val, err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.lastFailureTime) >= cb.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset forces the circuit closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
	cb.halfOpenSuccesses = 0
	cb.halfOpenInFlight = 0
	if cb.state != CircuitClosed {
		cb.transition(CircuitClosed)
	}
}

// allowRequest admits a call. It returns the probe generation for calls
// admitted while half-open and 0 otherwise.
func (cb *CircuitBreaker) allowRequest() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return 0, nil
	case CircuitOpen:
		if cb.nowFunc().Sub(cb.lastFailureTime) < cb.cfg.ResetTimeout {
			return 0, ErrCircuitOpen
		}
		cb.transition(CircuitHalfOpen)
	}

	if cb.halfOpenInFlight >= cb.cfg.HalfOpenMaxProbes {
		return 0, ErrCircuitOpen
	}
	cb.halfOpenInFlight++
	return cb.probeGen, nil
}

func (cb *CircuitBreaker) recordResult(probe uint64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		// Only the current period's probes decide recovery.
		if probe != cb.probeGen {
			return
		}
		cb.halfOpenInFlight--
	}

	failed := err != nil
	if failed && cb.cfg.ShouldTrip != nil {
		failed = cb.cfg.ShouldTrip(err)
	}

	if !failed {
		switch cb.state {
		case CircuitHalfOpen:
			cb.halfOpenSuccesses++
			if cb.halfOpenSuccesses >= cb.cfg.HalfOpenMaxProbes {
				cb.transition(CircuitClosed)
				cb.consecutiveFailures = 0
				cb.halfOpenSuccesses = 0
			}
		case CircuitClosed:
			cb.consecutiveFailures = 0
		}
		return
	}

	cb.consecutiveFailures++
	cb.lastFailureTime = cb.nowFunc()

	switch cb.state {
	case CircuitClosed:
		if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transition(CircuitOpen)
		cb.halfOpenSuccesses = 0
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.halfOpenInFlight = 0
	if to == CircuitHalfOpen {
		cb.probeGen++
	}
	zap.L().Info("circuit breaker state change",
		zap.String("service", cb.cfg.Name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("consecutive_failures", cb.consecutiveFailures),
	)
}
