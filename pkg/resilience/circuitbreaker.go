// Package resilience provides the fault-tolerance primitives guarding the
// sequencer's external dependencies: a circuit breaker for the result cache
// and the event producer, exponential-backoff retry for ledger writes and
// event handling, and a context-based timeout wrapper for searches.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current phase of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

// CircuitBreakerConfig controls failure thresholds and recovery timing.
//
// IsFailure decides which errors count against the breaker; by default every
// error except context cancellation does. OnStateChange is called with the
// breaker's name and new state while the breaker's lock is held, so it must
// not call back into the breaker.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	IsFailure           func(error) bool
	OnStateChange       func(name string, state State)
}

func (cfg CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	return cfg
}

// CircuitBreaker counts consecutive failures and opens once the threshold
// is reached. After ResetTimeout it lets HalfOpenMaxRequests probes through;
// one success closes it again, one failure re-opens it.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
		now:    time.Now,
	}
}

// Execute runs fn if the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.acquire(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// Call is Execute for functions that also return a value.
func Call[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var out T
	err := cb.Execute(func() error {
		v, err := fn()
		out = v
		return err
	})
	return out, err
}

// Allow reports whether a call would currently be let through, without
// reserving a half-open probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateOpen:
		return cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
	case StateHalfOpen:
		return cb.probes < cb.cfg.HalfOpenMaxRequests
	default:
		return true
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// GetState returns the current State of the circuit breaker.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.transition(StateHalfOpen, "reset timeout elapsed")
		cb.probes = 1
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			return fmt.Errorf("%w: %s (half-open probe limit reached)", ErrCircuitOpen, cb.name)
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err == nil || !cb.cfg.IsFailure(err) {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed, "probe succeeded")
		}
		return
	}
	cb.failures++
	switch {
	case cb.state == StateHalfOpen:
		cb.openedAt = cb.now()
		cb.transition(StateOpen, "probe failed")
	case cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold:
		cb.openedAt = cb.now()
		cb.transition(StateOpen, "failure threshold reached")
	}
}

// transition must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State, reason string) {
	from := cb.state
	cb.state = to
	if to != StateHalfOpen {
		cb.probes = 0
	}
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	cb.logger.Log(context.Background(), level, "circuit state changed",
		"from", from.String(),
		"to", to.String(),
		"reason", reason,
		"consecutive_failures", cb.failures,
	)
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, to)
	}
}
