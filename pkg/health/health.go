// Package health runs the sequencer's dependency probes (ledger database,
// result cache, event broker) concurrently and aggregates them into a Report
// for liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/resilience"
)

const checkTimeout = 2 * time.Second

// Status represents the health state of a component or the system overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check is a function that probes a single dependency and returns its status.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth holds the result of a single component check.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is the aggregated result of all component checks.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Checker manages registered health checks and runs them concurrently.
type Checker struct {
	checks map[string]Check
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]Check),
		logger: slog.Default().With("component", "health"),
	}
}

// PingCheck adapts a ping function into a Check. Required dependencies
// report down on failure; optional ones (such as the result cache, whose
// loss only costs latency) report degraded.
func PingCheck(ping func(ctx context.Context) error, required bool) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			status := StatusDegraded
			if required {
				status = StatusDown
			}
			return ComponentHealth{Status: status, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// BreakerCheck reports a circuit breaker as degraded while it refuses
// calls. The dependency behind it is optional by construction.
func BreakerCheck(cb *resilience.CircuitBreaker) Check {
	return func(context.Context) ComponentHealth {
		state := cb.GetState()
		if state == resilience.StateClosed {
			return ComponentHealth{Status: StatusUp}
		}
		return ComponentHealth{Status: StatusDegraded, Message: "circuit " + state.String()}
	}
}

// Register adds a named health check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes all registered checks concurrently, each under its own
// checkTimeout, and returns an aggregated Report. The overall status is the
// worst status among all components.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]ComponentHealth, len(checks))
		g       errgroup.Group
	)
	for name, check := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			start := time.Now()
			result := check(checkCtx)
			result.Latency = time.Since(start).Round(time.Millisecond).String()
			if result.Status != StatusUp {
				c.logger.Warn("health check failing", "check", name, "status", result.Status, "message", result.Message)
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return Report{
		Status:     worst(results),
		Components: results,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

func worst(results map[string]ComponentHealth) Status {
	status := StatusUp
	for _, r := range results {
		switch r.Status {
		case StatusDown:
			return StatusDown
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// LiveHandler returns an HTTP handler for Kubernetes liveness probes.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
		})
	}
}

// ReadyHandler returns an HTTP handler for Kubernetes readiness probes. A
// degraded service still reports ready.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status != StatusDown {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}
