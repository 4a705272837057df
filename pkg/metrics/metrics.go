// Package metrics defines the Prometheus metric collectors used across the
// sequencer and exposes an HTTP handler for scraping.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Search outcomes.
const (
	OutcomeFound      = "found"
	OutcomeNoResult   = "no_result"
	OutcomeTerminated = "terminated"
	OutcomeCancelled  = "cancelled"
	OutcomeError      = "error"
)

// Metrics holds all Prometheus collectors for the sequencer. Every method is
// safe on a nil receiver so library code can run without instrumentation.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	SequenceRunsTotal     *prometheus.CounterVec
	SequenceLatency       *prometheus.HistogramVec
	SequenceDepthReached  prometheus.Histogram
	RollbacksTotal        prometheus.Counter
	CheckpointsSavedTotal prometheus.Counter
	PrunedCandidatesTotal *prometheus.CounterVec
	RelaxedRetriesTotal   prometheus.Counter
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	LedgerOperationsTotal *prometheus.CounterVec
	EventsPublishedTotal  *prometheus.CounterVec
	EventsConsumedTotal   *prometheus.CounterVec
	RetriesTotal          *prometheus.CounterVec
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration, which keeps tests independent of the global registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SequenceRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sequencer_runs_total",
				Help: "Total beam searches by outcome (found, no_result, terminated, cancelled, error).",
			},
			[]string{"outcome"},
		),
		SequenceLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sequencer_latency_seconds",
				Help:    "Beam search latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"cache_status"},
		),
		SequenceDepthReached: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sequencer_depth_reached",
				Help:    "Deepest search level completed per run.",
				Buckets: []float64{0, 1, 2, 3, 4, 6, 8, 12, 16},
			},
		),
		RollbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sequencer_rollbacks_total",
				Help: "Total rollbacks to a checkpoint after global exhaustion.",
			},
		),
		CheckpointsSavedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sequencer_checkpoints_saved_total",
				Help: "Total checkpoints saved.",
			},
		),
		PrunedCandidatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sequencer_pruned_candidates_total",
				Help: "Candidates rejected during enumeration by reason.",
			},
			[]string{"reason"},
		),
		RelaxedRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sequencer_relaxed_retries_total",
				Help: "Searches retried with the anchor requirement dropped.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		LedgerOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operations_total",
				Help: "Consumed-chunk ledger operations by operation and status.",
			},
			[]string{"operation", "status"},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_events_published_total",
				Help: "Sequence events published by status.",
			},
			[]string{"status"},
		),
		EventsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_events_consumed_total",
				Help: "Sequence events read from Kafka by outcome (ok, retried, skipped).",
			},
			[]string{"outcome"},
		),
		RetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retries_total",
				Help: "Retried operations by name.",
			},
			[]string{"operation"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.HTTPRequestsInFlight,
			m.SequenceRunsTotal,
			m.SequenceLatency,
			m.SequenceDepthReached,
			m.RollbacksTotal,
			m.CheckpointsSavedTotal,
			m.PrunedCandidatesTotal,
			m.RelaxedRetriesTotal,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
			m.LedgerOperationsTotal,
			m.EventsPublishedTotal,
			m.EventsConsumedTotal,
			m.RetriesTotal,
			m.CircuitBreakerState,
		)
	}

	return m
}

// ObserveRun records one finished search.
func (m *Metrics) ObserveRun(outcome, cacheStatus string, elapsed time.Duration, depth int) {
	if m == nil {
		return
	}
	m.SequenceRunsTotal.WithLabelValues(outcome).Inc()
	m.SequenceLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	m.SequenceDepthReached.Observe(float64(depth))
}

func (m *Metrics) IncRollback() {
	if m == nil {
		return
	}
	m.RollbacksTotal.Inc()
}

func (m *Metrics) IncCheckpoint() {
	if m == nil {
		return
	}
	m.CheckpointsSavedTotal.Inc()
}

func (m *Metrics) AddPruned(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.PrunedCandidatesTotal.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) IncRelaxedRetry() {
	if m == nil {
		return
	}
	m.RelaxedRetriesTotal.Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) LedgerOp(op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.LedgerOperationsTotal.WithLabelValues(op, status).Inc()
}

func (m *Metrics) EventPublished(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EventsPublishedTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) EventConsumed(outcome string) {
	if m == nil {
		return
	}
	m.EventsConsumedTotal.WithLabelValues(outcome).Inc()
}

// IncRetry counts one backoff-and-retry of the named operation.
func (m *Metrics) IncRetry(operation string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(operation).Inc()
}

// SetCircuitState records a breaker transition. state follows the
// resilience.State numbering.
func (m *Metrics) SetCircuitState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
