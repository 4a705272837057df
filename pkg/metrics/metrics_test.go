package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, c.Write(&pb))
	if pb.Counter != nil {
		return pb.GetCounter().GetValue()
	}
	return pb.GetGauge().GetValue()
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun(OutcomeFound, "miss", time.Millisecond, 3)
		m.IncRollback()
		m.IncCheckpoint()
		m.AddPruned("reuse", 2)
		m.IncRelaxedRetry()
		m.CacheHit()
		m.CacheMiss()
		m.LedgerOp("record", nil)
		m.EventPublished(errors.New("down"))
		m.SetCircuitState("redis", 1)
		m.EventConsumed("ok")
		m.IncRetry("ledger-record")
	})
}

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRun(OutcomeNoResult, "miss", 2*time.Millisecond, 0)
	m.ObserveRun(OutcomeFound, "hit", time.Millisecond, 4)
	m.AddPruned("anchor_missing", 3)
	m.AddPruned("anchor_missing", 0)
	m.LedgerOp("record", errors.New("conn refused"))
	m.SetCircuitState("redis", 2)
	m.IncRetry("ledger-record")
	m.IncRetry("ledger-record")

	assert.Equal(t, 1.0, value(t, m.SequenceRunsTotal.WithLabelValues(OutcomeFound)))
	assert.Equal(t, 3.0, value(t, m.PrunedCandidatesTotal.WithLabelValues("anchor_missing")))
	assert.Equal(t, 1.0, value(t, m.LedgerOperationsTotal.WithLabelValues("record", "error")))
	assert.Equal(t, 2.0, value(t, m.CircuitBreakerState.WithLabelValues("redis")))
	assert.Equal(t, 2.0, value(t, m.RetriesTotal.WithLabelValues("ledger-record")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.IncRollback()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sequencer_rollbacks_total 1")
}
