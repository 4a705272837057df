package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// SnapshotLister reads persisted stats snapshots, newest first.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, limit int) ([]AggregatedStats, error)
}

type Handler struct {
	aggregator *Aggregator
	snapshots  SnapshotLister
	logger     *slog.Logger
}

// NewHandler serves live stats from aggregator and, when snapshots is not
// nil, the persisted history.
func NewHandler(aggregator *Aggregator, snapshots SnapshotLister) *Handler {
	return &Handler{
		aggregator: aggregator,
		snapshots:  snapshots,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Stats())
}

// History handles GET /api/v1/analytics/history?limit=N (default 20, max 500).
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "snapshot history is disabled"})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, 500)
	}
	snapshots, err := h.snapshots.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing snapshots failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing snapshots failed"})
		return
	}
	if snapshots == nil {
		snapshots = []AggregatedStats{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"snapshots": snapshots})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
