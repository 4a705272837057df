// Package aggregator persists periodic snapshots of the sequence analytics
// to PostgreSQL.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS sequence_stats_snapshots (
    id              BIGSERIAL   PRIMARY KEY,
    total_sequences BIGINT      NOT NULL,
    found_count     BIGINT      NOT NULL,
    no_result_count BIGINT      NOT NULL,
    relaxed_count   BIGINT      NOT NULL,
    data            JSONB       NOT NULL,
    captured_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_sequence_stats_captured ON sequence_stats_snapshots (captured_at DESC);
`

// Store persists aggregated stats snapshots in PostgreSQL.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// EnsureSchema creates the snapshot table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating snapshot schema: %w", err)
	}
	return nil
}

func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO sequence_stats_snapshots
			(total_sequences, found_count, no_result_count, relaxed_count, data, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		stats.TotalSequences, stats.FoundCount, stats.NoResultCount, stats.RelaxedCount,
		data, stats.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}

	s.logger.Info("analytics snapshot saved",
		"total_sequences", stats.TotalSequences,
		"no_result_count", stats.NoResultCount,
	)
	return nil
}

// LatestSnapshot returns nil, nil when no snapshot exists yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM sequence_stats_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// ListSnapshots returns the last limit snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM sequence_stats_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []analytics.AggregatedStats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, stats)
	}

	return snapshots, rows.Err()
}

// Prune deletes snapshots captured before now minus retention and returns
// how many were removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM sequence_stats_snapshots WHERE captured_at < $1`,
		time.Now().UTC().Add(-retention),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return res.RowsAffected()
}

// StartPeriodicSave snapshots agg every interval until ctx is cancelled,
// then writes one final snapshot. With a positive retention, older
// snapshots are pruned after each save.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval, retention time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
					continue
				}
				if retention <= 0 {
					continue
				}
				if n, err := s.Prune(ctx, retention); err != nil {
					s.logger.Error("snapshot pruning failed", "error", err)
				} else if n > 0 {
					s.logger.Info("old snapshots pruned", "count", n, "retention", retention)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.SaveSnapshot(shutdownCtx, agg.Stats()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval, "retention", retention)
}
