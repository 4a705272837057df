package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/resilience"
)

const schema = `
CREATE TABLE IF NOT EXISTS consumed_chunks (
    play_id     TEXT        NOT NULL,
    chunk_id    TEXT        NOT NULL,
    beat_id     TEXT        NOT NULL,
    position    INT         NOT NULL,
    consumed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (play_id, chunk_id)
);
CREATE INDEX IF NOT EXISTS idx_consumed_chunks_play ON consumed_chunks (play_id, consumed_at, position);
`

// PostgresLedger stores the ledger in the consumed_chunks table. Writes are
// retried with backoff unless Postgres rejected them for an integrity
// violation, which a retry cannot fix.
type PostgresLedger struct {
	db      *postgres.Client
	retry   resilience.RetryConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewPostgresLedger(db *postgres.Client, m *metrics.Metrics) *PostgresLedger {
	return &PostgresLedger{
		db: db,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Retryable:    retryable,
			OnRetry: func(int, error) {
				m.IncRetry("ledger-record")
			},
		},
		metrics: m,
		logger:  slog.Default().With("component", "ledger"),
	}
}

// EnsureSchema creates the ledger table when it does not exist yet.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating ledger schema: %w", err)
	}
	return nil
}

func (l *PostgresLedger) ConsumedIDs(ctx context.Context, playID string) ([]string, error) {
	ids, err := l.consumedIDs(ctx, playID)
	l.metrics.LedgerOp("consumed", err)
	return ids, err
}

func (l *PostgresLedger) consumedIDs(ctx context.Context, playID string) ([]string, error) {
	rows, err := l.db.DB.QueryContext(ctx,
		`SELECT chunk_id FROM consumed_chunks WHERE play_id = $1 ORDER BY consumed_at, position`,
		playID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying consumed chunks: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning consumed chunk: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (l *PostgresLedger) Record(ctx context.Context, playID, beatID string, ids []string) error {
	if playID == "" {
		return fmt.Errorf("recording consumption: empty play id: %w", apperrors.ErrInvalidInput)
	}
	if len(ids) == 0 {
		return nil
	}
	err := resilience.Retry(ctx, "ledger-record", l.retry, func() error {
		_, err := l.db.DB.ExecContext(ctx,
			`INSERT INTO consumed_chunks (play_id, beat_id, chunk_id, position)
			SELECT $1, $2, t.id, t.ord FROM unnest($3::text[]) WITH ORDINALITY AS t(id, ord)
			ON CONFLICT (play_id, chunk_id) DO NOTHING`,
			playID, beatID, pq.Array(ids),
		)
		return err
	})
	l.metrics.LedgerOp("record", err)
	if err != nil {
		return fmt.Errorf("recording consumed chunks: %w", err)
	}
	l.logger.Debug("consumption recorded", "play_id", playID, "beat_id", beatID, "chunks", len(ids))
	return nil
}

func (l *PostgresLedger) Reset(ctx context.Context, playID string) error {
	res, err := l.db.DB.ExecContext(ctx, `DELETE FROM consumed_chunks WHERE play_id = $1`, playID)
	l.metrics.LedgerOp("reset", err)
	if err != nil {
		return fmt.Errorf("resetting play %q: %w", playID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resetting play %q: %w", playID, err)
	}
	if n == 0 {
		return fmt.Errorf("play %q: %w", playID, apperrors.ErrPlayNotFound)
	}
	l.logger.Info("play reset", "play_id", playID, "chunks_released", n)
	return nil
}

// retryable rejects integrity violations (SQLSTATE class 23) and context
// errors.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() != "23"
	}
	return true
}
