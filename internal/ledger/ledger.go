// Package ledger records which chunks each play has already consumed so a
// chunk placed in one beat is not offered again in a later beat of the same
// play. Reuse inside one search is handled by the sequencer itself; the
// ledger covers reuse across searches.
package ledger

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/errors"
)

// Ledger is implemented by MemoryLedger and PostgresLedger.
type Ledger interface {
	// ConsumedIDs returns the play's consumed chunk ids in consumption
	// order. An unknown play has consumed nothing.
	ConsumedIDs(ctx context.Context, playID string) ([]string, error)
	// Record marks ids as consumed by beatID. Ids already consumed by the
	// play are ignored.
	Record(ctx context.Context, playID, beatID string, ids []string) error
	// Reset forgets the play. Resetting an unknown play returns
	// ErrPlayNotFound.
	Reset(ctx context.Context, playID string) error
}

// Exclude returns the members of items whose id is not in consumed, keeping
// their order. items is returned as is when nothing has been consumed.
func Exclude[T any](items []T, id func(T) string, consumed []string) []T {
	if len(consumed) == 0 {
		return items
	}
	seen := make(map[string]struct{}, len(consumed))
	for _, c := range consumed {
		seen[c] = struct{}{}
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if _, ok := seen[id(item)]; !ok {
			out = append(out, item)
		}
	}
	return out
}

type play struct {
	order []string
	set   map[string]struct{}
}

// MemoryLedger keeps the ledger in process memory. It is the default when
// Postgres is disabled.
type MemoryLedger struct {
	mu    sync.RWMutex
	plays map[string]*play
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{plays: make(map[string]*play)}
}

func (l *MemoryLedger) ConsumedIDs(_ context.Context, playID string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.plays[playID]
	if !ok {
		return []string{}, nil
	}
	return append([]string(nil), p.order...), nil
}

func (l *MemoryLedger) Record(_ context.Context, playID, _ string, ids []string) error {
	if playID == "" {
		return fmt.Errorf("recording consumption: empty play id: %w", apperrors.ErrInvalidInput)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.plays[playID]
	if !ok {
		p = &play{set: make(map[string]struct{})}
		l.plays[playID] = p
	}
	for _, id := range ids {
		if _, dup := p.set[id]; dup {
			continue
		}
		p.set[id] = struct{}{}
		p.order = append(p.order, id)
	}
	return nil
}

func (l *MemoryLedger) Reset(_ context.Context, playID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.plays[playID]; !ok {
		return fmt.Errorf("play %q: %w", playID, apperrors.ErrPlayNotFound)
	}
	delete(l.plays, playID)
	return nil
}
