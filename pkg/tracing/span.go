// Package tracing records per-request span trees carried through a context.
// A sequence request opens a root span keyed by its request ID; the ledger,
// cache and search stages open children under it, and the finished tree is
// written to slog at debug level.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span is one timed stage of a request.
type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration
	Err      error

	mu       sync.Mutex
	attrs    []any
	children []*Span
}

// Start opens a span named name. With a span already in ctx the new span
// becomes its child and inherits its trace ID; otherwise it is a root span
// identified by traceID.
func Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{Name: name, TraceID: traceID, Start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		s.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, s), s
}

// FromContext returns the innermost span in ctx, or nil.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(contextKey{}).(*Span)
	return s
}

// SetAttr attaches a key-value pair reported with the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// End stops the clock and records err, if any, as the span's outcome.
func (s *Span) End(err error) {
	s.Duration = time.Since(s.Start)
	s.Err = err
}

// Children returns a copy of the spans opened under s.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Log writes s and its descendants, depth-first.
func (s *Span) Log(logger *slog.Logger) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	s.log(logger, 0)
}

func (s *Span) log(logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := append([]any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"depth", depth,
		"duration_ms", float64(s.Duration.Microseconds()) / 1000,
	}, s.attrs...)
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()
	if s.Err != nil {
		attrs = append(attrs, "error", s.Err)
	}
	logger.Debug("span", attrs...)
	for _, c := range children {
		c.log(logger, depth+1)
	}
}
