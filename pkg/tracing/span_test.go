package tracing

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildInheritsTraceID(t *testing.T) {
	ctx, root := Start(context.Background(), "sequence", "req-1")
	ctx, ledger := Start(ctx, "ledger", "ignored")
	ledger.End(nil)
	_, search := Start(ctx, "search", "")
	search.End(errors.New("timeout"))
	root.End(nil)

	assert.Equal(t, "req-1", ledger.TraceID)
	assert.Equal(t, "req-1", search.TraceID)
	require.Len(t, root.Children(), 1)
	assert.Same(t, ledger, root.Children()[0])
	assert.Same(t, search, ledger.Children()[0])
	assert.Same(t, ledger, FromContext(ctx))
}

func TestLogWritesTreeAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, root := Start(context.Background(), "sequence", "req-2")
	_, child := Start(ctx, "cache", "")
	child.SetAttr("hit", true)
	child.End(nil)
	root.End(nil)
	root.Log(logger)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "span=sequence")
	assert.Contains(t, lines[1], "span=cache")
	assert.Contains(t, lines[1], "hit=true")
	assert.Contains(t, lines[1], "depth=1")
}

func TestLogSilentAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	_, root := Start(context.Background(), "sequence", "req-3")
	root.End(nil)
	root.Log(logger)
	assert.Empty(t, buf.String())
}
