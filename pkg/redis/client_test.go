package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/config"
)

func TestIsNilError(t *testing.T) {
	assert.True(t, IsNilError(redis.Nil))
	assert.True(t, IsNilError(fmt.Errorf("get: %w", redis.Nil)))
	assert.False(t, IsNilError(context.DeadlineExceeded))
	assert.False(t, IsNilError(nil))
}

// newTestClient connects to TEST_REDIS_ADDR and skips when it is unset or
// unreachable.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("skipping: TEST_REDIS_ADDR not set")
	}
	c, err := NewClient(config.RedisConfig{Addr: addr, PoolSize: 4})
	if err != nil {
		t.Skipf("skipping: redis unavailable: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientGetSetAndFlush(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	prefix := fmt.Sprintf("bs-test-%d:", time.Now().UnixNano())

	_, err := c.Get(ctx, prefix+"missing")
	assert.True(t, IsNilError(err))

	// More keys than one SCAN page so the flush has to follow the cursor.
	total := scanPageSize + 50
	for i := range total {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("%s%d", prefix, i), []byte("v"), time.Minute))
	}
	got, err := c.Get(ctx, prefix+"0")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	deleted, err := c.FlushByPattern(ctx, prefix+"*")
	require.NoError(t, err)
	assert.Equal(t, int64(total), deleted)

	_, err = c.Get(ctx, prefix+"0")
	assert.True(t, IsNilError(err))
}
