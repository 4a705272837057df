// Package redis is the go-redis/v9 client behind the sequencer's result
// cache: byte-oriented get/set with TTL and prefix invalidation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/config"
	"github.com/redis/go-redis/v9"
)

const scanPageSize = 200

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Get returns the raw value for key. A missing key yields an error for which
// IsNilError reports true.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	return c.rdb.Get(ctx, key).Bytes()
}

// Set stores value with the given TTL.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// FlushByPattern walks the keyspace with SCAN and unlinks matching keys one
// page at a time, returning the number of keys removed. UNLINK frees memory
// off the main Redis thread, so large cache flushes do not stall lookups.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, scanPageSize).Result()
		if err != nil {
			return deleted, fmt.Errorf("scanning pattern %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := c.rdb.Unlink(ctx, keys...).Result()
			deleted += n
			if err != nil {
				return deleted, fmt.Errorf("unlinking %d keys: %w", len(keys), err)
			}
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// IsNilError reports whether err is a Redis nil (key-not-found) error.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping sends a PING to Redis and returns any error.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
