package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig controls backoff. Retryable, when set, stops the loop early
// for errors it rejects. OnRetry is called before each backoff sleep.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	Retryable      func(error) bool
	OnRetry        func(attempt int, err error)
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFraction <= 0 {
		cfg.JitterFraction = 0.1
	}
	return cfg
}

// Retry calls fn until it succeeds, the attempts are exhausted, or ctx ends.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("all %d attempts failed for %s: %w", cfg.MaxAttempts, name, lastErr)
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return fmt.Errorf("%s failed with non-retryable error: %w", name, lastErr)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}

		delay := cfg.backoff(attempt)
		logger.Warn("operation failed, retrying",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"error", lastErr,
			"next_delay", delay,
		)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted during backoff: %w", ctx.Err())
		}
	}
}

// backoff grows the delay geometrically from InitialDelay, spreads it by
// +/- JitterFraction and caps it at MaxDelay.
func (cfg RetryConfig) backoff(attempt int) time.Duration {
	d := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	d += d * cfg.JitterFraction * (2*rand.Float64() - 1)
	d = math.Min(d, float64(cfg.MaxDelay))
	if d < 0 {
		return cfg.InitialDelay
	}
	return time.Duration(d)
}
