// Package retry runs short operations against flaky backends with
// exponential backoff. The coordinator uses it for Redis writes that
// mirror room state; room processing itself never retries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

type Config struct {
	// Enabled false makes Retry a plain pass-through call.
	Enabled bool

	// MaxAttempts bounds total executions, the first try included.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Jitter spreads delays by up to 25% so instances mirroring the
	// same burst of room events do not hammer Redis in lockstep.
	Jitter bool

	// NonRetryable errors fail immediately, matched with errors.Is.
	NonRetryable []error
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retry runs fn until it succeeds, the attempt budget runs out, or the
// context is cancelled. The last error is wrapped in the failure.
func Retry(ctx context.Context, cfg Config, fn func() error) error {
	if !cfg.Enabled {
		return fn()
	}

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		for _, fatal := range cfg.NonRetryable {
			if errors.Is(err, fatal) {
				return fmt.Errorf("non-retryable: %w", err)
			}
		}

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled during backoff: %w", ctx.Err())
		case <-time.After(backoff(cfg, attempt)):
		}
	}

	return fmt.Errorf("%d attempts exhausted: %w", attempts, lastErr)
}

// backoff returns the delay after the given zero-based attempt.
func backoff(cfg Config, attempt int) time.Duration {
	d := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if cfg.MaxDelay > 0 && d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}

	delay := time.Duration(d)
	if cfg.Jitter && delay > 0 {
		spread := delay / 4
		delay = delay - spread + time.Duration(rand.Int63n(int64(2*spread)+1))
	}
	return delay
}
