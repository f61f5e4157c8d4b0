// Package retry re-runs an operation with exponential backoff while its error
// is classified as retryable.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rental-insight/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int           // Total attempts including the first
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Cap on any single delay
	Multiplier   float64       // Backoff growth factor
	// Retryable decides whether err warrants another attempt. Nil retries every error.
	Retryable func(err error) bool
}

// DefaultConfig returns 3 attempts at 50ms, 100ms
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}
}

// Result describes how a retried operation went
type Result struct {
	Attempts      int
	Success       bool
	TotalDuration time.Duration
	LastError     error
}

// Func is one attempt. attempt starts at 1.
type Func func(ctx context.Context, attempt int) error

// WithExponentialBackoff runs fn until it succeeds, returns a non-retryable
// error, exhausts MaxAttempts, or ctx is done.
func WithExponentialBackoff(ctx context.Context, cfg Config, fn Func) *Result {
	logger := logging.FromContext(ctx)
	start := time.Now()
	result := &Result{}

	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(start)
			if attempt > 1 {
				logger.WithField("attempts", attempt).Debug("operation succeeded after retry")
			}
			return result
		}
		result.LastError = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			break
		}
		if attempt == cfg.MaxAttempts {
			logger.WithError(err).WithField("attempts", attempt).Warn("operation failed after max retry attempts")
			break
		}

		delay := backoff(cfg, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		}
	}

	result.TotalDuration = time.Since(start)
	return result
}

// Do is WithExponentialBackoff reduced to an error
func Do(ctx context.Context, cfg Config, fn Func) error {
	res := WithExponentialBackoff(ctx, cfg, fn)
	if res.Success {
		return nil
	}
	return fmt.Errorf("operation failed after %d attempts: %w", res.Attempts, res.LastError)
}

func backoff(cfg Config, attempt int) time.Duration {
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
