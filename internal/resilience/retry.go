package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryableError marks an error as transient. Only errors wrapped with
// [Retryable] (or implementing their own Is against it) are retried;
// everything else fails the attempt immediately.
var RetryableError = errors.New("retryable")

// Retryable wraps err so [Retry] will re-attempt after it.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", RetryableError, err)
}

// IsRetryable reports whether err is marked transient.
func IsRetryable(err error) bool {
	return errors.Is(err, RetryableError)
}

// RetryConfig holds tuning knobs for [Retry]. Zero values are replaced with
// defaults.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, including the first.
	// Default: 3.
	MaxAttempts int

	// BaseDelay is the delay before the first retry; it doubles on each
	// subsequent retry. Default: 100ms.
	BaseDelay time.Duration

	// MaxDelay caps the exponential delay. Default: 2s.
	MaxDelay time.Duration

	// Jitter is the maximum fraction of the delay added as random jitter,
	// in [0, 1]. Default: 0.1.
	Jitter float64
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	if c.Jitter <= 0 {
		c.Jitter = 0.1
	}
}

// Retry calls fn up to cfg.MaxAttempts times, sleeping an exponentially
// growing, jittered delay between attempts. A non-retryable error or context
// cancellation stops immediately with that error.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg.applyDefaults()

	var err error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if sleepErr := sleep(ctx, backoffDelay(cfg, attempt-1)); sleepErr != nil {
				return sleepErr
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
	}
	return err
}

// RetryWithResult is the value-returning variant of [Retry].
func RetryWithResult[R any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (R, error)) (R, error) {
	cfg.applyDefaults()

	var (
		result R
		err    error
	)
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if sleepErr := sleep(ctx, backoffDelay(cfg, attempt-1)); sleepErr != nil {
				var zero R
				return zero, sleepErr
			}
		}
		if result, err = fn(ctx); err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			var zero R
			return zero, err
		}
	}
	var zero R
	return zero, err
}

// backoffDelay computes min(base * 2^n, max) plus up to Jitter of itself.
func backoffDelay(cfg RetryConfig, n int) time.Duration {
	delay := cfg.BaseDelay << n
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	jitter := time.Duration(rand.Float64() * cfg.Jitter * float64(delay))
	return delay + jitter
}

// sleep blocks for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
