package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{}, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errTest)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return errTest
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want errTest", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (non-retryable must not retry)", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return Retryable(errTest)
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want the last attempt's error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_ContextCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour}, func(context.Context) error {
		calls++
		return Retryable(errTest)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithResult(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), RetryConfig{BaseDelay: time.Millisecond}, func(context.Context) ([]byte, error) {
		calls++
		if calls < 2 {
			return nil, Retryable(errTest)
		}
		return []byte("audio"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "audio" {
		t.Errorf("result = %q, want audio", got)
	}
}

func TestBackoffDelay_ExponentialWithCap(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second, Jitter: 0.1}

	for n, base := range []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	} {
		d := backoffDelay(cfg, n)
		max := base + time.Duration(float64(base)*cfg.Jitter)
		if d < base || d > max {
			t.Errorf("backoffDelay(n=%d) = %v, want in [%v, %v]", n, d, base, max)
		}
	}

	// Past the cap, the delay stays at MaxDelay plus jitter.
	d := backoffDelay(cfg, 10)
	if d < cfg.MaxDelay || d > cfg.MaxDelay+time.Duration(float64(cfg.MaxDelay)*cfg.Jitter) {
		t.Errorf("capped delay = %v, want about %v", d, cfg.MaxDelay)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(errTest) {
		t.Error("plain error must not be retryable")
	}
	if !IsRetryable(Retryable(errTest)) {
		t.Error("wrapped error must be retryable")
	}
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) must be nil")
	}
}
