// Package broadcast implements the listener fan-out stage: it looks up the
// listeners tuned to a language, pushes the audio payload to each of them
// concurrently, and reaps connections the transport reports as gone.
package broadcast

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/lingocast/lingocast/internal/observe"
	"github.com/lingocast/lingocast/internal/store"
	"github.com/lingocast/lingocast/pkg/transport"
)

const (
	// defaultMaxConcurrent bounds simultaneous sends across one broadcast.
	defaultMaxConcurrent = 100

	// defaultMaxRetries bounds re-sends after a throttled signal.
	defaultMaxRetries = 2

	// defaultRetryBase is the first throttle backoff; it doubles per retry.
	defaultRetryBase = 100 * time.Millisecond
)

// Result summarises one broadcast to one language.
type Result struct {
	// SuccessCount is the number of listeners that received the payload.
	SuccessCount int

	// FailureCount is the number of listeners that failed after retries.
	FailureCount int

	// StaleRemoved is the number of gone connections reaped.
	StaleRemoved int

	// Duration is the wall time of the whole fan-out.
	Duration time.Duration
}

// audioMessage is the wire envelope pushed to listeners.
type audioMessage struct {
	Type      string `json:"type"`
	Language  string `json:"language"`
	Audio     string `json:"audio"`
	Timestamp int64  `json:"timestamp"`
}

// BroadcasterConfig holds the tuning knobs for a [Broadcaster]. Zero values
// are replaced with defaults.
type BroadcasterConfig struct {
	// MaxConcurrent caps simultaneous sends. Default: 100.
	MaxConcurrent int

	// MaxRetries bounds re-sends after throttling. Default: 2.
	MaxRetries int

	// RetryBase is the initial throttle backoff, doubling per retry.
	// Default: 100ms.
	RetryBase time.Duration
}

// Broadcaster fans audio out to the listener subset of one language.
// Per-listener failures never fail the broadcast; gone connections are
// removed from the connection store and released from the session's
// listener count so the zero-listener short-circuit keeps working.
type Broadcaster struct {
	cfg      BroadcasterConfig
	sessions store.SessionStore
	conns    store.ConnectionStore
	pusher   transport.Pusher
	metrics  *observe.Metrics

	now func() time.Time
}

// NewBroadcaster creates a [Broadcaster] over the stores and transport.
func NewBroadcaster(cfg BroadcasterConfig, sessions store.SessionStore, conns store.ConnectionStore, pusher transport.Pusher) *Broadcaster {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	return &Broadcaster{
		cfg:      cfg,
		sessions: sessions,
		conns:    conns,
		pusher:   pusher,
		metrics:  observe.DefaultMetrics(),
		now:      time.Now,
	}
}

// BroadcastToLanguage pushes audio to every listener of the session tuned
// to language. The audio is wrapped in an audioData envelope with the
// current timestamp.
func (b *Broadcaster) BroadcastToLanguage(ctx context.Context, sessionID, language string, audio []byte) Result {
	start := b.now()

	listeners, err := b.conns.ListenersByLanguage(ctx, sessionID, language)
	if err != nil {
		slog.Error("listener lookup failed",
			"session_id", sessionID, "language", language, "err", err)
		return Result{Duration: b.now().Sub(start)}
	}
	if len(listeners) == 0 {
		return Result{Duration: b.now().Sub(start)}
	}

	payload, err := json.Marshal(audioMessage{
		Type:      "audioData",
		Language:  language,
		Audio:     base64.StdEncoding.EncodeToString(audio),
		Timestamp: b.now().UnixMilli(),
	})
	if err != nil {
		slog.Error("audio envelope marshal failed", "err", err)
		return Result{FailureCount: len(listeners), Duration: b.now().Sub(start)}
	}

	var (
		mu     sync.Mutex
		result Result
		sem    = semaphore.NewWeighted(int64(b.cfg.MaxConcurrent))
		eg     errgroup.Group
	)
	for _, id := range listeners {
		eg.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				result.FailureCount++
				mu.Unlock()
				return nil
			}
			defer sem.Release(1)

			err := b.sendWithRetry(ctx, sessionID, id, payload)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.SuccessCount++
			case errors.Is(err, transport.ErrGone):
				result.StaleRemoved++
			default:
				result.FailureCount++
			}
			return nil
		})
	}
	_ = eg.Wait()

	result.Duration = b.now().Sub(start)
	b.metrics.BroadcastDuration.Record(ctx, result.Duration.Seconds())
	b.metrics.RecordBroadcastSends(ctx, result.SuccessCount, result.FailureCount, result.StaleRemoved)
	if result.StaleRemoved > 0 || result.FailureCount > 0 {
		slog.Info("broadcast finished with losses",
			"session_id", sessionID,
			"language", language,
			"success", result.SuccessCount,
			"failure", result.FailureCount,
			"stale_removed", result.StaleRemoved)
	}
	return result
}

// sendWithRetry pushes payload to one listener, retrying throttled sends
// with a doubling backoff and reaping gone connections.
func (b *Broadcaster) sendWithRetry(ctx context.Context, sessionID, connectionID string, payload []byte) error {
	delay := b.cfg.RetryBase
	var err error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			delay *= 2
		}

		err = b.pusher.Send(ctx, connectionID, payload)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, transport.ErrGone):
			b.reapStale(ctx, sessionID, connectionID)
			return err
		case errors.Is(err, transport.ErrThrottled):
			continue
		default:
			return err
		}
	}
	return err
}

// reapStale removes a gone listener's connection record and releases its
// slot in the session's listener count. The decrement floors at zero, so a
// connection reaped twice concurrently cannot push the count negative.
func (b *Broadcaster) reapStale(ctx context.Context, sessionID, connectionID string) {
	if err := b.conns.DeleteConnection(ctx, connectionID); err != nil {
		slog.Warn("stale connection cleanup failed",
			"connection_id", connectionID, "err", err)
	}
	if _, err := b.sessions.DecrementListenerCount(ctx, sessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("listener count decrement failed",
			"session_id", sessionID, "connection_id", connectionID, "err", err)
	}
	b.metrics.ActiveListeners.Add(ctx, -1)
}
