package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lingocast/lingocast/internal/protocol"
	"github.com/lingocast/lingocast/internal/store"
	"github.com/lingocast/lingocast/pkg/transport"
)

const (
	// defaultRefreshAfter is the connection age at which the client is
	// told to reconnect.
	defaultRefreshAfter = 100 * time.Minute

	// defaultWarnAfter is the connection age at which the hard-limit
	// countdown starts.
	defaultWarnAfter = 105 * time.Minute

	// defaultMaxAge is the hard connection lifetime.
	defaultMaxAge = 2 * time.Hour
)

// HeartbeatConfig holds the refresh thresholds. Zero values are replaced
// with defaults.
type HeartbeatConfig struct {
	// RefreshAfter is the age past which connectionRefreshRequired is
	// emitted. Default: 100m.
	RefreshAfter time.Duration

	// WarnAfter is the age past which connectionWarning is emitted.
	// Default: 105m.
	WarnAfter time.Duration

	// MaxAge is the hard connection lifetime. Default: 2h.
	MaxAge time.Duration
}

// Heartbeat answers client heartbeats and drives the connection refresh
// protocol: an ack on every beat, a refresh request once the connection
// ages past the refresh threshold, and a countdown warning near the hard
// limit.
type Heartbeat struct {
	cfg    HeartbeatConfig
	conns  store.ConnectionStore
	pusher transport.Pusher

	now func() time.Time
}

// NewHeartbeat creates a [Heartbeat] engine.
func NewHeartbeat(cfg HeartbeatConfig, conns store.ConnectionStore, pusher transport.Pusher) *Heartbeat {
	if cfg.RefreshAfter <= 0 {
		cfg.RefreshAfter = defaultRefreshAfter
	}
	if cfg.WarnAfter <= 0 {
		cfg.WarnAfter = defaultWarnAfter
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultMaxAge
	}
	return &Heartbeat{
		cfg:    cfg,
		conns:  conns,
		pusher: pusher,
		now:    time.Now,
	}
}

// Handle processes one heartbeat from connectionID. It returns
// [transport.ErrGone] when the connection is no longer known, so the
// caller can run the disconnect path.
func (h *Heartbeat) Handle(ctx context.Context, connectionID string) error {
	conn, err := h.conns.GetConnection(ctx, connectionID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", transport.ErrGone, connectionID)
	}
	if err != nil {
		return err
	}

	now := h.now()
	if err := h.conns.TouchConnection(ctx, connectionID, now.UnixMilli()); err != nil {
		slog.Warn("activity touch failed", "connection_id", connectionID, "err", err)
	}

	if err := h.send(ctx, connectionID, protocol.HeartbeatAck{
		Type:      protocol.EventHeartbeatAck,
		Timestamp: now.UnixMilli(),
	}); err != nil {
		return err
	}

	age := now.Sub(time.UnixMilli(conn.ConnectedAt))
	if age >= h.cfg.RefreshAfter && age < h.cfg.MaxAge {
		if err := h.send(ctx, connectionID, protocol.ConnectionRefreshRequired{
			Type:           protocol.EventConnectionRefreshRequired,
			SessionID:      conn.SessionID,
			Role:           string(conn.Role),
			TargetLanguage: conn.TargetLanguage,
		}); err != nil {
			return err
		}
	}
	if age >= h.cfg.WarnAfter {
		remaining := int(h.cfg.MaxAge.Minutes()) - int(age.Minutes())
		if remaining < 0 {
			remaining = 0
		}
		if err := h.send(ctx, connectionID, protocol.ConnectionWarning{
			Type:             protocol.EventConnectionWarning,
			RemainingMinutes: remaining,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (h *Heartbeat) send(ctx context.Context, connectionID string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.pusher.Send(ctx, connectionID, payload)
}
