package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lingocast/lingocast/internal/protocol"
	"github.com/lingocast/lingocast/internal/store"
	"github.com/lingocast/lingocast/pkg/transport"
)

const (
	// defaultSweepInterval is the time between sweeps.
	defaultSweepInterval = 60 * time.Second

	// defaultIdleTimeout is how long a connection may stay silent.
	defaultIdleTimeout = 120 * time.Second

	// defaultScanPageSize bounds one store scan page.
	defaultScanPageSize = 100
)

// SweeperConfig holds the sweep cadence. Zero values are replaced with
// defaults.
type SweeperConfig struct {
	// Interval is the time between sweeps. Default: 60s.
	Interval time.Duration

	// IdleTimeout is the silence threshold past which a connection is
	// closed. Default: 120s.
	IdleTimeout time.Duration

	// PageSize bounds one connection-store scan page. Default: 100.
	PageSize int
}

// SweepStats summarises one sweep.
type SweepStats struct {
	Checked          int
	Idle             int
	Closed           int
	SpeakerTimeouts  int
	ListenerTimeouts int
}

// Sweeper closes connections that stopped sending heartbeats. Each idle
// connection gets a best-effort connectionTimeout notice, its transport is
// closed, and the disconnect path runs so counters and session state stay
// consistent.
type Sweeper struct {
	cfg       SweeperConfig
	conns     store.ConnectionStore
	transport transport.Conn
	lifecycle *Lifecycle

	now func() time.Time
}

// NewSweeper creates a [Sweeper] over the connection store and transport.
func NewSweeper(cfg SweeperConfig, conns store.ConnectionStore, tr transport.Conn, lifecycle *Lifecycle) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultScanPageSize
	}
	return &Sweeper{
		cfg:       cfg,
		conns:     conns,
		transport: tr,
		lifecycle: lifecycle,
		now:       time.Now,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce scans every connection once and closes the idle ones.
func (s *Sweeper) SweepOnce(ctx context.Context) SweepStats {
	var stats SweepStats
	now := s.now()

	notice, err := json.Marshal(protocol.ConnectionTimeout{
		Type:   protocol.EventConnectionTimeout,
		Reason: "idle_timeout",
	})
	if err != nil {
		slog.Error("timeout notice marshal failed", "err", err)
		return stats
	}

	cursor := ""
	for {
		page, next, err := s.conns.ScanConnections(ctx, s.cfg.PageSize, cursor)
		if err != nil {
			slog.Error("connection scan failed", "err", err)
			break
		}
		for _, conn := range page {
			stats.Checked++

			last := conn.LastActivityAt
			if last == 0 {
				last = conn.ConnectedAt
			}
			if now.Sub(time.UnixMilli(last)) < s.cfg.IdleTimeout {
				continue
			}
			stats.Idle++

			// Best effort: the peer may be long gone.
			_ = s.transport.Send(ctx, conn.ID, notice)
			if err := s.transport.Close(ctx, conn.ID, "idle timeout"); err != nil {
				slog.Warn("idle connection close failed", "connection_id", conn.ID, "err", err)
			}
			if err := s.lifecycle.Disconnect(ctx, conn.ID); err != nil {
				slog.Warn("disconnect path failed", "connection_id", conn.ID, "err", err)
				continue
			}
			stats.Closed++
			if conn.Role == store.RoleSpeaker {
				stats.SpeakerTimeouts++
			} else {
				stats.ListenerTimeouts++
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}

	if stats.Idle > 0 {
		slog.Info("idle sweep",
			"checked", stats.Checked,
			"idle", stats.Idle,
			"closed", stats.Closed,
			"speaker_timeouts", stats.SpeakerTimeouts,
			"listener_timeouts", stats.ListenerTimeouts)
	}
	return stats
}
