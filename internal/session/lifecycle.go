// Package session implements the connection lifecycle engines: the
// disconnect path shared by the server and the sweeper, the heartbeat
// handler that drives connection refresh, and the idle-timeout sweeper.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/lingocast/lingocast/internal/observe"
	"github.com/lingocast/lingocast/internal/protocol"
	"github.com/lingocast/lingocast/internal/store"
	"github.com/lingocast/lingocast/pkg/transport"
)

// Lifecycle owns the disconnect path. Listeners leaving decrement the
// session counter; a speaker leaving ends the session and tells every
// listener.
type Lifecycle struct {
	sessions store.SessionStore
	conns    store.ConnectionStore
	pusher   transport.Pusher
	metrics  *observe.Metrics

	now func() time.Time
}

// NewLifecycle creates a [Lifecycle] over the stores and transport.
func NewLifecycle(sessions store.SessionStore, conns store.ConnectionStore, pusher transport.Pusher) *Lifecycle {
	return &Lifecycle{
		sessions: sessions,
		conns:    conns,
		pusher:   pusher,
		metrics:  observe.DefaultMetrics(),
		now:      time.Now,
	}
}

// Disconnect tears down one connection. Unknown connections are a no-op;
// the path is safe to run twice for the same ID.
func (l *Lifecycle) Disconnect(ctx context.Context, connectionID string) error {
	conn, err := l.conns.GetConnection(ctx, connectionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := l.conns.DeleteConnection(ctx, connectionID); err != nil {
		slog.Warn("connection delete failed", "connection_id", connectionID, "err", err)
	}

	switch conn.Role {
	case store.RoleListener:
		if _, err := l.sessions.DecrementListenerCount(ctx, conn.SessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Warn("listener count decrement failed",
				"session_id", conn.SessionID, "connection_id", connectionID, "err", err)
		}
		l.metrics.ActiveListeners.Add(ctx, -1)
	case store.RoleSpeaker:
		return l.EndSession(ctx, conn.SessionID, "speaker_disconnected")
	}
	return nil
}

// EndSession marks the session inactive and notifies every listener with a
// sessionEnded event. Notification is best effort; gone listeners are
// reaped on the way.
func (l *Lifecycle) EndSession(ctx context.Context, sessionID, reason string) error {
	if err := l.sessions.MarkInactive(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	payload, err := json.Marshal(protocol.SessionEnded{
		Type:      protocol.EventSessionEnded,
		SessionID: sessionID,
		Reason:    reason,
		Timestamp: l.now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	l.NotifyListeners(ctx, sessionID, payload)
	l.metrics.ActiveSessions.Add(ctx, -1)
	slog.Info("session ended", "session_id", sessionID, "reason", reason)
	return nil
}

// NotifyListeners pushes payload to every listener of the session,
// best effort. Gone connections are removed from the store.
func (l *Lifecycle) NotifyListeners(ctx context.Context, sessionID string, payload []byte) {
	langs, err := l.conns.UniqueTargetLanguages(ctx, sessionID)
	if err != nil {
		slog.Warn("listener enumeration failed", "session_id", sessionID, "err", err)
		return
	}
	for _, lang := range langs {
		ids, err := l.conns.ListenersByLanguage(ctx, sessionID, lang)
		if err != nil {
			slog.Warn("listener lookup failed",
				"session_id", sessionID, "language", lang, "err", err)
			continue
		}
		for _, id := range ids {
			if err := l.pusher.Send(ctx, id, payload); err != nil {
				if errors.Is(err, transport.ErrGone) {
					// Release the listener slot with the record so the
					// count cannot drift above the live listeners.
					_ = l.conns.DeleteConnection(ctx, id)
					if _, err := l.sessions.DecrementListenerCount(ctx, sessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
						slog.Warn("listener count decrement failed",
							"session_id", sessionID, "connection_id", id, "err", err)
					}
					l.metrics.ActiveListeners.Add(ctx, -1)
				}
			}
		}
	}
}
