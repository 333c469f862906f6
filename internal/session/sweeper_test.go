package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lingocast/lingocast/internal/protocol"
	"github.com/lingocast/lingocast/internal/store"
	"github.com/lingocast/lingocast/pkg/transport/mock"
)

type sweepFixture struct {
	sweeper  *Sweeper
	sessions *store.MemorySessionStore
	conns    *store.MemoryConnectionStore
	pusher   *mock.Pusher
	base     time.Time
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	f := &sweepFixture{
		sessions: store.NewMemorySessionStore(),
		conns:    store.NewMemoryConnectionStore(),
		pusher:   &mock.Pusher{},
		base:     time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	lifecycle := NewLifecycle(f.sessions, f.conns, f.pusher)
	f.sweeper = NewSweeper(SweeperConfig{PageSize: 2}, f.conns, f.pusher, lifecycle)
	f.sweeper.now = func() time.Time { return f.base }
	return f
}

// addConn seeds a connection whose last activity was idleFor ago.
func (f *sweepFixture) addConn(t *testing.T, id, sessionID string, role store.Role, idleFor time.Duration) {
	t.Helper()
	conn := store.Connection{
		ID:             id,
		SessionID:      sessionID,
		Role:           role,
		ConnectedAt:    f.base.Add(-time.Hour).UnixMilli(),
		LastActivityAt: f.base.Add(-idleFor).UnixMilli(),
	}
	if role == store.RoleListener {
		conn.TargetLanguage = strPtr("es")
	}
	if err := f.conns.CreateConnection(context.Background(), conn); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestSweeper_ClosesOnlyIdleConnections(t *testing.T) {
	f := newSweepFixture(t)
	_ = f.sessions.CreateSession(context.Background(), store.Session{ID: "s1", IsActive: true})
	f.addConn(t, "fresh", "s1", store.RoleListener, 30*time.Second)
	f.addConn(t, "idle1", "s1", store.RoleListener, 3*time.Minute)
	f.addConn(t, "idle2", "s1", store.RoleListener, 5*time.Minute)
	_, _ = f.sessions.IncrementListenerCount(context.Background(), "s1")
	_, _ = f.sessions.IncrementListenerCount(context.Background(), "s1")
	_, _ = f.sessions.IncrementListenerCount(context.Background(), "s1")

	stats := f.sweeper.SweepOnce(context.Background())

	if stats.Checked != 3 || stats.Idle != 2 || stats.Closed != 2 {
		t.Fatalf("stats = %+v, want 3 checked, 2 idle, 2 closed", stats)
	}
	if stats.ListenerTimeouts != 2 || stats.SpeakerTimeouts != 0 {
		t.Errorf("stats = %+v, want listener timeouts only", stats)
	}

	if _, err := f.conns.GetConnection(context.Background(), "fresh"); err != nil {
		t.Error("fresh connection must survive the sweep")
	}
	for _, id := range []string{"idle1", "idle2"} {
		if _, err := f.conns.GetConnection(context.Background(), id); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("idle connection %s must be removed", id)
		}
	}
	sess, _ := f.sessions.GetSession(context.Background(), "s1")
	if sess.ListenerCount != 1 {
		t.Errorf("listener count = %d, want 1", sess.ListenerCount)
	}
}

func TestSweeper_SendsTimeoutNoticeBeforeClosing(t *testing.T) {
	f := newSweepFixture(t)
	_ = f.sessions.CreateSession(context.Background(), store.Session{ID: "s1", IsActive: true})
	f.addConn(t, "idle1", "s1", store.RoleListener, 10*time.Minute)

	f.sweeper.SweepOnce(context.Background())

	if f.pusher.SendsTo("idle1") != 1 {
		t.Fatalf("sends = %d, want one timeout notice", f.pusher.SendsTo("idle1"))
	}
	var msg protocol.ConnectionTimeout
	if err := json.Unmarshal(f.pusher.Calls[0].Payload, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != protocol.EventConnectionTimeout || msg.Reason != "idle_timeout" {
		t.Errorf("notice = %+v", msg)
	}
	closed := f.pusher.ClosedIDs()
	if len(closed) != 1 || closed[0] != "idle1" {
		t.Errorf("closed = %v, want [idle1]", closed)
	}
}

func TestSweeper_SpeakerTimeoutEndsSession(t *testing.T) {
	f := newSweepFixture(t)
	_ = f.sessions.CreateSession(context.Background(), store.Session{ID: "s1", IsActive: true})
	f.addConn(t, "spk", "s1", store.RoleSpeaker, 10*time.Minute)
	f.addConn(t, "lst", "s1", store.RoleListener, 10*time.Second)
	_, _ = f.sessions.IncrementListenerCount(context.Background(), "s1")

	stats := f.sweeper.SweepOnce(context.Background())

	if stats.SpeakerTimeouts != 1 {
		t.Fatalf("stats = %+v, want one speaker timeout", stats)
	}
	sess, _ := f.sessions.GetSession(context.Background(), "s1")
	if sess.IsActive {
		t.Error("speaker timeout must mark the session inactive")
	}

	// The surviving listener is told the session ended.
	found := false
	for _, c := range f.pusher.Calls {
		if c.ConnectionID != "lst" {
			continue
		}
		var msg protocol.SessionEnded
		if json.Unmarshal(c.Payload, &msg) == nil && msg.Type == protocol.EventSessionEnded {
			found = true
			if msg.Reason != "speaker_disconnected" {
				t.Errorf("reason = %q", msg.Reason)
			}
		}
	}
	if !found {
		t.Error("listener never received sessionEnded")
	}
}

func TestSweeper_NeverSetActivityFallsBackToConnectedAt(t *testing.T) {
	f := newSweepFixture(t)
	_ = f.sessions.CreateSession(context.Background(), store.Session{ID: "s1", IsActive: true})
	// Connected just now, never sent anything yet.
	_ = f.conns.CreateConnection(context.Background(), store.Connection{
		ID: "young", SessionID: "s1", Role: store.RoleListener, TargetLanguage: strPtr("es"),
		ConnectedAt: f.base.Add(-10 * time.Second).UnixMilli(),
	})

	stats := f.sweeper.SweepOnce(context.Background())

	if stats.Idle != 0 {
		t.Fatalf("stats = %+v, a just-connected peer is not idle", stats)
	}
}

func TestSweeper_PaginatesAcrossPages(t *testing.T) {
	f := newSweepFixture(t)
	_ = f.sessions.CreateSession(context.Background(), store.Session{ID: "s1", IsActive: true})
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		f.addConn(t, id, "s1", store.RoleListener, 10*time.Minute)
	}

	stats := f.sweeper.SweepOnce(context.Background())

	if stats.Checked != 5 || stats.Closed != 5 {
		t.Fatalf("stats = %+v, want all 5 swept across pages", stats)
	}
}
