package store

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func strPtr(s string) *string { return &s }

func activeSession(id string) Session {
	return Session{ID: id, SourceLanguage: "en", IsActive: true}
}

func TestSessionStore_CreateDuplicateFails(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()

	if err := s.CreateSession(ctx, activeSession("s1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.CreateSession(ctx, activeSession("s1"))
	if !errors.Is(err, ErrConditionalFailed) {
		t.Fatalf("err = %v, want ErrConditionalFailed", err)
	}
}

func TestSessionStore_IncrementRequiresActive(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()
	_ = s.CreateSession(ctx, activeSession("s1"))

	n, err := s.IncrementListenerCount(ctx, "s1")
	if err != nil || n != 1 {
		t.Fatalf("increment = (%d, %v), want (1, nil)", n, err)
	}

	_ = s.MarkInactive(ctx, "s1")
	if _, err := s.IncrementListenerCount(ctx, "s1"); !errors.Is(err, ErrConditionalFailed) {
		t.Fatalf("err = %v, want ErrConditionalFailed on inactive session", err)
	}

	if _, err := s.IncrementListenerCount(ctx, "missing"); !errors.Is(err, ErrConditionalFailed) {
		t.Fatalf("err = %v, want ErrConditionalFailed on missing session", err)
	}
}

func TestSessionStore_CounterFloor(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()
	_ = s.CreateSession(ctx, activeSession("s1"))

	// 10 concurrent joins then 12 concurrent leaves must end at exactly 0.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.IncrementListenerCount(ctx, "s1")
		}()
	}
	wg.Wait()

	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.DecrementListenerCount(ctx, "s1")
			if err != nil {
				t.Errorf("decrement: %v", err)
			}
			if n < 0 {
				t.Errorf("observed negative count %d", n)
			}
		}()
	}
	wg.Wait()

	sess, _ := s.GetSession(ctx, "s1")
	if sess.ListenerCount != 0 {
		t.Fatalf("final count = %d, want 0", sess.ListenerCount)
	}
}

func TestSessionStore_UpdateSpeakerConnection(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()
	_ = s.CreateSession(ctx, activeSession("s1"))

	if err := s.UpdateSpeakerConnection(ctx, "s1", "conn-2"); err != nil {
		t.Fatalf("update: %v", err)
	}
	sess, _ := s.GetSession(ctx, "s1")
	if sess.SpeakerConnectionID != "conn-2" {
		t.Errorf("speaker connection = %q, want conn-2", sess.SpeakerConnectionID)
	}

	_ = s.MarkInactive(ctx, "s1")
	if err := s.UpdateSpeakerConnection(ctx, "s1", "conn-3"); !errors.Is(err, ErrConditionalFailed) {
		t.Fatalf("err = %v, want ErrConditionalFailed on inactive session", err)
	}
}

func TestSessionStore_ListActiveSessionsPagination(t *testing.T) {
	s := NewMemorySessionStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		_ = s.CreateSession(ctx, activeSession(id))
	}
	_ = s.MarkInactive(ctx, "b")

	page1, cursor, err := s.ListActiveSessions(ctx, 2, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page1) != 2 || page1[0].ID != "a" || page1[1].ID != "c" {
		t.Fatalf("page1 = %v", page1)
	}
	if cursor == "" {
		t.Fatal("expected a continuation cursor")
	}

	page2, cursor, err := s.ListActiveSessions(ctx, 2, cursor)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].ID != "d" {
		t.Fatalf("page2 = %v", page2)
	}
	if cursor != "" {
		t.Fatalf("cursor = %q, want empty on last page", cursor)
	}
}

func TestConnectionStore_ListenersByLanguage(t *testing.T) {
	s := NewMemoryConnectionStore()
	ctx := context.Background()

	_ = s.CreateConnection(ctx, Connection{ID: "spk", SessionID: "s1", Role: RoleSpeaker})
	_ = s.CreateConnection(ctx, Connection{ID: "l1", SessionID: "s1", Role: RoleListener, TargetLanguage: strPtr("es")})
	_ = s.CreateConnection(ctx, Connection{ID: "l2", SessionID: "s1", Role: RoleListener, TargetLanguage: strPtr("es")})
	_ = s.CreateConnection(ctx, Connection{ID: "l3", SessionID: "s1", Role: RoleListener, TargetLanguage: strPtr("fr")})
	_ = s.CreateConnection(ctx, Connection{ID: "l4", SessionID: "other", Role: RoleListener, TargetLanguage: strPtr("es")})

	ids, err := s.ListenersByLanguage(ctx, "s1", "es")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	want := []string{"l1", "l2"}
	if len(ids) != 2 || ids[0] != want[0] || ids[1] != want[1] {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestConnectionStore_UniqueTargetLanguages(t *testing.T) {
	s := NewMemoryConnectionStore()
	ctx := context.Background()

	_ = s.CreateConnection(ctx, Connection{ID: "spk", SessionID: "s1", Role: RoleSpeaker})
	_ = s.CreateConnection(ctx, Connection{ID: "l1", SessionID: "s1", Role: RoleListener, TargetLanguage: strPtr("es")})
	_ = s.CreateConnection(ctx, Connection{ID: "l2", SessionID: "s1", Role: RoleListener, TargetLanguage: strPtr("es")})
	_ = s.CreateConnection(ctx, Connection{ID: "l3", SessionID: "s1", Role: RoleListener, TargetLanguage: strPtr("ja")})

	langs, err := s.UniqueTargetLanguages(ctx, "s1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(langs) != 2 || langs[0] != "es" || langs[1] != "ja" {
		t.Fatalf("langs = %v, want [es ja]", langs)
	}
}

func TestConnectionStore_UpdateTargetLanguage(t *testing.T) {
	s := NewMemoryConnectionStore()
	ctx := context.Background()
	_ = s.CreateConnection(ctx, Connection{ID: "l1", SessionID: "s1", Role: RoleListener, TargetLanguage: strPtr("es")})

	if err := s.UpdateTargetLanguage(ctx, "l1", "fr"); err != nil {
		t.Fatalf("update: %v", err)
	}
	c, _ := s.GetConnection(ctx, "l1")
	if c.TargetLanguage == nil || *c.TargetLanguage != "fr" {
		t.Errorf("target language = %v, want fr", c.TargetLanguage)
	}
}

func TestConnectionStore_BatchDeleteAndScan(t *testing.T) {
	s := NewMemoryConnectionStore()
	ctx := context.Background()
	for _, id := range []string{"c1", "c2", "c3"} {
		_ = s.CreateConnection(ctx, Connection{ID: id, SessionID: "s1", Role: RoleListener, TargetLanguage: strPtr("es")})
	}

	failed, err := s.BatchDelete(ctx, []string{"c1", "c3", "nope"})
	if err != nil || len(failed) != 0 {
		t.Fatalf("batch delete = (%v, %v), want no failures", failed, err)
	}

	page, cursor, err := s.ScanConnections(ctx, 10, "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(page) != 1 || page[0].ID != "c2" || cursor != "" {
		t.Fatalf("scan = (%v, %q)", page, cursor)
	}
}

func TestConnectionStore_DeleteMissingIsNoop(t *testing.T) {
	s := NewMemoryConnectionStore()
	if err := s.DeleteConnection(context.Background(), "missing"); err != nil {
		t.Fatalf("delete missing = %v, want nil", err)
	}
}
