package store

import (
	"context"
	"sort"
	"sync"
)

// MemorySessionStore is the in-memory [SessionStore]. Conditional semantics
// match the durable implementation so the two are interchangeable in tests
// and single-node deployments.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemorySessionStore creates an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

// CreateSession implements [SessionStore].
func (s *MemorySessionStore) CreateSession(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; ok {
		return ErrConditionalFailed
	}
	s.sessions[sess.ID] = sess
	return nil
}

// GetSession implements [SessionStore].
func (s *MemorySessionStore) GetSession(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// IncrementListenerCount implements [SessionStore].
func (s *MemorySessionStore) IncrementListenerCount(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || !sess.IsActive {
		return 0, ErrConditionalFailed
	}
	sess.ListenerCount++
	s.sessions[id] = sess
	return sess.ListenerCount, nil
}

// DecrementListenerCount implements [SessionStore]. The count never goes
// below zero; decrementing at zero is a no-op.
func (s *MemorySessionStore) DecrementListenerCount(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return 0, ErrNotFound
	}
	if sess.ListenerCount <= 0 {
		return 0, nil
	}
	sess.ListenerCount--
	s.sessions[id] = sess
	return sess.ListenerCount, nil
}

// UpdateSpeakerConnection implements [SessionStore].
func (s *MemorySessionStore) UpdateSpeakerConnection(_ context.Context, id, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || !sess.IsActive {
		return ErrConditionalFailed
	}
	sess.SpeakerConnectionID = connectionID
	s.sessions[id] = sess
	return nil
}

// UpdateBroadcastState implements [SessionStore].
func (s *MemorySessionStore) UpdateBroadcastState(_ context.Context, id string, state BroadcastState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Broadcast = state
	s.sessions[id] = sess
	return nil
}

// MarkInactive implements [SessionStore].
func (s *MemorySessionStore) MarkInactive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.IsActive = false
	s.sessions[id] = sess
	return nil
}

// ListActiveSessions implements [SessionStore]. Pages are ordered by
// session ID; the cursor is the last ID of the previous page.
func (s *MemorySessionStore) ListActiveSessions(_ context.Context, pageSize int, cursor string) ([]Session, string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if sess.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := make([]Session, 0, pageSize)
	next := ""
	for _, id := range ids {
		if cursor != "" && id <= cursor {
			continue
		}
		if len(page) == pageSize {
			next = page[len(page)-1].ID
			break
		}
		page = append(page, s.sessions[id])
	}
	s.mu.Unlock()

	return page, next, nil
}

// Ensure MemorySessionStore implements SessionStore at compile time.
var _ SessionStore = (*MemorySessionStore)(nil)

// MemoryConnectionStore is the in-memory [ConnectionStore].
type MemoryConnectionStore struct {
	mu    sync.Mutex
	conns map[string]Connection
}

// NewMemoryConnectionStore creates an empty connection store.
func NewMemoryConnectionStore() *MemoryConnectionStore {
	return &MemoryConnectionStore{conns: make(map[string]Connection)}
}

// CreateConnection implements [ConnectionStore].
func (s *MemoryConnectionStore) CreateConnection(_ context.Context, c Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conns[c.ID]; ok {
		return ErrConditionalFailed
	}
	s.conns[c.ID] = c
	return nil
}

// GetConnection implements [ConnectionStore].
func (s *MemoryConnectionStore) GetConnection(_ context.Context, id string) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[id]
	if !ok {
		return Connection{}, ErrNotFound
	}
	return c, nil
}

// DeleteConnection implements [ConnectionStore].
func (s *MemoryConnectionStore) DeleteConnection(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
	return nil
}

// TouchConnection implements [ConnectionStore].
func (s *MemoryConnectionStore) TouchConnection(_ context.Context, id string, atMillis int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[id]
	if !ok {
		return ErrNotFound
	}
	c.LastActivityAt = atMillis
	s.conns[id] = c
	return nil
}

// UpdateTargetLanguage implements [ConnectionStore].
func (s *MemoryConnectionStore) UpdateTargetLanguage(_ context.Context, id, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[id]
	if !ok {
		return ErrNotFound
	}
	c.TargetLanguage = &language
	s.conns[id] = c
	return nil
}

// ListenersByLanguage implements [ConnectionStore].
func (s *MemoryConnectionStore) ListenersByLanguage(_ context.Context, sessionID, language string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, c := range s.conns {
		if c.SessionID != sessionID || c.Role != RoleListener {
			continue
		}
		if c.TargetLanguage != nil && *c.TargetLanguage == language {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// UniqueTargetLanguages implements [ConnectionStore].
func (s *MemoryConnectionStore) UniqueTargetLanguages(_ context.Context, sessionID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	for _, c := range s.conns {
		if c.SessionID != sessionID || c.Role != RoleListener || c.TargetLanguage == nil {
			continue
		}
		seen[*c.TargetLanguage] = true
	}
	langs := make([]string, 0, len(seen))
	for lang := range seen {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs, nil
}

// ScanConnections implements [ConnectionStore]. Pages are ordered by
// connection ID; the cursor is the last ID of the previous page.
func (s *MemoryConnectionStore) ScanConnections(_ context.Context, pageSize int, cursor string) ([]Connection, string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	s.mu.Lock()
	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	page := make([]Connection, 0, pageSize)
	next := ""
	for _, id := range ids {
		if cursor != "" && id <= cursor {
			continue
		}
		if len(page) == pageSize {
			next = page[len(page)-1].ID
			break
		}
		page = append(page, s.conns[id])
	}
	s.mu.Unlock()

	return page, next, nil
}

// BatchDelete implements [ConnectionStore]. The in-memory store cannot
// partially fail, so the failed list is always empty.
func (s *MemoryConnectionStore) BatchDelete(_ context.Context, ids []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.conns, id)
	}
	return nil, nil
}

// Ensure MemoryConnectionStore implements ConnectionStore at compile time.
var _ ConnectionStore = (*MemoryConnectionStore)(nil)
