// Package ws implements the transport.Pusher interface over WebSocket
// connections managed by this process.
//
// The server registers every accepted connection under its connection ID;
// the broadcast stage then pushes payloads by ID without knowing anything
// about sockets.
package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/lingocast/lingocast/pkg/transport"
)

// defaultWriteTimeout bounds a single frame write. A peer that cannot keep
// up within this budget is treated as throttled, not gone.
const defaultWriteTimeout = 5 * time.Second

// Option is a functional option for [NewRegistry].
type Option func(*Registry)

// WithWriteTimeout sets the per-send write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.writeTimeout = d
	}
}

// Registry tracks live WebSocket connections by connection ID and implements
// [transport.Pusher] over them. Safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	conns        map[string]*websocket.Conn
	writeTimeout time.Duration
}

// NewRegistry creates an empty connection registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		conns:        make(map[string]*websocket.Conn),
		writeTimeout: defaultWriteTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a live connection under id, replacing any previous one.
func (r *Registry) Register(id string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = conn
}

// Unregister removes id from the registry. The connection itself is not
// closed; that is the owner's job.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send implements [transport.Pusher]. Unknown connection IDs and closed
// sockets map to [transport.ErrGone]; a write that exceeds the write
// timeout maps to [transport.ErrThrottled].
func (r *Registry) Send(ctx context.Context, connectionID string, payload []byte) error {
	r.mu.RLock()
	conn, ok := r.conns[connectionID]
	r.mu.RUnlock()
	if !ok {
		return transport.ErrGone
	}

	writeCtx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		if writeCtx.Err() != nil && ctx.Err() == nil {
			// Our deadline fired, not the caller's: the peer is slow.
			return fmt.Errorf("%w: %v", transport.ErrThrottled, err)
		}
		if websocket.CloseStatus(err) != -1 {
			return fmt.Errorf("%w: %v", transport.ErrGone, err)
		}
		return fmt.Errorf("ws: write to %s: %w", connectionID, err)
	}
	return nil
}

// Close implements [transport.Closer]: it unregisters the connection and
// closes the socket with a normal-closure status carrying reason. Unknown
// IDs are a no-op.
func (r *Registry) Close(_ context.Context, connectionID, reason string) error {
	r.mu.Lock()
	conn, ok := r.conns[connectionID]
	delete(r.conns, connectionID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, reason)
}

// Ensure Registry implements the full transport surface at compile time.
var _ transport.Conn = (*Registry)(nil)
