package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/lingocast/lingocast/pkg/transport/ws"
)

const (
	// maxMessageBytes bounds one inbound frame. Audio chunks arrive
	// base64-encoded, so this allows roughly 750 KB of raw PCM.
	maxMessageBytes = 1 << 20

	// disconnectTimeout bounds the store cleanup after a socket closes.
	disconnectTimeout = 5 * time.Second
)

// Server accepts WebSocket connections, registers them with the push
// registry, and feeds their messages to the [Router].
type Server struct {
	registry *ws.Registry
	router   *Router

	// acceptOptions is passed to every websocket.Accept call.
	acceptOptions *websocket.AcceptOptions

	newID func() string
}

// ServerOption is a functional option for [NewServer].
type ServerOption func(*Server)

// WithAcceptOptions overrides the WebSocket accept options, e.g. to allow
// cross-origin browser clients.
func WithAcceptOptions(opts *websocket.AcceptOptions) ServerOption {
	return func(s *Server) { s.acceptOptions = opts }
}

// NewServer creates a Server over the registry and router.
func NewServer(registry *ws.Registry, router *Router, opts ...ServerOption) *Server {
	s := &Server{
		registry: registry,
		router:   router,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ServeHTTP upgrades the request to a WebSocket and runs its read loop
// until the peer disconnects or the request context ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, s.acceptOptions)
	if err != nil {
		slog.Warn("websocket accept failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	connectionID := s.newID()
	s.registry.Register(connectionID, conn)
	s.router.RegisterPeer(connectionID, r.RemoteAddr)
	slog.Debug("connection accepted", "connection_id", connectionID, "remote_addr", r.RemoteAddr)

	defer func() {
		s.registry.Unregister(connectionID)
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := s.router.Disconnect(ctx, connectionID); err != nil {
			slog.Warn("disconnect cleanup failed", "connection_id", connectionID, "err", err)
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
		slog.Debug("connection closed", "connection_id", connectionID)
	}()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		s.router.HandleMessage(ctx, connectionID, data)
	}
}
