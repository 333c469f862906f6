// Package transport abstracts pushing payloads to connected clients.
//
// The pipeline's broadcast stage only needs to send bytes to a connection ID
// and distinguish two failure classes: the connection is gone for good, or
// the transport is momentarily throttled. Everything else is an ordinary
// error.
package transport

import (
	"context"
	"errors"
)

// ErrGone signals that the connection no longer exists. Senders should
// remove it from their records and not retry.
var ErrGone = errors.New("transport: connection gone")

// ErrThrottled signals a transient rate limit. Senders may retry after a
// backoff.
var ErrThrottled = errors.New("transport: rate limit exceeded")

// Pusher delivers a payload to one connection.
//
// Implementations must be safe for concurrent use; the broadcast stage
// fans out over many connections at once.
type Pusher interface {
	// Send delivers payload to the connection. It returns [ErrGone] when
	// the connection is permanently unavailable and [ErrThrottled] when
	// the send should be retried after a backoff.
	Send(ctx context.Context, connectionID string, payload []byte) error
}

// Closer terminates connections. The idle sweeper uses it to drop peers
// that stopped sending heartbeats.
type Closer interface {
	// Close terminates the connection, passing reason to the peer when the
	// underlying protocol supports it. Closing an unknown connection is
	// not an error.
	Close(ctx context.Context, connectionID, reason string) error
}

// Conn combines the push and close capabilities of one transport.
type Conn interface {
	Pusher
	Closer
}

// PusherFunc adapts a function to the [Pusher] interface.
type PusherFunc func(ctx context.Context, connectionID string, payload []byte) error

// Send calls f.
func (f PusherFunc) Send(ctx context.Context, connectionID string, payload []byte) error {
	return f(ctx, connectionID, payload)
}
