// Package mock provides a test double for the transport.Pusher interface.
//
// Use Pusher to script per-connection errors (gone, throttled) and to
// inspect what was sent where:
//
//	p := &mock.Pusher{ErrFor: map[string]error{"conn-2": transport.ErrGone}}
//	_ = p.Send(ctx, "conn-1", []byte("audio"))
package mock

import (
	"context"
	"sync"

	"github.com/lingocast/lingocast/pkg/transport"
)

// SendCall records a single invocation of Send.
type SendCall struct {
	// ConnectionID is the target connection.
	ConnectionID string
	// Payload is a copy of the bytes passed to Send.
	Payload []byte
}

// Pusher is a mock implementation of transport.Pusher.
type Pusher struct {
	mu sync.Mutex

	// Err, if non-nil, is returned from every Send call.
	Err error

	// ErrFor maps connection IDs to errors returned for them.
	ErrFor map[string]error

	// FailFirst makes the first FailFirst sends per connection return
	// FailFirstErr before succeeding. Use it to exercise retry paths.
	FailFirst    int
	FailFirstErr error
	failures     map[string]int

	// Calls records every Send invocation in order.
	Calls []SendCall

	// CloseErr, if non-nil, is returned from every Close call.
	CloseErr error

	// CloseCalls records every Close invocation in order.
	CloseCalls []CloseCall
}

// CloseCall records a single invocation of Close.
type CloseCall struct {
	// ConnectionID is the closed connection.
	ConnectionID string
	// Reason is the close reason passed to Close.
	Reason string
}

// Send records the call and returns the configured error, if any.
func (p *Pusher) Send(_ context.Context, connectionID string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := make([]byte, len(payload))
	copy(c, payload)
	p.Calls = append(p.Calls, SendCall{ConnectionID: connectionID, Payload: c})

	if p.Err != nil {
		return p.Err
	}
	if err, ok := p.ErrFor[connectionID]; ok && err != nil {
		return err
	}
	if p.FailFirst > 0 && p.FailFirstErr != nil {
		if p.failures == nil {
			p.failures = make(map[string]int)
		}
		if p.failures[connectionID] < p.FailFirst {
			p.failures[connectionID]++
			return p.FailFirstErr
		}
	}
	return nil
}

// Close records the call and returns the configured error, if any.
func (p *Pusher) Close(_ context.Context, connectionID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCalls = append(p.CloseCalls, CloseCall{ConnectionID: connectionID, Reason: reason})
	return p.CloseErr
}

// ClosedIDs returns the connection IDs closed so far, in order. Thread-safe.
func (p *Pusher) ClosedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.CloseCalls))
	for _, c := range p.CloseCalls {
		ids = append(ids, c.ConnectionID)
	}
	return ids
}

// SendsTo returns how many sends targeted connectionID. Thread-safe.
func (p *Pusher) SendsTo(connectionID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.Calls {
		if c.ConnectionID == connectionID {
			n++
		}
	}
	return n
}

// CallCount returns the total number of Send invocations. Thread-safe.
func (p *Pusher) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls and failure counters. Thread-safe.
func (p *Pusher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
	p.CloseCalls = nil
	p.failures = nil
}

// Ensure Pusher implements the full transport surface at compile time.
var _ transport.Conn = (*Pusher)(nil)
