// Package mock provides a test double for the asr.Provider interface.
//
// Use Provider to script a sequence of recognition results and to verify the
// audio chunks a consumer sends:
//
//	p := &mock.Provider{
//	    ScriptedResults: []asr.Result{{ID: "r1", Text: "hello", IsFinal: true}},
//	}
//	h, _ := p.StartStream(ctx, asr.StreamConfig{})
//	for r := range h.Results() { ... }
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/lingocast/lingocast/pkg/provider/asr"
)

// StartStreamCall records a single invocation of StartStream.
type StartStreamCall struct {
	// Cfg is the StreamConfig passed to StartStream.
	Cfg asr.StreamConfig
}

// Provider is a mock implementation of asr.Provider.
type Provider struct {
	mu sync.Mutex

	// ScriptedResults is emitted on each session's Results channel, in
	// order, then the channel stays open until Close.
	ScriptedResults []asr.Result

	// StartErr, if non-nil, is returned from StartStream.
	StartErr error

	// StartStreamCalls records every StartStream invocation in order.
	StartStreamCalls []StartStreamCall

	// Sessions records every session handed out, for audio inspection.
	Sessions []*Session
}

// StartStream records the call and returns a scripted [Session].
func (p *Provider) StartStream(_ context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Cfg: cfg})
	if p.StartErr != nil {
		return nil, p.StartErr
	}

	s := &Session{results: make(chan asr.Result, len(p.ScriptedResults)+1)}
	for _, r := range p.ScriptedResults {
		s.results <- r
	}
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// Session is the mock asr.SessionHandle handed out by [Provider].
type Session struct {
	mu      sync.Mutex
	results chan asr.Result
	closed  bool

	// Audio records every chunk passed to SendAudio.
	Audio [][]byte
}

// SendAudio records the chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session is closed")
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)
	s.Audio = append(s.Audio, c)
	return nil
}

// Emit pushes an additional result onto the Results channel mid-test.
func (s *Session) Emit(r asr.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.results <- r
	}
}

// Results returns the scripted result stream.
func (s *Session) Results() <-chan asr.Result { return s.results }

// Close closes the Results channel. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.results)
	}
	return nil
}

// Ensure the mocks implement their interfaces at compile time.
var (
	_ asr.Provider      = (*Provider)(nil)
	_ asr.SessionHandle = (*Session)(nil)
)
