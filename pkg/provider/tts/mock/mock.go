// Package mock provides a test double for the tts.Backend interface.
//
// Use Backend to serve canned audio and to verify the markup and voice each
// synthesis call received:
//
//	b := &mock.Backend{Audio: []byte("pcm")}
//	out, _ := b.Synthesize(ctx, "<speak>hi</speak>", tts.Voice{ID: "v1"})
package mock

import (
	"context"
	"sync"

	"github.com/lingocast/lingocast/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Markup is the SSML document passed to Synthesize.
	Markup string
	// Voice is the voice passed to Synthesize.
	Voice tts.Voice
}

// Backend is a mock implementation of tts.Backend.
type Backend struct {
	mu sync.Mutex

	// Audio is returned from every successful Synthesize call.
	Audio []byte

	// Err, if non-nil, is returned from every Synthesize call.
	Err error

	// ErrFor, if non-nil, maps voice languages to per-call errors. It
	// takes precedence over Audio but not over Err.
	ErrFor map[string]error

	// FailFirst makes the first FailFirst calls per language fail with a
	// transient error before succeeding. Use it to exercise retry
	// wrappers.
	FailFirst int
	failures  map[string]int

	// Calls records every Synthesize invocation in order.
	Calls []SynthesizeCall
}

// ErrTransient is the error emitted while FailFirst counts down.
var ErrTransient = &transientError{}

type transientError struct{}

func (*transientError) Error() string { return "mock: transient synthesis failure" }

// Synthesize records the call and returns the configured audio or error.
func (b *Backend) Synthesize(_ context.Context, markup string, voice tts.Voice) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Calls = append(b.Calls, SynthesizeCall{Markup: markup, Voice: voice})
	if b.Err != nil {
		return nil, b.Err
	}
	if err, ok := b.ErrFor[voice.Language]; ok && err != nil {
		return nil, err
	}
	if b.FailFirst > 0 {
		if b.failures == nil {
			b.failures = make(map[string]int)
		}
		if b.failures[voice.Language] < b.FailFirst {
			b.failures[voice.Language]++
			return nil, ErrTransient
		}
	}
	audio := make([]byte, len(b.Audio))
	copy(audio, b.Audio)
	return audio, nil
}

// Name identifies the mock in logs.
func (b *Backend) Name() string { return "mock" }

// CallCount returns the number of Synthesize invocations so far. Thread-safe.
func (b *Backend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Calls)
}

// Reset clears all recorded calls and failure counters. Thread-safe.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = nil
	b.failures = nil
}

// Ensure Backend implements tts.Backend at compile time.
var _ tts.Backend = (*Backend)(nil)
