// Package mock provides a test double for the translate.Backend interface.
//
// Use Backend to serve canned translations and to verify which language pairs
// were requested:
//
//	b := &mock.Backend{
//	    Translations: map[string]string{"es": "hola", "fr": "bonjour"},
//	}
//	out, _ := b.Translate(ctx, "en", "es", "hello")
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/lingocast/lingocast/pkg/provider/translate"
)

// TranslateCall records a single invocation of Translate.
type TranslateCall struct {
	// Source is the source language code passed to Translate.
	Source string
	// Target is the target language code passed to Translate.
	Target string
	// Text is the text passed to Translate.
	Text string
}

// Backend is a mock implementation of translate.Backend.
type Backend struct {
	mu sync.Mutex

	// Translations maps a target language to the translation returned for
	// it. Targets not present fall back to "text [target]".
	Translations map[string]string

	// Err, if non-nil, is returned from every Translate call.
	Err error

	// ErrFor, if non-nil, maps target languages to per-target errors. It
	// takes precedence over Translations but not over Err.
	ErrFor map[string]error

	// Delay, if non-zero, makes Translate block until the delay elapses or
	// ctx is cancelled. Use it to exercise per-target timeouts.
	Delay func(target string) <-chan struct{}

	// Calls records every Translate invocation in order.
	Calls []TranslateCall
}

// Translate records the call and returns the configured translation or error.
func (b *Backend) Translate(ctx context.Context, source, target, text string) (string, error) {
	b.mu.Lock()
	b.Calls = append(b.Calls, TranslateCall{Source: source, Target: target, Text: text})
	err := b.Err
	if err == nil && b.ErrFor != nil {
		err = b.ErrFor[target]
	}
	out, ok := b.Translations[target]
	delay := b.Delay
	b.mu.Unlock()

	if delay != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-delay(target):
		}
	}
	if err != nil {
		return "", err
	}
	if !ok {
		out = fmt.Sprintf("%s [%s]", text, target)
	}
	return out, nil
}

// Name identifies the mock in logs.
func (b *Backend) Name() string { return "mock" }

// CallCount returns the number of Translate invocations so far. Thread-safe.
func (b *Backend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = nil
}

// Ensure Backend implements translate.Backend at compile time.
var _ translate.Backend = (*Backend)(nil)
