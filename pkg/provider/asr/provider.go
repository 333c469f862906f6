// Package asr defines the Provider interface for streaming speech
// recognition backends.
//
// An ASR provider wraps a real-time transcription service (e.g., Deepgram or
// a self-hosted recognizer) behind a session abstraction: once opened, a
// session accepts raw PCM audio frames and emits a single ordered stream of
// [Result] values, interleaving low-latency partial hypotheses with
// authoritative finals.
//
// Implementations must be safe for concurrent use; multiple sessions may be
// open simultaneously (one per speaker).
package asr

import "context"

// Result is one recognition event from a session.
type Result struct {
	// ID identifies the logical utterance. Successive partials for the
	// same utterance carry the same ID, as does the final that commits it.
	ID string

	// Text is the recognized text so far.
	Text string

	// IsFinal marks an authoritative result; the ID will not be updated
	// again afterwards.
	IsFinal bool

	// Stability is the provider's estimate in [0, 1] of how unlikely the
	// text is to change, when the provider reports one. Nil means the
	// provider gave no estimate, which is not the same as zero.
	Stability *float64

	// Timestamp is the capture time in Unix milliseconds.
	Timestamp int64

	// Replaces lists utterance IDs this final supersedes, for providers
	// that re-segment across utterance boundaries. Usually empty.
	Replaces []string
}

// StreamConfig describes the audio format and recognition options for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (default 16000).
	SampleRate int

	// Channels is the number of audio channels; 1 = mono.
	Channels int

	// Language is the ISO-639-1 source language (e.g., "en"). Empty lets
	// the provider auto-detect, if supported.
	Language string

	// InterimResults enables partial hypotheses. When false the session
	// emits only finals.
	InterimResults bool
}

// SessionHandle represents an open recognition session. Callers must call
// Close when done; failing to do so leaks the provider's goroutines and
// network connection. All methods are safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio for transcription. The
	// chunk must match the format agreed in StreamConfig. Calling
	// SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Results returns the ordered stream of recognition events. The
	// channel is closed when the session ends.
	Results() <-chan Result

	// Close flushes pending audio, terminates the session, and closes the
	// Results channel. Calling Close more than once is safe.
	Close() error
}

// Provider is the abstraction over any streaming ASR backend.
type Provider interface {
	// StartStream opens a recognition session ready to accept audio.
	// The caller owns the returned handle and must Close it.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
