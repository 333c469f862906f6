// Package tts defines the Backend interface for speech synthesis services.
//
// A TTS backend wraps a synthesis service (e.g., ElevenLabs or a local
// engine) behind a single call that turns prosody markup into encoded audio
// bytes. The pipeline issues one call per target language in parallel, so
// implementations must be safe for concurrent use.
package tts

import "context"

// Voice selects the synthesis voice for one call.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Language is the ISO-639-1 language this voice speaks.
	Language string

	// Name is the human-readable voice name, for logs.
	Name string
}

// Backend is the abstraction over any TTS service.
type Backend interface {
	// Synthesize renders SSML markup into encoded audio bytes using the
	// given voice. Implementations must honour ctx cancellation and
	// deadlines; the caller wraps every call in a retry and bounds it
	// with the orchestrator deadline.
	Synthesize(ctx context.Context, markup string, voice Voice) ([]byte, error)

	// Name identifies the backend in logs and degradation reports.
	Name() string
}
