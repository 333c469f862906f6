// Package translate defines the Backend interface for machine-translation
// services.
//
// A translation backend wraps an external MT service (e.g., LibreTranslate,
// DeepL, or a self-hosted NMT model) behind a single synchronous call. The
// pipeline fans out one call per target language, so implementations must be
// safe for concurrent use.
package translate

import "context"

// Backend is the abstraction over any machine-translation service.
//
// Implementations must be safe for concurrent use; the pipeline issues one
// Translate call per target language in parallel.
type Backend interface {
	// Translate converts text from the source language into the target
	// language. Languages are ISO-639-1 codes. The returned string is the
	// translated text only, with no markup added.
	//
	// Implementations must honour ctx cancellation and deadlines; the
	// caller bounds every call with a per-target timeout.
	Translate(ctx context.Context, source, target, text string) (string, error)

	// Name identifies the backend in logs and degradation reports.
	Name() string
}
