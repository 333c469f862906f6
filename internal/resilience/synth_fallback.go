package resilience

import (
	"context"

	"github.com/lingocast/lingocast/pkg/provider/tts"
)

// SynthFallback implements [tts.Backend] with automatic failover across
// multiple synthesis backends. Each backend has its own circuit breaker,
// and serving from a fallback marks the primary degraded.
type SynthFallback struct {
	group *FallbackGroup[tts.Backend]
	name  string
}

// Compile-time interface assertion.
var _ tts.Backend = (*SynthFallback)(nil)

// NewSynthFallback creates a [SynthFallback] with primary as the preferred
// backend.
func NewSynthFallback(primary tts.Backend, cfg FallbackConfig) *SynthFallback {
	return &SynthFallback{
		group: NewFallbackGroup(primary, primary.Name(), cfg),
		name:  primary.Name(),
	}
}

// AddFallback registers an additional synthesis backend as a fallback.
func (f *SynthFallback) AddFallback(backend tts.Backend) {
	f.group.AddFallback(backend.Name(), backend)
}

// Synthesize renders the markup using the first healthy backend.
func (f *SynthFallback) Synthesize(ctx context.Context, markup string, voice tts.Voice) ([]byte, error) {
	return ExecuteWithResult(f.group, func(b tts.Backend) ([]byte, error) {
		return b.Synthesize(ctx, markup, voice)
	})
}

// Name identifies the group by its primary backend.
func (f *SynthFallback) Name() string { return f.name }
