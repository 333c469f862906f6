package resilience

import (
	"context"

	mt "github.com/lingocast/lingocast/pkg/provider/translate"
)

// TranslateFallback implements [mt.Backend] with automatic failover across
// multiple translation backends. Each backend has its own circuit breaker,
// and serving from a fallback marks the primary degraded.
type TranslateFallback struct {
	group *FallbackGroup[mt.Backend]
	name  string
}

// Compile-time interface assertion.
var _ mt.Backend = (*TranslateFallback)(nil)

// NewTranslateFallback creates a [TranslateFallback] with primary as the
// preferred backend.
func NewTranslateFallback(primary mt.Backend, cfg FallbackConfig) *TranslateFallback {
	return &TranslateFallback{
		group: NewFallbackGroup(primary, primary.Name(), cfg),
		name:  primary.Name(),
	}
}

// AddFallback registers an additional translation backend as a fallback.
func (f *TranslateFallback) AddFallback(backend mt.Backend) {
	f.group.AddFallback(backend.Name(), backend)
}

// Translate runs the translation against the first healthy backend.
func (f *TranslateFallback) Translate(ctx context.Context, source, target, text string) (string, error) {
	return ExecuteWithResult(f.group, func(b mt.Backend) (string, error) {
		return b.Translate(ctx, source, target, text)
	})
}

// Name identifies the group by its primary backend.
func (f *TranslateFallback) Name() string { return f.name }
