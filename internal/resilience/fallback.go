package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or
// has an open circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the per-entry breaker configuration; each entry
	// gets its own breaker named after the entry.
	CircuitBreaker CircuitBreakerConfig

	// Degrade, when non-nil, is notified whenever a non-primary entry
	// serves a call (the primary is marked degraded) and whenever the
	// primary serves again (the mark is cleared).
	Degrade *DegradationManager
}

// fallbackEntry pairs a provider value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the
// same provider type. When the primary fails or its breaker is open, the
// next healthy fallback is tried in registration order. Serving from a
// fallback marks the primary degraded in the configured
// [DegradationManager].
//
// FallbackGroup is safe for concurrent use after all entries are added.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first
// entry. Additional fallbacks are registered via
// [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	cbCfg := cfg.CircuitBreaker
	cbCfg.Name = primaryName
	return &FallbackGroup[T]{
		entries: []fallbackEntry[T]{{
			name:    primaryName,
			value:   primary,
			breaker: NewCircuitBreaker(cbCfg),
		}},
		cfg: cfg,
	}
}

// AddFallback appends a fallback provider. Fallbacks are tried in the order
// they are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Execute tries fn against each entry in order until one succeeds. Entries
// with an open breaker are skipped. Returns [ErrAllFailed] wrapped with the
// last error if every entry fails.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry in the group until one
// succeeds, returning its result. This is a package-level function because
// Go does not support method-level type parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			fg.recordServed(i)
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider (circuit open)", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// recordServed updates the degradation registry after entry i served a call.
func (fg *FallbackGroup[T]) recordServed(i int) {
	if fg.cfg.Degrade == nil {
		return
	}
	primary := fg.entries[0].name
	if i == 0 {
		fg.cfg.Degrade.ClearDegraded(primary)
		return
	}
	fg.cfg.Degrade.MarkDegraded(primary,
		fmt.Sprintf("serving from fallback %q", fg.entries[i].name))
}

// WithFallbackValue runs fn and swallows its error, returning fallback
// instead and marking service degraded. A nil error clears the mark.
func WithFallbackValue[R any](m *DegradationManager, service string, fallback R, fn func() (R, error)) R {
	result, err := fn()
	if err != nil {
		if m != nil {
			m.MarkDegraded(service, err.Error())
		}
		slog.Warn("falling back to static value", "service", service, "error", err)
		return fallback
	}
	if m != nil {
		m.ClearDegraded(service)
	}
	return result
}
