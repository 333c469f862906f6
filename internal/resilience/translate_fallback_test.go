package resilience

import (
	"context"
	"errors"
	"testing"

	mtmock "github.com/lingocast/lingocast/pkg/provider/translate/mock"
)

func TestTranslateFallback_PrimaryServes(t *testing.T) {
	primary := &mtmock.Backend{Translations: map[string]string{"es": "hola"}}
	fallback := &mtmock.Backend{Translations: map[string]string{"es": "hola (backup)"}}

	tf := NewTranslateFallback(primary, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{FailureThreshold: 3},
	})
	tf.AddFallback(fallback)

	got, err := tf.Translate(context.Background(), "en", "es", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hola" {
		t.Fatalf("translation = %q, want the primary's", got)
	}
	if fallback.CallCount() != 0 {
		t.Fatal("fallback must not be called while the primary is healthy")
	}
	if tf.Name() != primary.Name() {
		t.Fatalf("name = %q, want the primary's", tf.Name())
	}
}

func TestTranslateFallback_FailoverMarksDegraded(t *testing.T) {
	primary := &mtmock.Backend{Err: errTest}
	fallback := &mtmock.Backend{Translations: map[string]string{"es": "hola"}}

	dm := NewDegradationManager()
	tf := NewTranslateFallback(primary, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{FailureThreshold: 3},
		Degrade:        dm,
	})
	tf.AddFallback(fallback)

	got, err := tf.Translate(context.Background(), "en", "es", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hola" {
		t.Fatalf("translation = %q, want the fallback's", got)
	}
	if !dm.IsDegraded(primary.Name()) {
		t.Fatal("primary must be marked degraded after the fallback served")
	}

	// Primary recovering clears the mark.
	primary.Err = nil
	if _, err := tf.Translate(context.Background(), "en", "es", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dm.IsDegraded(primary.Name()) {
		t.Fatal("degradation mark must clear once the primary serves again")
	}
}

func TestTranslateFallback_AllFail(t *testing.T) {
	primary := &mtmock.Backend{Err: errTest}
	tf := NewTranslateFallback(primary, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{FailureThreshold: 3},
	})

	_, err := tf.Translate(context.Background(), "en", "es", "hello")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
