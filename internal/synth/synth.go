// Package synth implements the synthesis stage of the pipeline: a parallel
// fan-out that renders per-language prosody markup into audio, bounded by a
// concurrency limit with per-call retries.
package synth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/lingocast/lingocast/internal/observe"
	"github.com/lingocast/lingocast/internal/resilience"
	"github.com/lingocast/lingocast/pkg/provider/tts"
)

const (
	// defaultMaxConcurrency bounds simultaneous synthesis calls.
	defaultMaxConcurrency = 5

	// defaultDeadline bounds one whole fan-out batch.
	defaultDeadline = 10 * time.Second
)

// SynthesizerConfig holds the tuning knobs for a [Synthesizer]. Zero values
// are replaced with defaults.
type SynthesizerConfig struct {
	// MaxConcurrency caps simultaneous backend calls. Default: 5.
	MaxConcurrency int

	// Deadline bounds one SynthesizeToLanguages batch. Default: 10s.
	Deadline time.Duration

	// Retry configures the per-call retry. Defaults: 3 attempts, 100ms
	// base delay, 2s cap, 10% jitter.
	Retry resilience.RetryConfig

	// DefaultVoice is used for languages without an entry in the voice
	// map. A zero DefaultVoice makes such languages fail.
	DefaultVoice tts.Voice
}

// Synthesizer fans per-language markup out to the TTS backend. Languages
// fail independently: a failed or timed-out synthesis is omitted from the
// result while its peers complete.
type Synthesizer struct {
	cfg     SynthesizerConfig
	backend tts.Backend
	voices  map[string]tts.Voice
	sem     *semaphore.Weighted
	metrics *observe.Metrics
}

// NewSynthesizer creates a [Synthesizer] over backend. voices maps each
// target language to its synthesis voice.
func NewSynthesizer(cfg SynthesizerConfig, backend tts.Backend, voices map[string]tts.Voice) *Synthesizer {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaultDeadline
	}
	return &Synthesizer{
		cfg:     cfg,
		backend: backend,
		voices:  voices,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		metrics: observe.DefaultMetrics(),
	}
}

// SynthesizeToLanguages renders markup into audio for every target that has
// markup. The result maps language to encoded audio bytes; failed languages
// are omitted.
func (s *Synthesizer) SynthesizeToLanguages(ctx context.Context, markupByLanguage map[string]string, targets []string) map[string][]byte {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Deadline)
	defer cancel()

	audio := make(map[string][]byte, len(targets))
	var mu sync.Mutex

	var eg errgroup.Group
	for _, lang := range targets {
		markup, ok := markupByLanguage[lang]
		if !ok || markup == "" {
			continue
		}

		eg.Go(func() error {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer s.sem.Release(1)

			bytes, err := s.synthesizeOne(ctx, markup, lang)
			if err != nil {
				slog.Warn("synthesis failed",
					"backend", s.backend.Name(), "language", lang, "err", err)
				s.metrics.RecordProviderError(ctx, s.backend.Name(), "tts")
				return nil
			}

			mu.Lock()
			audio[lang] = bytes
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	return audio
}

// synthesizeOne runs a single synthesis with retries. Backend errors are
// treated as transient; context cancellation and missing voices are not.
func (s *Synthesizer) synthesizeOne(ctx context.Context, markup, lang string) ([]byte, error) {
	voice, ok := s.voices[lang]
	if !ok {
		voice = s.cfg.DefaultVoice
	}
	if voice.ID == "" {
		return nil, errors.New("synth: no voice configured for language " + lang)
	}
	if voice.Language == "" {
		voice.Language = lang
	}

	return resilience.RetryWithResult(ctx, s.cfg.Retry, func(ctx context.Context) ([]byte, error) {
		bytes, err := s.backend.Synthesize(ctx, markup, voice)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, resilience.Retryable(err)
		}
		return bytes, nil
	})
}
