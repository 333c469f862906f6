// Package pipeline glues the per-transcript stages together: translation
// fan-out, prosody markup, synthesis, and listener broadcast. One
// ProcessTranscript call handles one forwarded transcript end to end and
// never raises to the transport; failures come back in the structured
// result.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lingocast/lingocast/internal/broadcast"
	"github.com/lingocast/lingocast/internal/observe"
	"github.com/lingocast/lingocast/internal/prosody"
	"github.com/lingocast/lingocast/internal/result"
	"github.com/lingocast/lingocast/internal/store"
	"github.com/lingocast/lingocast/internal/translate"
)

// Translator is the translation fan-out stage.
type Translator interface {
	TranslateToLanguages(ctx context.Context, source, text string, targets []string) (map[string]string, translate.BatchStats)
}

// Synthesizer is the markup-to-audio fan-out stage.
type Synthesizer interface {
	SynthesizeToLanguages(ctx context.Context, markupByLanguage map[string]string, targets []string) map[string][]byte
}

// Broadcaster is the per-language listener fan-out stage.
type Broadcaster interface {
	BroadcastToLanguage(ctx context.Context, sessionID, language string, audio []byte) broadcast.Result
}

// Result is the aggregate outcome of one transcript run.
type Result struct {
	// Success is false when every translation or every synthesis failed.
	// A zero-listener short-circuit is a success.
	Success bool

	// LanguagesProcessed lists the targets that made it to broadcast,
	// sorted.
	LanguagesProcessed []string

	// LanguagesFailed lists the targets that fell out of the run at any
	// stage, sorted.
	LanguagesFailed []string

	// BroadcastSuccessRate is sends delivered over sends attempted,
	// across all languages. Stale listeners removed during the fan-out
	// count as neither.
	BroadcastSuccessRate float64

	// CacheHitRate is the translation cache hit rate for this run.
	CacheHitRate float64

	// StaleRemoved counts gone listener connections reaped during
	// broadcast.
	StaleRemoved int

	// Duration is the wall time of the whole run.
	Duration time.Duration
}

// Orchestrator runs forwarded transcripts through the full pipeline.
type Orchestrator struct {
	sessions    store.SessionStore
	conns       store.ConnectionStore
	translator  Translator
	synthesizer Synthesizer
	broadcaster Broadcaster
	metrics     *observe.Metrics

	now func() time.Time
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(sessions store.SessionStore, conns store.ConnectionStore, translator Translator, synthesizer Synthesizer, broadcaster Broadcaster) *Orchestrator {
	return &Orchestrator{
		sessions:    sessions,
		conns:       conns,
		translator:  translator,
		synthesizer: synthesizer,
		broadcaster: broadcaster,
		metrics:     observe.DefaultMetrics(),
		now:         time.Now,
	}
}

// ProcessTranscript pushes one transcript through translate, markup,
// synthesize, and broadcast. With no listeners or no target languages the
// run short-circuits as a success without touching any stage.
func (o *Orchestrator) ProcessTranscript(ctx context.Context, sessionID, source, text string, dynamics prosody.Dynamics) Result {
	start := o.now()
	result := Result{Success: true}
	defer func() {
		o.metrics.PipelineDuration.Record(ctx, o.now().Sub(start).Seconds())
	}()

	sess, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("session lookup failed", "session_id", sessionID, "err", err)
		}
		result.Success = false
		result.Duration = o.now().Sub(start)
		return result
	}
	if sess.ListenerCount == 0 {
		result.Duration = o.now().Sub(start)
		return result
	}

	targets, err := o.conns.UniqueTargetLanguages(ctx, sessionID)
	if err != nil {
		slog.Error("target language lookup failed", "session_id", sessionID, "err", err)
		result.Success = false
		result.Duration = o.now().Sub(start)
		return result
	}
	if len(targets) == 0 {
		result.Duration = o.now().Sub(start)
		return result
	}

	translateStart := o.now()
	translations, stats := o.translator.TranslateToLanguages(ctx, source, text, targets)
	o.metrics.TranslateDuration.Record(ctx, o.now().Sub(translateStart).Seconds())
	o.metrics.RecordCacheBatch(ctx, stats.CacheHits, stats.CacheMisses)
	result.CacheHitRate = stats.HitRate()
	if len(translations) == 0 {
		slog.Warn("all translations failed",
			"session_id", sessionID, "source", source, "targets", targets)
		result.Success = false
		result.LanguagesFailed = sorted(targets)
		result.Duration = o.now().Sub(start)
		return result
	}

	markup := make(map[string]string, len(translations))
	translated := make([]string, 0, len(translations))
	for lang, t := range translations {
		markup[lang] = prosody.Generate(t, dynamics)
		translated = append(translated, lang)
	}

	synthStart := o.now()
	audio := o.synthesizer.SynthesizeToLanguages(ctx, markup, translated)
	o.metrics.SynthDuration.Record(ctx, o.now().Sub(synthStart).Seconds())
	if len(audio) == 0 {
		slog.Warn("all synthesis failed", "session_id", sessionID, "languages", translated)
		result.Success = false
		result.LanguagesFailed = sorted(targets)
		result.Duration = o.now().Sub(start)
		return result
	}

	var (
		mu        sync.Mutex
		processed []string
		sent      int
		attempted int
	)
	var eg errgroup.Group
	for lang, bytes := range audio {
		eg.Go(func() error {
			br := o.broadcaster.BroadcastToLanguage(ctx, sessionID, lang, bytes)

			mu.Lock()
			defer mu.Unlock()
			processed = append(processed, lang)
			sent += br.SuccessCount
			attempted += br.SuccessCount + br.FailureCount
			result.StaleRemoved += br.StaleRemoved
			return nil
		})
	}
	_ = eg.Wait()

	result.LanguagesProcessed = sorted(processed)
	result.LanguagesFailed = difference(targets, processed)
	if attempted > 0 {
		result.BroadcastSuccessRate = float64(sent) / float64(attempted)
	}
	result.Duration = o.now().Sub(start)
	return result
}

// Forward implements the processor sink over the orchestrator. Forwarded
// transcripts carry no delivery-dynamics analysis yet, so synthesis runs
// with neutral prosody. Pipeline failures are absorbed here; the transport
// never sees them.
func (o *Orchestrator) Forward(ctx context.Context, t result.Transcript) error {
	res := o.ProcessTranscript(ctx, t.SessionID, t.SourceLanguage, t.Text, prosody.Dynamics{
		Emotion:     "neutral",
		RateWpm:     150,
		VolumeLevel: prosody.VolumeNormal,
	})
	if !res.Success {
		slog.Warn("transcript run failed",
			"session_id", t.SessionID, "failed_languages", res.LanguagesFailed)
	}
	return nil
}

var _ result.Sink = (*Orchestrator)(nil)

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// difference returns all − some, sorted.
func difference(all, some []string) []string {
	have := make(map[string]bool, len(some))
	for _, s := range some {
		have[s] = true
	}
	var out []string
	for _, s := range all {
		if !have[s] {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
