package translate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lingocast/lingocast/internal/observe"
	mt "github.com/lingocast/lingocast/pkg/provider/translate"
)

// defaultTargetTimeout bounds every per-target backend call.
const defaultTargetTimeout = 2 * time.Second

// BatchStats summarises one fan-out batch.
type BatchStats struct {
	// CacheHits counts targets served from the cache.
	CacheHits int

	// CacheMisses counts targets that went to the backend.
	CacheMisses int

	// Failed counts targets whose translation errored or timed out.
	Failed int
}

// HitRate returns the batch cache hit rate, or 0 for an empty batch.
func (s BatchStats) HitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// TranslatorConfig holds the tuning knobs for a [Translator]. Zero values
// are replaced with defaults.
type TranslatorConfig struct {
	// TargetTimeout bounds each per-target translation. Default: 2s.
	TargetTimeout time.Duration
}

// Translator fans one text out to a set of target languages, consulting the
// cache before the backend. Targets fail independently: an error or timeout
// on one never cancels the others, and failed targets are simply absent from
// the result map.
type Translator struct {
	backend mt.Backend
	cache   CacheStore
	timeout time.Duration
	metrics *observe.Metrics
}

// NewTranslator creates a [Translator] over backend and cache.
func NewTranslator(cfg TranslatorConfig, backend mt.Backend, cache CacheStore) *Translator {
	if cfg.TargetTimeout <= 0 {
		cfg.TargetTimeout = defaultTargetTimeout
	}
	return &Translator{
		backend: backend,
		cache:   cache,
		timeout: cfg.TargetTimeout,
		metrics: observe.DefaultMetrics(),
	}
}

// TranslateToLanguages translates text into every target language in
// parallel. The result maps target language to translation; targets that
// failed are omitted. A target equal to the source language maps to the
// text unchanged without touching the cache or backend.
func (t *Translator) TranslateToLanguages(ctx context.Context, source, text string, targets []string) (map[string]string, BatchStats) {
	results := make(map[string]string, len(targets))
	var (
		mu    sync.Mutex
		stats BatchStats
	)

	var eg errgroup.Group
	seen := make(map[string]bool, len(targets))
	for _, target := range targets {
		if target == "" || seen[target] {
			continue
		}
		seen[target] = true

		if target == source {
			results[target] = text
			continue
		}

		eg.Go(func() error {
			translation, hit, err := t.translateOne(ctx, source, target, text)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.CacheMisses++
				stats.Failed++
			case hit:
				stats.CacheHits++
				results[target] = translation
			default:
				stats.CacheMisses++
				results[target] = translation
			}
			return nil
		})
	}
	_ = eg.Wait()

	return results, stats
}

// translateOne serves a single target: cache first, backend on miss, with
// the per-target timeout applied around the whole attempt.
func (t *Translator) translateOne(ctx context.Context, source, target, text string) (translation string, hit bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cached, ok, err := t.cache.Get(ctx, source, target, text)
	if err != nil {
		// A broken cache degrades to a straight backend call.
		slog.Warn("translation cache lookup failed",
			"source", source, "target", target, "err", err)
	} else if ok {
		return cached, true, nil
	}

	translation, err = t.backend.Translate(ctx, source, target, text)
	if err != nil {
		slog.Warn("translation failed",
			"backend", t.backend.Name(), "source", source, "target", target, "err", err)
		t.metrics.RecordProviderError(ctx, t.backend.Name(), "translate")
		return "", false, err
	}

	if err := t.cache.Put(ctx, source, target, text, translation); err != nil {
		slog.Warn("translation cache store failed",
			"source", source, "target", target, "err", err)
	}
	return translation, false, nil
}
