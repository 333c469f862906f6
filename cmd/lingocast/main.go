// Command lingocast is the main entry point for the Lingocast translation
// relay server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lingocast/lingocast/internal/broadcast"
	"github.com/lingocast/lingocast/internal/config"
	"github.com/lingocast/lingocast/internal/health"
	"github.com/lingocast/lingocast/internal/observe"
	"github.com/lingocast/lingocast/internal/pipeline"
	"github.com/lingocast/lingocast/internal/resilience"
	"github.com/lingocast/lingocast/internal/server"
	"github.com/lingocast/lingocast/internal/session"
	"github.com/lingocast/lingocast/internal/store"
	"github.com/lingocast/lingocast/internal/store/postgres"
	"github.com/lingocast/lingocast/internal/synth"
	"github.com/lingocast/lingocast/internal/translate"
	"github.com/lingocast/lingocast/pkg/provider/asr"
	"github.com/lingocast/lingocast/pkg/provider/asr/deepgram"
	asrmock "github.com/lingocast/lingocast/pkg/provider/asr/mock"
	mt "github.com/lingocast/lingocast/pkg/provider/translate"
	"github.com/lingocast/lingocast/pkg/provider/translate/libretranslate"
	mtmock "github.com/lingocast/lingocast/pkg/provider/translate/mock"
	"github.com/lingocast/lingocast/pkg/provider/tts"
	"github.com/lingocast/lingocast/pkg/provider/tts/elevenlabs"
	ttsmock "github.com/lingocast/lingocast/pkg/provider/tts/mock"
	"github.com/lingocast/lingocast/pkg/transport/ws"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lingocast: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lingocast: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("lingocast starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "lingocast",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provs, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Stores ────────────────────────────────────────────────────────────────
	var (
		sessions store.SessionStore
		conns    store.ConnectionStore
		cache    translate.CacheStore
	)
	if dsn := cfg.Store.PostgresDSN; dsn != "" {
		pg, err := postgres.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect to PostgreSQL", "err", err)
			return 1
		}
		defer pg.Close()
		sessions, conns, cache = pg.Sessions(), pg.Connections(), pg.Cache()
		slog.Info("store backend", "kind", "postgres")
	} else {
		sessions = store.NewMemorySessionStore()
		conns = store.NewMemoryConnectionStore()
		cache = translate.NewMemoryCache(translate.MemoryCacheConfig{
			MaxEntries: cfg.Cache.MaxEntries,
			TTL:        seconds(cfg.Cache.TTLSeconds),
		})
		slog.Info("store backend", "kind", "memory")
	}

	// ── Transport and session machinery ───────────────────────────────────────
	registry := ws.NewRegistry()
	lifecycle := session.NewLifecycle(sessions, conns, registry)
	heartbeat := session.NewHeartbeat(session.HeartbeatConfig{
		RefreshAfter: time.Duration(cfg.Session.RefreshMinutes) * time.Minute,
		WarnAfter:    time.Duration(cfg.Session.WarningMinutes) * time.Minute,
		MaxAge:       time.Duration(cfg.Session.MaxDurationHours) * time.Hour,
	}, conns, registry)
	sweeper := session.NewSweeper(session.SweeperConfig{
		IdleTimeout: time.Duration(cfg.Session.IdleTimeoutSeconds) * time.Second,
	}, conns, registry, lifecycle)

	// ── Pipeline ──────────────────────────────────────────────────────────────
	voices := make(map[string]tts.Voice, len(cfg.Voices))
	targets := make(map[string]bool, len(cfg.Voices))
	for lang, vc := range cfg.Voices {
		voices[lang] = tts.Voice{ID: vc.VoiceID, Language: lang, Name: vc.Name}
		targets[lang] = true
	}

	// Translation degrades to the untranslated text rather than silence:
	// the configured backend sits behind a circuit breaker with an identity
	// backend as the terminal fallback. Synthesis gets the same breaker so
	// a failing voice service marks the system degraded.
	degrade := resilience.NewDegradationManager()
	mtBackend := resilience.NewTranslateFallback(provs.Translate, resilience.FallbackConfig{Degrade: degrade})
	mtBackend.AddFallback(identityBackend{})
	ttsBackend := resilience.NewSynthFallback(provs.TTS, resilience.FallbackConfig{Degrade: degrade})

	translator := translate.NewTranslator(translate.TranslatorConfig{}, mtBackend, cache)
	synthesizer := synth.NewSynthesizer(synth.SynthesizerConfig{}, ttsBackend, voices)
	broadcaster := broadcast.NewBroadcaster(broadcast.BroadcasterConfig{
		MaxConcurrent: cfg.Broadcast.MaxConcurrent,
	}, sessions, conns, registry)
	orchestrator := pipeline.NewOrchestrator(sessions, conns, translator, synthesizer, broadcaster)

	// ── Router and HTTP surface ───────────────────────────────────────────────
	router := server.NewRouter(server.RouterConfig{
		MaxListeners:     cfg.Session.MaxListeners,
		SessionTTL:       time.Duration(cfg.Session.MaxDurationHours) * time.Hour,
		PartialsEnabled:  cfg.Pipeline.PartialResultsEnabled == nil || *cfg.Pipeline.PartialResultsEnabled,
		MinStability:     cfg.Pipeline.MinStability,
		MaxBufferTimeout: seconds(cfg.Pipeline.MaxBufferTimeoutSeconds),
		PauseThreshold:   seconds(cfg.Pipeline.PauseThresholdSeconds),
		OrphanTimeout:    seconds(cfg.Pipeline.OrphanTimeoutSeconds),
		MaxRatePerSecond: cfg.Pipeline.MaxRatePerSecond,
		DedupTTL:         seconds(cfg.Pipeline.DedupCacheTTLSeconds),
		SupportedTargets: targets,
	}, sessions, conns, registry, lifecycle, heartbeat, provs.ASR, orchestrator)

	mux := http.NewServeMux()
	health.New(health.StoreChecker(sessions), health.DegradationChecker(degrade)).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", server.NewServer(registry, router))

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	// Reload requires a restart; the watcher only surfaces drift in the logs.
	watcher, err := config.NewWatcher(*configPath, func(_, _ *config.Config) {
		slog.Warn("configuration file changed on disk; restart to apply", "path", *configPath)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	// ── Serve ─────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		var err error
		if tlsCfg := cfg.Server.TLS; tlsCfg != nil {
			err = httpServer.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// providers bundles the three pipeline backends the server runs on.
type providers struct {
	ASR       asr.Provider
	Translate mt.Backend
	TTS       tts.Backend
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages. The "mock" providers run the full
// pipeline without external services, for local development.
func registerBuiltinProviders(reg *config.Registry) {
	// ── ASR ───────────────────────────────────────────────────────────────────

	reg.RegisterASR("deepgram", func(entry config.ProviderEntry) (asr.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, deepgram.WithSampleRate(rate))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterASR("mock", func(config.ProviderEntry) (asr.Provider, error) {
		return &asrmock.Provider{}, nil
	})

	// ── Translate ─────────────────────────────────────────────────────────────

	reg.RegisterTranslate("libretranslate", func(entry config.ProviderEntry) (mt.Backend, error) {
		var opts []libretranslate.Option
		if entry.APIKey != "" {
			opts = append(opts, libretranslate.WithAPIKey(entry.APIKey))
		}
		return libretranslate.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranslate("mock", func(config.ProviderEntry) (mt.Backend, error) {
		return &mtmock.Backend{}, nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Backend, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Backend, error) {
		return &ttsmock.Backend{}, nil
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg using the registry.
// All three pipeline stages are mandatory; an unconfigured stage falls back
// to its mock so a bare config still boots a working server.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providers, error) {
	ps := &providers{}

	asrEntry := cfg.Providers.ASR
	if asrEntry.Name == "" {
		slog.Warn("providers.asr not configured, using mock")
		asrEntry.Name = "mock"
	}
	p, err := reg.CreateASR(asrEntry)
	if err != nil {
		return nil, fmt.Errorf("create asr provider %q: %w", asrEntry.Name, err)
	}
	ps.ASR = p
	slog.Info("provider created", "kind", "asr", "name", asrEntry.Name)

	mtEntry := cfg.Providers.Translate
	if mtEntry.Name == "" {
		slog.Warn("providers.translate not configured, using mock")
		mtEntry.Name = "mock"
	}
	b, err := reg.CreateTranslate(mtEntry)
	if err != nil {
		return nil, fmt.Errorf("create translate provider %q: %w", mtEntry.Name, err)
	}
	ps.Translate = b
	slog.Info("provider created", "kind", "translate", "name", mtEntry.Name)

	ttsEntry := cfg.Providers.TTS
	if ttsEntry.Name == "" {
		slog.Warn("providers.tts not configured, using mock")
		ttsEntry.Name = "mock"
	}
	t, err := reg.CreateTTS(ttsEntry)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", ttsEntry.Name, err)
	}
	ps.TTS = t
	slog.Info("provider created", "kind", "tts", "name", ttsEntry.Name)

	return ps, nil
}

// identityBackend returns the source text unchanged. As the terminal
// translation fallback it lets listeners hear the original language when
// every real backend is down.
type identityBackend struct{}

func (identityBackend) Translate(_ context.Context, _, _, text string) (string, error) {
	return text, nil
}

func (identityBackend) Name() string { return "identity" }

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Lingocast — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("ASR", cfg.Providers.ASR.Name, cfg.Providers.ASR.Model)
	printProvider("Translate", cfg.Providers.Translate.Name, cfg.Providers.Translate.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	if cfg.Store.PostgresDSN != "" {
		fmt.Printf("║  Store           : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Store           : %-19s ║\n", "memory")
	}
	fmt.Printf("║  Voices mapped   : %-19d ║\n", len(cfg.Voices))
	fmt.Printf("║  Max listeners   : %-19d ║\n", cfg.Session.MaxListeners)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(mock)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// seconds converts a fractional seconds value into a time.Duration.
func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optInt extracts an integer value from a provider Options map[string]any.
// Returns 0 if the map is nil, the key is absent, or the value is not an int.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	v, ok := opts[key]
	if !ok {
		return 0
	}
	n, ok := v.(int)
	if !ok {
		return 0
	}
	return n
}
