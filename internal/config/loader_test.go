package config_test

import (
	"strings"
	"testing"

	"github.com/lingocast/lingocast/internal/config"
	"github.com/lingocast/lingocast/pkg/provider/translate"
	"github.com/lingocast/lingocast/pkg/provider/translate/mock"
)

const loaderYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
providers:
  asr:
    name: deepgram
    api_key: dg-key
    model: nova-2
  translate:
    name: libretranslate
    base_url: http://localhost:5000
  tts:
    name: elevenlabs
    api_key: el-key
session:
  max_listeners: 50
pipeline:
  min_stability: 0.90
voices:
  es:
    voice_id: voice-es
    name: Lucia
  fr:
    voice_id: voice-fr
`

func TestLoadFromReader_ParsesAndDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(loaderYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.ASR.Model != "nova-2" {
		t.Errorf("asr model = %q", cfg.Providers.ASR.Model)
	}
	if cfg.Session.MaxListeners != 50 {
		t.Errorf("max_listeners = %d, want explicit 50", cfg.Session.MaxListeners)
	}
	if cfg.Pipeline.MinStability != 0.90 {
		t.Errorf("min_stability = %v, want explicit 0.90", cfg.Pipeline.MinStability)
	}

	// Unset fields pick up their defaults.
	if cfg.Session.MaxDurationHours != 2 {
		t.Errorf("max_duration_hours = %d, want default 2", cfg.Session.MaxDurationHours)
	}
	if cfg.Pipeline.MaxRatePerSecond != 5 {
		t.Errorf("max_rate_per_second = %d, want default 5", cfg.Pipeline.MaxRatePerSecond)
	}
	if cfg.Cache.MaxEntries != 10000 {
		t.Errorf("cache.max_entries = %d, want default 10000", cfg.Cache.MaxEntries)
	}
	if cfg.Voices["es"].VoiceID != "voice-es" {
		t.Errorf("voices = %v", cfg.Voices)
	}
}

func TestLoadFromReader_RejectsUnknownKeys(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_address: \":80\"\n"))
	if err == nil {
		t.Fatal("misspelled keys must be rejected")
	}
}

func TestLoadFromReader_EmptyInputGetsDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.MaxListeners != 500 {
		t.Errorf("max_listeners = %d, want default 500", cfg.Session.MaxListeners)
	}
}

func TestApplyEnv_OverridesFields(t *testing.T) {
	env := map[string]string{
		"MAX_LISTENERS_PER_SESSION": "25",
		"MIN_STABILITY_THRESHOLD":   "0.80",
		"PARTIAL_RESULTS_ENABLED":   "false",
		"TRANSLATION_CACHE_TTL":     "600",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := &config.Config{}
	if err := config.ApplyEnv(cfg, lookup); err != nil {
		t.Fatalf("apply env: %v", err)
	}

	if cfg.Session.MaxListeners != 25 {
		t.Errorf("max_listeners = %d, want 25", cfg.Session.MaxListeners)
	}
	if cfg.Pipeline.MinStability != 0.80 {
		t.Errorf("min_stability = %v, want 0.80", cfg.Pipeline.MinStability)
	}
	if cfg.Pipeline.PartialResultsEnabled == nil || *cfg.Pipeline.PartialResultsEnabled {
		t.Errorf("partial_results_enabled = %v, want explicit false", cfg.Pipeline.PartialResultsEnabled)
	}
	if cfg.Cache.TTLSeconds != 600 {
		t.Errorf("cache ttl = %v, want 600", cfg.Cache.TTLSeconds)
	}
}

func TestApplyEnv_ReportsBadValues(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "MAX_RATE_PER_SECOND" {
			return "fast", true
		}
		return "", false
	}

	err := config.ApplyEnv(&config.Config{}, lookup)
	if err == nil || !strings.Contains(err.Error(), "MAX_RATE_PER_SECOND") {
		t.Fatalf("err = %v, want parse complaint naming the variable", err)
	}
}

func TestRegistry_CreateUnregistered(t *testing.T) {
	r := config.NewRegistry()
	_, err := r.CreateASR(config.ProviderEntry{Name: "nope"})
	if err == nil {
		t.Fatal("expected ErrProviderNotRegistered")
	}
}

func TestRegistry_RoundTrip(t *testing.T) {
	r := config.NewRegistry()
	r.RegisterTranslate("fake", func(entry config.ProviderEntry) (translate.Backend, error) {
		if entry.APIKey != "secret" {
			t.Errorf("entry = %+v, factory must receive the full entry", entry)
		}
		return &mock.Backend{}, nil
	})

	backend, err := r.CreateTranslate(config.ProviderEntry{Name: "fake", APIKey: "secret"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if backend == nil {
		t.Fatal("factory result was dropped")
	}
}
