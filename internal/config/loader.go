package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr":       {"deepgram", "mock"},
	"translate": {"libretranslate", "mock"},
	"tts":       {"elevenlabs", "mock"},
}

// envOverrides maps recognised environment variables to the config fields
// they replace. Overrides are applied after the YAML file is decoded and
// before validation.
var envOverrides = map[string]func(*Config, string) error{
	"SESSION_MAX_DURATION_HOURS":      func(c *Config, v string) error { return setInt(&c.Session.MaxDurationHours, v) },
	"MAX_LISTENERS_PER_SESSION":       func(c *Config, v string) error { return setInt(&c.Session.MaxListeners, v) },
	"CONNECTION_REFRESH_MINUTES":      func(c *Config, v string) error { return setInt(&c.Session.RefreshMinutes, v) },
	"CONNECTION_WARNING_MINUTES":      func(c *Config, v string) error { return setInt(&c.Session.WarningMinutes, v) },
	"CONNECTION_IDLE_TIMEOUT_SECONDS": func(c *Config, v string) error { return setInt(&c.Session.IdleTimeoutSeconds, v) },
	"PARTIAL_RESULTS_ENABLED": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Pipeline.PartialResultsEnabled = &b
		return nil
	},
	"MIN_STABILITY_THRESHOLD":       func(c *Config, v string) error { return setFloat(&c.Pipeline.MinStability, v) },
	"MAX_BUFFER_TIMEOUT":            func(c *Config, v string) error { return setFloat(&c.Pipeline.MaxBufferTimeoutSeconds, v) },
	"PAUSE_THRESHOLD":               func(c *Config, v string) error { return setFloat(&c.Pipeline.PauseThresholdSeconds, v) },
	"ORPHAN_TIMEOUT":                func(c *Config, v string) error { return setFloat(&c.Pipeline.OrphanTimeoutSeconds, v) },
	"MAX_RATE_PER_SECOND":           func(c *Config, v string) error { return setInt(&c.Pipeline.MaxRatePerSecond, v) },
	"DEDUP_CACHE_TTL":               func(c *Config, v string) error { return setFloat(&c.Pipeline.DedupCacheTTLSeconds, v) },
	"TRANSLATION_CACHE_MAX_ENTRIES": func(c *Config, v string) error { return setInt(&c.Cache.MaxEntries, v) },
	"TRANSLATION_CACHE_TTL":         func(c *Config, v string) error { return setFloat(&c.Cache.TTLSeconds, v) },
	"MAX_CONCURRENT_BROADCASTS":     func(c *Config, v string) error { return setInt(&c.Broadcast.MaxConcurrent, v) },
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config] with defaults filled in.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// overrides and defaults, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays recognised environment variables onto cfg. lookup is
// injectable for tests; pass os.LookupEnv in production.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	for key, apply := range envOverrides {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		if err := apply(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("config: env %s=%q: %w", key, v, err))
		}
	}
	return errors.Join(errs...)
}

// ApplyDefaults fills zero fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Session.MaxDurationHours == 0 {
		cfg.Session.MaxDurationHours = 2
	}
	if cfg.Session.MaxListeners == 0 {
		cfg.Session.MaxListeners = 500
	}
	if cfg.Session.RefreshMinutes == 0 {
		cfg.Session.RefreshMinutes = 100
	}
	if cfg.Session.WarningMinutes == 0 {
		cfg.Session.WarningMinutes = 105
	}
	if cfg.Session.IdleTimeoutSeconds == 0 {
		cfg.Session.IdleTimeoutSeconds = 120
	}
	if cfg.Pipeline.MinStability == 0 {
		cfg.Pipeline.MinStability = 0.85
	}
	if cfg.Pipeline.MaxBufferTimeoutSeconds == 0 {
		cfg.Pipeline.MaxBufferTimeoutSeconds = 5
	}
	if cfg.Pipeline.PauseThresholdSeconds == 0 {
		cfg.Pipeline.PauseThresholdSeconds = 2
	}
	if cfg.Pipeline.OrphanTimeoutSeconds == 0 {
		cfg.Pipeline.OrphanTimeoutSeconds = 15
	}
	if cfg.Pipeline.MaxRatePerSecond == 0 {
		cfg.Pipeline.MaxRatePerSecond = 5
	}
	if cfg.Pipeline.DedupCacheTTLSeconds == 0 {
		cfg.Pipeline.DedupCacheTTLSeconds = 10
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 10000
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 3600
	}
	if cfg.Broadcast.MaxConcurrent == 0 {
		cfg.Broadcast.MaxConcurrent = 100
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("asr", cfg.Providers.ASR.Name)
	validateProviderName("translate", cfg.Providers.Translate.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Session.MaxDurationHours < 1 || cfg.Session.MaxDurationHours > 24 {
		errs = append(errs, fmt.Errorf("session.max_duration_hours %d is out of range [1, 24]", cfg.Session.MaxDurationHours))
	}
	if cfg.Session.MaxListeners < 1 {
		errs = append(errs, fmt.Errorf("session.max_listeners %d must be positive", cfg.Session.MaxListeners))
	}
	if cfg.Session.WarningMinutes <= cfg.Session.RefreshMinutes {
		errs = append(errs, fmt.Errorf("session.warning_minutes %d must be greater than refresh_minutes %d",
			cfg.Session.WarningMinutes, cfg.Session.RefreshMinutes))
	}
	if cfg.Session.RefreshMinutes >= cfg.Session.MaxDurationHours*60 {
		errs = append(errs, fmt.Errorf("session.refresh_minutes %d must be below the hard limit of %d minutes",
			cfg.Session.RefreshMinutes, cfg.Session.MaxDurationHours*60))
	}

	if cfg.Pipeline.MinStability < 0.70 || cfg.Pipeline.MinStability > 0.95 {
		errs = append(errs, fmt.Errorf("pipeline.min_stability %.2f is out of range [0.70, 0.95]", cfg.Pipeline.MinStability))
	}
	if cfg.Pipeline.MaxBufferTimeoutSeconds < 2 || cfg.Pipeline.MaxBufferTimeoutSeconds > 10 {
		errs = append(errs, fmt.Errorf("pipeline.max_buffer_timeout_seconds %.1f is out of range [2, 10]", cfg.Pipeline.MaxBufferTimeoutSeconds))
	}
	if cfg.Pipeline.MaxRatePerSecond < 1 {
		errs = append(errs, fmt.Errorf("pipeline.max_rate_per_second %d must be positive", cfg.Pipeline.MaxRatePerSecond))
	}

	if cfg.Cache.MaxEntries < 1 {
		errs = append(errs, fmt.Errorf("cache.max_entries %d must be positive", cfg.Cache.MaxEntries))
	}

	for lang, voice := range cfg.Voices {
		if voice.VoiceID == "" {
			errs = append(errs, fmt.Errorf("voices.%s.voice_id is required", lang))
		}
	}

	if cfg.Providers.TTS.Name != "" && len(cfg.Voices) == 0 {
		slog.Warn("providers.tts is configured but no voices are mapped; synthesis will fail for every language")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
