// Package config provides the configuration schema, loader, and provider
// registry for the Lingocast translation relay.
package config

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// QualityTier selects the processing tier for a session.
type QualityTier string

const (
	QualityStandard QualityTier = "standard"
	QualityPremium  QualityTier = "premium"
)

// IsValid reports whether q is a recognised quality tier.
func (q QualityTier) IsValid() bool {
	return q == QualityStandard || q == QualityPremium
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file via [Load], with environment overrides applied on top.
type Config struct {
	Server    ServerConfig           `yaml:"server"`
	Providers ProvidersConfig        `yaml:"providers"`
	Session   SessionConfig          `yaml:"session"`
	Pipeline  PipelineConfig         `yaml:"pipeline"`
	Cache     CacheConfig            `yaml:"cache"`
	Broadcast BroadcastConfig        `yaml:"broadcast"`
	Store     StoreConfig            `yaml:"store"`
	Voices    map[string]VoiceConfig `yaml:"voices"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	ASR       ProviderEntry `yaml:"asr"`
	Translate ProviderEntry `yaml:"translate"`
	TTS       ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "deepgram", "libretranslate", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// SessionConfig holds session and connection lifetime settings.
type SessionConfig struct {
	// MaxDurationHours sets the hard session expiry. Default: 2.
	MaxDurationHours int `yaml:"max_duration_hours"`

	// MaxListeners caps listeners per session. Default: 500.
	MaxListeners int `yaml:"max_listeners"`

	// RefreshMinutes is the connection age at which clients are asked to
	// reconnect. Default: 100.
	RefreshMinutes int `yaml:"refresh_minutes"`

	// WarningMinutes is the connection age at which the hard-limit
	// countdown starts. Default: 105.
	WarningMinutes int `yaml:"warning_minutes"`

	// IdleTimeoutSeconds is the heartbeat silence threshold. Default: 120.
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`
}

// PipelineConfig holds the transcript-processing tunables.
type PipelineConfig struct {
	// PartialResultsEnabled globally gates partial-result forwarding.
	// Nil means enabled.
	PartialResultsEnabled *bool `yaml:"partial_results_enabled"`

	// MinStability is the forwarding threshold for partials, in
	// [0.70, 0.95]. Default: 0.85.
	MinStability float64 `yaml:"min_stability"`

	// MaxBufferTimeoutSeconds bounds how long a partial may sit buffered,
	// in [2, 10]. Default: 5.
	MaxBufferTimeoutSeconds float64 `yaml:"max_buffer_timeout_seconds"`

	// PauseThresholdSeconds is the silence gap treated as a sentence
	// boundary. Default: 2.
	PauseThresholdSeconds float64 `yaml:"pause_threshold_seconds"`

	// OrphanTimeoutSeconds is how long a buffered partial may wait for its
	// final before being flushed as-is. Default: 15.
	OrphanTimeoutSeconds float64 `yaml:"orphan_timeout_seconds"`

	// MaxRatePerSecond caps forwarded results per session. Default: 5.
	MaxRatePerSecond int `yaml:"max_rate_per_second"`

	// DedupCacheTTLSeconds is the duplicate-suppression window. Default: 10.
	DedupCacheTTLSeconds float64 `yaml:"dedup_cache_ttl_seconds"`
}

// CacheConfig holds the translation cache settings.
type CacheConfig struct {
	// MaxEntries caps the translation cache. Default: 10000.
	MaxEntries int `yaml:"max_entries"`

	// TTLSeconds is the entry lifetime. Default: 3600.
	TTLSeconds float64 `yaml:"ttl_seconds"`
}

// BroadcastConfig holds the listener fan-out settings.
type BroadcastConfig struct {
	// MaxConcurrent caps simultaneous sends per broadcast. Default: 100.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the durable
	// session, connection, and cache stores. Empty selects the in-memory
	// stores (single-node mode).
	PostgresDSN string `yaml:"postgres_dsn"`
}

// VoiceConfig maps one target language to its synthesis voice.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// Name is an optional display name used in logs.
	Name string `yaml:"name"`
}
