package config_test

import (
	"strings"
	"testing"

	"github.com/lingocast/lingocast/internal/config"
)

func TestValidate_AcceptsDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("defaults must validate, got: %v", err)
	}
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.LogLevel = "verbose"

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "server.log_level") {
		t.Fatalf("err = %v, want log level complaint", err)
	}
}

func TestValidate_StabilityRange(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		value float64
		ok    bool
	}{
		{0.70, true},
		{0.85, true},
		{0.95, true},
		{0.69, false},
		{0.96, false},
	} {
		cfg := &config.Config{}
		config.ApplyDefaults(cfg)
		cfg.Pipeline.MinStability = tc.value

		err := config.Validate(cfg)
		if tc.ok && err != nil {
			t.Errorf("min_stability %.2f: unexpected error %v", tc.value, err)
		}
		if !tc.ok && (err == nil || !strings.Contains(err.Error(), "min_stability")) {
			t.Errorf("min_stability %.2f: err = %v, want range complaint", tc.value, err)
		}
	}
}

func TestValidate_BufferTimeoutRange(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Pipeline.MaxBufferTimeoutSeconds = 11

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "max_buffer_timeout_seconds") {
		t.Fatalf("err = %v, want buffer timeout complaint", err)
	}
}

func TestValidate_WarningMustFollowRefresh(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Session.RefreshMinutes = 110
	cfg.Session.WarningMinutes = 105

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "warning_minutes") {
		t.Fatalf("err = %v, want ordering complaint", err)
	}
}

func TestValidate_RefreshBelowHardLimit(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Session.MaxDurationHours = 1
	cfg.Session.RefreshMinutes = 60
	cfg.Session.WarningMinutes = 65

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "refresh_minutes") {
		t.Fatalf("err = %v, want hard-limit complaint", err)
	}
}

func TestValidate_VoiceNeedsID(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Voices = map[string]config.VoiceConfig{"es": {Name: "Lucia"}}

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "voices.es.voice_id") {
		t.Fatalf("err = %v, want voice_id complaint", err)
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.LogLevel = "loud"
	cfg.Pipeline.MinStability = 0.5
	cfg.Pipeline.MaxBufferTimeoutSeconds = 1

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"server.log_level", "min_stability", "max_buffer_timeout_seconds"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error is missing %q: %v", want, err)
		}
	}
}

func TestQualityTier_IsValid(t *testing.T) {
	t.Parallel()
	if !config.QualityStandard.IsValid() || !config.QualityPremium.IsValid() {
		t.Error("known tiers must validate")
	}
	if config.QualityTier("deluxe").IsValid() {
		t.Error("unknown tier must not validate")
	}
}
