package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineChanged is true when any transcript-processing tunable
	// changed (stability threshold, rate limit, buffer timeouts, ...).
	PipelineChanged bool

	// VoicesChanged is true if any voice mapping changed.
	VoicesChanged bool
	VoiceChanges  []VoiceDiff
}

// VoiceDiff describes what changed for a single language's voice mapping.
type VoiceDiff struct {
	Language string
	Added    bool
	Removed  bool
	Changed  bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !pipelineEqual(old.Pipeline, new.Pipeline) {
		d.PipelineChanged = true
	}

	for lang, oldVoice := range old.Voices {
		newVoice, exists := new.Voices[lang]
		if !exists {
			d.VoiceChanges = append(d.VoiceChanges, VoiceDiff{Language: lang, Removed: true})
			d.VoicesChanged = true
			continue
		}
		if oldVoice != newVoice {
			d.VoiceChanges = append(d.VoiceChanges, VoiceDiff{Language: lang, Changed: true})
			d.VoicesChanged = true
		}
	}
	for lang := range new.Voices {
		if _, exists := old.Voices[lang]; !exists {
			d.VoiceChanges = append(d.VoiceChanges, VoiceDiff{Language: lang, Added: true})
			d.VoicesChanged = true
		}
	}

	return d
}

// pipelineEqual compares the hot-reloadable pipeline tunables. The
// PartialResultsEnabled pointer is compared by value, not identity.
func pipelineEqual(a, b PipelineConfig) bool {
	if (a.PartialResultsEnabled == nil) != (b.PartialResultsEnabled == nil) {
		return false
	}
	if a.PartialResultsEnabled != nil && *a.PartialResultsEnabled != *b.PartialResultsEnabled {
		return false
	}
	a.PartialResultsEnabled, b.PartialResultsEnabled = nil, nil
	return a == b
}
