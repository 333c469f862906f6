package result

import (
	"strings"
	"sync"
	"time"
)

const (
	// defaultPauseThreshold is the silence gap after which the current
	// hypothesis is treated as a complete sentence.
	defaultPauseThreshold = 2 * time.Second

	// defaultMaxBufferTimeout is how long a partial may sit in the buffer
	// before it is forwarded regardless of stability.
	defaultMaxBufferTimeout = 5 * time.Second

	// stabilityFallbackTimeout applies when the provider reports no
	// stability score at all: a buffered partial is considered complete
	// after this long.
	stabilityFallbackTimeout = 3 * time.Second
)

// sentenceTerminators are the characters that end a sentence, covering both
// Latin and CJK punctuation.
const sentenceTerminators = ".?!。？！"

// CompletionReason explains why a hypothesis was judged ready to forward.
type CompletionReason int

const (
	// ReasonNone means the hypothesis is not yet complete.
	ReasonNone CompletionReason = iota

	// ReasonFinal marks a committed ASR segment.
	ReasonFinal

	// ReasonPunctuation means the text ends with sentence-terminating
	// punctuation.
	ReasonPunctuation

	// ReasonPause means the speaker has gone quiet past the pause threshold.
	ReasonPause

	// ReasonBufferTimeout means the partial sat in the buffer past the
	// maximum buffer timeout.
	ReasonBufferTimeout

	// ReasonStabilityFallback means the provider reports no stability score
	// and the partial has been buffered past the fallback timeout.
	ReasonStabilityFallback
)

// String returns the human-readable name of the reason.
func (r CompletionReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonFinal:
		return "final"
	case ReasonPunctuation:
		return "punctuation"
	case ReasonPause:
		return "pause"
	case ReasonBufferTimeout:
		return "buffer_timeout"
	case ReasonStabilityFallback:
		return "stability_fallback"
	default:
		return "unknown"
	}
}

// BoundaryDetector is the sentence-completeness heuristic for one session.
// It tracks the timestamp of the last forwarded result to detect pauses.
//
// Safe for concurrent use.
type BoundaryDetector struct {
	pauseThreshold   time.Duration
	maxBufferTimeout time.Duration

	mu             sync.Mutex
	lastResultTime time.Time

	now func() time.Time
}

// BoundaryConfig holds tuning knobs for a [BoundaryDetector]. Zero values
// are replaced with defaults.
type BoundaryConfig struct {
	// PauseThreshold is the silence gap treated as a sentence boundary.
	// Default: 2s.
	PauseThreshold time.Duration

	// MaxBufferTimeout forwards a buffered partial after this long
	// regardless of stability. Default: 5s.
	MaxBufferTimeout time.Duration
}

// NewBoundaryDetector creates a [BoundaryDetector] with the supplied
// configuration.
func NewBoundaryDetector(cfg BoundaryConfig) *BoundaryDetector {
	if cfg.PauseThreshold <= 0 {
		cfg.PauseThreshold = defaultPauseThreshold
	}
	if cfg.MaxBufferTimeout <= 0 {
		cfg.MaxBufferTimeout = defaultMaxBufferTimeout
	}
	return &BoundaryDetector{
		pauseThreshold:   cfg.PauseThreshold,
		maxBufferTimeout: cfg.MaxBufferTimeout,
		now:              time.Now,
	}
}

// Completion judges whether p is ready to forward. buffered is the buffer
// entry for p's ID when one exists, nil otherwise. The first matching rule
// wins, checked in the order: final, punctuation, pause, buffer timeout,
// stability fallback.
func (d *BoundaryDetector) Completion(p Partial, isFinal bool, buffered *BufferedResult) CompletionReason {
	if isFinal {
		return ReasonFinal
	}
	if EndsWithTerminator(p.Text) {
		return ReasonPunctuation
	}

	now := d.now()

	d.mu.Lock()
	last := d.lastResultTime
	d.mu.Unlock()

	if !last.IsZero() && now.Sub(last) >= d.pauseThreshold {
		return ReasonPause
	}
	if buffered != nil && now.Sub(buffered.AddedAt) >= d.maxBufferTimeout {
		return ReasonBufferTimeout
	}
	if p.Stability == nil && buffered != nil && now.Sub(buffered.AddedAt) >= stabilityFallbackTimeout {
		return ReasonStabilityFallback
	}
	return ReasonNone
}

// MarkForwarded records the timestamp of a successful forward so subsequent
// pause detection measures from it.
func (d *BoundaryDetector) MarkForwarded(timestampMillis int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastResultTime = time.UnixMilli(timestampMillis)
}

// EndsWithTerminator reports whether text ends with sentence-terminating
// punctuation (Latin or CJK).
func EndsWithTerminator(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	runes := []rune(text)
	return strings.ContainsRune(sentenceTerminators, runes[len(runes)-1])
}
