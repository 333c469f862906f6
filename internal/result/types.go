// Package result implements the partial-result processing stage of the
// Lingocast pipeline.
//
// An ASR backend emits a stream of intermediate hypotheses (partials) that may
// change as more audio arrives, followed by committed segments (finals). This
// package decides which partials are stable enough to forward downstream,
// buffers the rest, reconciles buffered partials against later finals, and
// flushes orphaned partials that were never superseded.
//
// The central type is [Processor]: one Processor exists per session, and all
// of a session's ASR events must flow through it. Forward decisions are
// delivered to a [Sink] — in production the pipeline orchestrator.
package result

import (
	"errors"
	"strings"
	"time"
)

// Validation errors returned by [Partial.Validate] and [Final.Validate].
var (
	ErrEmptyID        = errors.New("result: empty result id")
	ErrEmptyText      = errors.New("result: empty text")
	ErrBadTimestamp   = errors.New("result: timestamp must be positive")
	ErrStabilityRange = errors.New("result: stability score out of [0,1]")
)

// Partial is an intermediate ASR hypothesis. The same ID refers to the same
// logical utterance as the hypothesis evolves; a later [Final] with the same
// ID (or covering the same timestamp window) supersedes it.
type Partial struct {
	// ID is the ASR-assigned result identifier. Non-empty.
	ID string

	// SessionID identifies the owning session.
	SessionID string

	// SourceLanguage is the ISO-639-1 code of the spoken language.
	SourceLanguage string

	// Text is the hypothesis text. Non-empty.
	Text string

	// Timestamp is the utterance timestamp in milliseconds since epoch.
	Timestamp int64

	// Stability is the ASR-reported confidence in [0,1] that this text will
	// survive to the final result. Nil when the provider does not report
	// stability — nil and zero are deliberately distinct: a missing score
	// routes through the time-based fallback path, a zero score is simply
	// the lowest possible ranking.
	Stability *float64
}

// Validate reports whether p is well-formed.
func (p Partial) Validate() error {
	if p.ID == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(p.Text) == "" {
		return ErrEmptyText
	}
	if p.Timestamp <= 0 {
		return ErrBadTimestamp
	}
	if p.Stability != nil && (*p.Stability < 0 || *p.Stability > 1) {
		return ErrStabilityRange
	}
	return nil
}

// stabilityOrZero returns the stability score with nil mapped to 0.
// Used for ranking only — never for the buffering decision, where nil
// and zero behave differently.
func (p Partial) stabilityOrZero() float64 {
	if p.Stability == nil {
		return 0
	}
	return *p.Stability
}

// Final is a committed ASR segment that will not change.
type Final struct {
	// ID is the ASR-assigned result identifier.
	ID string

	// SessionID identifies the owning session.
	SessionID string

	// SourceLanguage is the ISO-639-1 code of the spoken language.
	SourceLanguage string

	// Text is the committed text. Non-empty.
	Text string

	// Timestamp is the utterance timestamp in milliseconds since epoch.
	Timestamp int64

	// Replaces optionally lists the partial result IDs this final supersedes.
	// When empty, supersession falls back to a timestamp-window match.
	Replaces []string
}

// Validate reports whether f is well-formed.
func (f Final) Validate() error {
	if f.ID == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(f.Text) == "" {
		return ErrEmptyText
	}
	if f.Timestamp <= 0 {
		return ErrBadTimestamp
	}
	return nil
}

// BufferedResult is a [Partial] held in the [Buffer] while the processor
// waits for it to stabilise or be superseded.
type BufferedResult struct {
	Partial

	// AddedAt is when the partial entered the buffer.
	AddedAt time.Time

	// Forwarded records whether this partial's text has already been sent
	// downstream. Forwarded entries are eligible for capacity eviction and
	// are checked for text discrepancy when a final supersedes them.
	Forwarded bool
}

// Transcript is a forward decision: text that cleared buffering, dedup, and
// rate limiting and should be translated and broadcast.
type Transcript struct {
	SessionID      string
	SourceLanguage string
	Text           string

	// Timestamp is the originating result's timestamp in milliseconds.
	Timestamp int64

	// IsFinal distinguishes committed segments from forwarded partials.
	IsFinal bool
}
