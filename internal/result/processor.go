package result

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lingocast/lingocast/internal/observe"
)

// errDuplicate signals that a transcript was suppressed by the dedup cache.
// Internal to the forward path: suppression is not a failure, but the caller
// must not mark the source entry as forwarded.
var errDuplicate = errors.New("result: duplicate transcript suppressed")

const (
	// defaultOrphanTimeout declares a buffered partial orphaned when no
	// final supersedes it within this window.
	defaultOrphanTimeout = 15 * time.Second

	// finalReplaceWindow is how far back from a final's timestamp buffered
	// partials are considered superseded when the final does not name them.
	finalReplaceWindow = 5 * time.Second

	// discrepancyWarnPercent is the text-difference level above which a
	// forwarded partial that disagrees with its final is reported.
	discrepancyWarnPercent = 20.0
)

// Sink receives transcripts that cleared buffering, dedup, and rate limiting.
// In production this is the pipeline orchestrator; tests supply a recorder.
type Sink interface {
	// Forward translates, synthesises, and broadcasts t. Implementations
	// absorb downstream failures and must not block indefinitely.
	Forward(ctx context.Context, t Transcript) error
}

// SinkFunc adapts a function to the [Sink] interface.
type SinkFunc func(ctx context.Context, t Transcript) error

// Forward calls f.
func (f SinkFunc) Forward(ctx context.Context, t Transcript) error { return f(ctx, t) }

// ProcessorConfig holds the per-session tuning knobs for a [Processor].
// Zero values are replaced with defaults.
type ProcessorConfig struct {
	// SessionID identifies the owning session, used in logs.
	SessionID string

	// SourceLanguage is the session's spoken language (ISO-639-1).
	SourceLanguage string

	// PartialsEnabled gates the whole partial path. When false, partials
	// are ignored entirely and only finals are forwarded (still deduped).
	PartialsEnabled bool

	// MinStability is the threshold at or above which a partial may be
	// forwarded once a sentence boundary is detected. Default: 0.85.
	MinStability float64

	// OrphanTimeout declares never-superseded partials orphaned.
	// Default: 15s.
	OrphanTimeout time.Duration

	// Buffer, Limiter, and Boundary configure the underlying components.
	Buffer   BufferConfig
	Limiter  LimiterConfig
	Boundary BoundaryConfig
}

// Processor applies the forward/buffer decision logic to one session's ASR
// event stream. It owns the session's [Buffer], [DedupCache], [Limiter], and
// [BoundaryDetector].
//
// All methods are safe for concurrent use; handling is serialised per
// processor so partials and finals for a session are processed in arrival
// order.
type Processor struct {
	cfg      ProcessorConfig
	buffer   *Buffer
	dedup    *DedupCache
	limiter  *Limiter
	boundary *BoundaryDetector
	sink     Sink
	metrics  *observe.Metrics

	// mu serialises partial/final handling for the session.
	mu sync.Mutex
}

// NewProcessor creates a [Processor] for one session, forwarding accepted
// transcripts to sink. dedupTTL selects the dedup window; non-positive
// selects the default.
func NewProcessor(cfg ProcessorConfig, dedupTTL time.Duration, sink Sink) *Processor {
	if cfg.MinStability <= 0 {
		cfg.MinStability = 0.85
	}
	if cfg.OrphanTimeout <= 0 {
		cfg.OrphanTimeout = defaultOrphanTimeout
	}
	if cfg.Buffer.StabilityThreshold <= 0 {
		cfg.Buffer.StabilityThreshold = cfg.MinStability
	}
	return &Processor{
		cfg:      cfg,
		buffer:   NewBuffer(cfg.Buffer),
		dedup:    NewDedupCache(dedupTTL),
		limiter:  NewLimiter(cfg.Limiter),
		boundary: NewBoundaryDetector(cfg.Boundary),
		sink:     sink,
		metrics:  observe.DefaultMetrics(),
	}
}

// HandlePartial runs the forward/buffer decision table for an arriving
// partial:
//
//   - invalid or noise text is dropped,
//   - the first sighting of a result ID is buffered,
//   - a stable hypothesis at a sentence boundary becomes a forward candidate,
//   - candidates pass through the rate-limit window; when the window closes
//     only the best candidate is forwarded,
//   - everything else stays buffered for final reconciliation.
func (p *Processor) HandlePartial(ctx context.Context, partial Partial) error {
	if !p.cfg.PartialsEnabled {
		return nil
	}
	if err := partial.Validate(); err != nil {
		slog.Debug("dropping invalid partial",
			"session_id", p.cfg.SessionID, "result_id", partial.ID, "err", err)
		p.metrics.RecordPartial(ctx, "dropped")
		return nil
	}
	if IsNoise(partial.Text) {
		slog.Debug("dropping noise partial",
			"session_id", p.cfg.SessionID, "result_id", partial.ID)
		p.metrics.RecordPartial(ctx, "dropped")
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	buffered, known := p.buffer.Get(partial.ID)
	p.buffer.Add(partial)

	var bufferedRef *BufferedResult
	if known {
		bufferedRef = &buffered
	}

	reason := p.boundary.Completion(partial, false, bufferedRef)
	if !p.forwardable(partial, reason) {
		p.metrics.RecordPartial(ctx, "buffered")
		return nil
	}

	if closed := p.limiter.Submit(partial); !closed {
		p.metrics.RecordPartial(ctx, "buffered")
		return nil
	}
	return p.flushWindowLocked(ctx)
}

// forwardable applies the stability rules on top of the boundary reason.
func (p *Processor) forwardable(partial Partial, reason CompletionReason) bool {
	if reason == ReasonNone {
		return false
	}
	// Pause and timeout boundaries forward the buffered state regardless
	// of stability; a punctuation boundary additionally requires the
	// hypothesis to be stable enough (a missing score defers to the
	// time-based fallback paths).
	if reason == ReasonPunctuation {
		if partial.Stability == nil {
			return true
		}
		return *partial.Stability >= p.cfg.MinStability
	}
	return true
}

// HandleFinal reconciles a final against buffered partials, forwards it if
// it is not a duplicate, and reports text discrepancies against already
// forwarded partials.
func (p *Processor) HandleFinal(ctx context.Context, final Final) error {
	if err := final.Validate(); err != nil {
		slog.Debug("dropping invalid final",
			"session_id", p.cfg.SessionID, "result_id", final.ID, "err", err)
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := p.removeSuperseded(final)

	for _, r := range removed {
		if !r.Forwarded {
			continue
		}
		if d := Discrepancy(r.Text, final.Text); d > discrepancyWarnPercent {
			slog.Warn("forwarded partial disagrees with final",
				"session_id", p.cfg.SessionID,
				"result_id", r.ID,
				"discrepancy_percent", fmt.Sprintf("%.1f", d),
				"partial_text", r.Text,
				"final_text", final.Text,
			)
		}
	}

	if p.dedup.Contains(final.Text) {
		// The text already went downstream as a forwarded partial.
		return nil
	}

	err := p.forwardLocked(ctx, Transcript{
		SessionID:      p.cfg.SessionID,
		SourceLanguage: p.cfg.SourceLanguage,
		Text:           final.Text,
		Timestamp:      final.Timestamp,
		IsFinal:        true,
	})
	if err != nil {
		if errors.Is(err, errDuplicate) {
			return nil
		}
		return err
	}
	p.boundary.MarkForwarded(final.Timestamp)
	return nil
}

// removeSuperseded removes the buffered partials a final replaces: by
// explicit ID list when given, else by the timestamp window ending at the
// final. Must be called with p.mu held.
func (p *Processor) removeSuperseded(final Final) []BufferedResult {
	if len(final.Replaces) > 0 {
		var removed []BufferedResult
		for _, id := range final.Replaces {
			if r, ok := p.buffer.Remove(id); ok {
				removed = append(removed, r)
			}
		}
		return removed
	}
	from := final.Timestamp - finalReplaceWindow.Milliseconds()
	return p.buffer.RemoveInWindow(from, final.Timestamp)
}

// Sweep runs the periodic maintenance paths: it flushes an expired
// rate-limit window and forwards orphaned partials as if complete.
// Returns the number of orphans forwarded.
func (p *Processor) Sweep(ctx context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.limiter.Expired() {
		if err := p.flushWindowLocked(ctx); err != nil {
			slog.Warn("rate-limit window flush failed",
				"session_id", p.cfg.SessionID, "err", err)
		}
	}

	orphans := p.buffer.Orphaned(p.cfg.OrphanTimeout)
	forwarded := 0
	for _, o := range orphans {
		err := p.forwardLocked(ctx, Transcript{
			SessionID:      p.cfg.SessionID,
			SourceLanguage: p.cfg.SourceLanguage,
			Text:           o.Text,
			Timestamp:      o.Timestamp,
		})
		if err != nil && !errors.Is(err, errDuplicate) {
			slog.Warn("orphan forward failed",
				"session_id", p.cfg.SessionID, "result_id", o.ID, "err", err)
			continue
		}
		// A duplicate orphan was already delivered under another ID; in
		// either case the entry is done.
		p.buffer.Remove(o.ID)
		forwarded++
	}
	if forwarded > 0 {
		slog.Info("flushed orphaned partials",
			"session_id", p.cfg.SessionID, "count", forwarded)
	}
	return forwarded
}

// flushWindowLocked closes the rate-limit window and forwards its best
// candidate. Must be called with p.mu held.
func (p *Processor) flushWindowLocked(ctx context.Context) error {
	best, ok := p.limiter.FlushWindow()
	if !ok {
		return nil
	}

	err := p.forwardLocked(ctx, Transcript{
		SessionID:      p.cfg.SessionID,
		SourceLanguage: p.cfg.SourceLanguage,
		Text:           best.Text,
		Timestamp:      best.Timestamp,
	})
	if err != nil {
		if errors.Is(err, errDuplicate) {
			return nil
		}
		return err
	}
	p.buffer.MarkForwarded(best.ID)
	p.boundary.MarkForwarded(best.Timestamp)
	p.metrics.RecordPartial(ctx, "forwarded")
	return nil
}

// forwardLocked pushes t through dedup and into the sink. Suppression
// surfaces as [errDuplicate] so callers know not to mark the source entry
// forwarded. Must be called with p.mu held.
func (p *Processor) forwardLocked(ctx context.Context, t Transcript) error {
	if !p.dedup.Add(t.Text) {
		slog.Debug("suppressing duplicate transcript",
			"session_id", p.cfg.SessionID)
		return errDuplicate
	}
	return p.sink.Forward(ctx, t)
}

// Stats exposes the processor's internal counters for status reporting.
func (p *Processor) Stats() ProcessorStats {
	processed, dropped := p.limiter.Stats()
	return ProcessorStats{
		Buffered:          p.buffer.Len(),
		WindowsProcessed:  processed,
		CandidatesDropped: dropped,
	}
}

// ProcessorStats is a snapshot of a [Processor]'s counters.
type ProcessorStats struct {
	Buffered          int
	WindowsProcessed  uint64
	CandidatesDropped uint64
}
