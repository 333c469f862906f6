package result

import (
	"sync"
	"time"
)

const (
	// defaultWindow is the sliding-window length for partial-result
	// rate limiting.
	defaultWindow = 200 * time.Millisecond

	// defaultMaxPerWindow caps the candidates considered per window.
	defaultMaxPerWindow = 5
)

// Limiter is a sliding-window selector for forwardable partials: of all
// candidates offered within one window, at most one — the best — is emitted.
// "Best" is the candidate with the highest stability score, ties broken by
// the most recent timestamp; a missing score ranks as zero.
//
// Safe for concurrent use, though in practice each session owns one Limiter
// and drives it from that session's event stream.
type Limiter struct {
	window time.Duration
	max    int

	mu          sync.Mutex
	candidates  []Partial
	windowStart time.Time
	processed   uint64
	dropped     uint64

	now func() time.Time
}

// LimiterConfig holds tuning knobs for a [Limiter]. Zero values are replaced
// with defaults.
type LimiterConfig struct {
	// Window is the sliding-window length. Default: 200ms.
	Window time.Duration

	// MaxPerWindow caps candidates per window. Default: 5.
	MaxPerWindow int
}

// NewLimiter creates a [Limiter] with the supplied configuration.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = defaultMaxPerWindow
	}
	return &Limiter{
		window: cfg.Window,
		max:    cfg.MaxPerWindow,
		now:    time.Now,
	}
}

// Submit offers p as a forward candidate. It returns true when this call
// closed the window — either the window duration elapsed or the candidate
// cap was reached — in which case the caller must invoke [Limiter.FlushWindow]
// to obtain the selected candidate.
func (l *Limiter) Submit(p Partial) (closed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.candidates) == 0 {
		l.windowStart = now
	}
	l.candidates = append(l.candidates, p)

	return now.Sub(l.windowStart) >= l.window || len(l.candidates) >= l.max
}

// FlushWindow closes the current window and returns its best candidate.
// All other candidates are counted as dropped. Returns ok=false when the
// window is empty.
func (l *Limiter) FlushWindow() (best Partial, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.candidates) == 0 {
		return Partial{}, false
	}

	best = l.candidates[0]
	for _, c := range l.candidates[1:] {
		if better(c, best) {
			best = c
		}
	}

	l.processed++
	l.dropped += uint64(len(l.candidates) - 1)
	l.candidates = l.candidates[:0]
	return best, true
}

// Expired reports whether an open window has outlived the window duration
// without being closed by a Submit call. Callers poll this from the session's
// periodic sweep so a quiet stream still flushes its last window.
func (l *Limiter) Expired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.candidates) > 0 && l.now().Sub(l.windowStart) >= l.window
}

// Stats returns the number of windows processed and candidates dropped.
func (l *Limiter) Stats() (processed, dropped uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processed, l.dropped
}

// better reports whether a outranks b: higher stability wins, with a missing
// score ranking as zero; equal stability is broken by the later timestamp.
func better(a, b Partial) bool {
	sa, sb := a.stabilityOrZero(), b.stabilityOrZero()
	if sa != sb {
		return sa > sb
	}
	return a.Timestamp > b.Timestamp
}
