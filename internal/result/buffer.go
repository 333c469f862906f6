package result

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	// defaultBufferSeconds is the buffer capacity expressed in seconds of
	// speech.
	defaultBufferSeconds = 10

	// defaultWordsPerSecond converts seconds of speech into an entry count.
	// Generous upper bound — ASR partials rarely exceed a handful per second.
	defaultWordsPerSecond = 30
)

// Buffer is an ordered store of in-flight partial results for one session.
//
// Capacity is expressed in seconds of speech (seconds × words-per-second
// entries). When an insertion would exceed capacity, the oldest entries that
// are either already forwarded or stable enough are flushed first; an
// un-forwarded low-stability partial is never dropped by capacity alone —
// it stays until the orphan path claims it.
//
// All methods are safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	entries map[string]*BufferedResult

	capacity  int
	threshold float64

	now func() time.Time
}

// BufferConfig holds tuning knobs for a [Buffer]. Zero values are replaced
// with defaults.
type BufferConfig struct {
	// Seconds is the capacity in seconds of speech. Default: 10.
	Seconds int

	// WordsPerSecond converts Seconds into an entry count. Default: 30.
	WordsPerSecond int

	// StabilityThreshold marks entries at or above this score as "stable
	// enough" for capacity eviction. Default: 0.85.
	StabilityThreshold float64
}

// NewBuffer creates a [Buffer] with the supplied configuration.
func NewBuffer(cfg BufferConfig) *Buffer {
	if cfg.Seconds <= 0 {
		cfg.Seconds = defaultBufferSeconds
	}
	if cfg.WordsPerSecond <= 0 {
		cfg.WordsPerSecond = defaultWordsPerSecond
	}
	if cfg.StabilityThreshold <= 0 {
		cfg.StabilityThreshold = 0.85
	}
	return &Buffer{
		entries:   make(map[string]*BufferedResult),
		capacity:  cfg.Seconds * cfg.WordsPerSecond,
		threshold: cfg.StabilityThreshold,
		now:       time.Now,
	}
}

// Add inserts or updates the buffered entry for p.ID. An existing entry keeps
// its AddedAt and Forwarded state but adopts the newer text, timestamp, and
// stability — partials evolve in place.
func (b *Buffer) Add(p Partial) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.entries[p.ID]; ok {
		e.Partial = p
		return
	}

	if len(b.entries) >= b.capacity {
		b.flushOldest()
	}

	b.entries[p.ID] = &BufferedResult{
		Partial: p,
		AddedAt: b.now(),
	}
}

// Get returns a copy of the buffered entry for id, or false if absent.
func (b *Buffer) Get(id string) (BufferedResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok {
		return BufferedResult{}, false
	}
	return *e, true
}

// Remove deletes the entry for id and returns it, or false if absent.
func (b *Buffer) Remove(id string) (BufferedResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok {
		return BufferedResult{}, false
	}
	delete(b.entries, id)
	return *e, true
}

// MarkForwarded flags the entry for id as forwarded. Returns false if the
// entry does not exist.
func (b *Buffer) MarkForwarded(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok {
		return false
	}
	e.Forwarded = true
	return true
}

// SortedByTimestamp returns all entries ordered by timestamp ascending.
// Insertion order is irrelevant — out-of-order arrivals are tolerated.
func (b *Buffer) SortedByTimestamp() []BufferedResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]BufferedResult, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// RemoveInWindow removes and returns all entries whose timestamp lies within
// [from, to] (inclusive, milliseconds). Used by final-result reconciliation
// when the final does not name the partials it replaces.
func (b *Buffer) RemoveInWindow(from, to int64) []BufferedResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	var removed []BufferedResult
	for id, e := range b.entries {
		if e.Timestamp >= from && e.Timestamp <= to {
			removed = append(removed, *e)
			delete(b.entries, id)
		}
	}
	return removed
}

// Orphaned returns all entries that have been buffered for at least timeout
// and were never forwarded. The entries remain in the buffer; callers remove
// them once the orphan flush succeeds.
func (b *Buffer) Orphaned(timeout time.Duration) []BufferedResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-timeout)
	var orphans []BufferedResult
	for _, e := range b.entries {
		if !e.Forwarded && !e.AddedAt.After(cutoff) {
			orphans = append(orphans, *e)
		}
	}
	return orphans
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Clear removes all entries.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]*BufferedResult)
}

// flushOldest evicts flushable entries (forwarded, or stability at or above
// the threshold — a missing score counts as stable enough) oldest first until
// the buffer is below capacity. Must be called with b.mu held.
func (b *Buffer) flushOldest() {
	var flushable []*BufferedResult
	for _, e := range b.entries {
		if e.Forwarded || e.Stability == nil || *e.Stability >= b.threshold {
			flushable = append(flushable, e)
		}
	}
	sort.Slice(flushable, func(i, j int) bool {
		return flushable[i].AddedAt.Before(flushable[j].AddedAt)
	})

	for _, e := range flushable {
		if len(b.entries) < b.capacity {
			return
		}
		delete(b.entries, e.ID)
	}

	if len(b.entries) >= b.capacity {
		// Every remaining entry is an un-forwarded low-stability partial.
		// They are protected from capacity eviction; the orphan path will
		// reclaim them. Log so a runaway producer is visible.
		slog.Warn("result buffer over capacity with only protected entries",
			"size", len(b.entries), "capacity", b.capacity)
	}
}
