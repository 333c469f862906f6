package result

import (
	"testing"
	"time"
)

func floatPtr(f float64) *float64 { return &f }

func TestBuffer_SortedByTimestamp(t *testing.T) {
	b := NewBuffer(BufferConfig{})

	// Insert out of order.
	for _, ts := range []int64{3000, 1000, 5000, 2000, 4000} {
		b.Add(Partial{ID: "r" + time.UnixMilli(ts).Format("05.000"), Text: "x", Timestamp: ts})
	}

	got := b.SortedByTimestamp()
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp < got[i-1].Timestamp {
			t.Errorf("entries not sorted: [%d]=%d after [%d]=%d",
				i, got[i].Timestamp, i-1, got[i-1].Timestamp)
		}
	}
}

func TestBuffer_AddUpdatesInPlace(t *testing.T) {
	b := NewBuffer(BufferConfig{})
	b.Add(Partial{ID: "r1", Text: "hello", Timestamp: 1000})
	b.MarkForwarded("r1")

	b.Add(Partial{ID: "r1", Text: "hello world", Timestamp: 1200})

	e, ok := b.Get("r1")
	if !ok {
		t.Fatal("entry missing after update")
	}
	if e.Text != "hello world" {
		t.Errorf("text = %q, want updated text", e.Text)
	}
	if !e.Forwarded {
		t.Error("update must preserve forwarded state")
	}
	if b.Len() != 1 {
		t.Errorf("len = %d, want 1", b.Len())
	}
}

func TestBuffer_CapacityFlushesStableFirst(t *testing.T) {
	b := NewBuffer(BufferConfig{Seconds: 1, WordsPerSecond: 3, StabilityThreshold: 0.85})
	base := time.Now()
	step := 0
	b.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Millisecond)
	}

	b.Add(Partial{ID: "stable", Text: "a", Timestamp: 1, Stability: floatPtr(0.9)})
	b.Add(Partial{ID: "weak", Text: "b", Timestamp: 2, Stability: floatPtr(0.3)})
	b.Add(Partial{ID: "noscore", Text: "c", Timestamp: 3})

	// Fourth insert exceeds capacity: the oldest flushable entry goes.
	b.Add(Partial{ID: "new", Text: "d", Timestamp: 4, Stability: floatPtr(0.5)})

	if _, ok := b.Get("stable"); ok {
		t.Error("oldest stable entry should have been flushed")
	}
	if _, ok := b.Get("weak"); !ok {
		t.Error("un-forwarded low-stability entry must never be dropped by capacity")
	}
}

func TestBuffer_CapacityProtectsWeakEntries(t *testing.T) {
	b := NewBuffer(BufferConfig{Seconds: 1, WordsPerSecond: 2})

	b.Add(Partial{ID: "w1", Text: "a", Timestamp: 1, Stability: floatPtr(0.1)})
	b.Add(Partial{ID: "w2", Text: "b", Timestamp: 2, Stability: floatPtr(0.2)})
	b.Add(Partial{ID: "w3", Text: "c", Timestamp: 3, Stability: floatPtr(0.3)})

	// Nothing was flushable, so all entries survive over capacity.
	if b.Len() != 3 {
		t.Errorf("len = %d, want 3 (weak entries are protected)", b.Len())
	}
}

func TestBuffer_Orphaned(t *testing.T) {
	b := NewBuffer(BufferConfig{})
	now := time.Now()
	b.now = func() time.Time { return now }

	b.Add(Partial{ID: "old", Text: "orphan", Timestamp: 1000, Stability: floatPtr(0.9)})
	b.Add(Partial{ID: "fwd", Text: "sent", Timestamp: 1100, Stability: floatPtr(0.9)})
	b.MarkForwarded("fwd")

	now = now.Add(16 * time.Second)
	b.Add(Partial{ID: "fresh", Text: "new", Timestamp: 1200})

	orphans := b.Orphaned(15 * time.Second)
	if len(orphans) != 1 || orphans[0].ID != "old" {
		t.Fatalf("orphans = %v, want exactly [old]", orphans)
	}
}

func TestBuffer_RemoveInWindow(t *testing.T) {
	b := NewBuffer(BufferConfig{})
	b.Add(Partial{ID: "a", Text: "x", Timestamp: 1000})
	b.Add(Partial{ID: "b", Text: "y", Timestamp: 4000})
	b.Add(Partial{ID: "c", Text: "z", Timestamp: 9000})

	removed := b.RemoveInWindow(1000, 5000)
	if len(removed) != 2 {
		t.Fatalf("removed %d entries, want 2", len(removed))
	}
	if _, ok := b.Get("c"); !ok {
		t.Error("entry outside window must survive")
	}
}
