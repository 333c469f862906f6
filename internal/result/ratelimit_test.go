package result

import (
	"testing"
	"time"
)

func TestLimiter_BestOfWindowByStability(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxPerWindow: 5})

	l.Submit(Partial{ID: "a", Text: "a", Timestamp: 1000, Stability: floatPtr(0.5)})
	l.Submit(Partial{ID: "b", Text: "b", Timestamp: 1001, Stability: floatPtr(0.9)})
	l.Submit(Partial{ID: "c", Text: "c", Timestamp: 1002, Stability: floatPtr(0.7)})

	best, ok := l.FlushWindow()
	if !ok {
		t.Fatal("flush of non-empty window must succeed")
	}
	if best.ID != "b" {
		t.Errorf("best = %s, want b (highest stability)", best.ID)
	}

	processed, dropped := l.Stats()
	if processed != 1 || dropped != 2 {
		t.Errorf("stats = (%d, %d), want (1, 2)", processed, dropped)
	}
}

func TestLimiter_TieBrokenByMostRecent(t *testing.T) {
	l := NewLimiter(LimiterConfig{})

	l.Submit(Partial{ID: "early", Text: "a", Timestamp: 1000, Stability: floatPtr(0.8)})
	l.Submit(Partial{ID: "late", Text: "b", Timestamp: 2000, Stability: floatPtr(0.8)})

	best, _ := l.FlushWindow()
	if best.ID != "late" {
		t.Errorf("best = %s, want late (tie broken by most recent timestamp)", best.ID)
	}
}

func TestLimiter_MissingStabilityRanksAsZero(t *testing.T) {
	l := NewLimiter(LimiterConfig{})

	l.Submit(Partial{ID: "none", Text: "a", Timestamp: 9000})
	l.Submit(Partial{ID: "low", Text: "b", Timestamp: 1000, Stability: floatPtr(0.1)})

	best, _ := l.FlushWindow()
	if best.ID != "low" {
		t.Errorf("best = %s, want low (missing score ranks as 0)", best.ID)
	}
}

func TestLimiter_WindowClosesOnCap(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxPerWindow: 3})

	if l.Submit(Partial{ID: "1", Text: "x", Timestamp: 1}) {
		t.Error("window must stay open below the cap")
	}
	if l.Submit(Partial{ID: "2", Text: "x", Timestamp: 2}) {
		t.Error("window must stay open below the cap")
	}
	if !l.Submit(Partial{ID: "3", Text: "x", Timestamp: 3}) {
		t.Error("window must close when the cap is reached")
	}
}

func TestLimiter_WindowClosesOnElapsed(t *testing.T) {
	l := NewLimiter(LimiterConfig{Window: 200 * time.Millisecond, MaxPerWindow: 100})
	now := time.Now()
	l.now = func() time.Time { return now }

	if l.Submit(Partial{ID: "1", Text: "x", Timestamp: 1}) {
		t.Error("fresh window must be open")
	}

	now = now.Add(250 * time.Millisecond)
	if !l.Submit(Partial{ID: "2", Text: "x", Timestamp: 2}) {
		t.Error("window must close once the duration elapsed")
	}
	if !l.Expired() {
		t.Error("un-flushed elapsed window must report expired")
	}
}

func TestLimiter_FlushEmptyWindow(t *testing.T) {
	l := NewLimiter(LimiterConfig{})
	if _, ok := l.FlushWindow(); ok {
		t.Error("flushing an empty window must report ok=false")
	}
}

func TestLimiter_TwentyPartialsOneSecond(t *testing.T) {
	// 20 partials inside one second must yield at most 5 forwards with a
	// 200ms window.
	l := NewLimiter(LimiterConfig{Window: 200 * time.Millisecond, MaxPerWindow: 100})
	now := time.Now()
	l.now = func() time.Time { return now }

	forwards := 0
	for i := 0; i < 20; i++ {
		p := Partial{
			ID:        "p",
			Text:      "x",
			Timestamp: int64(1000 + i),
			Stability: floatPtr(float64(i) / 20),
		}
		if l.Submit(p) {
			if _, ok := l.FlushWindow(); ok {
				forwards++
			}
		}
		now = now.Add(50 * time.Millisecond) // 20 × 50ms = 1s
	}
	if _, ok := l.FlushWindow(); ok {
		forwards++
	}

	if forwards > 5 {
		t.Errorf("forwards = %d, want at most 5", forwards)
	}
}
