package result

import (
	"context"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/lingocast/lingocast/internal/observe"
)

// recordingSink captures forwarded transcripts for assertions.
type recordingSink struct {
	mu       sync.Mutex
	forwards []Transcript
}

func (s *recordingSink) Forward(_ context.Context, t Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forwards = append(s.forwards, t)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.forwards)
}

func (s *recordingSink) last() Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forwards[len(s.forwards)-1]
}

// newTestProcessor builds a processor whose rate-limit window closes on
// every candidate, so forwards are immediate and deterministic.
func newTestProcessor(sink Sink) *Processor {
	return NewProcessor(ProcessorConfig{
		SessionID:       "sess-1",
		SourceLanguage:  "en",
		PartialsEnabled: true,
		MinStability:    0.85,
		Limiter:         LimiterConfig{MaxPerWindow: 1},
	}, 10*time.Second, sink)
}

func TestProcessor_StablePunctuatedPartialForwards(t *testing.T) {
	sink := &recordingSink{}
	p := newTestProcessor(sink)

	err := p.HandlePartial(context.Background(), Partial{
		ID:        "r1",
		Text:      "Hello everyone, this is a test.",
		Timestamp: 1000,
		Stability: floatPtr(0.92),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sink.count() != 1 {
		t.Fatalf("forwards = %d, want 1", sink.count())
	}
	got := sink.last()
	if got.IsFinal {
		t.Error("forwarded partial must not be flagged final")
	}
	if got.SessionID != "sess-1" || got.SourceLanguage != "en" {
		t.Errorf("session metadata not propagated: %+v", got)
	}

	e, ok := p.buffer.Get("r1")
	if !ok || !e.Forwarded {
		t.Error("forwarded partial must remain buffered and marked forwarded")
	}
}

func TestProcessor_LowStabilityBuffersWithoutForward(t *testing.T) {
	sink := &recordingSink{}
	p := newTestProcessor(sink)

	_ = p.HandlePartial(context.Background(), Partial{
		ID:        "r1",
		Text:      "An unstable hypothesis.",
		Timestamp: 1000,
		Stability: floatPtr(0.4),
	})

	if sink.count() != 0 {
		t.Fatalf("forwards = %d, want 0 for low-stability partial", sink.count())
	}
	if p.buffer.Len() != 1 {
		t.Errorf("buffer len = %d, want 1", p.buffer.Len())
	}
}

func TestProcessor_NoPunctuationStaysBuffered(t *testing.T) {
	sink := &recordingSink{}
	p := newTestProcessor(sink)

	_ = p.HandlePartial(context.Background(), Partial{
		ID:        "r1",
		Text:      "no sentence boundary here",
		Timestamp: 1000,
		Stability: floatPtr(0.95),
	})

	if sink.count() != 0 {
		t.Fatalf("forwards = %d, want 0 without a boundary", sink.count())
	}
}

func TestProcessor_FinalDedupAfterForwardedPartial(t *testing.T) {
	sink := &recordingSink{}
	p := newTestProcessor(sink)
	const text = "Hello everyone, this is a test."

	_ = p.HandlePartial(context.Background(), Partial{
		ID: "r1", Text: text, Timestamp: 1000, Stability: floatPtr(0.92),
	})
	if sink.count() != 1 {
		t.Fatalf("setup: partial not forwarded")
	}

	err := p.HandleFinal(context.Background(), Final{
		ID: "r1", Text: text, Timestamp: 1500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sink.count() != 1 {
		t.Errorf("forwards = %d, want 1 (identical final must be deduped)", sink.count())
	}
	if p.buffer.Len() != 0 {
		t.Errorf("buffer len = %d, want 0 after final reconciliation", p.buffer.Len())
	}
}

func TestProcessor_FinalForwardsWhenNew(t *testing.T) {
	sink := &recordingSink{}
	p := newTestProcessor(sink)

	err := p.HandleFinal(context.Background(), Final{
		ID: "f1", Text: "A committed segment.", Timestamp: 2000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("forwards = %d, want 1", sink.count())
	}
	if !sink.last().IsFinal {
		t.Error("final transcript must be flagged final")
	}
}

func TestProcessor_FinalRemovesByExplicitReplaces(t *testing.T) {
	sink := &recordingSink{}
	p := newTestProcessor(sink)

	_ = p.HandlePartial(context.Background(), Partial{
		ID: "r1", Text: "keep me buffered", Timestamp: 1000, Stability: floatPtr(0.1),
	})
	_ = p.HandlePartial(context.Background(), Partial{
		ID: "r2", Text: "also buffered here", Timestamp: 50000, Stability: floatPtr(0.1),
	})

	_ = p.HandleFinal(context.Background(), Final{
		ID: "f1", Text: "The final text.", Timestamp: 60000, Replaces: []string{"r1"},
	})

	if _, ok := p.buffer.Get("r1"); ok {
		t.Error("explicitly replaced partial must be removed")
	}
	if _, ok := p.buffer.Get("r2"); !ok {
		t.Error("unrelated partial must survive explicit replacement")
	}
}

func TestProcessor_FinalRemovesByTimestampWindow(t *testing.T) {
	sink := &recordingSink{}
	p := newTestProcessor(sink)

	_ = p.HandlePartial(context.Background(), Partial{
		ID: "in", Text: "inside the window", Timestamp: 8000, Stability: floatPtr(0.1),
	})
	_ = p.HandlePartial(context.Background(), Partial{
		ID: "out", Text: "outside the window", Timestamp: 1000, Stability: floatPtr(0.1),
	})

	_ = p.HandleFinal(context.Background(), Final{
		ID: "f1", Text: "The final text.", Timestamp: 10000,
	})

	if _, ok := p.buffer.Get("in"); ok {
		t.Error("partial inside [final-5s, final] must be removed")
	}
	if _, ok := p.buffer.Get("out"); !ok {
		t.Error("partial outside the window must survive")
	}
}

func TestProcessor_OrphanFlush(t *testing.T) {
	sink := &recordingSink{}
	p := newTestProcessor(sink)

	now := time.Now()
	p.buffer.now = func() time.Time { return now }

	_ = p.HandlePartial(context.Background(), Partial{
		ID:        "orphan",
		Text:      "This is an orphaned partial result",
		Timestamp: 1000,
		Stability: floatPtr(0.90),
	})
	if sink.count() != 0 {
		t.Fatal("setup: partial should have buffered, not forwarded")
	}

	now = now.Add(16 * time.Second)
	flushed := p.Sweep(context.Background())

	if flushed != 1 {
		t.Fatalf("flushed = %d, want 1", flushed)
	}
	if sink.count() != 1 {
		t.Fatalf("forwards = %d, want 1 after orphan flush", sink.count())
	}
	if p.buffer.Len() != 0 {
		t.Errorf("buffer len = %d, want 0 after orphan flush", p.buffer.Len())
	}
}

func TestProcessor_PartialsDisabled(t *testing.T) {
	sink := &recordingSink{}
	p := NewProcessor(ProcessorConfig{
		SessionID:       "sess-1",
		SourceLanguage:  "en",
		PartialsEnabled: false,
		Limiter:         LimiterConfig{MaxPerWindow: 1},
	}, 0, sink)

	_ = p.HandlePartial(context.Background(), Partial{
		ID: "r1", Text: "Ignored entirely.", Timestamp: 1000, Stability: floatPtr(0.99),
	})
	if sink.count() != 0 || p.buffer.Len() != 0 {
		t.Error("partial path must be skipped entirely when disabled")
	}

	_ = p.HandleFinal(context.Background(), Final{
		ID: "f1", Text: "Finals still flow.", Timestamp: 2000,
	})
	if sink.count() != 1 {
		t.Errorf("forwards = %d, want 1 (finals still forwarded)", sink.count())
	}

	// Dedup still applies to finals.
	_ = p.HandleFinal(context.Background(), Final{
		ID: "f2", Text: "Finals still flow.", Timestamp: 3000,
	})
	if sink.count() != 1 {
		t.Errorf("forwards = %d, want 1 (duplicate final deduped)", sink.count())
	}
}

func TestProcessor_DropsInvalidAndNoise(t *testing.T) {
	sink := &recordingSink{}
	p := newTestProcessor(sink)

	cases := []Partial{
		{ID: "", Text: "valid text.", Timestamp: 1000},
		{ID: "r1", Text: "   ", Timestamp: 1000},
		{ID: "r2", Text: "valid text.", Timestamp: 0},
		{ID: "r3", Text: "um", Timestamp: 1000},
	}
	for _, c := range cases {
		if err := p.HandlePartial(context.Background(), c); err != nil {
			t.Errorf("HandlePartial(%+v) returned error: %v", c, err)
		}
	}
	if sink.count() != 0 || p.buffer.Len() != 0 {
		t.Error("invalid and noise partials must be dropped before buffering")
	}
}

func TestProcessor_RecordsPartialOutcomes(t *testing.T) {
	sink := &recordingSink{}
	p := newTestProcessor(sink)

	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	p.metrics = m

	ctx := context.Background()
	// Noise drops, a low-stability hypothesis buffers, and a stable
	// punctuated one forwards.
	_ = p.HandlePartial(ctx, Partial{ID: "r1", Text: "um", Timestamp: 1000})
	_ = p.HandlePartial(ctx, Partial{ID: "r2", Text: "half a sentence", Timestamp: 1100, Stability: floatPtr(0.4)})
	_ = p.HandlePartial(ctx, Partial{ID: "r3", Text: "A full sentence.", Timestamp: 1200, Stability: floatPtr(0.95)})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "lingocast.partials.processed" {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", met.Data)
			}
			for _, dp := range sum.DataPoints {
				if outcome, ok := dp.Attributes.Value("outcome"); ok {
					got[outcome.AsString()] = dp.Value
				}
			}
		}
	}
	want := map[string]int64{"dropped": 1, "buffered": 1, "forwarded": 1}
	for outcome, n := range want {
		if got[outcome] != n {
			t.Errorf("partials[%s] = %d, want %d", outcome, got[outcome], n)
		}
	}
}
