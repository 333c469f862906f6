// Package observe provides application-wide observability primitives for
// Lingocast: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Lingocast metrics.
const meterName = "github.com/lingocast/lingocast"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranslateDuration tracks translation fan-out latency per batch.
	TranslateDuration metric.Float64Histogram

	// SynthDuration tracks text-to-speech synthesis latency.
	SynthDuration metric.Float64Histogram

	// BroadcastDuration tracks listener fan-out latency per language.
	BroadcastDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end transcript processing latency.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// PartialsProcessed counts partial results by outcome. Use with
	// attribute: attribute.String("outcome", "forwarded"|"buffered"|"dropped")
	PartialsProcessed metric.Int64Counter

	// CacheLookups counts translation cache lookups. Use with attribute:
	//   attribute.String("result", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// BroadcastSends counts per-listener sends. Use with attribute:
	//   attribute.String("status", "success"|"failure"|"stale")
	BroadcastSends metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live broadcast sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveListeners tracks the number of connected listeners across all
	// sessions.
	ActiveListeners metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for speech-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranslateDuration, err = m.Float64Histogram("lingocast.translate.duration",
		metric.WithDescription("Latency of one translation fan-out batch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthDuration, err = m.Float64Histogram("lingocast.synth.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BroadcastDuration, err = m.Float64Histogram("lingocast.broadcast.duration",
		metric.WithDescription("Latency of the per-language listener fan-out."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("lingocast.pipeline.duration",
		metric.WithDescription("End-to-end transcript processing latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.PartialsProcessed, err = m.Int64Counter("lingocast.partials.processed",
		metric.WithDescription("Total partial results by outcome."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("lingocast.cache.lookups",
		metric.WithDescription("Total translation cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.BroadcastSends, err = m.Int64Counter("lingocast.broadcast.sends",
		metric.WithDescription("Total per-listener sends by status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("lingocast.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("lingocast.active_sessions",
		metric.WithDescription("Number of live broadcast sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveListeners, err = m.Int64UpDownCounter("lingocast.active_listeners",
		metric.WithDescription("Number of connected listeners across all sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("lingocast.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordPartial records one partial-result outcome.
func (m *Metrics) RecordPartial(ctx context.Context, outcome string) {
	m.PartialsProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordCacheLookup records one translation cache lookup result.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
}

// RecordCacheBatch records the hit and miss counts of one translation batch.
func (m *Metrics) RecordCacheBatch(ctx context.Context, hits, misses int) {
	if hits > 0 {
		m.CacheLookups.Add(ctx, int64(hits),
			metric.WithAttributes(attribute.String("result", "hit")))
	}
	if misses > 0 {
		m.CacheLookups.Add(ctx, int64(misses),
			metric.WithAttributes(attribute.String("result", "miss")))
	}
}

// RecordBroadcastSends records the per-status send counts of one broadcast.
func (m *Metrics) RecordBroadcastSends(ctx context.Context, success, failure, stale int) {
	if success > 0 {
		m.BroadcastSends.Add(ctx, int64(success),
			metric.WithAttributes(attribute.String("status", "success")))
	}
	if failure > 0 {
		m.BroadcastSends.Add(ctx, int64(failure),
			metric.WithAttributes(attribute.String("status", "failure")))
	}
	if stale > 0 {
		m.BroadcastSends.Add(ctx, int64(stale),
			metric.WithAttributes(attribute.String("status", "stale")))
	}
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
