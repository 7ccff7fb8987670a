// Package observe provides application-wide observability primitives for
// Hermes: OpenTelemetry metrics and the HTTP middleware that records them.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Hermes metrics.
const meterName = "github.com/olclarke/hermes"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ResolveDuration tracks media resolution latency (the expensive
	// pre-playback extraction).
	ResolveDuration metric.Float64Histogram

	// PlaybackDuration tracks wall-clock time spent streaming one item.
	PlaybackDuration metric.Float64Histogram

	// SynthesisDuration tracks text-to-speech rendering latency per job.
	SynthesisDuration metric.Float64Histogram

	// --- Counters ---

	// PlaybackItems counts played items. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	PlaybackItems metric.Int64Counter

	// ResolveErrors counts failed resolutions (items dropped from queues).
	ResolveErrors metric.Int64Counter

	// SpeechJobs counts processed speech jobs. Use with attribute:
	//   attribute.String("status", "ok"|"skipped"|"network"|"file")
	SpeechJobs metric.Int64Counter

	// RepositoryErrors counts failed repository operations by operation name.
	RepositoryErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live per-guild playback sessions.
	ActiveSessions metric.Int64UpDownCounter

	// QueuedItems tracks the number of items currently sitting in playback
	// queues across all guilds.
	QueuedItems metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Buckets
// span quick repository calls up to multi-minute playback streams.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180, 600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ResolveDuration, err = m.Float64Histogram("hermes.resolve.duration",
		metric.WithDescription("Latency of full media resolution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("hermes.playback.duration",
		metric.WithDescription("Wall-clock streaming time per played item."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("hermes.synthesis.duration",
		metric.WithDescription("Latency of text-to-speech synthesis per job."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.PlaybackItems, err = m.Int64Counter("hermes.playback.items",
		metric.WithDescription("Total played items by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ResolveErrors, err = m.Int64Counter("hermes.resolve.errors",
		metric.WithDescription("Total failed resolutions (items dropped)."),
	); err != nil {
		return nil, err
	}
	if met.SpeechJobs, err = m.Int64Counter("hermes.speech.jobs",
		metric.WithDescription("Total processed speech jobs by status."),
	); err != nil {
		return nil, err
	}
	if met.RepositoryErrors, err = m.Int64Counter("hermes.repository.errors",
		metric.WithDescription("Total failed repository operations by operation."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("hermes.active_sessions",
		metric.WithDescription("Number of live per-guild playback sessions."),
	); err != nil {
		return nil, err
	}
	if met.QueuedItems, err = m.Int64UpDownCounter("hermes.queued_items",
		metric.WithDescription("Items currently queued across all guilds."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("hermes.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordPlaybackItem records one played item with the standard attributes.
// Safe to call on a nil receiver, which makes metrics optional in tests.
func (m *Metrics) RecordPlaybackItem(ctx context.Context, kind, status string) {
	if m == nil {
		return
	}
	m.PlaybackItems.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordSpeechJob records one processed speech job outcome.
// Safe to call on a nil receiver.
func (m *Metrics) RecordSpeechJob(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.SpeechJobs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
