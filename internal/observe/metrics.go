// Package observe provides application-wide observability primitives for
// reqrag: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all reqrag metrics.
const meterName = "github.com/MrWong99/reqrag"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// EmbedDuration tracks query-embedding latency.
	EmbedDuration metric.Float64Histogram

	// RetrievalDuration tracks hybrid retrieval latency (count + page SQL).
	RetrievalDuration metric.Float64Histogram

	// GenerationDuration tracks LLM generation latency. Use with attribute:
	//   attribute.String("device", ...)
	GenerationDuration metric.Float64Histogram

	// --- Counters ---

	// QueriesParsed counts parsed queries. Use with attributes:
	//   attribute.String("query_type", ...), attribute.String("intent", ...)
	QueriesParsed metric.Int64Counter

	// GenerationRejections counts generation calls refused before reaching
	// the model. Use with attribute:
	//   attribute.String("reason", "overloaded"|"unavailable")
	GenerationRejections metric.Int64Counter

	// DegradedAnswers counts /rag responses that fell back to
	// retrieval-only output.
	DegradedAnswers metric.Int64Counter

	// --- Gauges ---

	// GenerationQueue tracks the number of calls currently admitted to the
	// generation queue, including the one generating.
	GenerationQueue metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The low
// end covers embeds and SQL, the high end CPU-bound generation.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.EmbedDuration, err = m.Float64Histogram("reqrag.embed.duration",
		metric.WithDescription("Latency of query embedding."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("reqrag.retrieval.duration",
		metric.WithDescription("Latency of hybrid retrieval (count + page)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerationDuration, err = m.Float64Histogram("reqrag.generation.duration",
		metric.WithDescription("Latency of LLM generation by device."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.QueriesParsed, err = m.Int64Counter("reqrag.queries.parsed",
		metric.WithDescription("Total parsed queries by query type and intent."),
	); err != nil {
		return nil, err
	}
	if met.GenerationRejections, err = m.Int64Counter("reqrag.generation.rejections",
		metric.WithDescription("Generation calls refused before reaching the model, by reason."),
	); err != nil {
		return nil, err
	}
	if met.DegradedAnswers, err = m.Int64Counter("reqrag.answers.degraded",
		metric.WithDescription("Answers degraded to retrieval-only output."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.GenerationQueue, err = m.Int64UpDownCounter("reqrag.generation.queue",
		metric.WithDescription("Calls currently admitted to the generation queue."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("reqrag.http.request.duration",
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

// RecordQuery records one parsed query with the standard attribute set.
func (m *Metrics) RecordQuery(ctx context.Context, queryType, intent string) {
	m.QueriesParsed.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("query_type", queryType),
			attribute.String("intent", intent),
		),
	)
}

// RecordGeneration records one finished generation call.
func (m *Metrics) RecordGeneration(ctx context.Context, device string, seconds float64) {
	m.GenerationDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("device", device)),
	)
}

// RecordRejection records one refused generation call.
func (m *Metrics) RecordRejection(ctx context.Context, reason string) {
	m.GenerationRejections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordDegraded records one answer served without LLM output.
func (m *Metrics) RecordDegraded(ctx context.Context) {
	m.DegradedAnswers.Add(ctx, 1)
}
