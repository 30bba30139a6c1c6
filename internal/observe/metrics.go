// Package observe provides application-wide observability primitives for
// the memory sidecar and attention daemon: OpenTelemetry metrics,
// distributed tracing, structured logging, and HTTP middleware that ties
// them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped over HTTP (the memory sidecar serves it at /internal/metrics). A package-level default
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

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/aletheia-mem/aletheia"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// IngestDuration tracks the end-to-end latency of an ingestion call
	// (dedup check, embedding, fact extraction, storage writes).
	IngestDuration metric.Float64Histogram

	// SearchDuration tracks vector + graph-enhanced retrieval latency.
	SearchDuration metric.Float64Histogram

	// TemporalDuration tracks temporal query latency (facts_since,
	// what_changed, at_time, episode lookups).
	TemporalDuration metric.Float64Histogram

	// EvolutionDuration tracks memory-evolution decision latency (the LLM
	// merge/update/ignore/conflict classification step).
	EvolutionDuration metric.Float64Histogram

	// AnalyticsDuration tracks graph analytics job latency (PageRank,
	// community detection, discovery candidate generation).
	AnalyticsDuration metric.Float64Histogram

	// SignalCollectionDuration tracks a single collector's poll latency.
	SignalCollectionDuration metric.Float64Histogram

	// --- Counters ---

	// BackendRequests counts LLM/embeddings backend calls. Use with
	// attributes: attribute.String("backend", ...), attribute.String("kind", ...),
	// attribute.String("status", ...)
	BackendRequests metric.Int64Counter

	// WakesSent counts gateway wake requests dispatched. Use with attributes:
	//   attribute.String("nous_id", ...), attribute.String("status", ...)
	WakesSent metric.Int64Counter

	// WakesSuppressed counts wakes suppressed by the budget, quiet hours, or
	// cooldown. Use with attribute: attribute.String("reason", ...)
	WakesSuppressed metric.Int64Counter

	// SignalEvents counts signal observations produced by collectors. Use
	// with attribute: attribute.String("source", ...)
	SignalEvents metric.Int64Counter

	// --- Error counters ---

	// BackendErrors counts backend errors. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("kind", ...)
	BackendErrors metric.Int64Counter

	// GraphDegradations counts requests served with graph_degraded:true
	// because the graph store was unavailable.
	GraphDegradations metric.Int64Counter

	// --- Gauges ---

	// ActiveNous tracks the number of configured nous profiles currently
	// loaded by the attention daemon.
	ActiveNous metric.Int64UpDownCounter

	// ActiveSignalCollectors tracks the number of currently running signal
	// collectors.
	ActiveSignalCollectors metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning
// sub-100ms vector lookups up to multi-second LLM-assisted operations.
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
	if met.IngestDuration, err = m.Float64Histogram("aletheia.ingest.duration",
		metric.WithDescription("Latency of a memory ingestion call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchDuration, err = m.Float64Histogram("aletheia.search.duration",
		metric.WithDescription("Latency of a vector or graph-enhanced search."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TemporalDuration, err = m.Float64Histogram("aletheia.temporal.duration",
		metric.WithDescription("Latency of a temporal query."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EvolutionDuration, err = m.Float64Histogram("aletheia.evolution.duration",
		metric.WithDescription("Latency of a memory evolution decision."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalyticsDuration, err = m.Float64Histogram("aletheia.analytics.duration",
		metric.WithDescription("Latency of a graph analytics job."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SignalCollectionDuration, err = m.Float64Histogram("aletheia.signal.collection.duration",
		metric.WithDescription("Latency of a single signal collector poll."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.BackendRequests, err = m.Int64Counter("aletheia.backend.requests",
		metric.WithDescription("Total LLM/embeddings backend requests by backend, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.WakesSent, err = m.Int64Counter("aletheia.wakes.sent",
		metric.WithDescription("Total agent wakes dispatched by nous ID and status."),
	); err != nil {
		return nil, err
	}
	if met.WakesSuppressed, err = m.Int64Counter("aletheia.wakes.suppressed",
		metric.WithDescription("Total wakes suppressed by reason (budget, quiet_hours, cooldown)."),
	); err != nil {
		return nil, err
	}
	if met.SignalEvents, err = m.Int64Counter("aletheia.signal.events",
		metric.WithDescription("Total signal observations produced by source."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.BackendErrors, err = m.Int64Counter("aletheia.backend.errors",
		metric.WithDescription("Total backend errors by backend and kind."),
	); err != nil {
		return nil, err
	}
	if met.GraphDegradations, err = m.Int64Counter("aletheia.graph.degradations",
		metric.WithDescription("Total requests served with the graph store unavailable."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveNous, err = m.Int64UpDownCounter("aletheia.active_nous",
		metric.WithDescription("Number of nous profiles currently loaded."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSignalCollectors, err = m.Int64UpDownCounter("aletheia.active_signal_collectors",
		metric.WithDescription("Number of currently running signal collectors."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("aletheia.http.request.duration",
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

// RecordBackendRequest is a convenience method that records a backend
// request counter increment with the standard attribute set.
func (m *Metrics) RecordBackendRequest(ctx context.Context, backend, kind, status string) {
	m.BackendRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordWakeSent is a convenience method that records a dispatched wake.
func (m *Metrics) RecordWakeSent(ctx context.Context, nousID, status string) {
	m.WakesSent.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("nous_id", nousID),
			attribute.String("status", status),
		),
	)
}

// RecordWakeSuppressed is a convenience method that records a suppressed wake.
func (m *Metrics) RecordWakeSuppressed(ctx context.Context, reason string) {
	m.WakesSuppressed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordSignalEvent is a convenience method that records a signal
// observation counter increment.
func (m *Metrics) RecordSignalEvent(ctx context.Context, source string) {
	m.SignalEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordBackendError is a convenience method that records a backend error
// counter increment.
func (m *Metrics) RecordBackendError(ctx context.Context, backend, kind string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("kind", kind),
		),
	)
}

// RecordGraphDegradation is a convenience method that records a request
// served while the graph store was unavailable.
func (m *Metrics) RecordGraphDegradation(ctx context.Context) {
	m.GraphDegradations.Add(ctx, 1)
}
