// Package observe provides application-wide observability primitives for
// Voxalys: OpenTelemetry metrics and the provider wiring that bridges them
// to Prometheus.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxalys metrics.
const meterName = "github.com/voxalys/voxalys"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use, the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// StageDuration tracks per-stage pipeline latency. Use with attribute:
	//   attribute.String("stage", ...)
	StageDuration metric.Float64Histogram

	// PipelineDuration tracks full pipeline-run latency.
	PipelineDuration metric.Float64Histogram

	// StageErrors counts stage failures. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("kind", ...)
	StageErrors metric.Int64Counter

	// TranscribeRequests counts one-shot transcription requests by status.
	TranscribeRequests metric.Int64Counter

	// FlushTotal counts streaming flush and stop pipeline runs by trigger.
	FlushTotal metric.Int64Counter

	// ActiveSessions tracks the number of live streaming sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// speech-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("voxalys.stage.duration",
		metric.WithDescription("Latency of individual pipeline stages."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("voxalys.pipeline.duration",
		metric.WithDescription("Latency of full pipeline runs."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageErrors, err = m.Int64Counter("voxalys.stage.errors",
		metric.WithDescription("Total stage failures by stage and error kind."),
	); err != nil {
		return nil, err
	}
	if met.TranscribeRequests, err = m.Int64Counter("voxalys.transcribe.requests",
		metric.WithDescription("Total one-shot transcription requests by status."),
	); err != nil {
		return nil, err
	}
	if met.FlushTotal, err = m.Int64Counter("voxalys.streaming.flushes",
		metric.WithDescription("Total streaming pipeline runs by trigger (flush or stop)."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxalys.active_sessions",
		metric.WithDescription("Number of live streaming sessions."),
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

// RecordStage records one stage execution: latency always, plus an error
// increment when err is non-nil.
func (m *Metrics) RecordStage(ctx context.Context, stage string, elapsed time.Duration, err error) {
	m.StageDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
	if err != nil {
		m.StageErrors.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("stage", stage),
				attribute.String("kind", errorKind(err)),
			))
	}
}

// RecordTranscribeRequest records a one-shot request outcome.
func (m *Metrics) RecordTranscribeRequest(ctx context.Context, status string) {
	m.TranscribeRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)))
}

// RecordFlush records a streaming pipeline run by trigger ("flush" or "stop").
func (m *Metrics) RecordFlush(ctx context.Context, trigger string) {
	m.FlushTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("trigger", trigger)))
}
