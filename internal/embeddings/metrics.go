package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/embeddings"

// Metrics records embedding latency, batch sizes and failures.
type Metrics struct {
	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
	errors    metric.Int64Counter
}

// NewMetrics registers instruments on the global meter provider.
// Instrument creation failures leave that instrument nil.
func NewMetrics() *Metrics {
	return newMetrics(otel.Meter(instrumentationName))
}

func newMetrics(meter metric.Meter) *Metrics {
	m := &Metrics{}
	m.duration, _ = meter.Float64Histogram(
		"ragd.embedding.duration_seconds",
		metric.WithDescription("Duration of embedding requests by model"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	m.batchSize, _ = meter.Int64Histogram(
		"ragd.embedding.batch_size",
		metric.WithDescription("Texts per embedding request"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000),
	)
	m.errors, _ = meter.Int64Counter(
		"ragd.embedding.errors_total",
		metric.WithDescription("Failed embedding requests by model"),
		metric.WithUnit("{error}"),
	)
	return m
}

// RecordGeneration records one Embed call.
func (m *Metrics) RecordGeneration(ctx context.Context, model string, d time.Duration, batch int, err error) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if m.batchSize != nil {
		m.batchSize.Record(ctx, int64(batch), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
