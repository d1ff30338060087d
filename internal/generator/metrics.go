package generator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records generation latency and failures.
type Metrics struct {
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewMetrics registers instruments on the global meter provider.
func NewMetrics() *Metrics {
	meter := otel.Meter("github.com/fyrsmithlabs/ragd/internal/generator")
	m := &Metrics{}
	m.duration, _ = meter.Float64Histogram(
		"ragd.generation.duration_seconds",
		metric.WithDescription("Duration of answer generation by model"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	m.errors, _ = meter.Int64Counter(
		"ragd.generation.errors_total",
		metric.WithDescription("Failed generation requests by model"),
		metric.WithUnit("{error}"),
	)
	return m
}

// Record records one Generate call.
func (m *Metrics) Record(ctx context.Context, model string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
