package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/mcp"

// toolMetrics counts tool calls per tool, with the error kind of failed
// calls. An instrument the meter rejects falls back to a no-op.
type toolMetrics struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

func newToolMetrics(meter metric.Meter, logger *logging.Logger) *toolMetrics {
	var (
		m    toolMetrics
		errs []error
		err  error
		nop  noop.Meter
	)
	if m.calls, err = meter.Int64Counter("ragd.mcp.tool.invocations_total",
		metric.WithDescription("MCP tool calls by tool"),
		metric.WithUnit("{invocation}")); err != nil {
		errs = append(errs, err)
		m.calls, _ = nop.Int64Counter("")
	}
	if m.failures, err = meter.Int64Counter("ragd.mcp.tool.errors_total",
		metric.WithDescription("Failed MCP tool calls by tool and error kind"),
		metric.WithUnit("{error}")); err != nil {
		errs = append(errs, err)
		m.failures, _ = nop.Int64Counter("")
	}
	// a tool call is a whole pipeline run
	if m.latency, err = meter.Float64Histogram("ragd.mcp.tool.duration_seconds",
		metric.WithDescription("MCP tool call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120)); err != nil {
		errs = append(errs, err)
		m.latency, _ = nop.Float64Histogram("")
	}
	if m.inFlight, err = meter.Int64UpDownCounter("ragd.mcp.tool.active_requests",
		metric.WithDescription("MCP tool calls in progress"),
		metric.WithUnit("{request}")); err != nil {
		errs = append(errs, err)
		m.inFlight, _ = nop.Int64UpDownCounter("")
	}

	if err := errors.Join(errs...); err != nil && logger != nil {
		logger.Warn(context.Background(), "some mcp instruments are disabled", zap.Error(err))
	}
	return &m
}

func defaultToolMetrics(logger *logging.Logger) *toolMetrics {
	return newToolMetrics(otel.Meter(instrumentationName), logger)
}

// record adds one finished call. errorKind is empty on success.
func (m *toolMetrics) record(ctx context.Context, tool string, took time.Duration, errorKind string) {
	attr := attribute.String("tool", tool)
	m.calls.Add(ctx, 1, metric.WithAttributes(attr))
	m.latency.Record(ctx, took.Seconds(), metric.WithAttributes(attr))
	if errorKind != "" {
		m.failures.Add(ctx, 1, metric.WithAttributes(attr, attribute.String("error_kind", errorKind)))
	}
}

// track marks a call in flight. The returned func ends it.
func (m *toolMetrics) track(ctx context.Context, tool string) func(errorKind string) {
	start := time.Now()
	inFlight := metric.WithAttributes(attribute.String("tool", tool))
	m.inFlight.Add(ctx, 1, inFlight)
	return func(errorKind string) {
		m.inFlight.Add(ctx, -1, inFlight)
		m.record(ctx, tool, time.Since(start), errorKind)
	}
}
