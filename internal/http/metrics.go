package http

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/http"

// errorKindKey is the echo context key handlers use to report the pipeline
// error kind of a response.
const errorKindKey = "ragd.error_kind"

// requestMetrics records per-route traffic. Failed pipeline responses also
// carry their error kind so dashboards can split 502s by upstream.
type requestMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	size     metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
}

func newRequestMetrics(meter metric.Meter, logger *logging.Logger) *requestMetrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	nop := noop.Meter{}
	var errs []error
	pick := func(err error) bool {
		if err != nil {
			errs = append(errs, err)
			return false
		}
		return true
	}

	m := &requestMetrics{}
	var err error
	if m.requests, err = meter.Int64Counter("ragd.http.requests_total",
		metric.WithDescription("HTTP requests by method, route, status and error kind"),
		metric.WithUnit("{request}")); !pick(err) {
		m.requests, _ = nop.Int64Counter("")
	}
	// ingest and query run whole pipelines, so buckets reach two minutes
	if m.duration, err = meter.Float64Histogram("ragd.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120)); !pick(err) {
		m.duration, _ = nop.Float64Histogram("")
	}
	if m.size, err = meter.Int64Histogram("ragd.http.response_size_bytes",
		metric.WithDescription("HTTP response body size in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(128, 512, 2048, 8192, 32768, 131072)); !pick(err) {
		m.size, _ = nop.Int64Histogram("")
	}
	if m.inFlight, err = meter.Int64UpDownCounter("ragd.http.active_requests",
		metric.WithDescription("In-flight HTTP requests"),
		metric.WithUnit("{request}")); !pick(err) {
		m.inFlight, _ = nop.Int64UpDownCounter("")
	}

	if err := errors.Join(errs...); err != nil {
		logger.Warn(context.Background(), "some http instruments are disabled", zap.Error(err))
	}
	return m
}

func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			m.inFlight.Add(ctx, 1)
			defer m.inFlight.Add(ctx, -1)

			if err := next(c); err != nil {
				// echo writes the error response here, so the status below is final
				c.Error(err)
			}

			attrs := []attribute.KeyValue{
				attribute.String("method", c.Request().Method),
				attribute.String("route", routeLabel(c.Path())),
				attribute.Int("status", c.Response().Status),
			}
			if kind, _ := c.Get(errorKindKey).(string); kind != "" {
				attrs = append(attrs, attribute.String("error_kind", kind))
			}
			set := metric.WithAttributes(attrs...)
			m.requests.Add(ctx, 1, set)
			m.duration.Record(ctx, time.Since(start).Seconds(), set)
			m.size.Record(ctx, c.Response().Size, set)
			return nil
		}
	}
}

// routeLabel is the matched route template. Unmatched paths share one label.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}

// reply writes body as JSON and records kind for the request metrics.
func reply(c echo.Context, status int, kind string, body any) error {
	if kind != "" {
		c.Set(errorKindKey, kind)
	}
	return c.JSON(status, body)
}

func defaultRequestMetrics(logger *logging.Logger) *requestMetrics {
	return newRequestMetrics(otel.Meter(instrumentationName), logger)
}
