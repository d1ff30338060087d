package vectorstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/ragd/internal/vectorstore")

var (
	// OperationsTotal counts store calls by backend, operation and outcome kind.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Vector store operations by backend, operation and result",
		},
		[]string{"backend", "op", "result"},
	)

	// OperationDuration observes store call latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	// PointsUpserted counts points written successfully.
	PointsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "points_upserted_total",
			Help:      "Points written to the vector store",
		},
		[]string{"backend"},
	)
)

// op traces and measures one store call.
type op struct {
	backend string
	name    string
	start   time.Time
	span    trace.Span
}

func startOp(ctx context.Context, backend, name, collection string) (context.Context, *op) {
	ctx, span := tracer.Start(ctx, "vectorstore."+name,
		trace.WithAttributes(
			attribute.String("db.system", backend),
			attribute.String("collection", collection),
		))
	return ctx, &op{backend: backend, name: name, start: time.Now(), span: span}
}

func (o *op) end(err error) {
	result := "ok"
	if err != nil {
		result = errdefs.KindOf(err)
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	} else {
		o.span.SetStatus(codes.Ok, "")
	}
	o.span.End()
	OperationsTotal.WithLabelValues(o.backend, o.name, result).Inc()
	OperationDuration.WithLabelValues(o.backend, o.name).Observe(time.Since(o.start).Seconds())
}
