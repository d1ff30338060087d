package workflows

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/workflows"

var (
	activityDuration     metric.Float64Histogram
	activityErrorCounter metric.Int64Counter
	workflowCounter      metric.Int64Counter
)

func init() {
	meter := otel.Meter(instrumentationName)

	// Instrument creation only fails on invalid names; a nil instrument is skipped.
	activityDuration, _ = meter.Float64Histogram(
		"ragd.workflows.activity.duration",
		metric.WithDescription("Duration of workflow activity executions"),
		metric.WithUnit("s"),
	)
	activityErrorCounter, _ = meter.Int64Counter(
		"ragd.workflows.activity.errors",
		metric.WithDescription("Number of activity execution errors by kind"),
		metric.WithUnit("{error}"),
	)
	workflowCounter, _ = meter.Int64Counter(
		"ragd.workflows.executions",
		metric.WithDescription("Workflow executions started through the dispatcher"),
		metric.WithUnit("{execution}"),
	)
}

func recordActivity(ctx context.Context, name string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("activity", name))
	if activityDuration != nil {
		activityDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	if err != nil && activityErrorCounter != nil {
		activityErrorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("activity", name),
			attribute.String("kind", errdefs.KindOf(err)),
		))
	}
}

func recordWorkflow(ctx context.Context, workflow string, err error) {
	if workflowCounter == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = errdefs.KindOf(err)
	}
	workflowCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("result", result),
	))
}
