package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func metricOpt(k, v string) metric.AddOption {
	return metric.WithAttributes(attribute.String(k, v))
}
