package rag

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/ragd/internal/rag")

var (
	// PipelineRuns counts pipeline executions by pipeline and result kind.
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline step executions by pipeline, step and result",
		},
		[]string{"pipeline", "step", "result"},
	)

	// StageDuration observes per-stage latency.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"pipeline", "stage"},
	)

	// ChunksIngested counts chunks written by the ingestion pipeline.
	ChunksIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ragd",
		Subsystem: "pipeline",
		Name:      "chunks_ingested_total",
		Help:      "Chunks embedded and upserted",
	})

	// ContextsRetrieved observes how many contexts each query retrieved.
	ContextsRetrieved = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ragd",
		Subsystem: "pipeline",
		Name:      "contexts_retrieved",
		Help:      "Contexts retrieved per query",
		Buckets:   prometheus.LinearBuckets(0, 2, 11),
	})
)

const (
	pipelineIngest = "ingest"
	pipelineQuery  = "query"
)

func observeStage(pipeline, stage string, start time.Time) {
	StageDuration.WithLabelValues(pipeline, stage).Observe(time.Since(start).Seconds())
}

func countRun(pipeline, step string, err error) {
	result := "ok"
	if err != nil {
		result = errdefs.KindOf(err)
	}
	PipelineRuns.WithLabelValues(pipeline, step, result).Inc()
}
