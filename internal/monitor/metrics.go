package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PromQL for the dashboard. Rates are per minute.
const (
	queryIngestRate  = `sum(rate(ragd_pipeline_runs_total{pipeline="ingest",step="embed_and_upsert",result="ok"}[1m])) * 60`
	queryQueryRate   = `sum(rate(ragd_pipeline_runs_total{pipeline="query",step="generate_answer",result="ok"}[1m])) * 60`
	queryErrorRatio  = `sum(rate(ragd_pipeline_runs_total{result!="ok"}[5m])) / clamp_min(sum(rate(ragd_pipeline_runs_total[5m])), 1e-9)`
	queryChunkRate   = `sum(rate(ragd_pipeline_chunks_ingested_total[1m])) * 60`
	queryAvgContexts = `sum(rate(ragd_pipeline_contexts_retrieved_sum[5m])) / clamp_min(sum(rate(ragd_pipeline_contexts_retrieved_count[5m])), 1e-9)`
	queryStoreErrors = `sum(rate(ragd_vectorstore_operations_total{result!="ok"}[5m])) * 60`
	queryGoroutines  = `sum(go_goroutines{job=~".*ragd.*"})`
	queryMemory      = `sum(process_resident_memory_bytes{job=~".*ragd.*"})`
	queryUptime      = `time() - min(process_start_time_seconds{job=~".*ragd.*"})`
)

func stageP95(stage string) string {
	return fmt.Sprintf(`histogram_quantile(0.95, sum by (le) (rate(ragd_pipeline_stage_duration_seconds_bucket{stage=%q}[5m])))`, stage)
}

// Querier is the part of the Prometheus HTTP API the dashboard uses.
type Querier interface {
	Query(ctx context.Context, query string, ts time.Time, opts ...promv1.Option) (model.Value, promv1.Warnings, error)
}

// MetricsClient reads ragd metrics from a Prometheus-compatible server
// (Prometheus, VictoriaMetrics).
type MetricsClient struct {
	baseURL string
	api     Querier
	timeout time.Duration
}

// NewMetricsClient creates a client for baseURL.
func NewMetricsClient(baseURL string) (*MetricsClient, error) {
	c, err := api.NewClient(api.Config{Address: baseURL})
	if err != nil {
		return nil, fmt.Errorf("invalid metrics URL %q: %w", baseURL, err)
	}
	return &MetricsClient{baseURL: baseURL, api: promv1.NewAPI(c), timeout: 2 * time.Second}, nil
}

// Scalar runs an instant query and returns its first value. An empty
// result is 0; NaN (no samples in range) is also 0.
func (c *MetricsClient) Scalar(ctx context.Context, query string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	v, _, err := c.api.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("query failed: %w", err)
	}
	return extractFloatValue(v), nil
}

// Snapshot collects every dashboard value. Only a failure of the first
// query is returned, since it means the server is unreachable; later
// failures read as 0.
func (c *MetricsClient) Snapshot(ctx context.Context) (MetricsSnapshot, error) {
	var s MetricsSnapshot
	var err error
	if s.IngestRate, err = c.Scalar(ctx, queryIngestRate); err != nil {
		return MetricsSnapshot{}, err
	}

	get := func(q string) float64 {
		v, _ := c.Scalar(ctx, q)
		return v
	}
	s.QueryRate = get(queryQueryRate)
	s.ErrorRatio = get(queryErrorRatio)
	s.ChunkRate = get(queryChunkRate)
	s.AvgContexts = get(queryAvgContexts)
	s.StoreErrorRate = get(queryStoreErrors)
	s.EmbedP95 = get(stageP95("embed"))
	s.SearchP95 = get(stageP95("search"))
	s.GenerateP95 = get(stageP95("generate"))
	s.Goroutines = int(get(queryGoroutines))
	s.MemoryBytes = uint64(get(queryMemory))
	s.Uptime = int64(get(queryUptime))
	return s, nil
}

func extractFloatValue(v model.Value) float64 {
	var f float64
	switch val := v.(type) {
	case model.Vector:
		if len(val) == 0 {
			return 0
		}
		f = float64(val[0].Value)
	case *model.Scalar:
		f = float64(val.Value)
	default:
		return 0
	}
	if f != f { // NaN
		return 0
	}
	return f
}
