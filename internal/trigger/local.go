package trigger

import (
	"context"

	"github.com/fyrsmithlabs/ragd/internal/rag"
)

// Local runs the pipelines in-process without an orchestrator.
type Local struct {
	Ingestor *rag.Ingestor
	Querier  *rag.Querier
}

var _ Dispatcher = (*Local)(nil)

// Ingest implements Dispatcher.
func (l *Local) Ingest(ctx context.Context, req rag.IngestRequest) (*rag.IngestResult, error) {
	return l.Ingestor.Ingest(ctx, req)
}

// Query implements Dispatcher.
func (l *Local) Query(ctx context.Context, req rag.QueryRequest) (*rag.QueryResult, error) {
	return l.Querier.Query(ctx, req)
}
