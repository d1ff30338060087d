package workflows

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/rag"
)

// Activities binds the pipelines to Temporal. Register a populated value
// with the worker; workflows reference the methods through a nil pointer.
type Activities struct {
	Ingestor *rag.Ingestor
	Querier  *rag.Querier
	Logger   *logging.Logger
}

func (a *Activities) logger() *logging.Logger {
	if a.Logger == nil {
		return logging.NewNop()
	}
	return a.Logger
}

func (a *Activities) begin(ctx context.Context) context.Context {
	info := activity.GetInfo(ctx)
	ctx = logging.WithWorkflowID(ctx, info.WorkflowExecution.ID)
	if info.Attempt > 1 {
		a.logger().Info(ctx, "retrying activity",
			zap.String("activity", info.ActivityType.Name),
			zap.Int32("attempt", info.Attempt))
	}
	return ctx
}

// LoadAndChunk is the first ingestion step.
func (a *Activities) LoadAndChunk(ctx context.Context, req rag.IngestRequest) (*rag.ChunkSet, error) {
	ctx = a.begin(ctx)
	start := time.Now()
	set, err := a.Ingestor.LoadAndChunk(ctx, req.PDFPath, req.SourceID)
	recordActivity(ctx, "LoadAndChunk", start, err)
	return set, activityError(err)
}

// EmbedAndUpsert is the second ingestion step.
func (a *Activities) EmbedAndUpsert(ctx context.Context, set rag.ChunkSet) (*rag.IngestResult, error) {
	ctx = a.begin(ctx)
	start := time.Now()
	res, err := a.Ingestor.EmbedAndUpsert(ctx, &set)
	recordActivity(ctx, "EmbedAndUpsert", start, err)
	if res != nil {
		// ids are derivable from source id and count; keep history small
		res.IDs = nil
	}
	return res, activityError(err)
}

// EmbedAndSearch is the first query step.
func (a *Activities) EmbedAndSearch(ctx context.Context, in SearchInput) (*rag.Retrieval, error) {
	ctx = a.begin(ctx)
	start := time.Now()
	res, err := a.Querier.Retrieve(ctx, in.Question, in.TopK)
	recordActivity(ctx, "EmbedAndSearch", start, err)
	return res, activityError(err)
}

// GenerateAnswer is the second query step.
func (a *Activities) GenerateAnswer(ctx context.Context, in AnswerInput) (*rag.QueryResult, error) {
	ctx = a.begin(ctx)
	start := time.Now()
	res, err := a.Querier.Answer(ctx, in.Question, &in.Retrieval)
	recordActivity(ctx, "GenerateAnswer", start, err)
	return res, activityError(err)
}
