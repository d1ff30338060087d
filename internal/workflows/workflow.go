package workflows

import (
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/ragd/internal/rag"
)

// IngestPDFWorkflow indexes one document: load-and-chunk, then
// embed-and-upsert.
func IngestPDFWorkflow(ctx workflow.Context, in IngestPDFInput) (*rag.IngestResult, error) {
	logger := workflow.GetLogger(ctx)

	req, err := in.Request.Normalize()
	if err != nil {
		return nil, activityError(err)
	}
	logger.Info("Starting PDF ingestion", "pdf_path", req.PDFPath, "source_id", req.SourceID)

	ctx = workflow.WithActivityOptions(ctx, in.Activity.options())
	var a *Activities

	var set rag.ChunkSet
	if err := workflow.ExecuteActivity(ctx, a.LoadAndChunk, req).Get(ctx, &set); err != nil {
		logger.Error("Load and chunk failed", "error", err)
		return nil, err
	}

	var result rag.IngestResult
	if err := workflow.ExecuteActivity(ctx, a.EmbedAndUpsert, set).Get(ctx, &result); err != nil {
		logger.Error("Embed and upsert failed", "error", err)
		return nil, err
	}

	logger.Info("PDF ingestion complete", "source_id", result.SourceID, "ingested", result.Ingested)
	return &result, nil
}

// QueryPDFWorkflow answers one question: embed-and-search, then
// generate-answer.
func QueryPDFWorkflow(ctx workflow.Context, in QueryPDFInput) (*rag.QueryResult, error) {
	logger := workflow.GetLogger(ctx)

	req, err := in.Request.Normalize()
	if err != nil {
		return nil, activityError(err)
	}

	ctx = workflow.WithActivityOptions(ctx, in.Activity.options())
	var a *Activities

	var found rag.Retrieval
	err = workflow.ExecuteActivity(ctx, a.EmbedAndSearch, SearchInput{
		Question: req.Question,
		TopK:     req.Limit(),
	}).Get(ctx, &found)
	if err != nil {
		logger.Error("Embed and search failed", "error", err)
		return nil, err
	}

	var result rag.QueryResult
	err = workflow.ExecuteActivity(ctx, a.GenerateAnswer, AnswerInput{
		Question:  req.Question,
		Retrieval: found,
	}).Get(ctx, &result)
	if err != nil {
		logger.Error("Answer generation failed", "error", err)
		return nil, err
	}

	logger.Info("Query complete", "num_contexts", result.NumContexts)
	return &result, nil
}
