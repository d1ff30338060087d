package rag

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Generator produces an answer for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// QuerierDeps are the services the query pipeline calls.
type QuerierDeps struct {
	Embedder  Embedder
	Store     vectorstore.Store
	Generator Generator
	Logger    *logging.Logger
}

// QueryConfig holds query parameters.
type QueryConfig struct {
	Collection string
}

// Retrieval is the output of Retrieve and the input of Answer.
type Retrieval struct {
	Contexts []string `json:"contexts"`
	Sources  []string `json:"sources"`
}

// QueryResult is the answer returned to callers.
type QueryResult struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	NumContexts int      `json:"num_contexts"`
}

// Querier runs the query pipeline.
type Querier struct {
	deps QuerierDeps
	cfg  QueryConfig
}

// NewQuerier validates deps and config.
func NewQuerier(deps QuerierDeps, cfg QueryConfig) (*Querier, error) {
	if deps.Embedder == nil || deps.Store == nil || deps.Generator == nil {
		return nil, errdefs.Configf("querier", "embedder, store and generator are required")
	}
	if err := vectorstore.ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	return &Querier{deps: deps, cfg: cfg}, nil
}

// Query answers one question.
func (q *Querier) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	r, err := q.Retrieve(ctx, req.Question, req.Limit())
	if err != nil {
		return nil, err
	}
	return q.Answer(ctx, req.Question, r)
}

// Retrieve embeds the question and returns up to topK contexts.
func (q *Querier) Retrieve(ctx context.Context, question string, topK int) (_ *Retrieval, err error) {
	ctx, span := tracer.Start(ctx, "rag.Retrieve", trace.WithAttributes(attribute.Int("top_k", topK)))
	defer func() {
		endSpan(span, err)
		countRun(pipelineQuery, "embed_and_search", err)
	}()

	if question == "" {
		return nil, errdefs.Configf("question", "required")
	}
	if topK < 1 {
		return nil, errdefs.Configf("top_k", "must be a positive integer, got %d", topK)
	}

	start := time.Now()
	vectors, err := q.deps.Embedder.Embed(ctx, []string{question})
	observeStage(pipelineQuery, StageEmbed, start)
	if err != nil {
		return nil, stageErr(StageEmbed, err)
	}
	if len(vectors) != 1 {
		return nil, stageErr(StageEmbed, &errdefs.EmbeddingServiceError{Err: fmt.Errorf("got %d vectors for 1 question", len(vectors))})
	}

	start = time.Now()
	res, err := q.deps.Store.Search(ctx, q.cfg.Collection, vectors[0], topK)
	observeStage(pipelineQuery, StageSearch, start)
	if err != nil {
		return nil, stageErr(StageSearch, err)
	}

	ContextsRetrieved.Observe(float64(len(res.Contexts)))
	span.SetAttributes(attribute.Int("contexts", len(res.Contexts)))
	q.deps.Logger.Debug(ctx, "contexts retrieved",
		zap.Int("contexts", len(res.Contexts)),
		zap.Strings("sources", res.Sources))
	return &Retrieval{Contexts: res.Contexts, Sources: res.Sources}, nil
}

// Answer builds the prompt and calls the generator. It calls the generator
// even when r holds no contexts.
func (q *Querier) Answer(ctx context.Context, question string, r *Retrieval) (_ *QueryResult, err error) {
	ctx, span := tracer.Start(ctx, "rag.Answer")
	defer func() {
		endSpan(span, err)
		countRun(pipelineQuery, "generate_answer", err)
	}()

	if r == nil {
		r = &Retrieval{}
	}
	if len(r.Contexts) == 0 {
		q.deps.Logger.Info(ctx, "no contexts retrieved, generating without context")
	}

	start := time.Now()
	answer, err := q.deps.Generator.Generate(ctx, BuildPrompt(question, r.Contexts))
	observeStage(pipelineQuery, StageGenerate, start)
	if err != nil {
		return nil, stageErr(StageGenerate, err)
	}

	sources := r.Sources
	if sources == nil {
		sources = []string{}
	}
	return &QueryResult{Answer: answer, Sources: sources, NumContexts: len(r.Contexts)}, nil
}
