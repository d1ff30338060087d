package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/loader"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Embedder maps texts to vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Redactor scrubs secrets from loaded text.
type Redactor interface {
	Redact(ctx context.Context, text string) (string, error)
}

// IngestorDeps are the services the ingestion pipeline calls.
type IngestorDeps struct {
	Loader   loader.Loader
	Embedder Embedder
	Store    vectorstore.Store
	// Redactor is optional.
	Redactor Redactor
	Logger   *logging.Logger
}

// IngestConfig holds ingestion parameters.
type IngestConfig struct {
	Collection string
	// Dimension is the collection's vector size. Zero skips the check.
	Dimension int
	Chunking  chunker.Config
}

// ChunkSet is the output of LoadAndChunk and the input of EmbedAndUpsert.
type ChunkSet struct {
	SourceID string   `json:"source_id"`
	Chunks   []string `json:"chunks"`
}

// IngestResult is the Completed(ingested) terminal state.
type IngestResult struct {
	SourceID string   `json:"source_id"`
	Ingested int      `json:"ingested"`
	IDs      []string `json:"ids,omitempty"`
}

// Ingestor runs the ingestion pipeline. Safe for concurrent use when its
// dependencies are.
type Ingestor struct {
	deps IngestorDeps
	cfg  IngestConfig
}

// NewIngestor validates deps and config.
func NewIngestor(deps IngestorDeps, cfg IngestConfig) (*Ingestor, error) {
	if deps.Loader == nil || deps.Embedder == nil || deps.Store == nil {
		return nil, errdefs.Configf("ingestor", "loader, embedder and store are required")
	}
	if err := vectorstore.ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}
	if err := cfg.Chunking.Validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	return &Ingestor{deps: deps, cfg: cfg}, nil
}

// Ingest runs every stage for one document.
func (in *Ingestor) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	set, err := in.LoadAndChunk(ctx, req.PDFPath, req.SourceID)
	if err != nil {
		return nil, err
	}
	return in.EmbedAndUpsert(ctx, set)
}

// LoadAndChunk reads the document at path, optionally redacts it and splits
// each page into chunks; the chunk list is the pages' lists in page order.
// Whitespace-only documents yield an empty ChunkSet.
func (in *Ingestor) LoadAndChunk(ctx context.Context, path, sourceID string) (_ *ChunkSet, err error) {
	if sourceID == "" {
		sourceID = path
	}
	ctx = logging.WithSourceID(ctx, sourceID)
	ctx, span := tracer.Start(ctx, "rag.LoadAndChunk", trace.WithAttributes(attribute.String("source.id", sourceID)))
	defer func() {
		endSpan(span, err)
		countRun(pipelineIngest, "load_and_chunk", err)
	}()

	start := time.Now()
	pages, err := in.deps.Loader.Load(ctx, path)
	observeStage(pipelineIngest, StageLoad, start)
	if err != nil {
		return nil, stageErr(StageLoad, err)
	}

	if in.deps.Redactor != nil {
		start = time.Now()
		for i := range pages {
			if pages[i], err = in.deps.Redactor.Redact(ctx, pages[i]); err != nil {
				observeStage(pipelineIngest, StageRedact, start)
				return nil, stageErr(StageRedact, err)
			}
		}
		observeStage(pipelineIngest, StageRedact, start)
	}

	set := &ChunkSet{SourceID: sourceID, Chunks: []string{}}
	chars := 0
	start = time.Now()
	for _, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		chunks, err := chunker.Texts(page, in.cfg.Chunking.Size, in.cfg.Chunking.Overlap)
		if err != nil {
			observeStage(pipelineIngest, StageChunk, start)
			return nil, stageErr(StageChunk, err)
		}
		set.Chunks = append(set.Chunks, chunks...)
		chars += len(page)
	}
	observeStage(pipelineIngest, StageChunk, start)

	if len(set.Chunks) == 0 {
		in.deps.Logger.Warn(ctx, "document has no extractable text",
			zap.String("path", path),
			zap.Int("pages", len(pages)))
		return set, nil
	}
	span.SetAttributes(attribute.Int("pages", len(pages)), attribute.Int("chunks", len(set.Chunks)))

	in.deps.Logger.Debug(ctx, "document chunked",
		zap.String("path", path),
		zap.Int("pages", len(pages)),
		zap.Int("chars", chars),
		zap.Int("chunks", len(set.Chunks)))
	return set, nil
}

// EmbedAndUpsert embeds every chunk in one batch and writes the points.
// Re-running it with the same ChunkSet overwrites the same points.
func (in *Ingestor) EmbedAndUpsert(ctx context.Context, set *ChunkSet) (_ *IngestResult, err error) {
	if set == nil || set.SourceID == "" {
		return nil, errdefs.Configf("source_id", "required")
	}
	ctx = logging.WithSourceID(ctx, set.SourceID)
	ctx, span := tracer.Start(ctx, "rag.EmbedAndUpsert", trace.WithAttributes(
		attribute.String("source.id", set.SourceID),
		attribute.Int("chunks", len(set.Chunks)),
	))
	defer func() {
		endSpan(span, err)
		countRun(pipelineIngest, "embed_and_upsert", err)
	}()

	if len(set.Chunks) == 0 {
		return &IngestResult{SourceID: set.SourceID, Ingested: 0, IDs: []string{}}, nil
	}

	start := time.Now()
	vectors, err := in.deps.Embedder.Embed(ctx, set.Chunks)
	observeStage(pipelineIngest, StageEmbed, start)
	if err != nil {
		return nil, stageErr(StageEmbed, err)
	}
	if err := in.checkVectors(len(set.Chunks), vectors); err != nil {
		return nil, stageErr(StageEmbed, err)
	}

	ids := PointIDs(set.SourceID, len(set.Chunks))
	points := make([]vectorstore.Point, len(set.Chunks))
	for i, text := range set.Chunks {
		points[i] = vectorstore.Point{
			ID:     ids[i],
			Vector: vectors[i],
			Payload: vectorstore.Payload{
				Source:     set.SourceID,
				Text:       text,
				ChunkIndex: i,
			},
		}
	}

	start = time.Now()
	err = in.deps.Store.Upsert(ctx, in.cfg.Collection, points)
	observeStage(pipelineIngest, StageUpsert, start)
	if err != nil {
		return nil, stageErr(StageUpsert, err)
	}

	ChunksIngested.Add(float64(len(points)))
	in.deps.Logger.Info(ctx, "document ingested",
		zap.String("collection", in.cfg.Collection),
		zap.Int("ingested", len(points)))
	return &IngestResult{SourceID: set.SourceID, Ingested: len(points), IDs: ids}, nil
}

// checkVectors fails fast on count or dimension mismatches; vectors are
// never padded or truncated.
func (in *Ingestor) checkVectors(want int, vectors [][]float32) error {
	if len(vectors) != want {
		return &errdefs.EmbeddingServiceError{Err: fmt.Errorf("got %d vectors for %d chunks", len(vectors), want)}
	}
	if in.cfg.Dimension == 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != in.cfg.Dimension {
			return errdefs.Configf("collection.dimension",
				"embedding %d has dimension %d, collection %q expects %d", i, len(v), in.cfg.Collection, in.cfg.Dimension)
		}
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.kind", errdefs.KindOf(err)))
	}
	span.End()
}
