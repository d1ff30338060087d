package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

const testCollection = "docs"

type PipelineSuite struct {
	suite.Suite
	ctx      context.Context
	store    *vectorstore.ChromemStore
	embedder *hashEmbedder
	loader   mapLoader
	gen      *mockGenerator
	logs     *logging.TestLogger
	ingestor *Ingestor
	querier  *Querier
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctx = context.Background()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, nil)
	s.Require().NoError(err)
	s.Require().NoError(store.EnsureCollection(s.ctx, vectorstore.CollectionSpec{Name: testCollection, Dimension: testDim}))
	s.store = store

	s.embedder = &hashEmbedder{}
	s.loader = mapLoader{}
	s.gen = &mockGenerator{}
	s.logs = logging.NewTestLogger()

	s.ingestor, err = NewIngestor(IngestorDeps{
		Loader:   s.loader,
		Embedder: s.embedder,
		Store:    store,
		Logger:   s.logs.Logger,
	}, IngestConfig{Collection: testCollection, Dimension: testDim, Chunking: chunker.DefaultConfig()})
	s.Require().NoError(err)

	s.querier, err = NewQuerier(QuerierDeps{
		Embedder:  s.embedder,
		Store:     store,
		Generator: s.gen,
		Logger:    s.logs.Logger,
	}, QueryConfig{Collection: testCollection})
	s.Require().NoError(err)
}

func (s *PipelineSuite) count() int {
	n, err := s.store.Count(s.ctx, testCollection)
	s.Require().NoError(err)
	return n
}

func (s *PipelineSuite) TestIngest_SingleChunkDocument() {
	s.loader["a.pdf"] = "A. B. C."

	res, err := s.ingestor.Ingest(s.ctx, IngestRequest{PDFPath: "a.pdf", SourceID: "doc1"})
	s.Require().NoError(err)
	s.Equal(1, res.Ingested)
	s.Equal("doc1", res.SourceID)
	s.Equal([]string{PointID("doc1", 0)}, res.IDs)
	s.Equal(1, s.count())

	s.logs.AssertField(s.T(), "document ingested", "source.id", "doc1")
	s.logs.AssertField(s.T(), "document ingested", "ingested", int64(1))
}

func (s *PipelineSuite) TestIngest_SourceIDDefaultsToPath() {
	s.loader["b.pdf"] = "Some text."

	res, err := s.ingestor.Ingest(s.ctx, IngestRequest{PDFPath: "b.pdf"})
	s.Require().NoError(err)
	s.Equal("b.pdf", res.SourceID)
}

func (s *PipelineSuite) TestIngest_IsIdempotent() {
	s.loader["long.pdf"] = strings.Repeat("The quick brown fox jumps over the lazy dog. ", 80)

	first, err := s.ingestor.Ingest(s.ctx, IngestRequest{PDFPath: "long.pdf", SourceID: "fox"})
	s.Require().NoError(err)
	s.Greater(first.Ingested, 1)
	n := s.count()

	second, err := s.ingestor.Ingest(s.ctx, IngestRequest{PDFPath: "long.pdf", SourceID: "fox"})
	s.Require().NoError(err)
	s.Equal(first.IDs, second.IDs)
	s.Equal(first.Ingested, second.Ingested)
	s.Equal(n, s.count(), "re-ingestion overwrites")
}

func (s *PipelineSuite) TestIngest_EditedDocumentOverwrites() {
	s.loader["a.pdf"] = "Original content."
	first, err := s.ingestor.Ingest(s.ctx, IngestRequest{PDFPath: "a.pdf", SourceID: "doc1"})
	s.Require().NoError(err)

	s.loader["a.pdf"] = "Edited content."
	second, err := s.ingestor.Ingest(s.ctx, IngestRequest{PDFPath: "a.pdf", SourceID: "doc1"})
	s.Require().NoError(err)

	s.Equal(first.IDs, second.IDs)
	s.Equal(1, s.count())

	s.gen.On("Generate", mock.Anything, mock.Anything).Return("edited", nil).Once()
	out, err := s.querier.Query(s.ctx, NewQueryRequest("content?", 5))
	s.Require().NoError(err)
	s.Equal(1, out.NumContexts)
	prompt := s.gen.Calls[0].Arguments.String(1)
	s.Contains(prompt, "- Edited content.")
	s.NotContains(prompt, "Original")
}

func (s *PipelineSuite) TestIngest_WhitespaceDocumentShortCircuits() {
	s.loader["blank.pdf"] = " \n\t "

	res, err := s.ingestor.Ingest(s.ctx, IngestRequest{PDFPath: "blank.pdf"})
	s.Require().NoError(err)
	s.Zero(res.Ingested)
	s.Zero(s.embedder.Calls())
	s.Zero(s.count())
	s.logs.AssertLogged(s.T(), zapcore.WarnLevel, "no extractable text")
}

func (s *PipelineSuite) TestIngest_LoadFailure() {
	_, err := s.ingestor.Ingest(s.ctx, IngestRequest{PDFPath: "missing.pdf"})

	var stage *StageError
	s.Require().ErrorAs(err, &stage)
	s.Equal(StageLoad, stage.Stage)
	s.Equal(errdefs.KindSourceRead, errdefs.KindOf(err))
	s.False(errdefs.Retryable(err))
}

func (s *PipelineSuite) TestIngest_EmbeddingFailureIsRetryable() {
	s.loader["a.pdf"] = "text"
	s.embedder.err = &errdefs.EmbeddingServiceError{Model: "m", Err: errBoom}

	_, err := s.ingestor.Ingest(s.ctx, IngestRequest{PDFPath: "a.pdf"})
	var stage *StageError
	s.Require().ErrorAs(err, &stage)
	s.Equal(StageEmbed, stage.Stage)
	s.True(errdefs.Retryable(err))
	s.Zero(s.count())
}

func (s *PipelineSuite) TestIngest_WrongDimensionFailsFast() {
	s.loader["a.pdf"] = "text"
	s.embedder.dim = testDim + 1

	_, err := s.ingestor.Ingest(s.ctx, IngestRequest{PDFPath: "a.pdf"})
	var cfgErr *errdefs.ConfigurationError
	s.Require().ErrorAs(err, &cfgErr)
	s.Equal("collection.dimension", cfgErr.Field)
	s.Zero(s.count())
}

func (s *PipelineSuite) TestQuery_MultipleSources() {
	_, err := s.ingestor.EmbedAndUpsert(s.ctx, &ChunkSet{SourceID: "doc1", Chunks: []string{"alpha one", "alpha two"}})
	s.Require().NoError(err)
	_, err = s.ingestor.EmbedAndUpsert(s.ctx, &ChunkSet{SourceID: "doc2", Chunks: []string{"beta"}})
	s.Require().NoError(err)

	s.gen.On("Generate", mock.Anything, mock.Anything).Return("answer", nil).Once()

	res, err := s.querier.Query(s.ctx, NewQueryRequest("alpha?", 5))
	s.Require().NoError(err)
	s.Equal("answer", res.Answer)
	s.Equal(3, res.NumContexts)
	s.ElementsMatch([]string{"doc1", "doc2"}, res.Sources)
	s.gen.AssertExpectations(s.T())
}

func (s *PipelineSuite) TestQuery_TopKBoundsContexts() {
	_, err := s.ingestor.EmbedAndUpsert(s.ctx, &ChunkSet{SourceID: "doc1", Chunks: []string{"a", "b", "c", "d"}})
	s.Require().NoError(err)
	s.gen.On("Generate", mock.Anything, mock.Anything).Return("ok", nil)

	res, err := s.querier.Query(s.ctx, NewQueryRequest("q", 2))
	s.Require().NoError(err)
	s.Equal(2, res.NumContexts)
	s.Equal([]string{"doc1"}, res.Sources)
}

func (s *PipelineSuite) TestQuery_EmptyCollectionStillGenerates() {
	s.gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Question: anyone?")
	})).Return("I don't know.", nil).Once()

	res, err := s.querier.Query(s.ctx, QueryRequest{Question: "anyone?"})
	s.Require().NoError(err)
	s.Equal(0, res.NumContexts)
	s.NotNil(res.Sources)
	s.Empty(res.Sources)
	s.gen.AssertExpectations(s.T())
}

func (s *PipelineSuite) TestQuery_InvalidTopK() {
	_, err := s.querier.Query(s.ctx, NewQueryRequest("q", 0))
	s.Equal(errdefs.KindConfiguration, errdefs.KindOf(err))
	s.Zero(s.embedder.Calls())
}

func (s *PipelineSuite) TestQuery_GenerationFailure() {
	s.gen.On("Generate", mock.Anything, mock.Anything).
		Return("", &errdefs.GenerationServiceError{Model: "m", Err: errBoom})

	_, err := s.querier.Query(s.ctx, QueryRequest{Question: "q"})
	var stage *StageError
	s.Require().ErrorAs(err, &stage)
	s.Equal(StageGenerate, stage.Stage)
	s.Equal(errdefs.KindGenerationService, errdefs.KindOf(err))
}

func TestLoadAndChunk_Redacts(t *testing.T) {
	ing, err := NewIngestor(IngestorDeps{
		Loader:   mapLoader{"a.txt": "secret here"},
		Embedder: &hashEmbedder{},
		Store:    newNopStore(),
		Redactor: upperRedactor{},
	}, IngestConfig{Collection: testCollection, Chunking: chunker.DefaultConfig()})
	require.NoError(t, err)

	set, err := ing.LoadAndChunk(context.Background(), "a.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", set.SourceID)
	assert.Equal(t, []string{"[scrubbed] secret here"}, set.Chunks)
}

func TestLoadAndChunk_ChunksEachPageSeparately(t *testing.T) {
	page1 := "Cats purr when content. Cats sleep most of the day."
	page2 := "Dogs bark at strangers. Dogs fetch sticks in the park."
	ing, err := NewIngestor(IngestorDeps{
		Loader:   mapLoader{"two.pdf": page1 + "\f" + page2 + "\f   "},
		Embedder: &hashEmbedder{},
		Store:    newNopStore(),
	}, IngestConfig{Collection: testCollection, Chunking: chunker.Config{Size: 30, Overlap: 8}})
	require.NoError(t, err)

	set, err := ing.LoadAndChunk(context.Background(), "two.pdf", "two")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(set.Chunks), 4)

	want1, err := chunker.Texts(page1, 30, 8)
	require.NoError(t, err)
	want2, err := chunker.Texts(page2, 30, 8)
	require.NoError(t, err)
	assert.Equal(t, append(want1, want2...), set.Chunks)

	for _, c := range set.Chunks {
		spansJoin := strings.Contains(c, "day.") && strings.Contains(c, "Dogs")
		assert.False(t, spansJoin, "chunk %q crosses the page break", c)
	}
}

func TestLoadAndChunk_RedactFailure(t *testing.T) {
	ing, err := NewIngestor(IngestorDeps{
		Loader:   mapLoader{"a.txt": "x"},
		Embedder: &hashEmbedder{},
		Store:    newNopStore(),
		Redactor: upperRedactor{err: errBoom},
	}, IngestConfig{Collection: testCollection, Chunking: chunker.DefaultConfig()})
	require.NoError(t, err)

	_, err = ing.LoadAndChunk(context.Background(), "a.txt", "a")
	var stage *StageError
	require.ErrorAs(t, err, &stage)
	assert.Equal(t, StageRedact, stage.Stage)
}

func TestEmbedAndUpsert_EmptySetSkipsEmbedder(t *testing.T) {
	emb := &hashEmbedder{}
	ing, err := NewIngestor(IngestorDeps{Loader: mapLoader{}, Embedder: emb, Store: newNopStore()},
		IngestConfig{Collection: testCollection, Chunking: chunker.DefaultConfig()})
	require.NoError(t, err)

	res, err := ing.EmbedAndUpsert(context.Background(), &ChunkSet{SourceID: "x", Chunks: nil})
	require.NoError(t, err)
	assert.Zero(t, res.Ingested)
	assert.Zero(t, emb.Calls())

	_, err = ing.EmbedAndUpsert(context.Background(), &ChunkSet{})
	assert.Equal(t, errdefs.KindConfiguration, errdefs.KindOf(err))
}

func TestNewIngestor_Validation(t *testing.T) {
	_, err := NewIngestor(IngestorDeps{}, IngestConfig{Collection: testCollection, Chunking: chunker.DefaultConfig()})
	assert.Error(t, err)

	deps := IngestorDeps{Loader: mapLoader{}, Embedder: &hashEmbedder{}, Store: newNopStore()}
	_, err = NewIngestor(deps, IngestConfig{Collection: "Bad Name", Chunking: chunker.DefaultConfig()})
	assert.Equal(t, errdefs.KindConfiguration, errdefs.KindOf(err))

	_, err = NewIngestor(deps, IngestConfig{Collection: testCollection, Chunking: chunker.Config{Size: 10, Overlap: 10}})
	assert.Equal(t, errdefs.KindConfiguration, errdefs.KindOf(err))
}

func TestNewQuerier_Validation(t *testing.T) {
	_, err := NewQuerier(QuerierDeps{Embedder: &hashEmbedder{}, Store: newNopStore()}, QueryConfig{Collection: testCollection})
	assert.Error(t, err)
}

// nopStore accepts writes and returns empty searches.
type nopStore struct{ vectorstore.Store }

func newNopStore() nopStore { return nopStore{} }

func (nopStore) Upsert(context.Context, string, []vectorstore.Point) error { return nil }

func (nopStore) Search(context.Context, string, []float32, int) (*vectorstore.SearchResult, error) {
	return vectorstore.NewSearchResult(nil), nil
}
