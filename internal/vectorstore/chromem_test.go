package vectorstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/codes"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
)

type ChromemStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *ChromemStore
}

func TestChromemStoreSuite(t *testing.T) {
	suite.Run(t, new(ChromemStoreSuite))
}

func (s *ChromemStoreSuite) SetupTest() {
	s.ctx = context.Background()
	store, err := NewChromemStore(ChromemConfig{UpsertBatchSize: 2}, nil)
	s.Require().NoError(err)
	s.store = store
	s.Require().NoError(store.EnsureCollection(s.ctx, CollectionSpec{Name: "docs", Dimension: 3}))
}

func point(id, source, text string, v ...float32) Point {
	return Point{ID: id, Vector: v, Payload: Payload{Source: source, Text: text}}
}

func (s *ChromemStoreSuite) TestEnsureCollection_Idempotent() {
	spec := CollectionSpec{Name: "docs", Dimension: 3, Metric: MetricCosine}
	s.NoError(s.store.EnsureCollection(s.ctx, spec))
	s.NoError(s.store.EnsureCollection(s.ctx, spec))
}

func (s *ChromemStoreSuite) TestEnsureCollection_DimensionMismatch() {
	err := s.store.EnsureCollection(s.ctx, CollectionSpec{Name: "docs", Dimension: 4})
	var schemaErr *errdefs.SchemaMismatchError
	s.Require().ErrorAs(err, &schemaErr)
	s.Equal(4, schemaErr.WantDimension)
	s.Equal(3, schemaErr.GotDimension)
	s.False(errdefs.Retryable(err))
}

func (s *ChromemStoreSuite) TestEnsureCollection_RejectsNonCosine() {
	err := s.store.EnsureCollection(s.ctx, CollectionSpec{Name: "other", Dimension: 3, Metric: MetricDot})
	s.Equal(errdefs.KindConfiguration, errdefs.KindOf(err))
}

func (s *ChromemStoreSuite) TestUpsertAndSearch() {
	s.Require().NoError(s.store.Upsert(s.ctx, "docs", []Point{
		point("p1", "a.pdf", "about cats", 1, 0, 0),
		point("p2", "b.pdf", "about dogs", 0, 1, 0),
		point("p3", "a.pdf", "about birds", 0, 0, 1),
	}))

	n, err := s.store.Count(s.ctx, "docs")
	s.Require().NoError(err)
	s.Equal(3, n)

	res, err := s.store.Search(s.ctx, "docs", []float32{0.9, 0.1, 0}, 2)
	s.Require().NoError(err)
	s.Require().Len(res.Hits, 2)
	s.Equal("p1", res.Hits[0].ID)
	s.Equal("p2", res.Hits[1].ID)
	s.GreaterOrEqual(res.Hits[0].Score, res.Hits[1].Score)
	s.Equal([]string{"about cats", "about dogs"}, res.Contexts)
	s.Equal([]string{"a.pdf", "b.pdf"}, res.Sources)
}

func (s *ChromemStoreSuite) TestSearch_EmptyTextContributesNoSource() {
	s.Require().NoError(s.store.Upsert(s.ctx, "docs", []Point{
		point("p1", "doc1", "alpha", 1, 0, 0),
		point("p3", "doc3", "", 0.9, 0.1, 0),
	}))

	res, err := s.store.Search(s.ctx, "docs", []float32{1, 0, 0}, 5)
	s.Require().NoError(err)
	s.Len(res.Hits, 2)
	s.Equal([]string{"alpha"}, res.Contexts)
	s.Equal([]string{"doc1"}, res.Sources)
}

func (s *ChromemStoreSuite) TestUpsert_OverwritesByID() {
	s.Require().NoError(s.store.Upsert(s.ctx, "docs", []Point{point("p1", "a.pdf", "old", 1, 0, 0)}))
	s.Require().NoError(s.store.Upsert(s.ctx, "docs", []Point{point("p1", "a.pdf", "new", 1, 0, 0)}))

	n, err := s.store.Count(s.ctx, "docs")
	s.Require().NoError(err)
	s.Equal(1, n)

	res, err := s.store.Search(s.ctx, "docs", []float32{1, 0, 0}, 5)
	s.Require().NoError(err)
	s.Equal([]string{"new"}, res.Contexts)
}

func (s *ChromemStoreSuite) TestUpsert_ManyBatches() {
	points := make([]Point, 7)
	for i := range points {
		points[i] = point(fmt.Sprintf("p%d", i), "a.pdf", fmt.Sprintf("chunk %d", i), 1, float32(i), 0)
	}
	s.Require().NoError(s.store.Upsert(s.ctx, "docs", points))

	n, err := s.store.Count(s.ctx, "docs")
	s.Require().NoError(err)
	s.Equal(7, n)
}

func (s *ChromemStoreSuite) TestUpsert_Empty() {
	s.NoError(s.store.Upsert(s.ctx, "docs", nil))
}

func (s *ChromemStoreSuite) TestUpsert_WrongDimension() {
	err := s.store.Upsert(s.ctx, "docs", []Point{point("p1", "a.pdf", "x", 1, 0)})
	var schemaErr *errdefs.SchemaMismatchError
	s.ErrorAs(err, &schemaErr)
}

func (s *ChromemStoreSuite) TestUpsert_MissingCollection() {
	err := s.store.Upsert(s.ctx, "nope", []Point{point("p1", "a.pdf", "x", 1, 0, 0)})
	var storeErr *errdefs.StorageError
	s.Require().ErrorAs(err, &storeErr)
	s.Equal([]string{"p1"}, storeErr.FailedIDs)
	s.ErrorIs(err, ErrCollectionNotFound)
}

func (s *ChromemStoreSuite) TestSearch_EmptyAndMissing() {
	res, err := s.store.Search(s.ctx, "docs", []float32{1, 0, 0}, 5)
	s.Require().NoError(err)
	s.Empty(res.Hits)

	res, err = s.store.Search(s.ctx, "missing", []float32{1, 0, 0}, 5)
	s.Require().NoError(err)
	s.Empty(res.Hits)

	n, err := s.store.Count(s.ctx, "missing")
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ChromemStoreSuite) TestSearch_TopKLargerThanCollection() {
	s.Require().NoError(s.store.Upsert(s.ctx, "docs", []Point{point("p1", "a.pdf", "only", 1, 0, 0)}))
	res, err := s.store.Search(s.ctx, "docs", []float32{1, 0, 0}, 50)
	s.Require().NoError(err)
	s.Len(res.Hits, 1)
}

func (s *ChromemStoreSuite) TestSearch_InvalidTopK() {
	for _, k := range []int{0, -1} {
		_, err := s.store.Search(s.ctx, "docs", []float32{1, 0, 0}, k)
		s.Equal(errdefs.KindConfiguration, errdefs.KindOf(err))
	}
}

func (s *ChromemStoreSuite) TestSearch_WrongDimension() {
	_, err := s.store.Search(s.ctx, "docs", []float32{1, 0}, 1)
	s.Equal(errdefs.KindSchemaMismatch, errdefs.KindOf(err))
}

func TestChromemStore_PersistentReopenDetectsMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewChromemStore(ChromemConfig{Path: dir}, nil)
	require.NoError(t, err)
	require.NoError(t, first.EnsureCollection(ctx, CollectionSpec{Name: "docs", Dimension: 3}))
	require.NoError(t, first.Upsert(ctx, "docs", []Point{point("p1", "a.pdf", "x", 1, 0, 0)}))

	second, err := NewChromemStore(ChromemConfig{Path: dir}, nil)
	require.NoError(t, err)
	n, err := second.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.NoError(t, second.EnsureCollection(ctx, CollectionSpec{Name: "docs", Dimension: 3}))

	third, err := NewChromemStore(ChromemConfig{Path: dir}, nil)
	require.NoError(t, err)
	err = third.EnsureCollection(ctx, CollectionSpec{Name: "docs", Dimension: 5})
	assert.Equal(t, errdefs.KindSchemaMismatch, errdefs.KindOf(err))
}

func TestChromemStore_RecordsSpans(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	tt.Install(t)

	ctx := context.Background()
	store, err := NewChromemStore(ChromemConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, store.EnsureCollection(ctx, CollectionSpec{Name: "docs", Dimension: 3}))
	_, err = store.Search(ctx, "docs", []float32{1, 0}, 1)
	require.Error(t, err)

	tt.AssertSpanExists(t, "vectorstore.EnsureCollection")
	tt.AssertSpanAttribute(t, "vectorstore.Search", "db.system", backendChromem)
	tt.AssertSpanAttribute(t, "vectorstore.Search", "collection", "docs")
	assert.Equal(t, codes.Error, tt.SpanByName("vectorstore.Search").Status().Code)
}
