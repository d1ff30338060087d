package vectorstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/logging"
)

const backendChromem = "chromem"

// ErrCollectionNotFound is wrapped in StorageErrors for writes to a
// collection that was never ensured.
var ErrCollectionNotFound = errors.New("collection not found")

// ChromemConfig configures the embedded store. An empty Path keeps data in
// memory for the life of the process.
type ChromemConfig struct {
	Path            string
	Compress        bool
	UpsertBatchSize int
}

// ChromemStore implements Store with chromem-go. It only supports cosine
// similarity.
type ChromemStore struct {
	db        *chromem.DB
	batchSize int
	logger    *logging.Logger

	// dims caches dimensions known from EnsureCollection or probing.
	dims sync.Map
}

var _ Store = (*ChromemStore)(nil)

// NewChromemStore opens (or creates) the database.
func NewChromemStore(cfg ChromemConfig, logger *logging.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	batch := cfg.UpsertBatchSize
	if batch <= 0 {
		batch = DefaultUpsertBatchSize
	}

	if cfg.Path == "" {
		return &ChromemStore{db: chromem.NewDB(), batchSize: batch, logger: logger}, nil
	}

	path, err := expandHome(cfg.Path)
	if err != nil {
		return nil, errdefs.Configf("chromem.path", "%v", err)
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, &errdefs.StorageError{Op: "open", Err: err}
	}
	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, &errdefs.StorageError{Op: "open", Err: err}
	}
	return &ChromemStore{db: db, batchSize: batch, logger: logger}, nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}

// precomputed is the collection embedding func. Vectors always arrive with
// the documents, so chromem must never embed on its own.
func precomputed(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem: embeddings must be supplied by the caller")
}

func (s *ChromemStore) collection(name string) *chromem.Collection {
	return s.db.GetCollection(name, precomputed)
}

// EnsureCollection implements Store.
func (s *ChromemStore) EnsureCollection(ctx context.Context, spec CollectionSpec) (err error) {
	ctx, o := startOp(ctx, backendChromem, "EnsureCollection", spec.Name)
	defer func() { o.end(err) }()

	if err := spec.Validate(); err != nil {
		return err
	}
	if spec.metric() != MetricCosine {
		return errdefs.Configf("collection.metric", "chromem only supports cosine, got %q", spec.Metric)
	}

	if c := s.collection(spec.Name); c != nil {
		got, err := s.probeDimension(ctx, c, spec.Dimension)
		if err != nil {
			return err
		}
		if got != 0 && got != spec.Dimension {
			return &errdefs.SchemaMismatchError{Collection: spec.Name, WantDimension: spec.Dimension, GotDimension: got}
		}
		s.dims.Store(spec.Name, spec.Dimension)
		return nil
	}

	_, err = s.db.GetOrCreateCollection(spec.Name, map[string]string{
		"dimension": strconv.Itoa(spec.Dimension),
		"metric":    MetricCosine,
	}, precomputed)
	if err != nil {
		return &errdefs.StorageError{Op: "create_collection", Collection: spec.Name, Err: err}
	}
	s.dims.Store(spec.Name, spec.Dimension)
	s.logger.Info(ctx, "created collection",
		zap.String("collection", spec.Name),
		zap.Int("dimension", spec.Dimension))
	return nil
}

// probeDimension returns the stored vector length of a non-empty collection,
// or 0 when it is empty. chromem does not record a schema, so one stored
// document is read back.
func (s *ChromemStore) probeDimension(ctx context.Context, c *chromem.Collection, want int) (int, error) {
	if v, ok := s.dims.Load(c.Name); ok {
		return v.(int), nil
	}
	if c.Count() == 0 {
		return 0, nil
	}
	probe := make([]float32, want)
	probe[0] = 1
	res, err := c.QueryEmbedding(ctx, probe, 1, nil, nil)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		// chromem rejects queries whose length differs from stored vectors
		return -1, &errdefs.SchemaMismatchError{Collection: c.Name, WantDimension: want, Detail: err.Error()}
	}
	if len(res) == 0 {
		return 0, nil
	}
	return len(res[0].Embedding), nil
}

func (s *ChromemStore) knownDim(collection string) int {
	if v, ok := s.dims.Load(collection); ok {
		return v.(int)
	}
	return 0
}

// Upsert implements Store.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, points []Point) (err error) {
	if len(points) == 0 {
		return nil
	}
	ctx, o := startOp(ctx, backendChromem, "Upsert", collection)
	defer func() { o.end(err) }()

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	c := s.collection(collection)
	if c == nil {
		return &errdefs.StorageError{Op: "upsert", Collection: collection, FailedIDs: ids(points), Err: ErrCollectionNotFound}
	}
	if err := checkVectors(collection, s.knownDim(collection), points); err != nil {
		return err
	}

	var (
		failed []string
		errs   []error
	)
	for _, batch := range batches(points, s.batchSize) {
		docs := make([]chromem.Document, len(batch))
		for i, p := range batch {
			docs[i] = chromem.Document{
				ID: p.ID,
				Metadata: map[string]string{
					"source":      p.Payload.Source,
					"chunk_index": strconv.Itoa(p.Payload.ChunkIndex),
				},
				// chromem normalizes in place; keep the caller's slice intact
				Embedding: append([]float32(nil), p.Vector...),
				Content:   p.Payload.Text,
			}
		}
		if err := c.AddDocuments(ctx, docs, 1); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed = append(failed, ids(batch)...)
			errs = append(errs, err)
			continue
		}
		PointsUpserted.WithLabelValues(backendChromem).Add(float64(len(batch)))
	}

	if len(errs) > 0 {
		return &errdefs.StorageError{Op: "upsert", Collection: collection, FailedIDs: failed, Err: errors.Join(errs...)}
	}
	return nil
}

// Search implements Store.
func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, topK int) (_ *SearchResult, err error) {
	ctx, o := startOp(ctx, backendChromem, "Search", collection)
	defer func() { o.end(err) }()

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if err := validateTopK(topK); err != nil {
		return nil, err
	}
	if dim := s.knownDim(collection); dim != 0 && len(vector) != dim {
		return nil, &errdefs.SchemaMismatchError{Collection: collection, WantDimension: dim, GotDimension: len(vector), Detail: "query vector"}
	}

	c := s.collection(collection)
	if c == nil || c.Count() == 0 {
		return NewSearchResult(nil), nil
	}

	// chromem rejects nResults above the document count
	n := min(topK, c.Count())
	results, err := c.QueryEmbedding(ctx, append([]float32(nil), vector...), n, nil, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errdefs.StorageError{Op: "search", Collection: collection, Err: err}
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		idx, _ := strconv.Atoi(r.Metadata["chunk_index"])
		hits = append(hits, Hit{
			ID:    r.ID,
			Score: r.Similarity,
			Payload: Payload{
				Source:     r.Metadata["source"],
				Text:       r.Content,
				ChunkIndex: idx,
			},
		})
	}
	return NewSearchResult(hits), nil
}

// Count implements Store.
func (s *ChromemStore) Count(ctx context.Context, collection string) (int, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return 0, err
	}
	c := s.collection(collection)
	if c == nil {
		return 0, nil
	}
	return c.Count(), nil
}

// Close is a no-op; persistent chromem writes through on every add.
func (s *ChromemStore) Close() error {
	return nil
}
