// Package vectorstore stores embedded chunks and answers nearest-neighbour
// queries. Qdrant (gRPC) and chromem-go (embedded) backends are provided.
package vectorstore

import (
	"context"
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

// Store is a vector collection backend.
type Store interface {
	// EnsureCollection creates the collection when absent. An existing
	// collection with a different dimension (or metric, where the backend
	// reports it) fails with *errdefs.SchemaMismatchError.
	EnsureCollection(ctx context.Context, spec CollectionSpec) error

	// Upsert writes points, overwriting existing ids. Failed batches are
	// reported in a single *errdefs.StorageError; later batches still run.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns at most topK hits ordered by descending similarity. A
	// missing or empty collection yields an empty result.
	Search(ctx context.Context, collection string, vector []float32, topK int) (*SearchResult, error)

	// Count returns the number of stored points, 0 for a missing collection.
	Count(ctx context.Context, collection string) (int, error)

	Close() error
}

// Distance metrics.
const (
	MetricCosine = "cosine"
	MetricDot    = "dot"
	MetricEuclid = "euclid"
)

// DefaultUpsertBatchSize bounds points per backend write.
const DefaultUpsertBatchSize = 64

// CollectionSpec describes a collection.
type CollectionSpec struct {
	Name      string
	Dimension int
	Metric    string
}

// Validate checks the spec. An empty metric means cosine.
func (s CollectionSpec) Validate() error {
	if err := ValidateCollectionName(s.Name); err != nil {
		return err
	}
	if s.Dimension <= 0 {
		return errdefs.Configf("collection.dimension", "must be positive, got %d", s.Dimension)
	}
	switch s.Metric {
	case "", MetricCosine, MetricDot, MetricEuclid:
	default:
		return errdefs.Configf("collection.metric", "unsupported metric %q", s.Metric)
	}
	return nil
}

func (s CollectionSpec) metric() string {
	if s.Metric == "" {
		return MetricCosine
	}
	return s.Metric
}

// Payload is the data stored alongside each vector.
type Payload struct {
	Source     string `json:"source"`
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunk_index"`
}

// Point is one stored vector.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Hit is one search match.
type Hit struct {
	ID      string  `json:"id"`
	Score   float32 `json:"score"`
	Payload Payload `json:"payload"`
}

// SearchResult holds hits plus the derived context and source lists.
type SearchResult struct {
	Hits []Hit `json:"hits"`
	// Contexts are the non-empty hit texts in rank order.
	Contexts []string `json:"contexts"`
	// Sources are the distinct sources of Contexts in first-seen order.
	Sources []string `json:"sources"`
}

// NewSearchResult derives Contexts and Sources from hits.
func NewSearchResult(hits []Hit) *SearchResult {
	res := &SearchResult{
		Hits:     hits,
		Contexts: make([]string, 0, len(hits)),
		Sources:  make([]string, 0, len(hits)),
	}
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if h.Payload.Text == "" {
			continue
		}
		res.Contexts = append(res.Contexts, h.Payload.Text)
		if h.Payload.Source == "" {
			continue
		}
		if _, ok := seen[h.Payload.Source]; !ok {
			seen[h.Payload.Source] = struct{}{}
			res.Sources = append(res.Sources, h.Payload.Source)
		}
	}
	if res.Hits == nil {
		res.Hits = []Hit{}
	}
	return res
}

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateCollectionName rejects names outside ^[a-z0-9_-]{1,64}$.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return errdefs.Configf("collection.name", "must match %s, got %q", collectionNamePattern, name)
	}
	return nil
}

func validateTopK(topK int) error {
	if topK < 1 {
		return errdefs.Configf("top_k", "must be at least 1, got %d", topK)
	}
	return nil
}

// checkVectors verifies every point carries an id and a vector of length dim.
// dim 0 means unknown and only checks consistency between points.
func checkVectors(collection string, dim int, points []Point) error {
	for i, p := range points {
		if p.ID == "" {
			return errdefs.Configf("point.id", "point %d has an empty id", i)
		}
		if dim == 0 {
			dim = len(p.Vector)
		}
		if len(p.Vector) != dim {
			return &errdefs.SchemaMismatchError{
				Collection:    collection,
				WantDimension: dim,
				GotDimension:  len(p.Vector),
				Detail:        fmt.Sprintf("point %s", p.ID),
			}
		}
	}
	return nil
}

// batches splits points into runs of at most size.
func batches(points []Point, size int) [][]Point {
	if size <= 0 {
		size = DefaultUpsertBatchSize
	}
	out := make([][]Point, 0, (len(points)+size-1)/size)
	for start := 0; start < len(points); start += size {
		out = append(out, points[start:min(start+size, len(points))])
	}
	return out
}

func ids(points []Point) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.ID
	}
	return out
}
