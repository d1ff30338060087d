package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/logging"
)

const backendQdrant = "qdrant"

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host string
	// Port is the gRPC port (6334), not the REST port.
	Port            int
	APIKey          string
	UseTLS          bool
	UpsertBatchSize int
	MaxMessageSize  int
}

// Validate checks connection settings.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return errdefs.Configf("qdrant.host", "required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errdefs.Configf("qdrant.port", "invalid port %d", c.Port)
	}
	return nil
}

// qdrantAPI is the subset of *qdrant.Client the store uses.
type qdrantAPI interface {
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Close() error
}

// QdrantStore implements Store over Qdrant's native gRPC API, which avoids
// the REST layer's request size limit on large upserts.
type QdrantStore struct {
	client    qdrantAPI
	batchSize int
	logger    *logging.Logger

	// dims caches collection dimensions seen by EnsureCollection.
	dims sync.Map
}

var _ Store = (*QdrantStore)(nil)

// NewQdrantStore connects and health-checks the server.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, logger *logging.Logger) (*QdrantStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 50 * 1024 * 1024
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, &errdefs.StorageError{Op: "connect", Err: err}
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, &errdefs.StorageError{Op: "connect", Err: fmt.Errorf("health check %s:%d: %w", cfg.Host, cfg.Port, err)}
	}

	if !cfg.UseTLS && cfg.APIKey != "" {
		logger.Warn(ctx, "qdrant api key sent over plaintext gRPC", zap.String("host", cfg.Host))
	}
	return newQdrantStore(client, cfg.UpsertBatchSize, logger), nil
}

func newQdrantStore(client qdrantAPI, batchSize int, logger *logging.Logger) *QdrantStore {
	if logger == nil {
		logger = logging.NewNop()
	}
	if batchSize <= 0 {
		batchSize = DefaultUpsertBatchSize
	}
	return &QdrantStore{client: client, batchSize: batchSize, logger: logger}
}

// EnsureCollection implements Store.
func (s *QdrantStore) EnsureCollection(ctx context.Context, spec CollectionSpec) (err error) {
	ctx, o := startOp(ctx, backendQdrant, "EnsureCollection", spec.Name)
	defer func() { o.end(err) }()

	if err := spec.Validate(); err != nil {
		return err
	}
	distance := qdrantDistance(spec.metric())

	info, err := s.client.GetCollectionInfo(ctx, spec.Name)
	switch {
	case isNotFound(err):
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: spec.Name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(spec.Dimension),
				Distance: distance,
			}),
		})
		if status.Code(err) == grpccodes.AlreadyExists {
			// lost a creation race; verify what the winner created
			return s.EnsureCollection(ctx, spec)
		}
		if err != nil {
			return &errdefs.StorageError{Op: "create_collection", Collection: spec.Name, Err: err}
		}
		s.logger.Info(ctx, "created collection",
			zap.String("collection", spec.Name),
			zap.Int("dimension", spec.Dimension),
			zap.String("metric", spec.metric()))
	case err != nil:
		return &errdefs.StorageError{Op: "collection_info", Collection: spec.Name, Err: err}
	default:
		params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
		if params == nil {
			return &errdefs.SchemaMismatchError{
				Collection:    spec.Name,
				WantDimension: spec.Dimension,
				Detail:        "collection uses named vectors",
			}
		}
		if got := int(params.GetSize()); got != spec.Dimension {
			return &errdefs.SchemaMismatchError{Collection: spec.Name, WantDimension: spec.Dimension, GotDimension: got}
		}
		if params.GetDistance() != distance {
			return &errdefs.SchemaMismatchError{
				Collection:    spec.Name,
				WantDimension: spec.Dimension,
				GotDimension:  spec.Dimension,
				Detail:        fmt.Sprintf("distance %s, want %s", params.GetDistance(), distance),
			}
		}
	}

	s.dims.Store(spec.Name, spec.Dimension)
	return nil
}

// Upsert implements Store.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) (err error) {
	if len(points) == 0 {
		return nil
	}
	ctx, o := startOp(ctx, backendQdrant, "Upsert", collection)
	defer func() { o.end(err) }()

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if err := checkVectors(collection, s.knownDim(collection), points); err != nil {
		return err
	}

	var (
		failed []string
		errs   []error
	)
	for _, batch := range batches(points, s.batchSize) {
		structs := make([]*qdrant.PointStruct, len(batch))
		for i, p := range batch {
			structs[i] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(p.ID),
				Vectors: qdrant.NewVectors(p.Vector...),
				Payload: qdrantPayload(p.Payload),
			}
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         structs,
		})
		if err != nil {
			failed = append(failed, ids(batch)...)
			errs = append(errs, err)
			continue
		}
		PointsUpserted.WithLabelValues(backendQdrant).Add(float64(len(batch)))
	}

	if len(errs) > 0 {
		return &errdefs.StorageError{Op: "upsert", Collection: collection, FailedIDs: failed, Err: errors.Join(errs...)}
	}
	return nil
}

// Search implements Store.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, topK int) (_ *SearchResult, err error) {
	ctx, o := startOp(ctx, backendQdrant, "Search", collection)
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

	scored, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if isNotFound(err) {
		return NewSearchResult(nil), nil
	}
	if err != nil {
		return nil, &errdefs.StorageError{Op: "search", Collection: collection, Err: err}
	}

	hits := make([]Hit, 0, len(scored))
	for _, p := range scored {
		hits = append(hits, Hit{
			ID:      qdrantID(p.GetId()),
			Score:   p.GetScore(),
			Payload: payloadFromQdrant(p.GetPayload()),
		})
	}
	return NewSearchResult(hits), nil
}

// Count implements Store.
func (s *QdrantStore) Count(ctx context.Context, collection string) (_ int, err error) {
	ctx, o := startOp(ctx, backendQdrant, "Count", collection)
	defer func() { o.end(err) }()

	if err := ValidateCollectionName(collection); err != nil {
		return 0, err
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, &errdefs.StorageError{Op: "count", Collection: collection, Err: err}
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func (s *QdrantStore) knownDim(collection string) int {
	if v, ok := s.dims.Load(collection); ok {
		return v.(int)
	}
	return 0
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.NotFound
}

func qdrantDistance(metric string) qdrant.Distance {
	switch metric {
	case MetricDot:
		return qdrant.Distance_Dot
	case MetricEuclid:
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

func qdrantPayload(p Payload) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		"source":      qdrant.NewValueString(p.Source),
		"text":        qdrant.NewValueString(p.Text),
		"chunk_index": qdrant.NewValueInt(int64(p.ChunkIndex)),
	}
}

func payloadFromQdrant(m map[string]*qdrant.Value) Payload {
	return Payload{
		Source:     m["source"].GetStringValue(),
		Text:       m["text"].GetStringValue(),
		ChunkIndex: int(m["chunk_index"].GetIntegerValue()),
	}
}

func qdrantID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}
