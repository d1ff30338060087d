package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

// Service implements Provider over a backend. It never retries; callers
// own retry policy.
type Service struct {
	b       backend
	model   string
	metrics *Metrics

	mu        sync.RWMutex
	dimension int
}

var _ Provider = (*Service)(nil)

func newService(b backend, model string, dimension int) *Service {
	return &Service{
		b:         b,
		model:     model,
		dimension: dimension,
		metrics:   NewMetrics(),
	}
}

// Embed implements Provider.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors, err := s.embed(ctx, texts)
	s.metrics.RecordGeneration(ctx, s.model, time.Since(start), len(texts), err)
	return vectors, err
}

func (s *Service) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := s.b.embed(ctx, texts)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		var cfgErr *errdefs.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &errdefs.EmbeddingServiceError{Model: s.model, Err: err}
	}

	if len(vectors) != len(texts) {
		return nil, &errdefs.EmbeddingServiceError{
			Model: s.model,
			Err:   fmt.Errorf("requested %d embeddings, received %d", len(texts), len(vectors)),
		}
	}
	width := len(vectors[0])
	if width == 0 {
		return nil, &errdefs.EmbeddingServiceError{Model: s.model, Err: errors.New("received empty vector")}
	}
	for i, v := range vectors {
		if len(v) != width {
			return nil, &errdefs.EmbeddingServiceError{
				Model: s.model,
				Err:   fmt.Errorf("vector %d has length %d, expected %d", i, len(v), width),
			}
		}
	}

	s.mu.Lock()
	if s.dimension == 0 {
		s.dimension = width
	}
	s.mu.Unlock()

	return vectors, nil
}

// Dimension implements Provider. An unknown dimension is learned from the
// first successful call.
func (s *Service) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Model implements Provider.
func (s *Service) Model() string {
	return s.model
}

// Close implements Provider.
func (s *Service) Close() error {
	return s.b.close()
}
