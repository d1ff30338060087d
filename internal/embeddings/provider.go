// Package embeddings maps text to fixed-dimension vectors.
package embeddings

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

// Provider embeds batches of text.
type Provider interface {
	// Embed returns one vector per input, in input order. Empty input returns
	// an empty result without contacting the backend.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the vector length, or 0 when unknown.
	Dimension() int
	// Model returns the model name.
	Model() string
	Close() error
}

// backend is one concrete embedding client. Service adds validation,
// error typing and metrics on top.
type backend interface {
	embed(ctx context.Context, texts []string) ([][]float32, error)
	close() error
}

// Config selects and configures a backend.
type Config struct {
	Provider  string // openai, tei or fastembed
	BaseURL   string
	Model     string
	APIKey    string
	Dimension int // 0 resolves from KnownDimension
	BatchSize int
	CacheDir  string
}

// NewProvider builds the configured backend wrapped in a Service.
func NewProvider(cfg Config) (*Service, error) {
	if cfg.Model == "" {
		return nil, errdefs.Configf("embeddings.model", "required")
	}

	var (
		b   backend
		err error
	)
	switch cfg.Provider {
	case "openai", "":
		b, err = newOpenAIBackend(cfg)
	case "tei":
		b, err = newTEIBackend(cfg)
	case "fastembed":
		b, err = newFastEmbedBackend(cfg)
	default:
		return nil, errdefs.Configf("embeddings.provider", "unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s embedder: %w", cfg.Provider, err)
	}

	dim := cfg.Dimension
	if dim == 0 {
		dim, _ = KnownDimension(cfg.Model)
	}
	return newService(b, cfg.Model, dim), nil
}
