//go:build cgo

package embeddings

import (
	"context"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

var fastembedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// fastembedBackend runs ONNX models in-process. Documents are embedded with
// the "passage: " prefix BGE models expect.
type fastembedBackend struct {
	mu        sync.Mutex
	model     *fastembed.FlagEmbedding
	batchSize int
}

func newFastEmbedBackend(cfg Config) (*fastembedBackend, error) {
	model, ok := fastembedModels[cfg.Model]
	if !ok {
		return nil, errdefs.Configf("embeddings.model", "fastembed does not support %q", cfg.Model)
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	showProgress := false

	fe, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            512,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, err
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 256
	}
	return &fastembedBackend{model: fe, batchSize: batch}, nil
}

func (b *fastembedBackend) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.model.PassageEmbed(texts, b.batchSize)
}

func (b *fastembedBackend) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.model.Destroy()
}
