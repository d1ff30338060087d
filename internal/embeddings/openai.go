package embeddings

import (
	"context"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// openaiBackend talks to any OpenAI-compatible /embeddings endpoint,
// including Gemini's.
type openaiBackend struct {
	embedder *lcembeddings.EmbedderImpl
}

func newOpenAIBackend(cfg Config) (*openaiBackend, error) {
	token := cfg.APIKey
	if token == "" {
		// langchaingo refuses an empty token; local servers ignore it
		token = "unused"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	embedder, err := lcembeddings.NewEmbedder(llm,
		lcembeddings.WithBatchSize(batch),
		lcembeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, err
	}
	return &openaiBackend{embedder: embedder}, nil
}

func (b *openaiBackend) embed(ctx context.Context, texts []string) ([][]float32, error) {
	return b.embedder.EmbedDocuments(ctx, texts)
}

func (b *openaiBackend) close() error { return nil }
