// Package generator produces answers from assembled prompts using an
// OpenAI-compatible chat model through langchaingo.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/logging"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/ragd/internal/generator")

// Config configures the answer generator.
type Config struct {
	BaseURL      string
	Model        string
	APIKey       string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
}

// Validate checks generation parameters.
func (c Config) Validate() error {
	if c.Model == "" {
		return errdefs.Configf("llm.model", "required")
	}
	if c.MaxTokens <= 0 {
		return errdefs.Configf("llm.max_tokens", "must be positive, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errdefs.Configf("llm.temperature", "must be in [0, 2], got %g", c.Temperature)
	}
	if c.RateLimit < 0 {
		return errdefs.Configf("llm.rate_limit", "must not be negative")
	}
	return nil
}

// Generator calls the chat model with fixed generation parameters.
// It does not retry; a failure is a GenerationServiceError.
type Generator struct {
	model   llms.Model
	cfg     Config
	limiter *rate.Limiter
	metrics *Metrics
	logger  *logging.Logger
}

// New builds a Generator backed by an OpenAI-compatible endpoint.
func New(cfg Config, logger *logging.Logger) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	token := cfg.APIKey
	if token == "" {
		token = "unused"
	}
	opts := []openai.Option{openai.WithToken(token), openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, errdefs.Configf("llm", "client: %v", err)
	}
	return NewWithModel(llm, cfg, logger)
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, cfg Config, logger *logging.Logger) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Generator{
		model:   model,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		metrics: NewMetrics(),
		logger:  logger,
	}, nil
}

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "Answer questions only from the provided context."

// Model returns the model name.
func (g *Generator) Model() string { return g.cfg.Model }

// Generate returns the model's answer to prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "generator.Generate", trace.WithAttributes(
		attribute.String("gen_ai.request.model", g.cfg.Model),
		attribute.Int("gen_ai.request.max_tokens", g.cfg.MaxTokens),
		attribute.Int("prompt.chars", len(prompt)),
	))
	start := time.Now()
	defer func() {
		g.metrics.Record(ctx, g.cfg.Model, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := g.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &errdefs.GenerationServiceError{Model: g.cfg.Model, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	resp, err := g.model.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, g.cfg.SystemPrompt),
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		},
		llms.WithMaxTokens(g.cfg.MaxTokens),
		llms.WithTemperature(g.cfg.Temperature),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", &errdefs.GenerationServiceError{Model: g.cfg.Model, Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &errdefs.GenerationServiceError{Model: g.cfg.Model, Err: errors.New("empty response")}
	}

	choice := resp.Choices[0]
	g.logger.Debug(ctx, "answer generated",
		zap.String("model", g.cfg.Model),
		zap.String("stop_reason", choice.StopReason),
		zap.Duration("duration", time.Since(start)))
	return strings.TrimSpace(choice.Content), nil
}
