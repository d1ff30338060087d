// Package config provides configuration loading for ragd.
//
// Configuration is assembled from compiled-in defaults, an optional YAML
// file and RAGD_* environment variables (see Load).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

// Gemini's OpenAI-compatible endpoint serves both embeddings and chat.
const geminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Config holds the complete ragd configuration.
type Config struct {
	Collection  CollectionConfig  `koanf:"collection"`
	Chunking    chunker.Config    `koanf:"chunking"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Qdrant      QdrantConfig      `koanf:"qdrant"`
	Chromem     ChromemConfig     `koanf:"chromem"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	LLM         LLMConfig         `koanf:"llm"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Temporal    TemporalConfig    `koanf:"temporal"`
	Server      ServerConfig      `koanf:"server"`
	NATS        NATSConfig        `koanf:"nats"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// CollectionConfig describes the vector collection shared by ingestion and query.
type CollectionConfig struct {
	Name      string `koanf:"name"`
	Dimension int    `koanf:"dimension"`
	Metric    string `koanf:"metric"` // cosine, dot, euclid
}

// VectorStoreConfig selects the vector store backend.
type VectorStoreConfig struct {
	Provider string `koanf:"provider"` // qdrant or chromem
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host            string `koanf:"host"`
	Port            int    `koanf:"port"` // gRPC port, not the 6333 REST port
	APIKey          Secret `koanf:"api_key"`
	UseTLS          bool   `koanf:"use_tls"`
	UpsertBatchSize int    `koanf:"upsert_batch_size"`
	MaxMessageSize  int    `koanf:"max_message_size"`
}

// ChromemConfig holds embedded chromem-go settings. An empty Path keeps the
// database in memory.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"` // openai, tei or fastembed
	BaseURL   string `koanf:"base_url"`
	Model     string `koanf:"model"`
	APIKey    Secret `koanf:"api_key"`
	Dimension int    `koanf:"dimension"` // 0 resolves from the model name
	BatchSize int    `koanf:"batch_size"`
	CacheDir  string `koanf:"cache_dir"`
}

// LLMConfig configures the answer generator.
type LLMConfig struct {
	BaseURL      string  `koanf:"base_url"`
	Model        string  `koanf:"model"`
	APIKey       Secret  `koanf:"api_key"`
	MaxTokens    int     `koanf:"max_tokens"`
	Temperature  float64 `koanf:"temperature"`
	SystemPrompt string  `koanf:"system_prompt"`
	RateLimit    float64 `koanf:"rate_limit"` // requests per second, 0 disables
	Burst        int     `koanf:"burst"`
}

// IngestConfig holds optional ingestion stages.
type IngestConfig struct {
	RedactSecrets bool   `koanf:"redact_secrets"`
	AllowlistPath string `koanf:"allowlist_path"`
}

// TemporalConfig holds orchestration settings. When Enabled is false the
// triggers run pipelines in-process.
type TemporalConfig struct {
	Enabled         bool          `koanf:"enabled"`
	HostPort        string        `koanf:"host_port"`
	Namespace       string        `koanf:"namespace"`
	TaskQueue       string        `koanf:"task_queue"`
	ActivityTimeout time.Duration `koanf:"activity_timeout"`
	WorkflowTimeout time.Duration `koanf:"workflow_timeout"`
	MaxAttempts     int32         `koanf:"max_attempts"`
	InitialInterval time.Duration `koanf:"initial_interval"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	UploadDir       string        `koanf:"upload_dir"`
	MaxUploadMB     int           `koanf:"max_upload_mb"`
}

// NATSConfig holds the NATS trigger bridge configuration.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	IngestSubject string `koanf:"ingest_subject"`
	QuerySubject  string `koanf:"query_subject"`
	EventsSubject string `koanf:"events_subject"`
	QueueGroup    string `koanf:"queue_group"`
}

// LoggingConfig is the subset of logging settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig is the subset of OpenTelemetry settings exposed to users.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // grpc or http/protobuf
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Collection: CollectionConfig{
			Name:      "docs",
			Dimension: 768,
			Metric:    "cosine",
		},
		Chunking: chunker.DefaultConfig(),
		VectorStore: VectorStoreConfig{
			Provider: "qdrant",
		},
		Qdrant: QdrantConfig{
			Host:            "localhost",
			Port:            6334,
			UpsertBatchSize: 64,
			MaxMessageSize:  50 * 1024 * 1024,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "openai",
			BaseURL:   geminiOpenAIBaseURL,
			Model:     "text-embedding-004",
			BatchSize: 100,
		},
		LLM: LLMConfig{
			BaseURL:     geminiOpenAIBaseURL,
			Model:       "gemini-2.0-flash",
			MaxTokens:   1024,
			Temperature: 0.2,
			Burst:       1,
		},
		Temporal: TemporalConfig{
			Enabled:         true,
			HostPort:        "localhost:7233",
			Namespace:       "default",
			TaskQueue:       "rag-pdf",
			ActivityTimeout: 2 * time.Minute,
			WorkflowTimeout: 10 * time.Minute,
			MaxAttempts:     3,
			InitialInterval: time.Second,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8000,
			ShutdownTimeout: 10 * time.Second,
			UploadDir:       filepath.Join(os.TempDir(), "ragd-uploads"),
			MaxUploadMB:     32,
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			IngestSubject: "rag.ingest",
			QuerySubject:  "rag.query",
			EventsSubject: "rag.events",
			QueueGroup:    "ragd",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "ragd",
			SampleRate:  1.0,
		},
	}
}

// Validate checks the configuration. Failures are *errdefs.ConfigurationError.
func (c *Config) Validate() error {
	if !collectionNamePattern.MatchString(c.Collection.Name) {
		return errdefs.Configf("collection.name", "must match %s, got %q", collectionNamePattern, c.Collection.Name)
	}
	if c.Collection.Dimension <= 0 {
		return errdefs.Configf("collection.dimension", "must be positive, got %d", c.Collection.Dimension)
	}
	switch c.Collection.Metric {
	case "cosine", "dot", "euclid":
	default:
		return errdefs.Configf("collection.metric", "must be cosine, dot or euclid, got %q", c.Collection.Metric)
	}

	if err := c.Chunking.Validate(); err != nil {
		return err
	}

	switch c.VectorStore.Provider {
	case "qdrant":
		if c.Qdrant.Host == "" {
			return errdefs.Configf("qdrant.host", "required")
		}
		if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
			return errdefs.Configf("qdrant.port", "invalid port %d", c.Qdrant.Port)
		}
		if c.Qdrant.UpsertBatchSize <= 0 {
			return errdefs.Configf("qdrant.upsert_batch_size", "must be positive, got %d", c.Qdrant.UpsertBatchSize)
		}
	case "chromem":
		if c.Collection.Metric != "cosine" {
			return errdefs.Configf("collection.metric", "chromem only supports cosine, got %q", c.Collection.Metric)
		}
	default:
		return errdefs.Configf("vectorstore.provider", "must be qdrant or chromem, got %q", c.VectorStore.Provider)
	}

	switch c.Embeddings.Provider {
	case "openai", "tei":
		if c.Embeddings.BaseURL == "" {
			return errdefs.Configf("embeddings.base_url", "required for provider %q", c.Embeddings.Provider)
		}
	case "fastembed":
	default:
		return errdefs.Configf("embeddings.provider", "must be openai, tei or fastembed, got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Model == "" {
		return errdefs.Configf("embeddings.model", "required")
	}
	if c.Embeddings.Dimension < 0 {
		return errdefs.Configf("embeddings.dimension", "must not be negative, got %d", c.Embeddings.Dimension)
	}

	if c.LLM.Model == "" {
		return errdefs.Configf("llm.model", "required")
	}
	if c.LLM.MaxTokens <= 0 {
		return errdefs.Configf("llm.max_tokens", "must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errdefs.Configf("llm.temperature", "must be within [0, 2], got %g", c.LLM.Temperature)
	}
	if c.LLM.RateLimit < 0 {
		return errdefs.Configf("llm.rate_limit", "must not be negative, got %g", c.LLM.RateLimit)
	}

	if c.Temporal.Enabled {
		if c.Temporal.HostPort == "" {
			return errdefs.Configf("temporal.host_port", "required when temporal is enabled")
		}
		if c.Temporal.TaskQueue == "" {
			return errdefs.Configf("temporal.task_queue", "required when temporal is enabled")
		}
		if c.Temporal.ActivityTimeout <= 0 {
			return errdefs.Configf("temporal.activity_timeout", "must be positive")
		}
		if c.Temporal.MaxAttempts < 0 {
			return errdefs.Configf("temporal.max_attempts", "must not be negative, got %d", c.Temporal.MaxAttempts)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errdefs.Configf("server.http_port", "invalid port %d", c.Server.Port)
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return errdefs.Configf("nats.url", "required when nats is enabled")
		}
		if c.NATS.IngestSubject == "" || c.NATS.QuerySubject == "" {
			return errdefs.Configf("nats", "ingest_subject and query_subject are required")
		}
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return errdefs.Configf("logging.format", "must be json or console, got %q", c.Logging.Format)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return errdefs.Configf("telemetry.sample_rate", "must be within [0, 1], got %g", c.Telemetry.SampleRate)
	}

	return nil
}

// String renders the effective configuration for `ragd config` style
// debugging. Secrets print redacted.
func (c *Config) String() string {
	return fmt.Sprintf("collection=%s dim=%d store=%s embeddings=%s/%s llm=%s temporal=%t",
		c.Collection.Name, c.Collection.Dimension, c.VectorStore.Provider,
		c.Embeddings.Provider, c.Embeddings.Model, c.LLM.Model, c.Temporal.Enabled)
}
