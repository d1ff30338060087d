package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "docs", cfg.Collection.Name)
	assert.Equal(t, 768, cfg.Collection.Dimension)
	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, "rag-pdf", cfg.Temporal.TaskQueue)
	assert.Equal(t, 64, cfg.Qdrant.UpsertBatchSize)
}

func TestLoad_FileThenEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	path := writeConfig(t, `
collection:
  name: papers
  dimension: 384
chunking:
  size: 500
  overlap: 50
qdrant:
  host: qdrant.internal
temporal:
  activity_timeout: 30s
`)
	t.Setenv("RAGD_QDRANT_HOST", "override.internal")
	t.Setenv("RAGD_SERVER_HTTP_PORT", "9001")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "papers", cfg.Collection.Name)
	assert.Equal(t, 384, cfg.Collection.Dimension)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, "override.internal", cfg.Qdrant.Host)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Temporal.ActivityTimeout)

	// untouched sections keep defaults
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
}

func TestLoad_GeminiKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("RAGD_LLM_API_KEY", "llm-key")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.Embeddings.APIKey.Value())
	assert.Equal(t, "llm-key", cfg.LLM.APIKey.Value())
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsWorldWritable(t *testing.T) {
	path := writeConfig(t, "{}\n")
	require.NoError(t, os.Chmod(path, 0666))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "world-writable")
}

func TestLoad_RejectsOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.yaml")
	big := make([]byte, maxConfigFileSize+10)
	for i := range big {
		big[i] = '#'
	}
	require.NoError(t, os.WriteFile(path, big, 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoad_InvalidValuesAreConfigurationErrors(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	path := writeConfig(t, "chunking:\n  size: 100\n  overlap: 100\n")

	_, err := Load(path)
	var cfgErr *errdefs.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "chunking.overlap", cfgErr.Field)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad collection name", func(c *Config) { c.Collection.Name = "Bad Name" }, "collection.name"},
		{"zero dimension", func(c *Config) { c.Collection.Dimension = 0 }, "collection.dimension"},
		{"unknown metric", func(c *Config) { c.Collection.Metric = "manhattan" }, "collection.metric"},
		{"unknown store", func(c *Config) { c.VectorStore.Provider = "pinecone" }, "vectorstore.provider"},
		{"chromem requires cosine", func(c *Config) {
			c.VectorStore.Provider = "chromem"
			c.Collection.Metric = "dot"
		}, "collection.metric"},
		{"bad qdrant port", func(c *Config) { c.Qdrant.Port = 70000 }, "qdrant.port"},
		{"unknown embedder", func(c *Config) { c.Embeddings.Provider = "cohere" }, "embeddings.provider"},
		{"missing embedding model", func(c *Config) { c.Embeddings.Model = "" }, "embeddings.model"},
		{"temperature out of range", func(c *Config) { c.LLM.Temperature = 3 }, "llm.temperature"},
		{"temporal without queue", func(c *Config) { c.Temporal.TaskQueue = "" }, "temporal.task_queue"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "telemetry.sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cfgErr *errdefs.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestValidate_TemporalDisabledSkipsChecks(t *testing.T) {
	cfg := Default()
	cfg.Temporal.Enabled = false
	cfg.Temporal.TaskQueue = ""
	assert.NoError(t, cfg.Validate())
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "qdrant.host", envKey("RAGD_QDRANT_HOST"))
	assert.Equal(t, "server.http_port", envKey("RAGD_SERVER_HTTP_PORT"))
	assert.Equal(t, "chunking.size", envKey("RAGD_CHUNKING_SIZE"))
	assert.Equal(t, "debug", envKey("RAGD_DEBUG"))
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "hunter2", s.Value())

	data, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}
