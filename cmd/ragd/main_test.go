package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/trigger"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"worker", "serve", "ingest", "query", "collection", "chat", "watch", "mcp", "monitor", "version"}

	got := make(map[string]bool)
	for _, c := range root.Commands() {
		got[c.Name()] = true
		assert.NotEmpty(t, c.Short, "%s has no short description", c.Name())
	}
	for _, name := range want {
		assert.True(t, got[name], "missing command %s", name)
	}

	coll, _, err := root.Find([]string{"collection", "info"})
	require.NoError(t, err)
	assert.Equal(t, "info", coll.Name())

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("via"))

	chat, _, err := root.Find([]string{"chat"})
	require.NoError(t, err)
	assert.NotNil(t, chat.Flags().Lookup("log-file"))
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "ragd dev")
}

func TestResolveVia(t *testing.T) {
	tests := []struct {
		via      string
		temporal bool
		want     string
	}{
		{"", true, viaTemporal},
		{"", false, viaLocal},
		{"local", true, viaLocal},
		{"nats", false, viaNATS},
		{"temporal", false, viaTemporal},
	}
	for _, tt := range tests {
		got, err := resolveVia(tt.via, tt.temporal)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := resolveVia("carrier-pigeon", false)
	var cfgErr *errdefs.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "via", cfgErr.Field)
}

func TestPrintResult(t *testing.T) {
	var out bytes.Buffer
	n := 3
	require.NoError(t, printResult(&out, trigger.IngestResponse{Ingested: &n}, false))
	assert.JSONEq(t, `{"ingested": 3}`, out.String())

	out.Reset()
	err := printResult(&out, trigger.QueryResponse{Error: "boom", ErrorKind: errdefs.KindStorage}, true)
	assert.ErrorIs(t, err, errTriggerFailed)
	assert.Contains(t, out.String(), `"error_kind": "StorageError"`)
}

// localEnv points a ragd config at a chromem directory, a fake TEI
// embedder and a fake OpenAI-compatible chat endpoint.
func localEnv(t *testing.T) (configPath string) {
	t.Helper()

	tei := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vectors := make([][]float32, len(req.Inputs))
		for i, in := range req.Inputs {
			vectors[i] = []float32{float32(len(in)%7 + 1), 1, 0.5, 0.25}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(vectors)
	}))
	t.Cleanup(tei.Close)

	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"message":{"role":"assistant","content":"within 30 days"},"finish_reason":"stop"}]}`))
	}))
	t.Cleanup(llm.Close)

	dir := t.TempDir()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("RAGD_TEMPORAL_ENABLED", "false")
	t.Setenv("RAGD_VECTORSTORE_PROVIDER", "chromem")
	t.Setenv("RAGD_CHROMEM_PATH", filepath.Join(dir, "db"))
	t.Setenv("RAGD_COLLECTION_DIMENSION", "4")
	t.Setenv("RAGD_EMBEDDINGS_PROVIDER", "tei")
	t.Setenv("RAGD_EMBEDDINGS_BASE_URL", tei.URL)
	t.Setenv("RAGD_EMBEDDINGS_MODEL", "test-embed")
	t.Setenv("RAGD_LLM_BASE_URL", llm.URL)
	t.Setenv("RAGD_LLM_API_KEY", "k")
	t.Setenv("RAGD_LOGGING_LEVEL", "error")

	configPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("{}\n"), 0600))
	return configPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestIngestThenQuery_Local(t *testing.T) {
	cfg := localEnv(t)

	doc := filepath.Join(t.TempDir(), "policy.txt")
	require.NoError(t, os.WriteFile(doc, []byte("Refunds are accepted within 30 days of purchase."), 0600))

	out, err := run(t, "--config", cfg, "ingest", doc, "--source-id", "policy")
	require.NoError(t, err, out)
	var ing trigger.IngestResponse
	require.NoError(t, json.Unmarshal([]byte(out), &ing))
	require.NotNil(t, ing.Ingested)
	assert.Equal(t, 1, *ing.Ingested)

	out, err = run(t, "--config", cfg, "collection", "info")
	require.NoError(t, err, out)
	var info collectionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, 1, info.Points)
	assert.Equal(t, "chromem", info.Backend)

	out, err = run(t, "--config", cfg, "query", "How long do refunds take?", "--top-k", "2")
	require.NoError(t, err, out)
	var q trigger.QueryResponse
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	assert.Equal(t, "within 30 days", q.Answer)
	assert.Equal(t, []string{"policy"}, q.Sources)
	assert.Equal(t, 1, q.NumContexts)
}

func TestIngest_MissingFileFails(t *testing.T) {
	cfg := localEnv(t)

	out, err := run(t, "--config", cfg, "ingest", filepath.Join(t.TempDir(), "absent.pdf"))
	assert.ErrorIs(t, err, errTriggerFailed)

	var resp trigger.IngestResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, errdefs.KindSourceRead, resp.ErrorKind)
	assert.Nil(t, resp.Ingested)
}

func TestQuery_InvalidTopK(t *testing.T) {
	cfg := localEnv(t)

	out, err := run(t, "--config", cfg, "query", "anything", "--top-k", "0")
	assert.ErrorIs(t, err, errTriggerFailed)
	assert.Contains(t, out, errdefs.KindConfiguration)
}

func TestIngest_DimensionMismatchLeavesStoreUntouched(t *testing.T) {
	cfg := localEnv(t)
	t.Setenv("RAGD_EMBEDDINGS_DIMENSION", "8")

	doc := filepath.Join(t.TempDir(), "policy.txt")
	require.NoError(t, os.WriteFile(doc, []byte("Refunds are accepted within 30 days."), 0600))

	_, err := run(t, "--config", cfg, "ingest", doc)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindConfiguration, errdefs.KindOf(err))

	entries, err := os.ReadDir(os.Getenv("RAGD_CHROMEM_PATH"))
	if err == nil {
		assert.Empty(t, entries, "no collection may be created for a mismatched model")
	}
}

func TestCollectionEnsure_Idempotent(t *testing.T) {
	cfg := localEnv(t)

	for range 2 {
		out, err := run(t, "--config", cfg, "collection", "ensure")
		require.NoError(t, err, out)
		assert.Contains(t, out, `"points": 0`)
	}
}

func TestServe_RejectsNATSLoop(t *testing.T) {
	cfg := localEnv(t)
	t.Setenv("RAGD_NATS_ENABLED", "true")

	_, err := run(t, "--config", cfg, "--via", "nats", "serve")
	var cfgErr *errdefs.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "via", cfgErr.Field)
}
