package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name      string
		err       error
		kind      string
		retryable bool
	}{
		{"nil", nil, "", false},
		{"configuration", Configf("top_k", "must be positive, got %d", 0), KindConfiguration, false},
		{"source", &SourceReadError{Path: "a.pdf", Err: base}, KindSourceRead, false},
		{"schema", &SchemaMismatchError{Collection: "docs", WantDimension: 768, GotDimension: 384}, KindSchemaMismatch, false},
		{"embedding", &EmbeddingServiceError{Model: "m", Err: base}, KindEmbeddingService, true},
		{"storage", &StorageError{Op: "upsert", Err: base}, KindStorage, true},
		{"generation", &GenerationServiceError{Err: base}, KindGenerationService, true},
		{"wrapped", fmt.Errorf("stage load: %w", &SourceReadError{Path: "x", Err: base}), KindSourceRead, false},
		{"untyped", base, KindUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.retryable, Retryable(tt.err))
		})
	}
}

func TestStorageError_Message(t *testing.T) {
	err := &StorageError{
		Op:         "upsert",
		Collection: "docs",
		FailedIDs:  []string{"a", "b"},
		Err:        errors.New("unavailable"),
	}
	assert.Equal(t, `storage upsert on "docs" (2 ids failed): unavailable`, err.Error())
	assert.ErrorIs(t, err, err.Err)
}

func TestConfigurationError_Message(t *testing.T) {
	err := Configf("chunking.overlap", "must be less than size (%d >= %d)", 200, 100)
	assert.Equal(t, "configuration error: chunking.overlap: must be less than size (200 >= 100)", err.Error())
}

func TestSchemaMismatchError_Message(t *testing.T) {
	err := &SchemaMismatchError{Collection: "docs", WantDimension: 768, GotDimension: 384, Detail: "re-index required"}
	assert.Contains(t, err.Error(), "want dimension 768, have 384")
	assert.Contains(t, err.Error(), "re-index required")
}

func TestNonRetryableKinds(t *testing.T) {
	for _, k := range NonRetryableKinds() {
		assert.False(t, RetryableKind(k), k)
	}
}

func TestFromKind(t *testing.T) {
	err := FromKind(KindSourceRead, "reading source \"x.pdf\": missing")
	assert.Equal(t, KindSourceRead, KindOf(err))
	assert.False(t, Retryable(err))
	assert.Equal(t, "reading source \"x.pdf\": missing", err.Error())

	wrapped := fmt.Errorf("dispatch: %w", FromKind(KindStorage, "down"))
	assert.True(t, Retryable(wrapped))

	assert.Equal(t, KindUnknown, KindOf(FromKind("", "?")))
}
