package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

const testDim = 8

// hashEmbedder returns deterministic non-zero vectors derived from text.
type hashEmbedder struct {
	mu    sync.Mutex
	calls int
	dim   int
	err   error
}

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	dim := e.dim
	if dim == 0 {
		dim = testDim
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(t))
		sum := h.Sum64()
		v := make([]float32, dim)
		for j := range v {
			v[j] = 1 + float32((sum>>(uint(j)*8))&0xff)/255
		}
		out[i] = v
	}
	return out, nil
}

func (e *hashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// mapLoader serves document text from memory. A form feed separates pages.
type mapLoader map[string]string

func (l mapLoader) Load(_ context.Context, path string) ([]string, error) {
	text, ok := l[path]
	if !ok {
		return nil, &errdefs.SourceReadError{Path: path, Err: os.ErrNotExist}
	}
	return strings.Split(text, "\f"), nil
}

type upperRedactor struct{ err error }

func (r upperRedactor) Redact(_ context.Context, text string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "[scrubbed] " + text, nil
}

// mockGenerator records prompts.
type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

var errBoom = errors.New("boom")
