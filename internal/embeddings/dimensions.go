package embeddings

import (
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

var knownDimensions = map[string]int{
	"text-embedding-004":                     768,
	"gemini-embedding-001":                   3072,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"nomic-embed-text":                       768,
}

// KnownDimension returns the output dimension of a well-known model. The
// "models/" prefix used by some Gemini clients is ignored.
func KnownDimension(model string) (int, bool) {
	dim, ok := knownDimensions[strings.TrimPrefix(model, "models/")]
	return dim, ok
}

// CheckDimension fails with a ConfigurationError when p reports a dimension
// different from the collection's. Unknown provider dimensions pass; the
// ingest pipeline checks actual vectors.
func CheckDimension(p Provider, collectionDim int) error {
	dim := p.Dimension()
	if dim == 0 || dim == collectionDim {
		return nil
	}
	return errdefs.Configf("collection.dimension",
		"embedding model %q produces %d-dimensional vectors but the collection expects %d",
		p.Model(), dim, collectionDim)
}
