//go:build !cgo

package embeddings

import (
	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

func newFastEmbedBackend(Config) (backend, error) {
	return nil, errdefs.Configf("embeddings.provider", "fastembed requires a cgo build; use openai or tei")
}
