package vectorstore

import (
	"context"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// Options selects and configures a backend.
type Options struct {
	Provider string // qdrant or chromem
	Qdrant   QdrantConfig
	Chromem  ChromemConfig
	Logger   *logging.Logger
}

// NewStore builds the configured backend. Qdrant is the default.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	switch opts.Provider {
	case "qdrant", "":
		return NewQdrantStore(ctx, opts.Qdrant, opts.Logger)
	case "chromem":
		return NewChromemStore(opts.Chromem, opts.Logger)
	default:
		return nil, errdefs.Configf("vectorstore.provider", "unsupported provider %q (supported: qdrant, chromem)", opts.Provider)
	}
}
