// Package trigger is the outermost boundary of the pipelines. A Handler
// runs a request through a Dispatcher (Temporal or in-process) and turns
// every outcome, panics included, into a structured response.
package trigger

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/rag"
)

// Dispatcher runs the pipelines somewhere.
type Dispatcher interface {
	Ingest(ctx context.Context, req rag.IngestRequest) (*rag.IngestResult, error)
	Query(ctx context.Context, req rag.QueryRequest) (*rag.QueryResult, error)
}

// IngestResponse is {ingested} on success or {error, error_kind} on failure.
type IngestResponse struct {
	Ingested  *int   `json:"ingested,omitempty"`
	SourceID  string `json:"source_id,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// QueryResponse is {answer, sources, num_contexts} on success or
// {error, error_kind} on failure.
type QueryResponse struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	NumContexts int      `json:"num_contexts"`
	Error       string   `json:"error,omitempty"`
	ErrorKind   string   `json:"error_kind,omitempty"`
}

// Failed reports whether the response carries an error.
func (r IngestResponse) Failed() bool { return r.Error != "" }

// Failed reports whether the response carries an error.
func (r QueryResponse) Failed() bool { return r.Error != "" }

// Handler never returns an error; failures are logged and encoded.
type Handler struct {
	dispatcher Dispatcher
	logger     *logging.Logger
}

// NewHandler wraps d.
func NewHandler(d Dispatcher, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{dispatcher: d, logger: logger}
}

// Ingest runs the ingestion pipeline.
func (h *Handler) Ingest(ctx context.Context, req rag.IngestRequest) (resp IngestResponse) {
	defer h.recover(ctx, "ingest", func(err error) { resp = ingestFailure(err) })

	res, err := h.dispatcher.Ingest(ctx, req)
	if err != nil {
		h.logger.Error(ctx, "ingest failed",
			zap.String("pdf_path", req.PDFPath),
			zap.String("error_kind", errdefs.KindOf(err)),
			zap.Error(err))
		return ingestFailure(err)
	}
	n := res.Ingested
	return IngestResponse{Ingested: &n, SourceID: res.SourceID}
}

// Query runs the query pipeline.
func (h *Handler) Query(ctx context.Context, req rag.QueryRequest) (resp QueryResponse) {
	defer h.recover(ctx, "query", func(err error) { resp = queryFailure(err) })

	res, err := h.dispatcher.Query(ctx, req)
	if err != nil {
		h.logger.Error(ctx, "query failed",
			zap.String("error_kind", errdefs.KindOf(err)),
			zap.Error(err))
		return queryFailure(err)
	}
	sources := res.Sources
	if sources == nil {
		sources = []string{}
	}
	return QueryResponse{Answer: res.Answer, Sources: sources, NumContexts: res.NumContexts}
}

func (h *Handler) recover(ctx context.Context, op string, set func(error)) {
	r := recover()
	if r == nil {
		return
	}
	h.logger.Error(ctx, "panic in trigger handler",
		zap.String("op", op),
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()))
	set(fmt.Errorf("internal error: %v", r))
}

func ingestFailure(err error) IngestResponse {
	return IngestResponse{Error: err.Error(), ErrorKind: errdefs.KindOf(err)}
}

func queryFailure(err error) QueryResponse {
	return QueryResponse{Sources: []string{}, Error: err.Error(), ErrorKind: errdefs.KindOf(err)}
}
