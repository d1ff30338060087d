package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/trigger"
)

type ingestInput struct {
	PDFPath  string `json:"pdf_path" jsonschema:"Path of the PDF (or .txt/.md) file to ingest, readable by the server"`
	SourceID string `json:"source_id,omitempty" jsonschema:"Identifier stored with every chunk; defaults to pdf_path"`
}

type queryInput struct {
	Question string `json:"question" jsonschema:"Natural language question"`
	TopK     *int   `json:"top_k,omitempty" jsonschema:"Number of chunks to retrieve (default 5, minimum 1)"`
}

type collectionInfoInput struct{}

type collectionInfoOutput struct {
	Collection string `json:"collection"`
	Points     int    `json:"points"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_pdf",
		Description: "Load a PDF, split it into overlapping chunks, embed them and store them for retrieval. Re-ingesting the same source overwrites its chunks.",
	}, s.ingestPDF)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query_documents",
		Description: "Answer a question from the ingested documents. Returns the answer and the source of every retrieved chunk.",
	}, s.queryDocuments)

	if s.store != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "collection_info",
			Description: "Report the configured collection and how many chunks it holds.",
		}, s.collectionInfo)
	}
}

func (s *Server) ingestPDF(ctx context.Context, _ *mcp.CallToolRequest, in ingestInput) (*mcp.CallToolResult, trigger.IngestResponse, error) {
	done := s.metrics.track(ctx, "ingest_pdf")
	resp := s.handler.Ingest(ctx, rag.IngestRequest{PDFPath: in.PDFPath, SourceID: in.SourceID})
	done(resp.ErrorKind)
	return toolResult(resp.Failed()), resp, nil
}

func (s *Server) queryDocuments(ctx context.Context, _ *mcp.CallToolRequest, in queryInput) (*mcp.CallToolResult, trigger.QueryResponse, error) {
	done := s.metrics.track(ctx, "query_documents")
	resp := s.handler.Query(ctx, rag.QueryRequest{Question: in.Question, TopK: in.TopK})
	done(resp.ErrorKind)
	if resp.Sources == nil {
		resp.Sources = []string{}
	}
	return toolResult(resp.Failed()), resp, nil
}

func (s *Server) collectionInfo(ctx context.Context, _ *mcp.CallToolRequest, _ collectionInfoInput) (*mcp.CallToolResult, collectionInfoOutput, error) {
	done := s.metrics.track(ctx, "collection_info")
	n, err := s.store.Count(ctx, s.collection)
	if err != nil {
		done(errdefs.KindOf(err))
		s.logger.Warn(ctx, "collection count failed", zap.Error(err))
		return nil, collectionInfoOutput{}, err
	}
	done("")
	return nil, collectionInfoOutput{Collection: s.collection, Points: n}, nil
}

// toolResult flags failures so clients see them as tool errors while the
// structured content still carries error_kind.
func toolResult(failed bool) *mcp.CallToolResult {
	if !failed {
		return nil
	}
	return &mcp.CallToolResult{IsError: true}
}
