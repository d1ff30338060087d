package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragd/internal/rag"
)

func newIngestCmd(flags *globalFlags) *cobra.Command {
	var sourceID string

	cmd := &cobra.Command{
		Use:   "ingest <pdf>",
		Short: "Ingest a document into the collection",
		Long: `Load, chunk, embed and upsert one document. Prints {"ingested": N} or
{"error": ..., "error_kind": ...}.

Examples:
  ragd ingest ./handbook.pdf
  ragd ingest ./handbook.pdf --source-id handbook-2024
  ragd ingest ./handbook.pdf --via nats`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, appOptions{quiet: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			h, _, err := a.handler(ctx, flags.via)
			if err != nil {
				return err
			}
			resp := h.Ingest(ctx, rag.IngestRequest{PDFPath: args[0], SourceID: sourceID})
			return printResult(cmd.OutOrStdout(), resp, resp.Failed())
		},
	}
	cmd.Flags().StringVar(&sourceID, "source-id", "", "source id stored with every chunk (default: the path)")
	return cmd
}

func newQueryCmd(flags *globalFlags) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from the collection",
		Long: `Embed the question, retrieve the top-k most similar chunks and generate an
answer from them. Prints {"answer", "sources", "num_contexts"} or an error.

Examples:
  ragd query "What is the refund policy?"
  ragd query "Who signed the contract?" --top-k 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, appOptions{quiet: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			h, _, err := a.handler(ctx, flags.via)
			if err != nil {
				return err
			}
			resp := h.Query(ctx, rag.NewQueryRequest(args[0], topK))
			return printResult(cmd.OutOrStdout(), resp, resp.Failed())
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", rag.DefaultTopK, "number of chunks to retrieve")
	return cmd
}

// printResult writes v as indented JSON. A failed result is still printed
// and then reported as errTriggerFailed for the exit status.
func printResult(w io.Writer, v any, failed bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if failed {
		return errTriggerFailed
	}
	return nil
}
