// Ragd ingests PDFs into a vector collection and answers questions over
// them with retrieval-augmented generation.
//
// Usage:
//
//	# Run the Temporal worker that executes both pipelines
//	ragd worker
//
//	# Serve the HTTP API (and the NATS bridge when nats.enabled)
//	ragd serve
//
//	# One-shot triggers
//	ragd ingest ./handbook.pdf --source-id handbook
//	ragd query "What is the refund policy?" --top-k 3
//
// Configuration is read from ~/.config/ragd/config.yaml (or --config) and
// RAGD_* environment variables. See internal/config.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// errTriggerFailed is returned after a failed trigger response has already
// been printed.
var errTriggerFailed = errors.New("trigger failed")

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	via        string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errTriggerFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "ragd",
		Short: "PDF retrieval-augmented generation service",
		Long: `ragd loads PDFs, splits them into overlapping chunks, embeds them into a
vector collection and answers questions from the most similar chunks.

Pipelines run as Temporal workflows (temporal.enabled) or in-process, and
are reachable over HTTP, NATS, MCP, the chat TUI and this CLI.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(versionString() + "\n")

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.config/ragd/config.yaml)")
	root.PersistentFlags().StringVar(&flags.via, "via", "", "dispatch mode: local, temporal or nats (default from temporal.enabled)")

	root.AddCommand(
		newWorkerCmd(flags),
		newServeCmd(flags),
		newIngestCmd(flags),
		newQueryCmd(flags),
		newCollectionCmd(flags),
		newChatCmd(flags),
		newWatchCmd(flags),
		newMCPCmd(flags),
		newMonitorCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
		},
	}
}

func versionString() string {
	return fmt.Sprintf("ragd %s (commit %s, built %s)", version, gitCommit, buildDate)
}
