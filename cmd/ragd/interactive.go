package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/ignore"
	"github.com/fyrsmithlabs/ragd/internal/mcp"
	"github.com/fyrsmithlabs/ragd/internal/monitor"
	"github.com/fyrsmithlabs/ragd/internal/trigger"
	"github.com/fyrsmithlabs/ragd/internal/tui"
	"github.com/fyrsmithlabs/ragd/internal/watch"
)

func newChatCmd(flags *globalFlags) *cobra.Command {
	var (
		timeout time.Duration
		logFile string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive question answering in the terminal",
		Long: `Open a chat over the query pipeline. Type a question to ask it, or use
/ingest <path> [source_id], /topk <n>, /clear and /quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, appOptions{logFile: logFile})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			h, mode, err := a.handler(ctx, flags.via)
			if err != nil {
				return err
			}
			return tui.Run(h, fmt.Sprintf("%s via %s", a.cfg.Collection.Name, mode), timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "per-request timeout")
	cmd.Flags().StringVar(&logFile, "log-file", filepath.Join(os.TempDir(), "ragd-chat.log"), "where logs go while the chat owns the terminal")
	return cmd
}

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var (
		cfg  watch.Config
		exts []string
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest documents as they appear in a directory",
		Long: `Watch a directory and ingest new or modified documents once writes settle.
The source id of each document is its path relative to <dir>. Results are
printed as JSON lines.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(ctx, flags, appOptions{quiet: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			h, _, err := a.handler(ctx, flags.via)
			if err != nil {
				return err
			}

			cfg.Dir = args[0]
			cfg.Extensions = exts
			w, err := watch.New(cfg, h, a.logger)
			if err != nil {
				return err
			}

			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for {
				select {
				case r := <-w.Results():
					if err := enc.Encode(watchLine{Path: r.Path, Response: r.Response}); err != nil {
						a.logger.Warn(ctx, "printing watch result", zap.Error(err))
					}
				case err := <-done:
					return err
				}
			}
		},
	}
	cmd.Flags().DurationVar(&cfg.Debounce, "debounce", 2*time.Second, "quiet period before a changed file is ingested")
	cmd.Flags().StringSliceVar(&exts, "ext", []string{".pdf"}, "file extensions to ingest")
	cmd.Flags().BoolVar(&cfg.InitialScan, "initial-scan", false, "ingest matching files already present")
	cmd.Flags().BoolVarP(&cfg.Recursive, "recursive", "r", false, "watch subdirectories")
	cmd.Flags().StringVar(&cfg.IgnoreFile, "ignore-file", ignore.DefaultFile, "gitignore-style rules at the root of <dir>")
	return cmd
}

// watchLine is one JSON line of `ragd watch` output.
type watchLine struct {
	Path     string                 `json:"path"`
	Response trigger.IngestResponse `json:"response"`
}

func newMCPCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve ingest_pdf, query_documents and collection_info over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			// stdout carries the protocol
			a, err := newApp(ctx, flags, appOptions{quiet: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			h, _, err := a.handler(ctx, flags.via)
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}

			srv, err := mcp.NewServer(&mcp.Config{
				Name:       "ragd",
				Version:    version,
				Collection: a.cfg.Collection.Name,
				Logger:     a.logger.Named("mcp"),
			}, h, store)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}

func newMonitorCmd() *cobra.Command {
	var (
		promURL  string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live dashboard of pipeline metrics from Prometheus",
		Long: `Poll a Prometheus server scraping ragd's /metrics endpoint and show
ingest and query rates, error ratio, stage latencies and process stats.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := monitor.NewMetricsClient(promURL)
			if err != nil {
				return err
			}
			_, err = tea.NewProgram(monitor.NewModel(client, promURL, interval), tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().StringVar(&promURL, "prometheus", "http://localhost:9090", "Prometheus base URL")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "refresh interval")
	return cmd
}
