package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/events"
	httpapi "github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/workflows"
)

func newWorkerCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the Temporal worker for the ingest and query workflows",
		Long: `Run a Temporal worker on temporal.task_queue executing IngestPDFWorkflow
and QueryPDFWorkflow. The configured collection is created first when it
does not exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(ctx, flags, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()
			return runWorker(ctx, a)
		},
	}
}

func runWorker(ctx context.Context, a *app) error {
	if err := a.pipelines(ctx); err != nil {
		return err
	}
	c, err := a.temporalClient()
	if err != nil {
		return err
	}

	w := workflows.NewWorker(c, a.cfg.Temporal.TaskQueue, &workflows.Activities{
		Ingestor: a.ingestor,
		Querier:  a.querier,
		Logger:   a.logger.Named("activities"),
	})
	if err := w.Start(); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}
	a.logger.Info(ctx, "worker started",
		zap.String("task_queue", a.cfg.Temporal.TaskQueue),
		zap.String("collection", a.cfg.Collection.Name))

	<-ctx.Done()
	a.logger.Info(context.Background(), "stopping worker")
	w.Stop()
	return nil
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and, when enabled, the NATS bridge",
		Long: `Serve POST /api/v1/ingest, /api/v1/query and /api/v1/upload plus /health,
/api/v1/status and /metrics on server.host:server.http_port.

With nats.enabled the same handler also answers requests on
nats.ingest_subject and nats.query_subject.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(ctx, flags, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()
			return runServe(ctx, a, flags.via)
		},
	}
}

func runServe(ctx context.Context, a *app, via string) error {
	mode, err := resolveVia(via, a.cfg.Temporal.Enabled)
	if err != nil {
		return err
	}
	if mode == viaNATS && a.cfg.NATS.Enabled {
		return errdefs.Configf("via", "serve cannot dispatch over nats while also serving the nats bridge")
	}

	handler, mode, err := a.handler(ctx, mode)
	if err != nil {
		return err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	srv, err := httpapi.NewServer(handler, store, a.logger.Named("http"), &httpapi.Config{
		Host:        a.cfg.Server.Host,
		Port:        a.cfg.Server.Port,
		UploadDir:   a.cfg.Server.UploadDir,
		MaxUploadMB: a.cfg.Server.MaxUploadMB,
		Collection:  a.cfg.Collection.Name,
		Version:     version,
		Dispatch:    mode,

		TelemetryHealth: a.tel.Health,
	})
	if err != nil {
		return err
	}

	if a.cfg.NATS.Enabled {
		nc, err := a.natsConn()
		if err != nil {
			return err
		}
		bridge, err := events.NewBridge(nc, handler, a.eventsConfig(), a.logger.Named("events"))
		if err != nil {
			return err
		}
		if err := bridge.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := bridge.Stop(); err != nil {
				a.logger.Warn(context.Background(), "nats bridge stop", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
