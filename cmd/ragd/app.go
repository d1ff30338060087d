package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/events"
	"github.com/fyrsmithlabs/ragd/internal/generator"
	"github.com/fyrsmithlabs/ragd/internal/loader"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/redact"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/trigger"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
	"github.com/fyrsmithlabs/ragd/internal/workflows"
)

// Dispatch modes.
const (
	viaLocal    = "local"
	viaTemporal = "temporal"
	viaNATS     = "nats"
)

// app owns every long-lived handle a command needs. Parts are built on
// first use so that, for example, `ragd query --via nats` never dials
// Qdrant.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry

	store    vectorstore.Store
	embedder *embeddings.Service
	ingestor *rag.Ingestor
	querier  *rag.Querier
	temporal client.Client
	nc       *nats.Conn

	closers []func() error
}

type appOptions struct {
	// quiet sends logs to stderr so stdout stays machine readable.
	quiet bool
	// logFile sends logs to a file instead, for the full-screen chat.
	logFile string
}

func newApp(ctx context.Context, flags *globalFlags, opts appOptions) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg, opts)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, tel: tel}, nil
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Protocol = cfg.Telemetry.Protocol
	tc.Insecure = cfg.Telemetry.Insecure
	tc.ServiceName = cfg.Telemetry.ServiceName
	tc.ServiceVersion = version
	tc.SampleRate = cfg.Telemetry.SampleRate
	return tc
}

func newLogger(cfg *config.Config, opts appOptions) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, errdefs.Configf("logging.level", "%v", err)
	}
	lc.Level = level
	lc.Format = cfg.Logging.Format
	lc.Output.Stderr = opts.quiet
	lc.Output.File = opts.logFile
	lc.Output.OTEL = cfg.Logging.OTEL
	lc.Fields["version"] = version

	var provider log.LoggerProvider
	if cfg.Logging.OTEL {
		provider = global.GetLoggerProvider()
	}
	return logging.NewLogger(lc, provider)
}

// openStore connects the configured vector store.
func (a *app) openStore(ctx context.Context) (vectorstore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	c := a.cfg
	store, err := vectorstore.NewStore(ctx, vectorstore.Options{
		Provider: c.VectorStore.Provider,
		Qdrant: vectorstore.QdrantConfig{
			Host:            c.Qdrant.Host,
			Port:            c.Qdrant.Port,
			APIKey:          c.Qdrant.APIKey.Value(),
			UseTLS:          c.Qdrant.UseTLS,
			UpsertBatchSize: c.Qdrant.UpsertBatchSize,
			MaxMessageSize:  c.Qdrant.MaxMessageSize,
		},
		Chromem: vectorstore.ChromemConfig{
			Path:     c.Chromem.Path,
			Compress: c.Chromem.Compress,
		},
		Logger: a.logger.Named("vectorstore"),
	})
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func (a *app) collectionSpec() vectorstore.CollectionSpec {
	return vectorstore.CollectionSpec{
		Name:      a.cfg.Collection.Name,
		Dimension: a.cfg.Collection.Dimension,
		Metric:    a.cfg.Collection.Metric,
	}
}

// ensureCollection creates the configured collection when absent.
func (a *app) ensureCollection(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	spec := a.collectionSpec()
	if err := store.EnsureCollection(ctx, spec); err != nil {
		return err
	}
	a.logger.Info(ctx, "collection ready",
		zap.String("collection", spec.Name),
		zap.Int("dimension", spec.Dimension))
	return nil
}

// pipelines builds the in-process ingestion and query pipelines.
func (a *app) pipelines(ctx context.Context) error {
	if a.ingestor != nil {
		return nil
	}
	c := a.cfg

	emb, err := embeddings.NewProvider(embeddings.Config{
		Provider:  c.Embeddings.Provider,
		BaseURL:   c.Embeddings.BaseURL,
		Model:     c.Embeddings.Model,
		APIKey:    c.Embeddings.APIKey.Value(),
		Dimension: c.Embeddings.Dimension,
		BatchSize: c.Embeddings.BatchSize,
		CacheDir:  c.Embeddings.CacheDir,
	})
	if err != nil {
		return err
	}
	a.embedder = emb
	a.closers = append(a.closers, emb.Close)
	if err := embeddings.CheckDimension(emb, c.Collection.Dimension); err != nil {
		return err
	}
	if err := a.ensureCollection(ctx); err != nil {
		return err
	}

	gen, err := generator.New(generator.Config{
		BaseURL:      c.LLM.BaseURL,
		Model:        c.LLM.Model,
		APIKey:       c.LLM.APIKey.Value(),
		MaxTokens:    c.LLM.MaxTokens,
		Temperature:  c.LLM.Temperature,
		SystemPrompt: c.LLM.SystemPrompt,
		RateLimit:    c.LLM.RateLimit,
		Burst:        c.LLM.Burst,
	}, a.logger.Named("generator"))
	if err != nil {
		return err
	}

	deps := rag.IngestorDeps{
		Loader:   loader.New(),
		Embedder: emb,
		Store:    a.store,
		Logger:   a.logger.Named("ingest"),
	}
	if c.Ingest.RedactSecrets {
		r, err := redact.New(redact.Options{
			AllowlistPath: c.Ingest.AllowlistPath,
			Logger:        a.logger.Named("redact"),
		})
		if err != nil {
			return err
		}
		deps.Redactor = r
	}

	a.ingestor, err = rag.NewIngestor(deps, rag.IngestConfig{
		Collection: c.Collection.Name,
		Dimension:  c.Collection.Dimension,
		Chunking:   c.Chunking,
	})
	if err != nil {
		return err
	}

	a.querier, err = rag.NewQuerier(rag.QuerierDeps{
		Embedder:  emb,
		Store:     a.store,
		Generator: gen,
		Logger:    a.logger.Named("query"),
	}, rag.QueryConfig{Collection: c.Collection.Name})
	return err
}

func (a *app) temporalClient() (client.Client, error) {
	if a.temporal != nil {
		return a.temporal, nil
	}
	c, err := workflows.Dial(workflows.ClientConfig{
		HostPort:  a.cfg.Temporal.HostPort,
		Namespace: a.cfg.Temporal.Namespace,
	}, a.logger.Named("temporal"))
	if err != nil {
		return nil, err
	}
	a.temporal = c
	a.closers = append(a.closers, func() error { c.Close(); return nil })
	return c, nil
}

func (a *app) natsConn() (*nats.Conn, error) {
	if a.nc != nil {
		return a.nc, nil
	}
	nc, err := events.Connect(a.cfg.NATS.URL, a.logger.Named("nats"))
	if err != nil {
		return nil, err
	}
	a.nc = nc
	a.closers = append(a.closers, func() error { nc.Close(); return nil })
	return nc, nil
}

func (a *app) eventsConfig() events.Config {
	n := a.cfg.NATS
	return events.Config{
		IngestSubject: n.IngestSubject,
		QuerySubject:  n.QuerySubject,
		EventsSubject: n.EventsSubject,
		QueueGroup:    n.QueueGroup,
	}
}

func (a *app) activityConfig() workflows.ActivityConfig {
	t := a.cfg.Temporal
	return workflows.ActivityConfig{
		StartToCloseTimeout: t.ActivityTimeout,
		MaximumAttempts:     t.MaxAttempts,
		InitialInterval:     t.InitialInterval,
	}
}

// resolveVia applies the default dispatch mode.
func resolveVia(via string, temporalEnabled bool) (string, error) {
	switch via {
	case "":
		if temporalEnabled {
			return viaTemporal, nil
		}
		return viaLocal, nil
	case viaLocal, viaTemporal, viaNATS:
		return via, nil
	default:
		return "", errdefs.Configf("via", "must be local, temporal or nats, got %q", via)
	}
}

// dispatcher returns the Dispatcher for the requested mode.
func (a *app) dispatcher(ctx context.Context, via string) (trigger.Dispatcher, string, error) {
	mode, err := resolveVia(via, a.cfg.Temporal.Enabled)
	if err != nil {
		return nil, "", err
	}

	switch mode {
	case viaTemporal:
		c, err := a.temporalClient()
		if err != nil {
			return nil, "", err
		}
		return workflows.NewDispatcher(c, workflows.DispatcherConfig{
			TaskQueue:       a.cfg.Temporal.TaskQueue,
			WorkflowTimeout: a.cfg.Temporal.WorkflowTimeout,
			Activity:        a.activityConfig(),
		}, a.logger.Named("dispatcher")), mode, nil
	case viaNATS:
		nc, err := a.natsConn()
		if err != nil {
			return nil, "", err
		}
		return events.NewClient(nc, a.eventsConfig()), mode, nil
	default:
		if err := a.pipelines(ctx); err != nil {
			return nil, "", err
		}
		return &trigger.Local{Ingestor: a.ingestor, Querier: a.querier}, mode, nil
	}
}

// handler wraps the dispatcher for via in a trigger.Handler.
func (a *app) handler(ctx context.Context, via string) (*trigger.Handler, string, error) {
	d, mode, err := a.dispatcher(ctx, via)
	if err != nil {
		return nil, "", err
	}
	a.logger.Debug(ctx, "dispatcher ready", zap.String("via", mode))
	return trigger.NewHandler(d, a.logger.Named("trigger")), mode, nil
}

// Close releases handles in reverse order of creation.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
