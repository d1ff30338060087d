package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/rag"
)

// ClientConfig holds Temporal connection settings.
type ClientConfig struct {
	HostPort  string
	Namespace string
}

// Dial connects to Temporal with the SDK logging through zap.
func Dial(cfg ClientConfig, logger *logging.Logger) (client.Client, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    logging.NewTemporalLogger(logger.Named("temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	return c, nil
}

// DispatcherConfig configures workflow starts.
type DispatcherConfig struct {
	TaskQueue       string
	WorkflowTimeout time.Duration
	Activity        ActivityConfig
}

// Dispatcher starts pipeline workflows and waits for their results.
type Dispatcher struct {
	client client.Client
	cfg    DispatcherConfig
	logger *logging.Logger
}

// NewDispatcher wraps a connected client.
func NewDispatcher(c client.Client, cfg DispatcherConfig, logger *logging.Logger) *Dispatcher {
	if cfg.TaskQueue == "" {
		cfg.TaskQueue = DefaultTaskQueue
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{client: c, cfg: cfg, logger: logger}
}

// Ingest runs IngestPDFWorkflow to completion.
func (d *Dispatcher) Ingest(ctx context.Context, req rag.IngestRequest) (res *rag.IngestResult, err error) {
	defer func() { recordWorkflow(ctx, "IngestPDFWorkflow", err) }()

	req, err = req.Normalize()
	if err != nil {
		return nil, err
	}
	res = &rag.IngestResult{}
	err = d.run(ctx, "rag-ingest-", IngestPDFWorkflow, IngestPDFInput{Request: req, Activity: d.cfg.Activity}, res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Query runs QueryPDFWorkflow to completion.
func (d *Dispatcher) Query(ctx context.Context, req rag.QueryRequest) (res *rag.QueryResult, err error) {
	defer func() { recordWorkflow(ctx, "QueryPDFWorkflow", err) }()

	req, err = req.Normalize()
	if err != nil {
		return nil, err
	}
	res = &rag.QueryResult{}
	err = d.run(ctx, "rag-query-", QueryPDFWorkflow, QueryPDFInput{Request: req, Activity: d.cfg.Activity}, res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (d *Dispatcher) run(ctx context.Context, prefix string, wf, input, result any) error {
	opts := client.StartWorkflowOptions{
		ID:        prefix + uuid.NewString(),
		TaskQueue: d.cfg.TaskQueue,
	}
	if d.cfg.WorkflowTimeout > 0 {
		opts.WorkflowExecutionTimeout = d.cfg.WorkflowTimeout
	}

	run, err := d.client.ExecuteWorkflow(ctx, opts, wf, input)
	if err != nil {
		return fmt.Errorf("starting workflow: %w", err)
	}
	ctx = logging.WithWorkflowID(ctx, run.GetID())
	d.logger.Debug(ctx, "workflow started",
		zap.String("run_id", run.GetRunID()),
		zap.String("task_queue", d.cfg.TaskQueue))

	if err := run.Get(ctx, result); err != nil {
		d.logger.Warn(ctx, "workflow failed", zap.Error(err))
		return decodeError(err)
	}
	return nil
}
