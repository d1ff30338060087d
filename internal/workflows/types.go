// Package workflows runs the ingestion and query pipelines as Temporal
// workflows. Each pipeline is two activities, so a failed second step is
// retried without repeating the first.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/rag"
)

// Defaults applied when ActivityConfig fields are zero.
const (
	DefaultActivityTimeout = 2 * time.Minute
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = time.Second
	DefaultTaskQueue       = "rag-pdf"
)

// ActivityConfig controls activity timeouts and retries. It travels with
// the workflow input so workers need no extra configuration.
type ActivityConfig struct {
	StartToCloseTimeout time.Duration `json:"start_to_close_timeout,omitempty"`
	MaximumAttempts     int32         `json:"maximum_attempts,omitempty"`
	InitialInterval     time.Duration `json:"initial_interval,omitempty"`
}

func (c ActivityConfig) options() workflow.ActivityOptions {
	if c.StartToCloseTimeout <= 0 {
		c.StartToCloseTimeout = DefaultActivityTimeout
	}
	if c.MaximumAttempts <= 0 {
		c.MaximumAttempts = DefaultMaxAttempts
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = DefaultInitialInterval
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: c.StartToCloseTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        c.InitialInterval,
			BackoffCoefficient:     2.0,
			MaximumAttempts:        c.MaximumAttempts,
			NonRetryableErrorTypes: errdefs.NonRetryableKinds(),
		},
	}
}

// IngestPDFInput is the input of IngestPDFWorkflow.
type IngestPDFInput struct {
	Request  rag.IngestRequest `json:"request"`
	Activity ActivityConfig    `json:"activity,omitempty"`
}

// QueryPDFInput is the input of QueryPDFWorkflow.
type QueryPDFInput struct {
	Request  rag.QueryRequest `json:"request"`
	Activity ActivityConfig   `json:"activity,omitempty"`
}

// SearchInput is the input of the EmbedAndSearch activity.
type SearchInput struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

// AnswerInput is the input of the GenerateAnswer activity.
type AnswerInput struct {
	Question  string        `json:"question"`
	Retrieval rag.Retrieval `json:"retrieval"`
}
