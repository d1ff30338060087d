package workflows

import (
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// Register adds both workflows and all activities to r.
func Register(r worker.Registry, acts *Activities) {
	r.RegisterWorkflow(IngestPDFWorkflow)
	r.RegisterWorkflow(QueryPDFWorkflow)
	r.RegisterActivity(acts)
}

// NewWorker builds a worker for taskQueue with everything registered.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{})
	Register(w, acts)
	return w
}
