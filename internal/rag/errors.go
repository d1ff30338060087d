package rag

import "fmt"

// Pipeline stages reported in StageError.
const (
	StageLoad     = "load"
	StageRedact   = "redact"
	StageChunk    = "chunk"
	StageEmbed    = "embed"
	StageUpsert   = "upsert"
	StageSearch   = "search"
	StageGenerate = "generate"
)

// StageError is the Failed(stage, cause) terminal state of a pipeline.
// Unwrap yields the typed cause, so errdefs.KindOf sees through it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
