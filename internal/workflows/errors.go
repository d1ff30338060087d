package workflows

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

// activityError converts a pipeline error into an ApplicationError whose
// type is the errdefs kind. Configuration, source and schema failures are
// marked non-retryable so Temporal gives up immediately.
func activityError(err error) error {
	if err == nil {
		return nil
	}
	kind := errdefs.KindOf(err)
	if !errdefs.RetryableKind(kind) {
		return temporal.NewNonRetryableApplicationError(err.Error(), kind, err)
	}
	return temporal.NewApplicationErrorWithCause(err.Error(), kind, err)
}

// decodeError turns a workflow failure back into an error errdefs can
// classify. Errors without an application failure pass through.
func decodeError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return errdefs.FromKind(appErr.Type(), appErr.Message())
	}
	return err
}
