package jobs

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// ErrorHandler logs failed and panicking jobs. Errors keep River's retry schedule.
// A bulk send that panics is cancelled instead: part of the run may already have been delivered.
type ErrorHandler struct{}

func (h *ErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	slog.ErrorContext(ctx, "job failed", append(jobAttrs(job), "error", err)...)

	return nil
}

func (h *ErrorHandler) HandlePanic(
	ctx context.Context, job *rivertype.JobRow, panicVal any, trace string,
) *river.ErrorHandlerResult {
	slog.ErrorContext(ctx, "job panicked", append(jobAttrs(job), "panic", panicVal, "stack", trace)...)

	if job.Kind == BulkSendKind {
		return &river.ErrorHandlerResult{SetCancelled: true}
	}

	return nil
}

func jobAttrs(job *rivertype.JobRow) []any {
	return []any{
		"job_id", job.ID,
		"job_kind", job.Kind,
		"queue", job.Queue,
		"attempt", job.Attempt,
		"max_attempts", job.MaxAttempts,
	}
}

var _ river.ErrorHandler = (*ErrorHandler)(nil)
