package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/msgdesk/hub/internal/command"
	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/jobs"
	"github.com/msgdesk/hub/internal/observability"
)

// BulkSendTimeout bounds one bulk send run. Large runs with long batch delays need most of it.
const BulkSendTimeout = 6 * time.Hour

// bulkSendExecutor runs a stored bulk send (implemented by *service.BulkSendService).
type bulkSendExecutor interface {
	ExecuteBulkSend(ctx context.Context, id uuid.UUID) (*command.BulkSendResult, error)
}

// BulkSendWorker executes one bulk send run. Jobs are inserted with a single attempt; a run that
// already left pending is never started again.
type BulkSendWorker struct {
	river.WorkerDefaults[jobs.BulkSendArgs]

	executor bulkSendExecutor
}

// NewBulkSendWorker creates a bulk send worker.
func NewBulkSendWorker(executor bulkSendExecutor) *BulkSendWorker {
	return &BulkSendWorker{executor: executor}
}

// Timeout limits how long a run may take.
func (w *BulkSendWorker) Timeout(*river.Job[jobs.BulkSendArgs]) time.Duration {
	return BulkSendTimeout
}

// Work runs the bulk send. Runs that were cancelled, deleted or already started are cancelled
// instead of failed so River does not record them as errors.
func (w *BulkSendWorker) Work(ctx context.Context, job *river.Job[jobs.BulkSendArgs]) error {
	id := job.Args.BulkSendID
	ctx = observability.WithRunID(ctx, id.String())

	result, err := w.executor.ExecuteBulkSend(ctx, id)
	if err == nil {
		return nil
	}

	if errors.Is(err, huberrors.ErrConflict) || errors.Is(err, huberrors.ErrNotFound) {
		slog.InfoContext(ctx, "bulk send not runnable, skipping", "job_id", job.ID, "reason", err)

		return river.JobCancel(err)
	}

	if result != nil {
		// The run stopped part way; its final state is already stored.
		slog.WarnContext(ctx, "bulk send interrupted",
			"sent", result.Sent(),
			"failed", result.Failed(),
			"error", err,
		)

		return river.JobCancel(err)
	}

	return fmt.Errorf("execute bulk send %s: %w", id, err)
}
