package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/jobs"
	"github.com/msgdesk/hub/internal/service"
)

// ScheduledSendTimeout bounds delivering one scheduled message. Bulk sends only get created here.
const ScheduledSendTimeout = time.Minute

// scheduledDeliverer is implemented by *service.ScheduledMessagesService.
type scheduledDeliverer interface {
	DeliverScheduled(ctx context.Context, id uuid.UUID) (*uuid.UUID, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, bulkSendID *uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// ScheduledSendWorker delivers one scheduled message that the poller enqueued.
type ScheduledSendWorker struct {
	river.WorkerDefaults[jobs.ScheduledSendArgs]

	deliverer scheduledDeliverer
}

// NewScheduledSendWorker creates a scheduled send worker.
func NewScheduledSendWorker(deliverer scheduledDeliverer) *ScheduledSendWorker {
	return &ScheduledSendWorker{deliverer: deliverer}
}

// Timeout limits how long a single delivery can run.
func (w *ScheduledSendWorker) Timeout(*river.Job[jobs.ScheduledSendArgs]) time.Duration {
	return ScheduledSendTimeout
}

// Work sends the SMS or creates the bulk send. Transient provider errors are retried while
// attempts remain; anything else marks the message failed.
func (w *ScheduledSendWorker) Work(ctx context.Context, job *river.Job[jobs.ScheduledSendArgs]) error {
	id := job.Args.ScheduledMessageID
	logger := slog.With("scheduled_message_id", id, "job_id", job.ID, "attempt", job.Attempt)

	bulkSendID, err := w.deliverer.DeliverScheduled(ctx, id)

	switch {
	case errors.Is(err, service.ErrScheduledNotEnqueued):
		logger.InfoContext(ctx, "scheduled message no longer enqueued, skipping", "reason", err)

		return nil
	case errors.Is(err, service.ErrSentNotRecorded):
		logger.ErrorContext(ctx, "scheduled sms sent without history row", "error", err)
	case err != nil:
		if retryable(err) && job.Attempt < job.MaxAttempts {
			logger.WarnContext(ctx, "scheduled message delivery failed, will retry", "error", err)

			return fmt.Errorf("deliver scheduled message: %w", err)
		}

		if markErr := w.deliverer.MarkFailed(context.WithoutCancel(ctx), id, err.Error()); markErr != nil {
			logger.ErrorContext(ctx, "failed to mark scheduled message failed", "error", markErr)
		}

		logger.ErrorContext(ctx, "scheduled message failed", "error", err)

		return river.JobCancel(err)
	}

	// Not retried on error: a second attempt would send again.
	if err := w.deliverer.MarkDelivered(context.WithoutCancel(ctx), id, bulkSendID); err != nil {
		logger.ErrorContext(ctx, "failed to mark scheduled message sent", "error", err)

		return nil
	}

	logger.InfoContext(ctx, "scheduled message delivered", "bulk_send_id", bulkSendID)

	return nil
}

// retryable reports whether a delivery error may succeed on a later attempt.
func retryable(err error) bool {
	var upstream *huberrors.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Retryable
	}

	switch {
	case errors.Is(err, huberrors.ErrValidation),
		errors.Is(err, huberrors.ErrNotFound),
		errors.Is(err, huberrors.ErrConflict),
		errors.Is(err, huberrors.ErrLimitExceeded):
		return false
	default:
		return true
	}
}
