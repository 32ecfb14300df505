// Package workers provides the River job workers and the scheduled message poller.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/msgdesk/hub/internal/jobs"
	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/internal/observability"
	"github.com/msgdesk/hub/internal/service"
)

// WebhookDeliveryTimeout bounds one delivery attempt. It leaves headroom over the sender's HTTP timeout.
const WebhookDeliveryTimeout = 25 * time.Second

// Delivery outcomes recorded per attempt.
const (
	deliverySuccess     = "success"
	deliveryRetry       = "retry"
	deliveryFailedFinal = "failed_final"
)

type webhookDispatchRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webhook, error)
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.Webhook, error)
}

// WebhookDispatchWorker delivers one event to one webhook endpoint. River retries failed
// attempts; when the last attempt fails the endpoint is disabled.
type WebhookDispatchWorker struct {
	river.WorkerDefaults[jobs.WebhookDispatchArgs]

	repo    webhookDispatchRepo
	sender  service.WebhookSender
	metrics observability.WebhookMetrics
}

// NewWebhookDispatchWorker returns a dispatch worker. metrics may be nil.
func NewWebhookDispatchWorker(
	repo webhookDispatchRepo, sender service.WebhookSender, metrics observability.WebhookMetrics,
) *WebhookDispatchWorker {
	return &WebhookDispatchWorker{repo: repo, sender: sender, metrics: metrics}
}

func (w *WebhookDispatchWorker) Timeout(*river.Job[jobs.WebhookDispatchArgs]) time.Duration {
	return WebhookDeliveryTimeout
}

func (w *WebhookDispatchWorker) Work(ctx context.Context, job *river.Job[jobs.WebhookDispatchArgs]) error {
	args := job.Args
	started := time.Now()
	log := slog.With("event_id", args.EventID, "webhook_id", args.WebhookID, "event_type", args.EventType)

	webhook, err := w.repo.GetByID(ctx, args.WebhookID)
	if err != nil {
		// The endpoint was most likely deleted after fan-out; retrying cannot help.
		log.ErrorContext(ctx, "load webhook for dispatch", "error", err)
		w.recordError(ctx, "get_webhook_failed")
		w.recordDelivery(ctx, args.EventType, deliveryFailedFinal, started)

		return nil
	}

	if !webhook.Enabled {
		log.DebugContext(ctx, "skip dispatch to disabled webhook")
		return nil
	}

	sendErr := w.sender.Send(ctx, webhook, args.Payload())
	switch {
	case sendErr == nil:
		w.recordDelivery(ctx, args.EventType, deliverySuccess, started)

		return nil
	case job.Attempt < job.MaxAttempts:
		w.recordDelivery(ctx, args.EventType, deliveryRetry, started)
		log.WarnContext(ctx, "webhook delivery failed, retrying", "url", webhook.URL, "attempt", job.Attempt, "error", sendErr)

		return fmt.Errorf("deliver webhook: %w", sendErr)
	}

	if _, err := w.repo.Update(ctx, webhook.ID, models.DisableWebhook(sendErr.Error())); err != nil {
		log.ErrorContext(ctx, "disable webhook after last attempt", "error", err)
	} else {
		log.ErrorContext(ctx, "webhook disabled after last delivery attempt", "error", sendErr)
	}

	if w.metrics != nil {
		w.metrics.RecordWebhookDisabled(ctx, "max_attempts")
	}

	w.recordDelivery(ctx, args.EventType, deliveryFailedFinal, started)

	return fmt.Errorf("deliver webhook (last attempt): %w", sendErr)
}

func (w *WebhookDispatchWorker) recordDelivery(ctx context.Context, eventType, outcome string, started time.Time) {
	if w.metrics != nil {
		w.metrics.RecordDelivery(ctx, eventType, outcome, time.Since(started))
	}
}

func (w *WebhookDispatchWorker) recordError(ctx context.Context, reason string) {
	if w.metrics != nil {
		w.metrics.RecordDispatchError(ctx, reason)
	}
}
