package service

import (
	"context"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/msgdesk/hub/internal/jobs"
	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/internal/observability"
)

// WebhookLister lists the enabled webhooks subscribed to an event type.
type WebhookLister interface {
	ListEnabledForEventType(ctx context.Context, eventType string) ([]models.Webhook, error)
}

// WebhookProvider turns published events into webhook dispatch jobs, one per subscribed endpoint.
type WebhookProvider struct {
	repo        WebhookLister
	inserter    jobs.ManyInserter
	maxAttempts int
	maxFanOut   int
	metrics     observability.WebhookMetrics
}

// NewWebhookProvider returns a provider that enqueues through inserter. A non-positive maxFanOut
// inserts one job per call. metrics may be nil.
func NewWebhookProvider(
	inserter jobs.ManyInserter, repo WebhookLister, maxAttempts, maxFanOut int,
	metrics observability.WebhookMetrics,
) *WebhookProvider {
	if maxFanOut <= 0 {
		maxFanOut = 1
	}

	return &WebhookProvider{
		repo:        repo,
		inserter:    inserter,
		maxAttempts: maxAttempts,
		maxFanOut:   maxFanOut,
		metrics:     metrics,
	}
}

// PublishEvent enqueues one dispatch job per enabled webhook subscribed to the event type,
// inserting at most maxFanOut jobs per InsertMany call. Enqueueing stops at the first failed chunk.
func (p *WebhookProvider) PublishEvent(ctx context.Context, event Event) {
	eventType := event.Type.String()
	log := slog.With("event_id", event.ID, "event_type", eventType)

	webhooks, err := p.repo.ListEnabledForEventType(ctx, eventType)
	if err != nil {
		p.recordError(ctx, "list_failed")
		log.ErrorContext(ctx, "list webhooks for event", "error", err)

		return
	}

	opts := jobs.WebhookDispatchInsertOpts(p.maxAttempts)

	var enqueued int64

	for chunk := range slices.Chunk(webhooks, p.maxFanOut) {
		params := make([]river.InsertManyParams, len(chunk))
		for i := range chunk {
			params[i] = river.InsertManyParams{Args: dispatchArgs(event, chunk[i].ID), InsertOpts: opts}
		}

		if _, err := p.inserter.InsertMany(ctx, params); err != nil {
			p.recordError(ctx, "enqueue_failed")
			log.ErrorContext(ctx, "enqueue webhook dispatch jobs", "enqueued", enqueued, "error", err)

			break
		}

		enqueued += int64(len(chunk))
	}

	if p.metrics != nil && enqueued > 0 {
		p.metrics.RecordJobsEnqueued(ctx, eventType, enqueued)
	}
}

func (p *WebhookProvider) recordError(ctx context.Context, reason string) {
	if p.metrics != nil {
		p.metrics.RecordProviderError(ctx, reason)
	}
}

func dispatchArgs(event Event, webhookID uuid.UUID) jobs.WebhookDispatchArgs {
	return jobs.WebhookDispatchArgs{
		EventID:       event.ID,
		WebhookID:     webhookID,
		EventType:     event.Type.String(),
		Timestamp:     event.Timestamp,
		Data:          event.Data,
		ChangedFields: event.ChangedFields,
	}
}

var _ eventPublisher = (*WebhookProvider)(nil)
