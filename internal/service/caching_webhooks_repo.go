package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/internal/observability"
	"github.com/msgdesk/hub/pkg/cache"
)

// cachedLookup reads key through c and counts the hit or miss under name. metrics may be nil.
func cachedLookup[K comparable, V any](
	ctx context.Context,
	c *cache.LoaderCache[K, V],
	metrics observability.CacheMetrics,
	name string,
	key K,
	load func(context.Context, K) (V, error),
) (V, error) {
	v, hit, err := c.GetWithStats(ctx, key, load)
	if err != nil {
		return v, err
	}

	switch {
	case metrics == nil:
	case hit:
		metrics.RecordHit(ctx, name)
	default:
		metrics.RecordMiss(ctx, name)
	}

	return v, nil
}

// cachingWebhooksRepo serves the hot paths of event fan-out and delivery from memory:
// ListEnabledForEventType runs once per published event and GetByID once per delivery job.
// List and Count pass straight through to the embedded repository.
type cachingWebhooksRepo struct {
	WebhooksRepository

	byEventType *cache.LoaderCache[string, []models.Webhook]
	byID        *cache.LoaderCache[uuid.UUID, *models.Webhook]
	metrics     observability.CacheMetrics
}

// NewCachingWebhooksRepository wraps inner. Every write drops the per-event-type lists;
// Update and Delete also drop the cached webhook. metrics may be nil.
func NewCachingWebhooksRepository(
	inner WebhooksRepository,
	byEventType *cache.LoaderCache[string, []models.Webhook],
	byID *cache.LoaderCache[uuid.UUID, *models.Webhook],
	metrics observability.CacheMetrics,
) WebhooksRepository {
	return &cachingWebhooksRepo{
		WebhooksRepository: inner,
		byEventType:        byEventType,
		byID:               byID,
		metrics:            metrics,
	}
}

func (r *cachingWebhooksRepo) ListEnabledForEventType(ctx context.Context, eventType string) ([]models.Webhook, error) {
	return cachedLookup(ctx, r.byEventType, r.metrics, observability.CacheWebhookList, eventType,
		r.WebhooksRepository.ListEnabledForEventType)
}

func (r *cachingWebhooksRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Webhook, error) {
	return cachedLookup(ctx, r.byID, r.metrics, observability.CacheWebhookGetByID, id, r.WebhooksRepository.GetByID)
}

func (r *cachingWebhooksRepo) Create(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error) {
	w, err := r.WebhooksRepository.Create(ctx, req)
	if err == nil {
		r.byEventType.InvalidateAll()
	}

	return w, err
}

func (r *cachingWebhooksRepo) Update(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.Webhook, error) {
	w, err := r.WebhooksRepository.Update(ctx, id, req)
	if err == nil {
		r.forget(id)
	}

	return w, err
}

func (r *cachingWebhooksRepo) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.WebhooksRepository.Delete(ctx, id)
	if err == nil {
		r.forget(id)
	}

	return err
}

func (r *cachingWebhooksRepo) forget(id uuid.UUID) {
	r.byEventType.InvalidateAll()
	r.byID.Invalidate(id)
}
