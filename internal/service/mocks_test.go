package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/msgdesk/hub/internal/datatypes"
	"github.com/msgdesk/hub/internal/models"
)

var errNotImplemented = errors.New("not implemented")

// mockWebhooksRepo implements WebhooksRepository through optional func fields.
type mockWebhooksRepo struct {
	createFn      func(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error)
	getByIDFn     func(ctx context.Context, id uuid.UUID) (*models.Webhook, error)
	countFn       func(ctx context.Context, filters *models.ListWebhooksFilters) (int64, error)
	updateFn      func(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.Webhook, error)
	deleteFn      func(ctx context.Context, id uuid.UUID) error
	listEnabledFn func(ctx context.Context, eventType string) ([]models.Webhook, error)

	mu           sync.Mutex
	getByIDCalls int
	listCalls    int
	updates      []*models.UpdateWebhookRequest
}

func (m *mockWebhooksRepo) Create(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error) {
	if m.createFn == nil {
		return nil, errNotImplemented
	}

	return m.createFn(ctx, req)
}

func (m *mockWebhooksRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Webhook, error) {
	m.mu.Lock()
	m.getByIDCalls++
	m.mu.Unlock()

	if m.getByIDFn == nil {
		return nil, errNotImplemented
	}

	return m.getByIDFn(ctx, id)
}

func (m *mockWebhooksRepo) List(_ context.Context, _ *models.ListWebhooksFilters) ([]models.Webhook, error) {
	return []models.Webhook{}, nil
}

func (m *mockWebhooksRepo) Count(ctx context.Context, filters *models.ListWebhooksFilters) (int64, error) {
	if m.countFn == nil {
		return 0, nil
	}

	return m.countFn(ctx, filters)
}

func (m *mockWebhooksRepo) Update(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.Webhook, error) {
	m.mu.Lock()
	m.updates = append(m.updates, req)
	m.mu.Unlock()

	if m.updateFn == nil {
		return &models.Webhook{ID: id}, nil
	}

	return m.updateFn(ctx, id, req)
}

func (m *mockWebhooksRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn == nil {
		return nil
	}

	return m.deleteFn(ctx, id)
}

func (m *mockWebhooksRepo) ListEnabledForEventType(ctx context.Context, eventType string) ([]models.Webhook, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()

	if m.listEnabledFn == nil {
		return nil, nil
	}

	return m.listEnabledFn(ctx, eventType)
}

// mockInserter records InsertMany batches.
type mockInserter struct {
	mu    sync.Mutex
	calls [][]river.InsertManyParams
	err   error
}

func (m *mockInserter) InsertMany(_ context.Context, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]river.InsertManyParams(nil), params...))
	if m.err != nil {
		return nil, m.err
	}

	results := make([]*rivertype.JobInsertResult, len(params))
	for i := range results {
		results[i] = &rivertype.JobInsertResult{Job: &rivertype.JobRow{ID: int64(i + 1)}}
	}

	return results, nil
}

type publishedEvent struct {
	Type          datatypes.EventType
	Data          any
	ChangedFields []string
}

// capturingPublisher records every published event.
type capturingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *capturingPublisher) PublishEvent(ctx context.Context, eventType datatypes.EventType, data any) {
	p.PublishEventWithChangedFields(ctx, eventType, data, nil)
}

func (p *capturingPublisher) PublishEventWithChangedFields(
	_ context.Context, eventType datatypes.EventType, data any, changedFields []string,
) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, publishedEvent{Type: eventType, Data: data, ChangedFields: changedFields})
}

func (p *capturingPublisher) types() []datatypes.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]datatypes.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}

	return out
}

func (p *capturingPublisher) last() publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.events) == 0 {
		return publishedEvent{}
	}

	return p.events[len(p.events)-1]
}

// recordingProvider collects events fanned out by MessagePublisherManager.
type recordingProvider struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
}

func (r *recordingProvider) PublishEvent(_ context.Context, event Event) {
	if r.block != nil {
		<-r.block
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *recordingProvider) received() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Event(nil), r.events...)
}
