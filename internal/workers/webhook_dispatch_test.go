package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgdesk/hub/internal/jobs"
	"github.com/msgdesk/hub/internal/models"
)

type mockDispatchRepo struct {
	webhook *models.Webhook
	err     error
	update  *models.UpdateWebhookRequest
}

func (m *mockDispatchRepo) GetByID(_ context.Context, _ uuid.UUID) (*models.Webhook, error) {
	return m.webhook, m.err
}

func (m *mockDispatchRepo) Update(_ context.Context, _ uuid.UUID, req *models.UpdateWebhookRequest) (*models.Webhook, error) {
	m.update = req

	return m.webhook, nil
}

type mockSender struct {
	err     error
	payload *models.WebhookPayload
}

func (m *mockSender) Send(_ context.Context, _ *models.Webhook, payload *models.WebhookPayload) error {
	m.payload = payload

	return m.err
}

type countingWebhookMetrics struct {
	mu         sync.Mutex
	deliveries map[string]int
	disabled   []string
	dispatch   []string
}

func newCountingWebhookMetrics() *countingWebhookMetrics {
	return &countingWebhookMetrics{deliveries: map[string]int{}}
}

func (m *countingWebhookMetrics) RecordJobsEnqueued(context.Context, string, int64) {}
func (m *countingWebhookMetrics) RecordProviderError(context.Context, string)       {}
func (m *countingWebhookMetrics) RecordEnqueueRetry(context.Context)                {}

func (m *countingWebhookMetrics) RecordDelivery(_ context.Context, _, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deliveries[status]++
}

func (m *countingWebhookMetrics) RecordWebhookDisabled(_ context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.disabled = append(m.disabled, reason)
}

func (m *countingWebhookMetrics) RecordDispatchError(_ context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dispatch = append(m.dispatch, reason)
}

func TestWebhookDispatchWorker_Work(t *testing.T) {
	ctx := context.Background()
	webhookID := uuid.Must(uuid.NewV7())
	args := jobs.WebhookDispatchArgs{
		EventID:       uuid.Must(uuid.NewV7()),
		EventType:     "bulk_send.completed",
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:          map[string]any{"status": "completed"},
		ChangedFields: nil,
		WebhookID:     webhookID,
	}
	enabled := func() *models.Webhook {
		return &models.Webhook{ID: webhookID, Enabled: true, URL: "http://x", SigningKey: "sk"}
	}

	t.Run("returns nil when webhook not found", func(t *testing.T) {
		repo := &mockDispatchRepo{err: errors.New("not found")}
		metrics := newCountingWebhookMetrics()
		worker := NewWebhookDispatchWorker(repo, &mockSender{}, metrics)

		err := worker.Work(ctx, &river.Job[jobs.WebhookDispatchArgs]{JobRow: &rivertype.JobRow{}, Args: args})
		require.NoError(t, err)
		assert.Equal(t, []string{"get_webhook_failed"}, metrics.dispatch)
		assert.Equal(t, 1, metrics.deliveries["failed_final"])
	})

	t.Run("returns nil when webhook disabled", func(t *testing.T) {
		repo := &mockDispatchRepo{webhook: &models.Webhook{ID: webhookID, Enabled: false}}
		sender := &mockSender{}
		worker := NewWebhookDispatchWorker(repo, sender, nil)

		err := worker.Work(ctx, &river.Job[jobs.WebhookDispatchArgs]{JobRow: &rivertype.JobRow{}, Args: args})
		require.NoError(t, err)
		assert.Nil(t, sender.payload)
	})

	t.Run("sends the event payload", func(t *testing.T) {
		repo := &mockDispatchRepo{webhook: enabled()}
		sender := &mockSender{}
		metrics := newCountingWebhookMetrics()
		worker := NewWebhookDispatchWorker(repo, sender, metrics)

		err := worker.Work(ctx, &river.Job[jobs.WebhookDispatchArgs]{JobRow: &rivertype.JobRow{}, Args: args})
		require.NoError(t, err)
		require.NotNil(t, sender.payload)
		assert.Equal(t, args.EventID, sender.payload.ID)
		assert.Equal(t, "bulk_send.completed", sender.payload.Type)
		assert.Equal(t, args.Timestamp, sender.payload.Timestamp)
		assert.Nil(t, repo.update)
		assert.Equal(t, 1, metrics.deliveries["success"])
	})

	t.Run("returns error without disabling while attempts remain", func(t *testing.T) {
		repo := &mockDispatchRepo{webhook: enabled()}
		metrics := newCountingWebhookMetrics()
		worker := NewWebhookDispatchWorker(repo, &mockSender{err: errors.New("network error")}, metrics)

		err := worker.Work(ctx, &river.Job[jobs.WebhookDispatchArgs]{
			JobRow: &rivertype.JobRow{Attempt: 1, MaxAttempts: 3},
			Args:   args,
		})
		require.Error(t, err)
		assert.Nil(t, repo.update)
		assert.Equal(t, 1, metrics.deliveries["retry"])
	})

	t.Run("disables the webhook on the last attempt", func(t *testing.T) {
		repo := &mockDispatchRepo{webhook: enabled()}
		metrics := newCountingWebhookMetrics()
		worker := NewWebhookDispatchWorker(repo, &mockSender{err: errors.New("final failure")}, metrics)

		err := worker.Work(ctx, &river.Job[jobs.WebhookDispatchArgs]{
			JobRow: &rivertype.JobRow{Attempt: 3, MaxAttempts: 3},
			Args:   args,
		})
		require.Error(t, err)
		require.NotNil(t, repo.update)
		require.NotNil(t, repo.update.Enabled)
		assert.False(t, *repo.update.Enabled)
		require.NotNil(t, repo.update.DisabledReason)
		assert.Equal(t, "final failure", *repo.update.DisabledReason)
		assert.NotNil(t, repo.update.DisabledAt)
		assert.Equal(t, []string{"max_attempts"}, metrics.disabled)
		assert.Equal(t, 1, metrics.deliveries["failed_final"])
	})
}

func TestWebhookDispatchWorker_Timeout(t *testing.T) {
	worker := NewWebhookDispatchWorker(nil, nil, nil)

	assert.Equal(t, 25*time.Second, worker.Timeout(&river.Job[jobs.WebhookDispatchArgs]{JobRow: &rivertype.JobRow{}}))
}
