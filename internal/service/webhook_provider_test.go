package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgdesk/hub/internal/datatypes"
	"github.com/msgdesk/hub/internal/jobs"
	"github.com/msgdesk/hub/internal/models"
)

func webhooksWithIDs(n int) []models.Webhook {
	out := make([]models.Webhook, n)
	for i := range out {
		out[i] = models.Webhook{ID: uuid.Must(uuid.NewV7()), Enabled: true}
	}

	return out
}

func TestWebhookProvider_PublishEvent(t *testing.T) {
	ctx := context.Background()
	event := Event{
		ID:        uuid.Must(uuid.NewV7()),
		Type:      datatypes.BulkSendCompleted,
		Timestamp: time.Now().UTC(),
		Data:      map[string]string{"status": "completed"},
	}

	t.Run("one job per webhook with retry and uniqueness opts", func(t *testing.T) {
		hooks := webhooksWithIDs(2)
		repo := &mockWebhooksRepo{listEnabledFn: func(_ context.Context, eventType string) ([]models.Webhook, error) {
			assert.Equal(t, "bulk_send.completed", eventType)

			return hooks, nil
		}}
		inserter := &mockInserter{}

		NewWebhookProvider(inserter, repo, 3, 500, nil).PublishEvent(ctx, event)

		require.Len(t, inserter.calls, 1)
		require.Len(t, inserter.calls[0], 2)

		for i, p := range inserter.calls[0] {
			args, ok := p.Args.(jobs.WebhookDispatchArgs)
			require.True(t, ok)
			assert.Equal(t, event.ID, args.EventID)
			assert.Equal(t, "bulk_send.completed", args.EventType)
			assert.Equal(t, hooks[i].ID, args.WebhookID)
			assert.True(t, args.Timestamp.Equal(event.Timestamp))
			require.NotNil(t, p.InsertOpts)
			assert.Equal(t, 3, p.InsertOpts.MaxAttempts)
			assert.True(t, p.InsertOpts.UniqueOpts.ByArgs)
			assert.Equal(t, 24*time.Hour, p.InsertOpts.UniqueOpts.ByPeriod)
		}
	})

	t.Run("no subscribers means no insert", func(t *testing.T) {
		inserter := &mockInserter{}
		NewWebhookProvider(inserter, &mockWebhooksRepo{}, 3, 500, nil).PublishEvent(ctx, event)
		assert.Empty(t, inserter.calls)
	})

	t.Run("list failure means no insert", func(t *testing.T) {
		repo := &mockWebhooksRepo{listEnabledFn: func(context.Context, string) ([]models.Webhook, error) {
			return nil, errors.New("db down")
		}}
		inserter := &mockInserter{}
		NewWebhookProvider(inserter, repo, 3, 500, nil).PublishEvent(ctx, event)
		assert.Empty(t, inserter.calls)
	})

	t.Run("insert failure stops remaining chunks", func(t *testing.T) {
		hooks := webhooksWithIDs(5)
		repo := &mockWebhooksRepo{listEnabledFn: func(context.Context, string) ([]models.Webhook, error) {
			return hooks, nil
		}}
		inserter := &mockInserter{err: errors.New("river error")}
		NewWebhookProvider(inserter, repo, 3, 2, nil).PublishEvent(ctx, event)
		assert.Len(t, inserter.calls, 1)
	})

	t.Run("fans out in chunks of maxFanOut", func(t *testing.T) {
		hooks := webhooksWithIDs(501)
		repo := &mockWebhooksRepo{listEnabledFn: func(context.Context, string) ([]models.Webhook, error) {
			return hooks, nil
		}}
		inserter := &mockInserter{}
		NewWebhookProvider(inserter, repo, 3, 500, nil).PublishEvent(ctx, event)

		require.Len(t, inserter.calls, 2)
		assert.Len(t, inserter.calls[0], 500)
		assert.Len(t, inserter.calls[1], 1)
	})
}
