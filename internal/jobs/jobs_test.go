package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgsKinds(t *testing.T) {
	assert.Equal(t, "bulk_send", BulkSendArgs{BulkSendID: uuid.New()}.Kind())
	assert.Equal(t, "scheduled_send", ScheduledSendArgs{}.Kind())
	assert.Equal(t, "webhook_dispatch", WebhookDispatchArgs{}.Kind())
}

func TestWebhookDispatchArgs_Payload(t *testing.T) {
	args := WebhookDispatchArgs{
		EventID:       uuid.Must(uuid.NewV7()),
		WebhookID:     uuid.Must(uuid.NewV7()),
		EventType:     "contact.updated",
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:          map[string]string{"id": "c1"},
		ChangedFields: []string{"name"},
	}

	payload := args.Payload()
	assert.Equal(t, args.EventID, payload.ID)
	assert.Equal(t, "contact.updated", payload.Type)
	assert.Equal(t, args.Timestamp, payload.Timestamp)
	assert.Equal(t, []string{"name"}, payload.ChangedFields)

	opts := WebhookDispatchInsertOpts(5)
	assert.Equal(t, 5, opts.MaxAttempts)
	assert.True(t, opts.UniqueOpts.ByArgs)
	assert.Equal(t, 24*time.Hour, opts.UniqueOpts.ByPeriod)
}

func TestInsertOpts(t *testing.T) {
	bulk := BulkSendInsertOpts()
	assert.Equal(t, QueueBulkSends, bulk.Queue)
	assert.Equal(t, 1, bulk.MaxAttempts)
	assert.True(t, bulk.UniqueOpts.ByArgs)
	assert.Contains(t, bulk.UniqueOpts.ByState, rivertype.JobStatePending)

	scheduled := ScheduledSendInsertOpts()
	assert.Equal(t, QueueScheduled, scheduled.Queue)
	assert.Equal(t, 3, scheduled.MaxAttempts)
}

func TestErrorHandler(t *testing.T) {
	h := &ErrorHandler{}
	ctx := context.Background()

	assert.Nil(t, h.HandleError(ctx, &rivertype.JobRow{ID: 1, Kind: "bulk_send"}, errors.New("boom")))

	res := h.HandlePanic(ctx, &rivertype.JobRow{ID: 2, Kind: "bulk_send"}, "nil map", "trace")
	require.NotNil(t, res)
	assert.True(t, res.SetCancelled)

	assert.Nil(t, h.HandlePanic(ctx, &rivertype.JobRow{ID: 3, Kind: "webhook_dispatch"}, "nil map", "trace"))
}
