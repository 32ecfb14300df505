// Package jobs defines the River job arguments, queues and inserters used by services and workers.
package jobs

import (
	"time"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/models"
)

// Queue names. Webhook delivery runs on river.QueueDefault.
const (
	QueueBulkSends = "bulk_sends"
	QueueScheduled = "scheduled"
)

// Job kinds as stored in river_job.kind.
const (
	BulkSendKind        = "bulk_send"
	ScheduledSendKind   = "scheduled_send"
	WebhookDispatchKind = "webhook_dispatch"
)

// BulkSendArgs runs one bulk template send.
type BulkSendArgs struct {
	// BulkSendID is the run to execute; recipients and settings are read from the run row.
	BulkSendID uuid.UUID `json:"bulk_send_id" river:"unique"`
}

func (BulkSendArgs) Kind() string { return BulkSendKind }

// ScheduledSendArgs executes one due scheduled message.
type ScheduledSendArgs struct {
	ScheduledMessageID uuid.UUID `json:"scheduled_message_id" river:"unique"`
}

func (ScheduledSendArgs) Kind() string { return ScheduledSendKind }

// WebhookDispatchArgs delivers one event to one webhook. Only the event and webhook ids take
// part in River uniqueness, so the data payload is not hashed.
type WebhookDispatchArgs struct {
	EventID       uuid.UUID `json:"event_id"                 river:"unique"`
	WebhookID     uuid.UUID `json:"webhook_id"               river:"unique"`
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	Data          any       `json:"data"`
	ChangedFields []string  `json:"changed_fields,omitempty"`
}

func (WebhookDispatchArgs) Kind() string { return WebhookDispatchKind }

// Payload is the body delivered to the endpoint.
func (a WebhookDispatchArgs) Payload() *models.WebhookPayload {
	return &models.WebhookPayload{
		ID:            a.EventID,
		Type:          a.EventType,
		Timestamp:     a.Timestamp,
		Data:          a.Data,
		ChangedFields: a.ChangedFields,
	}
}
