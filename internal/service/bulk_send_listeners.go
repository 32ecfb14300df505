package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/datatypes"
	"github.com/msgdesk/hub/internal/events"
	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/internal/observability"
)

// ProgressWriter stores the counters of a running bulk send.
type ProgressWriter interface {
	UpdateProgress(ctx context.Context, id uuid.UUID, p models.BulkSendProgress) error
}

// MessageRecorder appends to the message history.
type MessageRecorder interface {
	Insert(ctx context.Context, msg *models.NewMessage) (*models.Message, error)
}

// RunRecorder persists a bulk send while it runs: one history row per recipient outcome
// and the run counters after every batch.
type RunRecorder struct {
	progress ProgressWriter
	messages MessageRecorder
}

// NewRunRecorder creates a RunRecorder.
func NewRunRecorder(progress ProgressWriter, messages MessageRecorder) *RunRecorder {
	return &RunRecorder{progress: progress, messages: messages}
}

// Handle implements events.Listener.
func (r *RunRecorder) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.BulkSendProgress:
		return r.progress.UpdateProgress(ctx, e.RunID(), models.BulkSendProgress{
			Processed: e.Processed,
			Sent:      e.Sent,
			Failed:    e.Failed,
			Skipped:   e.Skipped,
		})
	case events.TemplateMessageSent:
		runID := e.RunID()
		name := e.TemplateName
		providerID := e.MessageID

		return r.insert(ctx, &models.NewMessage{
			ContactID:         e.ContactID,
			BulkSendID:        &runID,
			Channel:           models.ChannelWhatsApp,
			Phone:             e.Phone,
			TemplateName:      &name,
			Status:            models.MessageStatusSent,
			ProviderMessageID: &providerID,
		})
	case events.TemplateMessageFailed:
		runID := e.RunID()
		name := e.TemplateName
		reason := e.Error

		return r.insert(ctx, &models.NewMessage{
			ContactID:    e.ContactID,
			BulkSendID:   &runID,
			Channel:      models.ChannelWhatsApp,
			Phone:        e.Phone,
			TemplateName: &name,
			Status:       models.MessageStatusFailed,
			Error:        &reason,
		})
	}

	return nil
}

func (r *RunRecorder) insert(ctx context.Context, msg *models.NewMessage) error {
	if _, err := r.messages.Insert(ctx, msg); err != nil {
		return fmt.Errorf("record %s message for %s: %w", msg.Status, msg.Phone, err)
	}

	return nil
}

// PublisherBridge forwards bulk send events to the outbound event publisher (webhooks).
type PublisherBridge struct {
	publisher MessagePublisher
}

// NewPublisherBridge creates a PublisherBridge.
func NewPublisherBridge(publisher MessagePublisher) *PublisherBridge {
	return &PublisherBridge{publisher: publisher}
}

var bridgedEventTypes = map[string]datatypes.EventType{
	events.NameBulkSendStarted:       datatypes.BulkSendStarted,
	events.NameBulkSendProgress:      datatypes.BulkSendProgress,
	events.NameBulkSendCompleted:     datatypes.BulkSendCompleted,
	events.NameTemplateMessageSent:   datatypes.TemplateMessageSent,
	events.NameTemplateMessageFailed: datatypes.TemplateMessageFailed,
}

// Handle implements events.Listener.
func (b *PublisherBridge) Handle(ctx context.Context, event events.Event) error {
	eventType, ok := bridgedEventTypes[event.Name()]
	if !ok {
		return nil
	}

	b.publisher.PublishEvent(ctx, eventType, event)

	return nil
}

// MetricsListener records message and run metrics from bulk send events.
// Create one per run; it tracks the time between batches.
type MetricsListener struct {
	metrics   observability.MessagingMetrics
	lastBatch time.Time
}

// NewMetricsListener creates a MetricsListener.
func NewMetricsListener(metrics observability.MessagingMetrics) *MetricsListener {
	return &MetricsListener{metrics: metrics}
}

// Handle implements events.Listener.
func (m *MetricsListener) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.BulkSendStarted:
		m.lastBatch = e.OccurredAt()
	case events.BulkSendProgress:
		if !m.lastBatch.IsZero() {
			m.metrics.RecordBatchDuration(ctx, e.OccurredAt().Sub(m.lastBatch))
		}

		m.lastBatch = e.OccurredAt()
	case events.TemplateMessageSent:
		m.metrics.RecordMessage(ctx, string(models.ChannelWhatsApp), string(models.MessageStatusSent))
	case events.TemplateMessageFailed:
		m.metrics.RecordMessage(ctx, string(models.ChannelWhatsApp), string(models.MessageStatusFailed))
	case events.BulkSendCompleted:
		m.metrics.RecordBulkRun(ctx, e.Result.Status, e.Result.Duration)
	}

	return nil
}

var (
	_ events.Listener = (*RunRecorder)(nil)
	_ events.Listener = (*PublisherBridge)(nil)
	_ events.Listener = (*MetricsListener)(nil)
)
