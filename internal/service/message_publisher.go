package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/datatypes"
	"github.com/msgdesk/hub/internal/observability"
)

const (
	defaultEventBufferSize      = 1024
	defaultPerEventTimeout      = 10 * time.Second
	channelDepthSampleThreshold = 16
)

// Event represents an outbound event fanned out to providers (webhooks today).
type Event struct {
	ID            uuid.UUID           // Unique event id (UUID v7, time-ordered)
	Type          datatypes.EventType // Event type enum (e.g. ContactCreated, BulkSendCompleted)
	Timestamp     time.Time           // When the event was published (UTC)
	Data          any                 // Event payload (Contact, RunSummary, Webhook, ...)
	ChangedFields []string            // Only for updates
}

// MessagePublisher defines the interface for publishing events.
type MessagePublisher interface {
	// PublishEvent publishes a single event with data (no changed fields).
	PublishEvent(ctx context.Context, eventType datatypes.EventType, data any)
	// PublishEventWithChangedFields publishes a single event with data and the fields an update touched.
	PublishEventWithChangedFields(ctx context.Context, eventType datatypes.EventType, data any, changedFields []string)
}

// eventPublisher is the internal interface for providers that receive a full Event.
type eventPublisher interface {
	PublishEvent(ctx context.Context, event Event)
}

// MessagePublisherManager buffers events on a channel and fans each one out to the registered providers
// from a single background goroutine. Publishing never blocks: when the buffer is full the event is dropped.
type MessagePublisherManager struct {
	eventChan       chan Event
	providers       []eventPublisher
	perEventTimeout time.Duration
	metrics         observability.EventMetrics
	wg              sync.WaitGroup
}

// NewMessagePublisherManager creates a manager with the given buffer size and per-event fan-out timeout.
// metrics may be nil when metrics are disabled.
func NewMessagePublisherManager(
	bufferSize int, perEventTimeout time.Duration, metrics observability.EventMetrics,
) *MessagePublisherManager {
	if bufferSize <= 0 {
		bufferSize = defaultEventBufferSize
	}

	if perEventTimeout <= 0 {
		perEventTimeout = defaultPerEventTimeout
	}

	m := &MessagePublisherManager{
		eventChan:       make(chan Event, bufferSize),
		providers:       make([]eventPublisher, 0),
		perEventTimeout: perEventTimeout,
		metrics:         metrics,
	}

	m.wg.Add(1)

	go m.startWorker()

	return m
}

// RegisterProvider registers a provider.
// Must only be called during startup, before any events are published.
func (m *MessagePublisherManager) RegisterProvider(provider eventPublisher) {
	m.providers = append(m.providers, provider)
}

// PublishEvent publishes an event with data to all registered providers.
func (m *MessagePublisherManager) PublishEvent(ctx context.Context, eventType datatypes.EventType, data any) {
	m.PublishEventWithChangedFields(ctx, eventType, data, nil)
}

// PublishEventWithChangedFields publishes an event with data and changed fields to all registered providers.
func (m *MessagePublisherManager) PublishEventWithChangedFields(
	ctx context.Context, eventType datatypes.EventType, data any, changedFields []string,
) {
	event := Event{
		ID:            uuid.Must(uuid.NewV7()),
		Type:          eventType,
		Timestamp:     time.Now().UTC(),
		Data:          data,
		ChangedFields: changedFields,
	}

	select {
	case m.eventChan <- event:
		slog.Debug("Event published to channel", "event_id", event.ID, "event_type", event.Type.String())
	default:
		if m.metrics != nil {
			m.metrics.RecordEventDiscarded(ctx, event.Type.String())
		}

		slog.Warn("Event channel full, event dropped", "event_id", event.ID, "event_type", event.Type.String())
	}

	if m.metrics != nil && len(m.eventChan) >= channelDepthSampleThreshold {
		m.metrics.SetChannelDepth(len(m.eventChan))
	}
}

// startWorker reads events from the channel and fans each one out to all providers.
// It returns once the channel is closed and drained.
func (m *MessagePublisherManager) startWorker() {
	defer m.wg.Done()

	bgCtx := context.Background()

	for event := range m.eventChan {
		// One stuck provider call must not freeze the worker.
		ctx, cancel := context.WithTimeout(bgCtx, m.perEventTimeout)
		start := time.Now()

		for _, provider := range m.providers {
			provider.PublishEvent(ctx, event)
		}

		cancel()

		if m.metrics != nil {
			m.metrics.RecordFanOutDuration(bgCtx, time.Since(start), event.Type.String())
			m.metrics.SetChannelDepth(len(m.eventChan))
		}
	}
}

// Shutdown stops the background worker and waits for the buffer to drain.
func (m *MessagePublisherManager) Shutdown() {
	close(m.eventChan)
	m.wg.Wait()
}
