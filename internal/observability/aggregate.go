package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric collectors. When metrics are disabled the *Metrics itself is nil;
// use the accessor methods to get a nil-safe interface value for each component.
type Metrics struct {
	Events    EventMetrics
	Webhooks  WebhookMetrics
	Cache     CacheMetrics
	API       APIMetrics
	Messaging MessagingMetrics
}

// NewMetrics creates every collector from the given meter.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	events, err := NewEventMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("event metrics: %w", err)
	}

	webhooks, err := NewWebhookMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("webhook metrics: %w", err)
	}

	cache, err := NewCacheMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("cache metrics: %w", err)
	}

	api, err := NewAPIMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("api metrics: %w", err)
	}

	messaging, err := NewMessagingMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("messaging metrics: %w", err)
	}

	return &Metrics{
		Events:    events,
		Webhooks:  webhooks,
		Cache:     cache,
		API:       api,
		Messaging: messaging,
	}, nil
}

// EventMetrics returns the publisher metrics or nil.
func (m *Metrics) EventMetrics() EventMetrics {
	if m == nil {
		return nil
	}

	return m.Events
}

// WebhookMetrics returns the webhook metrics or nil.
func (m *Metrics) WebhookMetrics() WebhookMetrics {
	if m == nil {
		return nil
	}

	return m.Webhooks
}

// CacheMetrics returns the cache metrics or nil.
func (m *Metrics) CacheMetrics() CacheMetrics {
	if m == nil {
		return nil
	}

	return m.Cache
}

// APIMetrics returns the API metrics or nil.
func (m *Metrics) APIMetrics() APIMetrics {
	if m == nil {
		return nil
	}

	return m.API
}

// MessagingMetrics returns the messaging metrics or nil.
func (m *Metrics) MessagingMetrics() MessagingMetrics {
	if m == nil {
		return nil
	}

	return m.Messaging
}
