package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// WebhookMetrics records the outbound webhook pipeline: fan-out, delivery and enqueue retries.
type WebhookMetrics interface {
	RecordJobsEnqueued(ctx context.Context, eventType string, count int64)
	RecordProviderError(ctx context.Context, reason string)
	RecordDelivery(ctx context.Context, eventType, status string, duration time.Duration)
	RecordWebhookDisabled(ctx context.Context, reason string)
	RecordDispatchError(ctx context.Context, reason string)
	RecordEnqueueRetry(ctx context.Context)
}

type webhookMetrics struct {
	enqueued       metric.Int64Counter
	providerErrors metric.Int64Counter
	deliveries     metric.Int64Counter
	deliveryTime   metric.Float64Histogram
	disabled       metric.Int64Counter
	dispatchErrors metric.Int64Counter
	enqueueRetries metric.Int64Counter
}

// NewWebhookMetrics creates WebhookMetrics. A nil meter yields a nil WebhookMetrics.
func NewWebhookMetrics(meter metric.Meter) (WebhookMetrics, error) {
	if meter == nil {
		return nil, nil //nolint:nilnil // metrics disabled
	}

	in := &instruments{meter: meter}
	m := &webhookMetrics{
		enqueued:       in.counter(MetricNameWebhookJobsEnqueued, "Webhook delivery jobs enqueued, by event type"),
		providerErrors: in.counter(MetricNameWebhookProviderErrors, "Fan-out failures listing webhooks or enqueueing jobs"),
		deliveries:     in.counter(MetricNameWebhookDeliveries, "Webhook delivery attempts, by outcome"),
		deliveryTime:   in.seconds(MetricNameWebhookDeliveryDuration, "Webhook delivery attempt duration"),
		disabled:       in.counter(MetricNameWebhookDisabled, "Webhooks disabled after 410 Gone or the final attempt"),
		dispatchErrors: in.counter(MetricNameWebhookDispatchErrors, "Delivery jobs that failed before sending"),
		enqueueRetries: in.counter(MetricNameWebhookEnqueueRetries, "Job inserts retried after a transient failure"),
	}

	if in.err != nil {
		return nil, in.err
	}

	return m, nil
}

func reasonAttr(reason string, allowed map[string]bool) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String(AttrReason, NormalizeReason(reason, allowed)))
}

func (w *webhookMetrics) RecordJobsEnqueued(ctx context.Context, eventType string, count int64) {
	w.enqueued.Add(ctx, count, metric.WithAttributes(eventTypeAttr(eventType)))
}

func (w *webhookMetrics) RecordProviderError(ctx context.Context, reason string) {
	w.providerErrors.Add(ctx, 1, reasonAttr(reason, AllowedProviderReasons))
}

func (w *webhookMetrics) RecordDelivery(ctx context.Context, eventType, status string, duration time.Duration) {
	attrs := metric.WithAttributes(eventTypeAttr(eventType), attribute.String(AttrStatus, NormalizeStatus(status)))
	w.deliveries.Add(ctx, 1, attrs)
	w.deliveryTime.Record(ctx, duration.Seconds(), attrs)
}

func (w *webhookMetrics) RecordWebhookDisabled(ctx context.Context, reason string) {
	w.disabled.Add(ctx, 1, reasonAttr(reason, AllowedDisabledReasons))
}

func (w *webhookMetrics) RecordDispatchError(ctx context.Context, reason string) {
	w.dispatchErrors.Add(ctx, 1, reasonAttr(reason, AllowedDispatchReasons))
}

func (w *webhookMetrics) RecordEnqueueRetry(ctx context.Context) {
	w.enqueueRetries.Add(ctx, 1)
}
