package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MessagingMetrics records outbound messaging metrics (single sends, bulk runs, scheduler, sync).
type MessagingMetrics interface {
	RecordMessage(ctx context.Context, channel, status string)
	RecordProviderError(ctx context.Context, provider string, retryable bool)
	RecordBulkRun(ctx context.Context, status string, duration time.Duration)
	RecordBatchDuration(ctx context.Context, duration time.Duration)
	RecordScheduledEnqueued(ctx context.Context, count int)
	RecordTemplatesSynced(ctx context.Context, count int)
}

type messagingMetrics struct {
	messages          metric.Int64Counter
	providerErrors    metric.Int64Counter
	bulkRuns          metric.Int64Counter
	bulkRunDuration   metric.Float64Histogram
	batchDuration     metric.Float64Histogram
	scheduledEnqueued metric.Int64Counter
	templatesSynced   metric.Int64Counter
}

// NewMessagingMetrics creates MessagingMetrics. A nil meter yields a nil MessagingMetrics.
func NewMessagingMetrics(meter metric.Meter) (MessagingMetrics, error) {
	if meter == nil {
		return nil, nil //nolint:nilnil // metrics disabled
	}

	in := &instruments{meter: meter}
	m := &messagingMetrics{
		messages:          in.counter(MetricNameMessagesSent, "Outbound messages by channel and status"),
		providerErrors:    in.counter(MetricNameProviderErrors, "Errors returned by the WhatsApp or SMS provider"),
		bulkRuns:          in.counter(MetricNameBulkRuns, "Finished bulk template send runs by final status"),
		bulkRunDuration:   in.seconds(MetricNameBulkRunDuration, "Bulk send run duration"),
		batchDuration:     in.seconds(MetricNameBulkBatchDuration, "Time to send one batch, excluding the inter-batch delay"),
		scheduledEnqueued: in.counter(MetricNameScheduledEnqueued, "Scheduled messages claimed by the poller and enqueued"),
		templatesSynced:   in.counter(MetricNameTemplatesSynced, "Templates written by template sync"),
	}

	if in.err != nil {
		return nil, in.err
	}

	return m, nil
}

func (m *messagingMetrics) RecordMessage(ctx context.Context, channel, status string) {
	m.messages.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrChannel, NormalizeReason(channel, AllowedChannels)),
		attribute.String(AttrStatus, NormalizeReason(status, AllowedMessageStatuses)),
	))
}

func (m *messagingMetrics) RecordProviderError(ctx context.Context, provider string, retryable bool) {
	m.providerErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProvider, NormalizeReason(provider, AllowedChannels)),
		attribute.String("retryable", strconv.FormatBool(retryable)),
	))
}

func (m *messagingMetrics) RecordBulkRun(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(AttrStatus, NormalizeReason(status, AllowedRunStatuses)))
	m.bulkRuns.Add(ctx, 1, attrs)
	m.bulkRunDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *messagingMetrics) RecordBatchDuration(ctx context.Context, duration time.Duration) {
	m.batchDuration.Record(ctx, duration.Seconds())
}

func (m *messagingMetrics) RecordScheduledEnqueued(ctx context.Context, count int) {
	m.scheduledEnqueued.Add(ctx, int64(count))
}

func (m *messagingMetrics) RecordTemplatesSynced(ctx context.Context, count int) {
	m.templatesSynced.Add(ctx, int64(count))
}
