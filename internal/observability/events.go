package observability

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EventMetrics records message-publisher metrics: dropped events, fan-out latency and queue depths.
type EventMetrics interface {
	RecordEventDiscarded(ctx context.Context, eventType string)
	RecordFanOutDuration(ctx context.Context, duration time.Duration, eventType string)
	SetChannelDepth(depth int)
	SetRiverQueueDepth(depth int)
}

type eventMetrics struct {
	discarded       metric.Int64Counter
	fanOut          metric.Float64Histogram
	channelDepth    atomic.Int64
	riverQueueDepth atomic.Int64
}

// NewEventMetrics creates EventMetrics and registers the depth gauges. A nil meter yields a nil EventMetrics.
func NewEventMetrics(meter metric.Meter) (EventMetrics, error) {
	if meter == nil {
		return nil, nil //nolint:nilnil // metrics disabled
	}

	in := &instruments{meter: meter}
	m := &eventMetrics{
		discarded: in.counter(MetricNameEventsDiscarded, "Events dropped because the publisher channel was full"),
		fanOut:    in.seconds(MetricNameFanOutDuration, "Time to hand one event to every provider"),
	}

	in.gauge(MetricNameEventChannelDepth, "Events waiting in the publisher channel", &m.channelDepth)
	in.gauge(MetricNameRiverQueueDepth, "Jobs waiting on the River queues (available, retryable or scheduled)", &m.riverQueueDepth)

	if in.err != nil {
		return nil, in.err
	}

	return m, nil
}

func eventTypeAttr(eventType string) attribute.KeyValue {
	return attribute.String(AttrEventType, NormalizeEventType(eventType))
}

func (e *eventMetrics) RecordEventDiscarded(ctx context.Context, eventType string) {
	e.discarded.Add(ctx, 1, metric.WithAttributes(eventTypeAttr(eventType)))
}

func (e *eventMetrics) RecordFanOutDuration(ctx context.Context, duration time.Duration, eventType string) {
	e.fanOut.Record(ctx, duration.Seconds(), metric.WithAttributes(eventTypeAttr(eventType)))
}

func (e *eventMetrics) SetChannelDepth(depth int)    { e.channelDepth.Store(int64(depth)) }
func (e *eventMetrics) SetRiverQueueDepth(depth int) { e.riverQueueDepth.Store(int64(depth)) }
