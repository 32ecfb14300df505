package observability

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// APIMetrics records API-level metrics not covered by otelhttp.
type APIMetrics interface {
	RecordRequestBodyTooLarge(ctx context.Context)
}

type apiMetrics struct {
	bodyTooLarge metric.Int64Counter
}

// NewAPIMetrics creates APIMetrics. A nil meter yields a nil APIMetrics.
func NewAPIMetrics(meter metric.Meter) (APIMetrics, error) {
	if meter == nil {
		return nil, nil //nolint:nilnil // metrics disabled
	}

	in := &instruments{meter: meter}
	m := &apiMetrics{
		bodyTooLarge: in.counter(MetricNameRequestBodyTooLarge, "Requests rejected with 413 for exceeding MAX_REQUEST_BODY_BYTES"),
	}

	if in.err != nil {
		return nil, in.err
	}

	return m, nil
}

func (a *apiMetrics) RecordRequestBodyTooLarge(ctx context.Context) {
	a.bodyTooLarge.Add(ctx, 1)
}
