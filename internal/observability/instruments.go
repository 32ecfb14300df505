package observability

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
)

// instruments creates instruments on one meter and keeps the first error, so constructors
// can declare every instrument and check once.
type instruments struct {
	meter metric.Meter
	err   error
}

func (in *instruments) counter(name, description string) metric.Int64Counter {
	if in.err != nil {
		return nil
	}

	c, err := in.meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		in.err = fmt.Errorf("create %s: %w", name, err)
	}

	return c
}

// seconds creates a duration histogram; the provider view gives *_duration_seconds second buckets.
func (in *instruments) seconds(name, description string) metric.Float64Histogram {
	if in.err != nil {
		return nil
	}

	h, err := in.meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit("s"))
	if err != nil {
		in.err = fmt.Errorf("create %s: %w", name, err)
	}

	return h
}

// gauge reports the current value of v on every collection.
func (in *instruments) gauge(name, description string, v *atomic.Int64) {
	if in.err != nil {
		return
	}

	_, err := in.meter.Int64ObservableGauge(name,
		metric.WithDescription(description),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(v.Load())

			return nil
		}),
	)
	if err != nil {
		in.err = fmt.Errorf("create %s: %w", name, err)
	}
}
