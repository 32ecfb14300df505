package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheMetrics counts lookups against the in-memory caches (template catalogue, webhook lists).
type CacheMetrics interface {
	RecordHit(ctx context.Context, cacheName string)
	RecordMiss(ctx context.Context, cacheName string)
}

type cacheMetrics struct {
	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// NewCacheMetrics creates CacheMetrics. A nil meter yields a nil CacheMetrics.
func NewCacheMetrics(meter metric.Meter) (CacheMetrics, error) {
	if meter == nil {
		return nil, nil //nolint:nilnil // metrics disabled
	}

	in := &instruments{meter: meter}
	m := &cacheMetrics{
		hits:   in.counter(MetricNameCacheHits, "Lookups answered from memory, by cache"),
		misses: in.counter(MetricNameCacheMisses, "Lookups that went to the database or provider, by cache"),
	}

	if in.err != nil {
		return nil, in.err
	}

	return m, nil
}

func cacheAttr(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String(AttrCache, NormalizeCacheName(name)))
}

func (c *cacheMetrics) RecordHit(ctx context.Context, cacheName string) {
	c.hits.Add(ctx, 1, cacheAttr(cacheName))
}

func (c *cacheMetrics) RecordMiss(ctx context.Context, cacheName string) {
	c.misses.Add(ctx, 1, cacheAttr(cacheName))
}
