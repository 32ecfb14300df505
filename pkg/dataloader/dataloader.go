// Package dataloader batches and caches keyed lookups so that resolving N items costs one
// query per batch instead of one per item.
//
// A Loader is meant to live for a single request: it caches every result it fetched and
// never expires entries.
package dataloader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// BatchFunc loads values for a set of distinct keys. Keys absent from the returned map
// resolve to the zero value of V.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// DefaultMaxBatch is the maximum number of keys passed to one BatchFunc call.
const DefaultMaxBatch = 100

// Stats are cumulative loader counters.
type Stats struct {
	Batches    int64 `json:"batches"`
	KeysLoaded int64 `json:"keys_loaded"`
	CacheHits  int64 `json:"cache_hits"`
}

// Option configures a Loader.
type Option func(*config)

type config struct {
	maxBatch int
	wait     time.Duration
	noCache  bool
}

// WithMaxBatch caps the keys per batch call. Values below 1 are ignored.
func WithMaxBatch(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBatch = n
		}
	}
}

// WithWait makes Load and LoadMany collect keys for d before dispatching a batch, so
// concurrent callers within the window share one batch call.
// With the default of zero, every call dispatches immediately.
func WithWait(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.wait = d
		}
	}
}

// WithoutCache disables result caching; every Load reaches the batch function.
func WithoutCache() Option {
	return func(c *config) {
		c.noCache = true
	}
}

// Loader batches Load calls for keys of type K into BatchFunc calls.
type Loader[K comparable, V any] struct {
	fetch    BatchFunc[K, V]
	maxBatch int
	wait     time.Duration
	noCache  bool

	mu       sync.Mutex
	cache    map[K]V
	pending  *batch[K, V]
	inflight map[K]*batch[K, V]

	batches    atomic.Int64
	keysLoaded atomic.Int64
	cacheHits  atomic.Int64
}

type batch[K comparable, V any] struct {
	ctx     context.Context
	keys    []K
	timer   *time.Timer
	done    chan struct{}
	results map[K]V
	err     error
}

// New creates a Loader around fetch.
func New[K comparable, V any](fetch BatchFunc[K, V], opts ...Option) *Loader[K, V] {
	cfg := config{maxBatch: DefaultMaxBatch}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Loader[K, V]{
		fetch:    fetch,
		maxBatch: cfg.maxBatch,
		wait:     cfg.wait,
		noCache:  cfg.noCache,
		cache:    make(map[K]V),
		inflight: make(map[K]*batch[K, V]),
	}
}

// Load returns the value for key, from cache or through a batch.
// A batch error is returned to every key of that batch and nothing is cached.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, error) {
	var zero V

	if v, ok := l.cached(key); ok {
		return v, nil
	}

	if l.wait == 0 {
		results, err := l.dispatch(ctx, []K{key})
		if err != nil {
			return zero, err
		}

		return results[key], nil
	}

	found := make(map[K]V, 1)
	if err := l.await(ctx, []K{key}, found); err != nil {
		return zero, err
	}

	return found[key], nil
}

// LoadMany returns values aligned with keys. Uncached keys are deduplicated and fetched in
// chunks of at most the max batch size. With a wait window they join the pending batch
// like Load does.
func (l *Loader[K, V]) LoadMany(ctx context.Context, keys []K) ([]V, error) {
	out := make([]V, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	found := make(map[K]V, len(keys))
	missing := make([]K, 0, len(keys))
	seen := make(map[K]struct{}, len(keys))

	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}

		seen[k] = struct{}{}

		if v, ok := l.cached(k); ok {
			found[k] = v

			continue
		}

		missing = append(missing, k)
	}

	if l.wait > 0 {
		if err := l.await(ctx, missing, found); err != nil {
			return nil, err
		}

		missing = nil
	}

	for start := 0; start < len(missing); start += l.maxBatch {
		end := min(start+l.maxBatch, len(missing))

		results, err := l.dispatch(ctx, missing[start:end])
		if err != nil {
			return nil, err
		}

		for _, k := range missing[start:end] {
			found[k] = results[k]
		}
	}

	for i, k := range keys {
		out[i] = found[k]
	}

	return out, nil
}

// Prime stores value for key unless the key is already cached.
func (l *Loader[K, V]) Prime(key K, value V) {
	if l.noCache {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.cache[key]; !ok {
		l.cache[key] = value
	}
}

// Clear removes key from the cache.
func (l *Loader[K, V]) Clear(key K) {
	l.mu.Lock()
	delete(l.cache, key)
	l.mu.Unlock()
}

// ClearAll empties the cache.
func (l *Loader[K, V]) ClearAll() {
	l.mu.Lock()
	l.cache = make(map[K]V)
	l.mu.Unlock()
}

// Stats returns the loader counters.
func (l *Loader[K, V]) Stats() Stats {
	return Stats{
		Batches:    l.batches.Load(),
		KeysLoaded: l.keysLoaded.Load(),
		CacheHits:  l.cacheHits.Load(),
	}
}

func (l *Loader[K, V]) cached(key K) (V, bool) {
	if l.noCache {
		var zero V

		return zero, false
	}

	l.mu.Lock()
	v, ok := l.cache[key]
	l.mu.Unlock()

	if ok {
		l.cacheHits.Add(1)
	}

	return v, ok
}

// dispatch runs one batch call and caches every requested key on success.
func (l *Loader[K, V]) dispatch(ctx context.Context, keys []K) (map[K]V, error) {
	l.batches.Add(1)
	l.keysLoaded.Add(int64(len(keys)))

	results, err := l.fetch(ctx, keys)
	if err != nil {
		return nil, err
	}

	if results == nil {
		results = map[K]V{}
	}

	if !l.noCache {
		l.mu.Lock()
		for _, k := range keys {
			l.cache[k] = results[k]
		}
		l.mu.Unlock()
	}

	return results, nil
}

// await queues keys and stores the result of each in found once its batch completes.
func (l *Loader[K, V]) await(ctx context.Context, keys []K, found map[K]V) error {
	joined := make([]*batch[K, V], len(keys))
	for i, k := range keys {
		joined[i] = l.enqueue(ctx, k)
	}

	for i, b := range joined {
		select {
		case <-b.done:
			if b.err != nil {
				return b.err
			}

			found[keys[i]] = b.results[keys[i]]
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// enqueue returns the batch that will resolve key. A key already queued or being fetched
// joins that batch; otherwise it is added to the pending batch, starting one if needed.
// A full batch is detached and dispatched at once.
func (l *Loader[K, V]) enqueue(ctx context.Context, key K) *batch[K, V] {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.inflight[key]; ok {
		return b
	}

	b := l.pending
	if b == nil {
		b = &batch[K, V]{
			// The batch outlives the first caller's cancellation but keeps its values.
			ctx:  context.WithoutCancel(ctx),
			done: make(chan struct{}),
		}
		b.timer = time.AfterFunc(l.wait, func() { l.flush(b) })
		l.pending = b
	}

	b.keys = append(b.keys, key)
	l.inflight[key] = b

	if len(b.keys) >= l.maxBatch {
		b.timer.Stop()
		l.pending = nil

		go l.run(b)
	}

	return b
}

func (l *Loader[K, V]) flush(b *batch[K, V]) {
	l.mu.Lock()
	if l.pending != b {
		l.mu.Unlock()

		return
	}

	l.pending = nil
	l.mu.Unlock()

	l.run(b)
}

func (l *Loader[K, V]) run(b *batch[K, V]) {
	b.results, b.err = l.dispatch(b.ctx, b.keys)

	l.mu.Lock()
	for _, k := range b.keys {
		if l.inflight[k] == b {
			delete(l.inflight, k)
		}
	}
	l.mu.Unlock()

	close(b.done)
}
