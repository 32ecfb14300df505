package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

const defaultInitialBackoff = 500 * time.Millisecond

// Backoff retries failed enqueues with capped exponential backoff. Each sleep is jittered
// into [d/2, d) so that callers failing together do not retry together.
type Backoff struct {
	Retries int           // retries after the first attempt
	Initial time.Duration // sleep after the first failure, doubled per retry
	Max     time.Duration // cap on a single sleep
}

func (b Backoff) normalized() Backoff {
	b.Retries = max(b.Retries, 0)
	if b.Initial <= 0 {
		b.Initial = defaultInitialBackoff
	}

	b.Max = max(b.Max, b.Initial)

	return b
}

// RetryRecorder counts retried enqueues. observability.WebhookMetrics satisfies it.
type RetryRecorder interface {
	RecordEnqueueRetry(ctx context.Context)
}

// Retry runs fn until it succeeds or the retries are used up, returning the last error.
// Cancelling ctx during a sleep stops the loop. recorder may be nil.
func (b Backoff) Retry(ctx context.Context, op string, recorder RetryRecorder, fn func(context.Context) error) error {
	b = b.normalized()
	sleep := b.Initial

	var err error

	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		if attempt > b.Retries {
			return err
		}

		if recorder != nil {
			recorder.RecordEnqueueRetry(ctx)
		}

		d := jitter(sleep)
		slog.WarnContext(ctx, "enqueue failed, retrying", "op", op, "attempt", attempt, "backoff", d, "error", err)

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: backoff interrupted: %w", op, ctx.Err())
		case <-timer.C:
		}

		sleep = min(sleep*2, b.Max)
	}
}

func jitter(d time.Duration) time.Duration {
	half := d / 2
	if half <= 0 {
		return d
	}

	return half + rand.N(half)
}

// ManyInserter inserts a batch of jobs. *river.Client[pgx.Tx] satisfies it.
type ManyInserter interface {
	InsertMany(ctx context.Context, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error)
}

// RetryingInserter is a ManyInserter that retries transient insert failures.
type RetryingInserter struct {
	inner    ManyInserter
	backoff  Backoff
	recorder RetryRecorder
}

// NewRetryingInserter wraps inner. recorder may be nil.
func NewRetryingInserter(inner ManyInserter, backoff Backoff, recorder RetryRecorder) *RetryingInserter {
	return &RetryingInserter{inner: inner, backoff: backoff.normalized(), recorder: recorder}
}

// InsertMany inserts params, retrying the whole batch on error.
func (r *RetryingInserter) InsertMany(ctx context.Context, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error) {
	var results []*rivertype.JobInsertResult

	err := r.backoff.Retry(ctx, "insert many", r.recorder, func(ctx context.Context) error {
		var err error

		results, err = r.inner.InsertMany(ctx, params)

		return err
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

var _ ManyInserter = (*RetryingInserter)(nil)
