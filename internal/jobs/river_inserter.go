package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

const (
	scheduledSendMaxAttempts = 3
	webhookUniquePeriod      = 24 * time.Hour
)

// uniqueStates is the River uniqueness window: one live job per args.
// JobStatePending is required by River when ByState is set.
var uniqueStates = []rivertype.JobState{
	rivertype.JobStatePending,
	rivertype.JobStateAvailable,
	rivertype.JobStateRunning,
	rivertype.JobStateRetryable,
	rivertype.JobStateScheduled,
}

// RiverJobInserter implements JobInserter using the River client.
type RiverJobInserter struct {
	client  *river.Client[pgx.Tx]
	backoff Backoff
}

// NewRiverJobInserter creates a new River-based job inserter. Bulk send inserts are retried
// per backoff; transactional inserts are not, since a failed statement aborts the transaction.
func NewRiverJobInserter(client *river.Client[pgx.Tx], backoff Backoff) *RiverJobInserter {
	return &RiverJobInserter{client: client, backoff: backoff}
}

// InsertBulkSend enqueues a bulk send run on the bulk queue with a single attempt.
// A run that fails mid-way is finished as failed rather than resent. Retrying the insert
// itself is safe because the job is unique by args.
func (r *RiverJobInserter) InsertBulkSend(ctx context.Context, args BulkSendArgs) error {
	err := r.backoff.Retry(ctx, "insert bulk send", nil, func(ctx context.Context) error {
		_, err := r.client.Insert(ctx, args, BulkSendInsertOpts())

		return err
	})
	if err != nil {
		return fmt.Errorf("insert bulk send job: %w", err)
	}

	return nil
}

// InsertScheduledSendsTx enqueues one scheduled_send job per due message within tx.
func (r *RiverJobInserter) InsertScheduledSendsTx(ctx context.Context, tx pgx.Tx, args []ScheduledSendArgs) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}

	params := make([]river.InsertManyParams, len(args))
	for i := range args {
		params[i] = river.InsertManyParams{Args: args[i], InsertOpts: ScheduledSendInsertOpts()}
	}

	results, err := r.client.InsertManyTx(ctx, tx, params)
	if err != nil {
		return 0, fmt.Errorf("insert scheduled send jobs: %w", err)
	}

	return len(results), nil
}

// BulkSendInsertOpts are the insert options for BulkSendArgs.
func BulkSendInsertOpts() *river.InsertOpts {
	return &river.InsertOpts{
		Queue:       QueueBulkSends,
		MaxAttempts: 1,
		UniqueOpts:  river.UniqueOpts{ByArgs: true, ByState: uniqueStates},
	}
}

// ScheduledSendInsertOpts are the insert options for ScheduledSendArgs.
func ScheduledSendInsertOpts() *river.InsertOpts {
	return &river.InsertOpts{
		Queue:       QueueScheduled,
		MaxAttempts: scheduledSendMaxAttempts,
		UniqueOpts:  river.UniqueOpts{ByArgs: true, ByState: uniqueStates},
	}
}

// WebhookDispatchInsertOpts are the insert options for WebhookDispatchArgs. An event is
// delivered to a webhook at most once per day even if it is published again.
func WebhookDispatchInsertOpts(maxAttempts int) *river.InsertOpts {
	return &river.InsertOpts{
		MaxAttempts: maxAttempts,
		UniqueOpts:  river.UniqueOpts{ByArgs: true, ByPeriod: webhookUniquePeriod},
	}
}

var _ JobInserter = (*RiverJobInserter)(nil)
