package jobs

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// JobInserter enqueues jobs without callers knowing about River directly.
type JobInserter interface {
	// InsertBulkSend enqueues the run. A run already queued is not enqueued twice.
	InsertBulkSend(ctx context.Context, args BulkSendArgs) error
	// InsertScheduledSendsTx enqueues due scheduled messages inside the claiming transaction.
	InsertScheduledSendsTx(ctx context.Context, tx pgx.Tx, args []ScheduledSendArgs) (int, error)
}
