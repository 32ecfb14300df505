package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/msgdesk/hub/internal/jobs"
	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/internal/observability"
	"github.com/msgdesk/hub/internal/repository"
)

// DueClaimer claims due scheduled messages inside a transaction (implemented by
// *repository.ScheduledMessagesRepository).
type DueClaimer interface {
	ClaimDue(ctx context.Context, now time.Time, limit int, fn repository.ClaimFunc) (int, error)
}

// SchedulePoller is a background loop that periodically moves due scheduled messages onto the
// scheduled queue. Claiming and enqueueing share one transaction, so a message is either marked
// enqueued with its job or left pending for the next poll.
type SchedulePoller struct {
	repo         DueClaimer
	inserter     jobs.JobInserter
	metrics      observability.MessagingMetrics
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time
}

// NewSchedulePoller creates a poller. metrics may be nil.
func NewSchedulePoller(
	repo DueClaimer,
	inserter jobs.JobInserter,
	metrics observability.MessagingMetrics,
	pollInterval time.Duration,
	batchSize int,
) *SchedulePoller {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}

	if batchSize <= 0 {
		batchSize = 100
	}

	return &SchedulePoller{
		repo:         repo,
		inserter:     inserter,
		metrics:      metrics,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		now:          time.Now,
	}
}

// Start runs the poll loop until the context is cancelled.
func (p *SchedulePoller) Start(ctx context.Context) {
	slog.InfoContext(ctx, "schedule poller started",
		"poll_interval", p.pollInterval,
		"batch_size", p.batchSize,
	)

	p.runOnce(ctx)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("schedule poller stopped")

			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

// runOnce drains due messages batch by batch; a full batch means more may be waiting.
func (p *SchedulePoller) runOnce(ctx context.Context) {
	for ctx.Err() == nil {
		claimed, err := p.ClaimBatch(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to enqueue due scheduled messages", "error", err)

			return
		}

		if claimed < p.batchSize {
			return
		}
	}
}

// ClaimBatch enqueues one batch of due messages and returns how many were claimed.
func (p *SchedulePoller) ClaimBatch(ctx context.Context) (int, error) {
	claimed, err := p.repo.ClaimDue(ctx, p.now().UTC(), p.batchSize,
		func(ctx context.Context, tx pgx.Tx, due []models.ScheduledMessage) error {
			args := make([]jobs.ScheduledSendArgs, len(due))
			for i := range due {
				args[i] = jobs.ScheduledSendArgs{ScheduledMessageID: due[i].ID}
			}

			_, err := p.inserter.InsertScheduledSendsTx(ctx, tx, args)

			return err
		})
	if err != nil {
		return 0, err
	}

	if claimed == 0 {
		slog.DebugContext(ctx, "no due scheduled messages")

		return 0, nil
	}

	if p.metrics != nil {
		p.metrics.RecordScheduledEnqueued(ctx, claimed)
	}

	slog.InfoContext(ctx, "enqueued due scheduled messages", "count", claimed)

	return claimed, nil
}
