package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgdesk/hub/internal/command"
	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/jobs"
	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/internal/repository"
	"github.com/msgdesk/hub/internal/service"
)

type stubExecutor struct {
	result *command.BulkSendResult
	err    error
	ids    []uuid.UUID
}

func (s *stubExecutor) ExecuteBulkSend(_ context.Context, id uuid.UUID) (*command.BulkSendResult, error) {
	s.ids = append(s.ids, id)

	return s.result, s.err
}

func TestBulkSendWorker_Work(t *testing.T) {
	ctx := context.Background()
	runID := uuid.Must(uuid.NewV7())
	job := &river.Job[jobs.BulkSendArgs]{
		JobRow: &rivertype.JobRow{ID: 7, Attempt: 1, MaxAttempts: 1},
		Args:   jobs.BulkSendArgs{BulkSendID: runID},
	}

	t.Run("executes the run", func(t *testing.T) {
		exec := &stubExecutor{result: &command.BulkSendResult{}}

		require.NoError(t, NewBulkSendWorker(exec).Work(ctx, job))
		assert.Equal(t, []uuid.UUID{runID}, exec.ids)
	})

	t.Run("runs that already started are cancelled", func(t *testing.T) {
		conflict := huberrors.NewConflictError("bulk send is running")
		exec := &stubExecutor{err: conflict}

		err := NewBulkSendWorker(exec).Work(ctx, job)
		assert.Equal(t, river.JobCancel(conflict), err)
	})

	t.Run("deleted runs are cancelled", func(t *testing.T) {
		notFound := huberrors.NewNotFoundError("bulk_send", "bulk send not found")
		exec := &stubExecutor{err: notFound}

		err := NewBulkSendWorker(exec).Work(ctx, job)
		assert.Equal(t, river.JobCancel(notFound), err)
	})

	t.Run("interrupted runs are not retried", func(t *testing.T) {
		exec := &stubExecutor{result: &command.BulkSendResult{}, err: context.DeadlineExceeded}

		err := NewBulkSendWorker(exec).Work(ctx, job)
		assert.Equal(t, river.JobCancel(context.DeadlineExceeded), err)
	})

	t.Run("other errors are returned", func(t *testing.T) {
		exec := &stubExecutor{err: errors.New("db down")}

		err := NewBulkSendWorker(exec).Work(ctx, job)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db down")
	})
}

type stubDeliverer struct {
	bulkID    *uuid.UUID
	err       error
	delivered []uuid.UUID
	failed    map[uuid.UUID]string
}

func (s *stubDeliverer) DeliverScheduled(_ context.Context, _ uuid.UUID) (*uuid.UUID, error) {
	return s.bulkID, s.err
}

func (s *stubDeliverer) MarkDelivered(_ context.Context, id uuid.UUID, _ *uuid.UUID) error {
	s.delivered = append(s.delivered, id)

	return nil
}

func (s *stubDeliverer) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	if s.failed == nil {
		s.failed = map[uuid.UUID]string{}
	}

	s.failed[id] = reason

	return nil
}

func TestScheduledSendWorker_Work(t *testing.T) {
	ctx := context.Background()
	msgID := uuid.Must(uuid.NewV7())
	jobAt := func(attempt int) *river.Job[jobs.ScheduledSendArgs] {
		return &river.Job[jobs.ScheduledSendArgs]{
			JobRow: &rivertype.JobRow{ID: 9, Attempt: attempt, MaxAttempts: 3},
			Args:   jobs.ScheduledSendArgs{ScheduledMessageID: msgID},
		}
	}

	t.Run("marks the message delivered", func(t *testing.T) {
		bulkID := uuid.Must(uuid.NewV7())
		d := &stubDeliverer{bulkID: &bulkID}

		require.NoError(t, NewScheduledSendWorker(d).Work(ctx, jobAt(1)))
		assert.Equal(t, []uuid.UUID{msgID}, d.delivered)
	})

	t.Run("skips messages that are no longer enqueued", func(t *testing.T) {
		d := &stubDeliverer{err: service.ErrScheduledNotEnqueued}

		require.NoError(t, NewScheduledSendWorker(d).Work(ctx, jobAt(1)))
		assert.Empty(t, d.delivered)
		assert.Empty(t, d.failed)
	})

	t.Run("retries transient provider errors while attempts remain", func(t *testing.T) {
		d := &stubDeliverer{err: huberrors.NewUpstreamError(service.ProviderSMS, "gateway unavailable", true)}

		err := NewScheduledSendWorker(d).Work(ctx, jobAt(1))
		require.ErrorIs(t, err, huberrors.ErrUpstream)
		assert.Empty(t, d.failed)
	})

	t.Run("marks failed on the last attempt", func(t *testing.T) {
		upstream := huberrors.NewUpstreamError(service.ProviderSMS, "gateway unavailable", true)
		d := &stubDeliverer{err: upstream}

		err := NewScheduledSendWorker(d).Work(ctx, jobAt(3))
		assert.Equal(t, river.JobCancel(upstream), err)
		assert.Contains(t, d.failed[msgID], "gateway unavailable")
	})

	t.Run("validation errors fail immediately", func(t *testing.T) {
		invalid := huberrors.NewValidationError("template_name", "template is not approved")
		d := &stubDeliverer{err: invalid}

		err := NewScheduledSendWorker(d).Work(ctx, jobAt(1))
		assert.Equal(t, river.JobCancel(invalid), err)
		assert.Contains(t, d.failed, msgID)
	})

	t.Run("sent but unrecorded messages are not sent again", func(t *testing.T) {
		d := &stubDeliverer{err: errors.Join(service.ErrSentNotRecorded, errors.New("db down"))}

		require.NoError(t, NewScheduledSendWorker(d).Work(ctx, jobAt(1)))
		assert.Equal(t, []uuid.UUID{msgID}, d.delivered)
	})
}

// fakeClaimer hands out pending messages in send order, like ClaimDue does.
type fakeClaimer struct {
	mu      sync.Mutex
	pending []models.ScheduledMessage
	now     []time.Time
}

func (f *fakeClaimer) ClaimDue(ctx context.Context, now time.Time, limit int, fn repository.ClaimFunc) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = append(f.now, now)

	n := min(limit, len(f.pending))
	if n == 0 {
		return 0, nil
	}

	if err := fn(ctx, nil, f.pending[:n]); err != nil {
		return 0, err
	}

	f.pending = f.pending[n:]

	return n, nil
}

func (f *fakeClaimer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.now)
}

type recordingInserter struct {
	scheduled []jobs.ScheduledSendArgs
	err       error
}

func (r *recordingInserter) InsertBulkSend(context.Context, jobs.BulkSendArgs) error { return nil }

func (r *recordingInserter) InsertScheduledSendsTx(_ context.Context, _ pgx.Tx, args []jobs.ScheduledSendArgs) (int, error) {
	if r.err != nil {
		return 0, r.err
	}

	r.scheduled = append(r.scheduled, args...)

	return len(args), nil
}

type enqueuedCounter struct {
	total int
}

func (c *enqueuedCounter) RecordMessage(context.Context, string, string)        {}
func (c *enqueuedCounter) RecordProviderError(context.Context, string, bool)    {}
func (c *enqueuedCounter) RecordBulkRun(context.Context, string, time.Duration) {}
func (c *enqueuedCounter) RecordBatchDuration(context.Context, time.Duration)   {}
func (c *enqueuedCounter) RecordTemplatesSynced(context.Context, int)           {}

func (c *enqueuedCounter) RecordScheduledEnqueued(_ context.Context, count int) {
	c.total += count
}

func pendingMessages(n int) []models.ScheduledMessage {
	msgs := make([]models.ScheduledMessage, n)
	for i := range msgs {
		msgs[i] = models.ScheduledMessage{ID: uuid.Must(uuid.NewV7()), Status: models.ScheduledStatusPending}
	}

	return msgs
}

func TestSchedulePoller(t *testing.T) {
	ctx := context.Background()

	t.Run("drains due messages batch by batch", func(t *testing.T) {
		msgs := pendingMessages(5)
		claimer := &fakeClaimer{pending: msgs}
		inserter := &recordingInserter{}
		metrics := &enqueuedCounter{}
		poller := NewSchedulePoller(claimer, inserter, metrics, time.Minute, 2)

		poller.runOnce(ctx)

		require.Len(t, inserter.scheduled, 5)
		assert.Equal(t, msgs[0].ID, inserter.scheduled[0].ScheduledMessageID)
		assert.Equal(t, msgs[4].ID, inserter.scheduled[4].ScheduledMessageID)
		assert.Len(t, claimer.now, 3)
		assert.Equal(t, 5, metrics.total)
	})

	t.Run("insert errors leave messages pending", func(t *testing.T) {
		claimer := &fakeClaimer{pending: pendingMessages(2)}
		poller := NewSchedulePoller(claimer, &recordingInserter{err: errors.New("river down")}, nil, time.Minute, 10)

		claimed, err := poller.ClaimBatch(ctx)
		require.Error(t, err)
		assert.Zero(t, claimed)
		assert.Len(t, claimer.pending, 2)
	})

	t.Run("claims with the current UTC time", func(t *testing.T) {
		claimer := &fakeClaimer{}
		poller := NewSchedulePoller(claimer, &recordingInserter{}, nil, 0, 0)
		fixed := time.Date(2026, 3, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600))
		poller.now = func() time.Time { return fixed }

		claimed, err := poller.ClaimBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, claimed)
		require.Len(t, claimer.now, 1)
		assert.True(t, claimer.now[0].Equal(fixed))
		assert.Equal(t, time.UTC, claimer.now[0].Location())
		assert.Equal(t, 100, poller.batchSize)
		assert.Equal(t, 15*time.Second, poller.pollInterval)
	})

	t.Run("start stops with the context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		claimer := &fakeClaimer{pending: pendingMessages(1)}
		inserter := &recordingInserter{}
		poller := NewSchedulePoller(claimer, inserter, nil, time.Hour, 10)

		done := make(chan struct{})

		go func() {
			poller.Start(cctx)
			close(done)
		}()

		require.Eventually(t, func() bool { return claimer.calls() >= 1 }, time.Second, 5*time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("poller did not stop")
		}

		assert.Len(t, inserter.scheduled, 1)
	})
}
