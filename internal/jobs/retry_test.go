package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyInserter fails until the failUntil-th call.
type flakyInserter struct {
	mu        sync.Mutex
	calls     int
	failUntil int
}

func (f *flakyInserter) InsertMany(_ context.Context, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.calls < f.failUntil {
		return nil, errors.New("connection refused")
	}

	return make([]*rivertype.JobInsertResult, len(params)), nil
}

func (f *flakyInserter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

type retryCounter struct {
	mu    sync.Mutex
	count int
}

func (r *retryCounter) RecordEnqueueRetry(context.Context) {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
}

func TestRetryingInserter(t *testing.T) {
	params := []river.InsertManyParams{{Args: ScheduledSendArgs{}}}

	tests := []struct {
		name        string
		failUntil   int
		retries     int
		wantErr     bool
		wantCalls   int
		wantRetries int
	}{
		{name: "first try succeeds", failUntil: 1, retries: 2, wantCalls: 1},
		{name: "succeeds after retries", failUntil: 3, retries: 5, wantCalls: 3, wantRetries: 2},
		{name: "retries exhausted", failUntil: 99, retries: 2, wantErr: true, wantCalls: 3, wantRetries: 2},
		{name: "zero retries", failUntil: 2, retries: 0, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &flakyInserter{failUntil: tt.failUntil}
			counter := &retryCounter{}
			r := NewRetryingInserter(inner, Backoff{Retries: tt.retries, Initial: time.Millisecond, Max: 5 * time.Millisecond}, counter)

			results, err := r.InsertMany(context.Background(), params)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, results)
			} else {
				require.NoError(t, err)
				assert.Len(t, results, 1)
			}

			assert.Equal(t, tt.wantCalls, inner.callCount())
			assert.Equal(t, tt.wantRetries, counter.count)
		})
	}
}

func TestBackoff_CancelDuringSleep(t *testing.T) {
	inner := &flakyInserter{failUntil: 99}
	r := NewRetryingInserter(inner, Backoff{Retries: 5, Initial: time.Hour, Max: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := r.InsertMany(ctx, []river.InsertManyParams{{Args: ScheduledSendArgs{}}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.callCount())
}

func TestBackoff_Normalized(t *testing.T) {
	b := Backoff{Retries: -1, Max: time.Millisecond}.normalized()

	assert.Equal(t, 0, b.Retries)
	assert.Equal(t, defaultInitialBackoff, b.Initial)
	assert.Equal(t, defaultInitialBackoff, b.Max)
}

func TestJitter(t *testing.T) {
	for range 50 {
		d := jitter(time.Second)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, time.Second)
	}

	assert.Equal(t, time.Duration(1), jitter(1))
}
