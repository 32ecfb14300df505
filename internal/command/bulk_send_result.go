package command

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/events"
)

// RecipientStatus is the outcome for one recipient.
type RecipientStatus string

// Recipient outcomes.
const (
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
	RecipientSkipped RecipientStatus = "skipped"
)

// Run statuses derived from a BulkSendResult.
const (
	StatusCompleted           = "completed"
	StatusCompletedWithErrors = "completed_with_errors"
	StatusFailed              = "failed"
	StatusStopped             = "stopped"
	StatusCancelled           = "cancelled"
)

// Reasons recorded on skipped and rejected recipients.
const (
	ReasonInvalidPhone = "invalid phone number"
	ReasonStopped      = "stopped after error"
	ReasonCancelled    = "cancelled"
)

// RecipientResult is the outcome for one recipient. Batch is 1-based; 0 means the
// recipient was rejected before batching.
type RecipientResult struct {
	Phone     string          `json:"phone"`
	ContactID *uuid.UUID      `json:"contact_id,omitempty"`
	Status    RecipientStatus `json:"status"`
	MessageID string          `json:"message_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Batch     int             `json:"batch"`
}

// BulkSendResult aggregates the per-recipient outcomes of one bulk send.
// Sent+Failed+Skipped always equals Total.
type BulkSendResult struct {
	runID     uuid.UUID
	results   []RecipientResult
	sent      int
	failed    int
	skipped   int
	stopped   bool
	cancelled bool
	duration  time.Duration
}

// RunID returns the run the result belongs to.
func (r *BulkSendResult) RunID() uuid.UUID { return r.runID }

// Total returns the number of distinct recipients.
func (r *BulkSendResult) Total() int { return len(r.results) }

// Sent returns the number of accepted messages.
func (r *BulkSendResult) Sent() int { return r.sent }

// Failed returns the number of rejected recipients.
func (r *BulkSendResult) Failed() int { return r.failed }

// Skipped returns the number of recipients never attempted.
func (r *BulkSendResult) Skipped() int { return r.skipped }

// Stopped reports whether stop-on-error ended the run early.
func (r *BulkSendResult) Stopped() bool { return r.stopped }

// Cancelled reports whether the run was cancelled before finishing.
func (r *BulkSendResult) Cancelled() bool { return r.cancelled }

// Duration returns the wall time of the run.
func (r *BulkSendResult) Duration() time.Duration { return r.duration }

// Results returns a copy of the per-recipient outcomes in input order.
func (r *BulkSendResult) Results() []RecipientResult { return slices.Clone(r.results) }

// HasFailures reports whether any recipient failed.
func (r *BulkSendResult) HasFailures() bool { return r.failed > 0 }

// FailedRecipients returns the failed outcomes in input order.
func (r *BulkSendResult) FailedRecipients() []RecipientResult {
	var out []RecipientResult

	for _, res := range r.results {
		if res.Status == RecipientFailed {
			out = append(out, res)
		}
	}

	return out
}

// SuccessRate returns sent/attempted in [0,1]; 0 when nothing was attempted.
func (r *BulkSendResult) SuccessRate() float64 {
	attempted := r.sent + r.failed
	if attempted == 0 {
		return 0
	}

	return float64(r.sent) / float64(attempted)
}

// Status classifies the run.
func (r *BulkSendResult) Status() string {
	switch {
	case r.cancelled:
		return StatusCancelled
	case r.stopped:
		return StatusStopped
	case r.sent == 0 && r.failed > 0:
		return StatusFailed
	case r.failed > 0:
		return StatusCompletedWithErrors
	default:
		return StatusCompleted
	}
}

// Summary converts the result to the payload of a completion event.
func (r *BulkSendResult) Summary() events.RunSummary {
	failed := r.FailedRecipients()

	out := events.RunSummary{
		Status:      r.Status(),
		Total:       r.Total(),
		Sent:        r.sent,
		Failed:      r.failed,
		Skipped:     r.skipped,
		SuccessRate: r.SuccessRate(),
		Stopped:     r.stopped,
		Cancelled:   r.cancelled,
		Duration:    r.duration,
	}

	if len(failed) > 0 {
		out.FailedRecipients = make([]events.FailedRecipient, len(failed))
		for i, f := range failed {
			out.FailedRecipients[i] = events.FailedRecipient{Phone: f.Phone, ContactID: f.ContactID, Error: f.Error}
		}
	}

	return out
}

// ToCommandResult renders the run as a generic command outcome.
func (r *BulkSendResult) ToCommandResult() CommandResult {
	msg := fmt.Sprintf("bulk send %s: %d sent, %d failed, %d skipped of %d",
		r.Status(), r.sent, r.failed, r.skipped, r.Total())

	data := map[string]any{
		"run_id":       r.runID.String(),
		"status":       r.Status(),
		"total":        r.Total(),
		"sent":         r.sent,
		"failed":       r.failed,
		"skipped":      r.skipped,
		"success_rate": r.SuccessRate(),
		"duration_ms":  r.duration.Milliseconds(),
	}

	if r.Status() == StatusCompleted {
		return NewSuccessResult(msg, data)
	}

	failed := r.FailedRecipients()

	errs := make([]string, 0, len(failed))
	for _, f := range failed {
		errs = append(errs, f.Phone+": "+f.Error)
	}

	res := NewFailureResult(msg, errs...)
	res.data = data

	return res
}

// resultBuilder collects outcomes while a run executes. Slots start as skipped.
type resultBuilder struct {
	runID     uuid.UUID
	results   []RecipientResult
	done      []bool
	stopped   bool
	cancelled bool
}

func newResultBuilder(runID uuid.UUID, recipients []Recipient) *resultBuilder {
	b := &resultBuilder{
		runID:   runID,
		results: make([]RecipientResult, len(recipients)),
		done:    make([]bool, len(recipients)),
	}

	for i, rc := range recipients {
		b.results[i] = RecipientResult{Phone: rc.Phone, ContactID: rc.ContactID, Status: RecipientSkipped}
	}

	return b
}

func (b *resultBuilder) record(i int, res RecipientResult) {
	b.results[i] = res
	b.done[i] = true
}

// skipRemaining marks every unrecorded slot as skipped with reason.
func (b *resultBuilder) skipRemaining(reason string) {
	for i := range b.results {
		if !b.done[i] {
			b.results[i].Status = RecipientSkipped
			b.results[i].Error = reason
			b.done[i] = true
		}
	}
}

func (b *resultBuilder) counts() (sent, failed, skipped int) {
	for i, res := range b.results {
		if !b.done[i] {
			continue
		}

		switch res.Status {
		case RecipientSent:
			sent++
		case RecipientFailed:
			failed++
		case RecipientSkipped:
			skipped++
		}
	}

	return sent, failed, skipped
}

func (b *resultBuilder) build(duration time.Duration) *BulkSendResult {
	b.skipRemaining(ReasonCancelled)
	sent, failed, skipped := b.counts()

	return &BulkSendResult{
		runID:     b.runID,
		results:   slices.Clone(b.results),
		sent:      sent,
		failed:    failed,
		skipped:   skipped,
		stopped:   b.stopped,
		cancelled: b.cancelled,
		duration:  duration,
	}
}
