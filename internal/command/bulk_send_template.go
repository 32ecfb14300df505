package command

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/msgdesk/hub/internal/events"
	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/pkg/phone"
)

const maxTemplateNameLen = 512

var templateNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Limits bound a bulk send.
type Limits struct {
	MaxRecipients    int
	MaxBatchSize     int
	DefaultBatchSize int
	MaxDelay         time.Duration
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxRecipients:    10000,
		MaxBatchSize:     1000,
		DefaultBatchSize: 50,
		MaxDelay:         10 * time.Minute,
	}
}

// Recipient is one addressee of a bulk send. Variables fill the template body placeholders in order.
type Recipient struct {
	Phone     string     `json:"phone"`
	ContactID *uuid.UUID `json:"contact_id,omitempty"`
	Variables []string   `json:"variables,omitempty"`
}

// TemplateMessage is handed to a TemplateSender for each recipient.
type TemplateMessage struct {
	RunID        uuid.UUID
	Phone        string
	ContactID    *uuid.UUID
	TemplateName string
	LanguageCode string
	Variables    []string
	Batch        int
}

// TemplateSender delivers one template message and returns the provider message id.
type TemplateSender interface {
	SendTemplate(ctx context.Context, msg TemplateMessage) (messageID string, err error)
}

// EventDispatcher receives the events raised while a command runs.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event events.Event) error
}

// BulkSendTemplateCommand sends one WhatsApp template to many recipients in batches.
type BulkSendTemplateCommand struct {
	RunID               uuid.UUID
	TemplateName        string
	LanguageCode        string
	Recipients          []Recipient
	BatchSize           int
	DelayBetweenBatches time.Duration
	StopOnError         bool

	Limits Limits
	// DefaultRegion (ISO 3166-1 alpha-2) resolves national numbers; empty rejects them.
	DefaultRegion string
	// Limiter, when set, is waited on before every send.
	Limiter *rate.Limiter
}

// Validate checks the command and applies the default batch size.
func (c *BulkSendTemplateCommand) Validate() error {
	limits := c.limits()

	name := strings.TrimSpace(c.TemplateName)

	switch {
	case name == "":
		return huberrors.NewValidationError("template_name", "template name is required")
	case len(name) > maxTemplateNameLen:
		return huberrors.NewValidationError("template_name",
			fmt.Sprintf("template name must be at most %d characters", maxTemplateNameLen))
	case !templateNamePattern.MatchString(name):
		return huberrors.NewValidationError("template_name",
			"template name may only contain lowercase letters, digits and underscores")
	}

	if strings.TrimSpace(c.LanguageCode) == "" {
		return huberrors.NewValidationError("language_code", "language code is required")
	}

	if len(c.Recipients) == 0 {
		return huberrors.NewValidationError("recipients", "at least one recipient is required")
	}

	if len(c.Recipients) > limits.MaxRecipients {
		return huberrors.NewValidationError("recipients",
			fmt.Sprintf("at most %d recipients are allowed per bulk send", limits.MaxRecipients))
	}

	if c.BatchSize == 0 {
		c.BatchSize = limits.DefaultBatchSize
	}

	if c.BatchSize < 1 || c.BatchSize > limits.MaxBatchSize {
		return huberrors.NewValidationError("batch_size",
			fmt.Sprintf("batch size must be between 1 and %d", limits.MaxBatchSize))
	}

	if c.DelayBetweenBatches < 0 || c.DelayBetweenBatches > limits.MaxDelay {
		return huberrors.NewValidationError("delay_between_batches",
			fmt.Sprintf("delay between batches must be between 0 and %s", limits.MaxDelay))
	}

	c.TemplateName = name

	return nil
}

func (c *BulkSendTemplateCommand) limits() Limits {
	l := c.Limits
	d := DefaultLimits()

	if l.MaxRecipients <= 0 {
		l.MaxRecipients = d.MaxRecipients
	}

	if l.MaxBatchSize <= 0 {
		l.MaxBatchSize = d.MaxBatchSize
	}

	if l.DefaultBatchSize <= 0 {
		l.DefaultBatchSize = min(d.DefaultBatchSize, l.MaxBatchSize)
	}

	if l.MaxDelay <= 0 {
		l.MaxDelay = d.MaxDelay
	}

	return l
}

// plan is the normalised recipient list split into batches of indexes into recipients.
type plan struct {
	recipients []Recipient
	invalid    []int
	batches    [][]int
}

func (c *BulkSendTemplateCommand) plan() plan {
	var p plan

	seen := make(map[string]struct{}, len(c.Recipients))

	var valid []int

	for _, rc := range c.Recipients {
		normalized, err := phone.NormalizeForRegion(rc.Phone, c.DefaultRegion)
		if err != nil {
			raw := strings.TrimSpace(rc.Phone)
			if _, dup := seen["raw:"+raw]; dup {
				continue
			}

			seen["raw:"+raw] = struct{}{}
			rc.Phone = raw
			p.invalid = append(p.invalid, len(p.recipients))
			p.recipients = append(p.recipients, rc)

			continue
		}

		if _, dup := seen[normalized]; dup {
			continue
		}

		seen[normalized] = struct{}{}
		rc.Phone = normalized
		valid = append(valid, len(p.recipients))
		p.recipients = append(p.recipients, rc)
	}

	size := max(c.BatchSize, 1)
	for start := 0; start < len(valid); start += size {
		end := min(start+size, len(valid))
		p.batches = append(p.batches, valid[start:end])
	}

	return p
}

// Batches returns the normalised, deduplicated recipients chunked by BatchSize, and the
// recipients rejected for an invalid phone number.
func (c *BulkSendTemplateCommand) Batches() (batches [][]Recipient, rejected []Recipient) {
	p := c.plan()

	for _, idxs := range p.batches {
		batch := make([]Recipient, len(idxs))
		for i, idx := range idxs {
			batch[i] = p.recipients[idx]
		}

		batches = append(batches, batch)
	}

	for _, idx := range p.invalid {
		rejected = append(rejected, p.recipients[idx])
	}

	return batches, rejected
}

// Normalized returns the deduplicated recipients in input order with normalised phones.
// invalid[i] reports whether recipients[i] was rejected for its phone number; rejected
// recipients keep their trimmed raw phone.
func (c *BulkSendTemplateCommand) Normalized() (recipients []Recipient, invalid []bool) {
	p := c.plan()

	invalid = make([]bool, len(p.recipients))
	for _, idx := range p.invalid {
		invalid[idx] = true
	}

	return p.recipients, invalid
}

// Execute validates the command and sends every batch. It returns an error without a result
// only when validation fails. A cancelled run returns the partial result together with the
// context error.
func (c *BulkSendTemplateCommand) Execute(ctx context.Context, sender TemplateSender, dispatcher EventDispatcher) (*BulkSendResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if c.RunID == uuid.Nil {
		c.RunID = uuid.Must(uuid.NewV7())
	}

	started := time.Now()
	p := c.plan()
	b := newResultBuilder(c.RunID, p.recipients)
	// Events about work already done must reach listeners even after cancellation.
	notifyCtx := context.WithoutCancel(ctx)

	c.dispatch(notifyCtx, dispatcher, events.BulkSendStarted{
		Base:         events.NewBase(c.RunID),
		TemplateName: c.TemplateName,
		LanguageCode: c.LanguageCode,
		Total:        len(p.recipients),
		BatchCount:   len(p.batches),
		BatchSize:    c.BatchSize,
	})

	for _, idx := range p.invalid {
		rc := p.recipients[idx]
		b.record(idx, RecipientResult{Phone: rc.Phone, ContactID: rc.ContactID, Status: RecipientFailed, Error: ReasonInvalidPhone})
		c.dispatch(notifyCtx, dispatcher, events.TemplateMessageFailed{
			Base:         events.NewBase(c.RunID),
			Phone:        rc.Phone,
			ContactID:    rc.ContactID,
			TemplateName: c.TemplateName,
			LanguageCode: c.LanguageCode,
			Error:        ReasonInvalidPhone,
		})
	}

	var (
		runErr  error
		batchNo int
	)

batches:
	for bi, batch := range p.batches {
		batchNo = bi + 1

		if bi > 0 && c.DelayBetweenBatches > 0 {
			if err := sleep(ctx, c.DelayBetweenBatches); err != nil {
				runErr = err

				break
			}
		}

		batchFailed := false

		for _, idx := range batch {
			if err := ctx.Err(); err != nil {
				runErr = err

				break batches
			}

			if c.Limiter != nil {
				if err := c.Limiter.Wait(ctx); err != nil {
					runErr = err

					break batches
				}
			}

			if !c.sendOne(ctx, notifyCtx, sender, dispatcher, b, p.recipients[idx], idx, batchNo) {
				batchFailed = true
			}
		}

		c.dispatchProgress(notifyCtx, dispatcher, b, batchNo, len(p.batches))

		if c.StopOnError && batchFailed && bi < len(p.batches)-1 {
			b.stopped = true
			b.skipRemaining(ReasonStopped)

			break
		}
	}

	if runErr != nil {
		b.cancelled = true
		b.skipRemaining(ReasonCancelled)
		c.dispatchProgress(notifyCtx, dispatcher, b, batchNo, len(p.batches))
	}

	result := b.build(time.Since(started))

	c.dispatch(notifyCtx, dispatcher, events.BulkSendCompleted{
		Base:         events.NewBase(c.RunID),
		TemplateName: c.TemplateName,
		Result:       result.Summary(),
	})

	return result, runErr
}

// sendOne sends to recipient idx and reports whether it succeeded.
func (c *BulkSendTemplateCommand) sendOne(
	ctx, notifyCtx context.Context, sender TemplateSender, dispatcher EventDispatcher,
	b *resultBuilder, rc Recipient, idx, batchNo int,
) bool {
	messageID, err := sender.SendTemplate(ctx, TemplateMessage{
		RunID:        c.RunID,
		Phone:        rc.Phone,
		ContactID:    rc.ContactID,
		TemplateName: c.TemplateName,
		LanguageCode: c.LanguageCode,
		Variables:    rc.Variables,
		Batch:        batchNo,
	})
	if err != nil {
		b.record(idx, RecipientResult{Phone: rc.Phone, ContactID: rc.ContactID, Status: RecipientFailed, Error: err.Error(), Batch: batchNo})
		c.dispatch(notifyCtx, dispatcher, events.TemplateMessageFailed{
			Base:         events.NewBase(c.RunID),
			Phone:        rc.Phone,
			ContactID:    rc.ContactID,
			TemplateName: c.TemplateName,
			LanguageCode: c.LanguageCode,
			Error:        err.Error(),
			Batch:        batchNo,
		})

		return false
	}

	b.record(idx, RecipientResult{Phone: rc.Phone, ContactID: rc.ContactID, Status: RecipientSent, MessageID: messageID, Batch: batchNo})
	c.dispatch(notifyCtx, dispatcher, events.TemplateMessageSent{
		Base:         events.NewBase(c.RunID),
		Phone:        rc.Phone,
		ContactID:    rc.ContactID,
		TemplateName: c.TemplateName,
		LanguageCode: c.LanguageCode,
		MessageID:    messageID,
		Batch:        batchNo,
	})

	return true
}

func (c *BulkSendTemplateCommand) dispatchProgress(ctx context.Context, dispatcher EventDispatcher, b *resultBuilder, batchNo, batchCount int) {
	sent, failed, skipped := b.counts()

	c.dispatch(ctx, dispatcher, events.BulkSendProgress{
		Base:       events.NewBase(c.RunID),
		Batch:      batchNo,
		BatchCount: batchCount,
		Processed:  sent + failed + skipped,
		Sent:       sent,
		Failed:     failed,
		Skipped:    skipped,
		Total:      len(b.results),
	})
}

// dispatch ignores listener errors; the dispatcher logs them and they never abort a send.
func (c *BulkSendTemplateCommand) dispatch(ctx context.Context, dispatcher EventDispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}

	_ = dispatcher.Dispatch(ctx, event)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
