// Package events defines the bulk send pipeline events and a synchronous dispatcher.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event names.
const (
	NameBulkSendStarted       = "bulk_send.started"
	NameBulkSendProgress      = "bulk_send.progress"
	NameBulkSendCompleted     = "bulk_send.completed"
	NameTemplateMessageSent   = "template_message.sent"
	NameTemplateMessageFailed = "template_message.failed"
)

// Event is a notification raised while a bulk send runs.
type Event interface {
	Name() string
	OccurredAt() time.Time
	RunID() uuid.UUID
}

// Base carries the fields shared by every event.
type Base struct {
	Run uuid.UUID `json:"run_id"`
	At  time.Time `json:"occurred_at"`
}

// NewBase stamps an event for run with the current time.
func NewBase(run uuid.UUID) Base {
	return Base{Run: run, At: time.Now().UTC()}
}

// RunID returns the bulk send run the event belongs to.
func (b Base) RunID() uuid.UUID { return b.Run }

// OccurredAt returns when the event was raised.
func (b Base) OccurredAt() time.Time { return b.At }

// BulkSendStarted is raised once before the first message is sent.
type BulkSendStarted struct {
	Base
	TemplateName string `json:"template_name"`
	LanguageCode string `json:"language_code"`
	Total        int    `json:"total"`
	BatchCount   int    `json:"batch_count"`
	BatchSize    int    `json:"batch_size"`
}

// Name implements Event.
func (BulkSendStarted) Name() string { return NameBulkSendStarted }

// BulkSendProgress is raised after every batch.
type BulkSendProgress struct {
	Base
	Batch      int `json:"batch"`
	BatchCount int `json:"batch_count"`
	Processed  int `json:"processed"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Total      int `json:"total"`
}

// Name implements Event.
func (BulkSendProgress) Name() string { return NameBulkSendProgress }

// Percent returns processed recipients as a percentage of the total.
func (p BulkSendProgress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}

	return float64(p.Processed) / float64(p.Total) * 100
}

// FailedRecipient identifies a recipient that was not sent to.
type FailedRecipient struct {
	Phone     string     `json:"phone"`
	ContactID *uuid.UUID `json:"contact_id,omitempty"`
	Error     string     `json:"error"`
}

// RunSummary is the final tally of a bulk send.
type RunSummary struct {
	Status           string            `json:"status"`
	Total            int               `json:"total"`
	Sent             int               `json:"sent"`
	Failed           int               `json:"failed"`
	Skipped          int               `json:"skipped"`
	SuccessRate      float64           `json:"success_rate"`
	Stopped          bool              `json:"stopped"`
	Cancelled        bool              `json:"cancelled"`
	Duration         time.Duration     `json:"duration_ns"`
	FailedRecipients []FailedRecipient `json:"failed_recipients,omitempty"`
}

// BulkSendCompleted is raised once when a run ends, including stopped and cancelled runs.
type BulkSendCompleted struct {
	Base
	TemplateName string     `json:"template_name"`
	Result       RunSummary `json:"result"`
}

// Name implements Event.
func (BulkSendCompleted) Name() string { return NameBulkSendCompleted }

// TemplateMessageSent is raised for every accepted template message.
type TemplateMessageSent struct {
	Base
	Phone        string     `json:"phone"`
	ContactID    *uuid.UUID `json:"contact_id,omitempty"`
	TemplateName string     `json:"template_name"`
	LanguageCode string     `json:"language_code"`
	MessageID    string     `json:"message_id"`
	Batch        int        `json:"batch"`
}

// Name implements Event.
func (TemplateMessageSent) Name() string { return NameTemplateMessageSent }

// TemplateMessageFailed is raised for every rejected template message.
type TemplateMessageFailed struct {
	Base
	Phone        string     `json:"phone"`
	ContactID    *uuid.UUID `json:"contact_id,omitempty"`
	TemplateName string     `json:"template_name"`
	LanguageCode string     `json:"language_code"`
	Error        string     `json:"error"`
	Batch        int        `json:"batch"`
}

// Name implements Event.
func (TemplateMessageFailed) Name() string { return NameTemplateMessageFailed }

var (
	_ Event = BulkSendStarted{}
	_ Event = BulkSendProgress{}
	_ Event = BulkSendCompleted{}
	_ Event = TemplateMessageSent{}
	_ Event = TemplateMessageFailed{}
)
