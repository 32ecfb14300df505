package models

import (
	"time"

	"github.com/google/uuid"
)

// BulkSendStatus is the lifecycle state of a bulk template send run.
type BulkSendStatus string

// Bulk send statuses.
const (
	BulkSendStatusPending             BulkSendStatus = "pending"
	BulkSendStatusRunning             BulkSendStatus = "running"
	BulkSendStatusCompleted           BulkSendStatus = "completed"
	BulkSendStatusCompletedWithErrors BulkSendStatus = "completed_with_errors"
	BulkSendStatusFailed              BulkSendStatus = "failed"
	BulkSendStatusStopped             BulkSendStatus = "stopped"
	BulkSendStatusCancelled           BulkSendStatus = "cancelled"
)

// Terminal reports whether no further progress will be recorded for the run.
func (s BulkSendStatus) Terminal() bool {
	switch s {
	case BulkSendStatusPending, BulkSendStatusRunning:
		return false
	default:
		return true
	}
}

// BulkSend is one bulk WhatsApp template send run
type BulkSend struct {
	ID              uuid.UUID           `json:"id"`
	TemplateName    string              `json:"template_name"`
	LanguageCode    string              `json:"language_code"`
	GroupID         *uuid.UUID          `json:"group_id,omitempty"`
	Status          BulkSendStatus      `json:"status"`
	TotalRecipients int                 `json:"total_recipients"`
	Processed       int                 `json:"processed"`
	Sent            int                 `json:"sent"`
	Failed          int                 `json:"failed"`
	Skipped         int                 `json:"skipped"`
	BatchSize       int                 `json:"batch_size"`
	BatchDelayMS    int64               `json:"batch_delay_ms"`
	StopOnError     bool                `json:"stop_on_error"`
	LastError       *string             `json:"last_error,omitempty"`
	Recipients      []BulkSendRecipient `json:"-"`
	StartedAt       *time.Time          `json:"started_at,omitempty"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// BulkSendRecipient is one addressee of a bulk send with its template body variables
type BulkSendRecipient struct {
	Phone     string     `json:"phone" validate:"required,no_null_bytes,max=32"`
	ContactID *uuid.UUID `json:"contact_id,omitempty"`
	Variables []string   `json:"variables,omitempty" validate:"omitempty,max=20,dive,no_null_bytes,max=1024"`
}

// CreateBulkSendRequest starts a bulk template send to explicit recipients or a contact group.
// Variables apply to every recipient that does not carry its own.
type CreateBulkSendRequest struct {
	TemplateName string              `json:"template_name" validate:"required,no_null_bytes,max=512"`
	LanguageCode string              `json:"language_code" validate:"required,no_null_bytes,max=15"`
	GroupID      *uuid.UUID          `json:"group_id,omitempty"`
	Recipients   []BulkSendRecipient `json:"recipients,omitempty" validate:"omitempty,dive"`
	Variables    []string            `json:"variables,omitempty" validate:"omitempty,max=20,dive,no_null_bytes,max=1024"`
	BatchSize    *int                `json:"batch_size,omitempty" validate:"omitempty,min=1"`
	DelayMS      *int64              `json:"delay_ms,omitempty" validate:"omitempty,min=0,max=600000"`
	StopOnError  bool                `json:"stop_on_error,omitempty"`
}

// NewBulkSend is the insert form of a run.
type NewBulkSend struct {
	TemplateName string
	LanguageCode string
	GroupID      *uuid.UUID
	Recipients   []BulkSendRecipient
	BatchSize    int
	BatchDelayMS int64
	StopOnError  bool
}

// BulkSendProgress is a snapshot of run counters written after each batch
type BulkSendProgress struct {
	Processed int
	Sent      int
	Failed    int
	Skipped   int
}

// ListBulkSendsFilters represents filters for listing runs
type ListBulkSendsFilters struct {
	Status *string `form:"status" validate:"omitempty,oneof=pending running completed completed_with_errors failed stopped cancelled"`
	Limit  int     `form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset int     `form:"offset" validate:"omitempty,min=0"`
}

// ListBulkSendsResponse represents the response for listing runs
type ListBulkSendsResponse struct {
	Data   []BulkSend `json:"data"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}
