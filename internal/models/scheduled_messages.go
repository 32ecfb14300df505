package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ScheduledKind selects what a scheduled message does when it becomes due.
type ScheduledKind string

// Scheduled message kinds.
const (
	ScheduledKindSMS          ScheduledKind = "sms"
	ScheduledKindBulkTemplate ScheduledKind = "bulk_template"
)

// ScheduledStatus is the lifecycle state of a scheduled message.
type ScheduledStatus string

// Scheduled message statuses.
const (
	ScheduledStatusPending   ScheduledStatus = "pending"
	ScheduledStatusEnqueued  ScheduledStatus = "enqueued"
	ScheduledStatusSent      ScheduledStatus = "sent"
	ScheduledStatusFailed    ScheduledStatus = "failed"
	ScheduledStatusCancelled ScheduledStatus = "cancelled"
)

// ScheduledMessage is an SMS or bulk template send deferred until SendAt
type ScheduledMessage struct {
	ID         uuid.UUID       `json:"id"`
	Kind       ScheduledKind   `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	SendAt     time.Time       `json:"send_at"`
	Status     ScheduledStatus `json:"status"`
	BulkSendID *uuid.UUID      `json:"bulk_send_id,omitempty"`
	LastError  *string         `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// CreateScheduledMessageRequest schedules either an SMS or a bulk template send.
// Exactly one of SMS and BulkSend must be set, matching Kind.
type CreateScheduledMessageRequest struct {
	Kind     ScheduledKind          `json:"kind" validate:"required,oneof=sms bulk_template"`
	SendAt   time.Time              `json:"send_at" validate:"required"`
	SMS      *SendSMSRequest        `json:"sms,omitempty"`
	BulkSend *CreateBulkSendRequest `json:"bulk_send,omitempty"`
}

// ListScheduledMessagesFilters represents filters for listing scheduled messages
type ListScheduledMessagesFilters struct {
	Status *string `form:"status" validate:"omitempty,oneof=pending enqueued sent failed cancelled"`
	Kind   *string `form:"kind" validate:"omitempty,oneof=sms bulk_template"`
	Limit  int     `form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset int     `form:"offset" validate:"omitempty,min=0"`
}

// ListScheduledMessagesResponse represents the response for listing scheduled messages
type ListScheduledMessagesResponse struct {
	Data   []ScheduledMessage `json:"data"`
	Total  int64              `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}
