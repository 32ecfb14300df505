package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the delivery channel of a message.
type Channel string

// Supported channels.
const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// MessageStatus is the delivery status of a message history row.
type MessageStatus string

// Message statuses.
const (
	MessageStatusSent   MessageStatus = "sent"
	MessageStatusFailed MessageStatus = "failed"
)

// Message is one outbound message in the history (the SMS/WhatsApp log)
type Message struct {
	ID                uuid.UUID     `json:"id"`
	ContactID         *uuid.UUID    `json:"contact_id,omitempty"`
	BulkSendID        *uuid.UUID    `json:"bulk_send_id,omitempty"`
	Channel           Channel       `json:"channel"`
	Phone             string        `json:"phone"`
	Body              *string       `json:"body,omitempty"`
	TemplateName      *string       `json:"template_name,omitempty"`
	Status            MessageStatus `json:"status"`
	ProviderMessageID *string       `json:"provider_message_id,omitempty"`
	Error             *string       `json:"error,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// NewMessage is the insert form of a history row.
type NewMessage struct {
	ContactID         *uuid.UUID
	BulkSendID        *uuid.UUID
	Channel           Channel
	Phone             string
	Body              *string
	TemplateName      *string
	Status            MessageStatus
	ProviderMessageID *string
	Error             *string
}

// SendSMSRequest sends one SMS to a phone number or an existing contact
type SendSMSRequest struct {
	Phone     string     `json:"phone,omitempty" validate:"omitempty,no_null_bytes,max=32"`
	ContactID *uuid.UUID `json:"contact_id,omitempty"`
	Body      string     `json:"body" validate:"required,no_null_bytes,min=1,max=1600"`
}

// SendTemplateRequest sends one WhatsApp template message
type SendTemplateRequest struct {
	Phone        string     `json:"phone,omitempty" validate:"omitempty,no_null_bytes,max=32"`
	ContactID    *uuid.UUID `json:"contact_id,omitempty"`
	TemplateName string     `json:"template_name" validate:"required,no_null_bytes,max=512"`
	LanguageCode string     `json:"language_code" validate:"required,no_null_bytes,max=15"`
	Variables    []string   `json:"variables,omitempty" validate:"omitempty,max=20,dive,no_null_bytes,max=1024"`
}

// ListMessagesFilters represents filters for listing message history
type ListMessagesFilters struct {
	ContactID  *uuid.UUID `form:"contact_id"`
	BulkSendID *uuid.UUID `form:"bulk_send_id"`
	Channel    *string    `form:"channel" validate:"omitempty,oneof=sms whatsapp"`
	Status     *string    `form:"status" validate:"omitempty,oneof=sent failed"`
	Since      *time.Time `form:"since"`
	Until      *time.Time `form:"until"`
	Limit      int        `form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset     int        `form:"offset" validate:"omitempty,min=0"`
}

// ListMessagesResponse represents the response for listing message history
type ListMessagesResponse struct {
	Data   []Message `json:"data"`
	Total  int64     `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}
