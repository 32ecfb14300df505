package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Template is a WhatsApp message template mirrored from the business account
type Template struct {
	ID                 uuid.UUID       `json:"id"`
	ProviderTemplateID string          `json:"provider_template_id"`
	Name               string          `json:"name"`
	Language           string          `json:"language"`
	Category           string          `json:"category"`
	Status             string          `json:"status"`
	BodyText           *string         `json:"body_text,omitempty"`
	ParameterCount     int             `json:"parameter_count"`
	Components         json.RawMessage `json:"components,omitempty"`
	SyncedAt           time.Time       `json:"synced_at"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TemplateStatusApproved is the provider status of a template that may be sent.
const TemplateStatusApproved = "APPROVED"

// Sendable reports whether the provider has approved the template.
func (t *Template) Sendable() bool {
	return t.Status == TemplateStatusApproved
}

// UpsertTemplate is the write form used by template sync.
type UpsertTemplate struct {
	ProviderTemplateID string
	Name               string
	Language           string
	Category           string
	Status             string
	BodyText           *string
	ParameterCount     int
	Components         json.RawMessage
}

// ListTemplatesFilters represents filters for listing templates
type ListTemplatesFilters struct {
	Status   *string `form:"status" validate:"omitempty,no_null_bytes,max=32"`
	Language *string `form:"language" validate:"omitempty,no_null_bytes,max=15"`
	Search   *string `form:"search" validate:"omitempty,no_null_bytes,max=255"`
	Limit    int     `form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset   int     `form:"offset" validate:"omitempty,min=0"`
}

// ListTemplatesResponse represents the response for listing templates
type ListTemplatesResponse struct {
	Data   []Template `json:"data"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// TemplateSyncResponse reports the outcome of a template sync
type TemplateSyncResponse struct {
	Synced   int       `json:"synced"`
	SyncedAt time.Time `json:"synced_at"`
}
