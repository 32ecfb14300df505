package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/datatypes"
)

// Webhook represents an endpoint that receives outbound messaging events
type Webhook struct {
	ID             uuid.UUID             `json:"id"`
	URL            string                `json:"url"`
	SigningKey     string                `json:"signing_key,omitempty"`
	Enabled        bool                  `json:"enabled"`
	EventTypes     []datatypes.EventType `json:"event_types,omitempty"`
	DisabledReason *string               `json:"disabled_reason,omitempty"`
	DisabledAt     *time.Time            `json:"disabled_at,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// MarshalJSON renders event types as strings.
func (w *Webhook) MarshalJSON() ([]byte, error) {
	type Alias Webhook

	return json.Marshal(&struct {
		EventTypes []string `json:"event_types,omitempty"`
		*Alias
	}{
		EventTypes: datatypes.EventTypeStrings(w.EventTypes),
		Alias:      (*Alias)(w),
	})
}

// UnmarshalJSON parses event type strings.
func (w *Webhook) UnmarshalJSON(data []byte) error {
	type Alias Webhook

	aux := &struct {
		EventTypes []string `json:"event_types,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(w),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	eventTypes, err := parseEventTypeList(aux.EventTypes)
	if err != nil {
		return err
	}

	w.EventTypes = eventTypes

	return nil
}

// parseEventTypeList validates a JSON event type list. A nil list stays nil.
func parseEventTypeList(raw []string) ([]datatypes.EventType, error) {
	if raw == nil {
		return nil, nil
	}

	eventTypes, err := datatypes.ParseEventTypes(raw)
	if err != nil {
		return nil, fmt.Errorf("event_types: %w", err)
	}

	if eventTypes == nil {
		eventTypes = []datatypes.EventType{}
	}

	return eventTypes, nil
}

// CreateWebhookRequest represents the request to create a webhook
type CreateWebhookRequest struct {
	URL        string                `json:"url" validate:"required,no_null_bytes,url,min=1,max=2048"`
	SigningKey string                `json:"signing_key,omitempty" validate:"omitempty,no_null_bytes,max=255"`
	Enabled    *bool                 `json:"enabled,omitempty"`
	EventTypes []datatypes.EventType `json:"event_types,omitempty"`
}

// UnmarshalJSON parses event type strings.
func (r *CreateWebhookRequest) UnmarshalJSON(data []byte) error {
	type Alias CreateWebhookRequest

	aux := &struct {
		EventTypes []string `json:"event_types,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	eventTypes, err := parseEventTypeList(aux.EventTypes)
	if err != nil {
		return err
	}

	r.EventTypes = eventTypes

	return nil
}

// UpdateWebhookRequest represents the request to update a webhook.
// DisabledReason and DisabledAt are set internally when delivery disables an endpoint.
type UpdateWebhookRequest struct {
	URL            *string                `json:"url,omitempty" validate:"omitempty,no_null_bytes,url,min=1,max=2048"`
	SigningKey     *string                `json:"signing_key,omitempty" validate:"omitempty,no_null_bytes,min=1,max=255"`
	Enabled        *bool                  `json:"enabled,omitempty"`
	EventTypes     *[]datatypes.EventType `json:"event_types,omitempty"`
	DisabledReason *string                `json:"-"`
	DisabledAt     *time.Time             `json:"-"`
}

// DisableWebhook builds the update that switches an endpoint off, recording why and when.
func DisableWebhook(reason string) *UpdateWebhookRequest {
	enabled := false
	at := time.Now().UTC()

	return &UpdateWebhookRequest{Enabled: &enabled, DisabledReason: &reason, DisabledAt: &at}
}

// UnmarshalJSON parses event type strings; an explicit empty list clears the filter.
func (r *UpdateWebhookRequest) UnmarshalJSON(data []byte) error {
	type Alias UpdateWebhookRequest

	aux := &struct {
		EventTypes []string `json:"event_types,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	eventTypes, err := parseEventTypeList(aux.EventTypes)
	if err != nil {
		return err
	}

	if eventTypes != nil {
		r.EventTypes = &eventTypes
	}

	return nil
}

// ListWebhooksFilters represents filters for listing webhooks
type ListWebhooksFilters struct {
	Enabled *bool `form:"enabled"`
	Limit   int   `form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset  int   `form:"offset" validate:"omitempty,min=0"`
}

// ListWebhooksResponse represents the response for listing webhooks
type ListWebhooksResponse struct {
	Data   []Webhook `json:"data"`
	Total  int64     `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

// WebhookPayload is the JSON body POSTed to webhook endpoints for every event type.
type WebhookPayload struct {
	ID            uuid.UUID `json:"id"` // event id, also sent as the webhook-id header
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	Data          any       `json:"data"`
	ChangedFields []string  `json:"changed_fields,omitempty"`
}
