package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Contact represents a message recipient
type Contact struct {
	ID         uuid.UUID       `json:"id"`
	Phone      string          `json:"phone"`
	Name       string          `json:"name"`
	Email      *string         `json:"email,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
	OptedOut   bool            `json:"opted_out"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ContactView is a contact with the optional relations requested through ?include=
type ContactView struct {
	Contact

	Groups         []ContactGroup `json:"groups,omitempty"`
	RecentMessages []Message      `json:"recent_messages,omitempty"`
}

// CreateContactRequest represents the request to create a contact.
// Phone is normalized to E.164 by the service before it is stored.
type CreateContactRequest struct {
	Phone      string          `json:"phone" validate:"required,no_null_bytes,min=3,max=32"`
	Name       string          `json:"name,omitempty" validate:"omitempty,no_null_bytes,max=255"`
	Email      *string         `json:"email,omitempty" validate:"omitempty,email,max=320"`
	Attributes json.RawMessage `json:"attributes,omitempty" validate:"omitempty,json_object"`
	OptedOut   *bool           `json:"opted_out,omitempty"`
	GroupIDs   []uuid.UUID     `json:"group_ids,omitempty" validate:"omitempty,max=100"`
}

// UpdateContactRequest represents the request to update a contact
type UpdateContactRequest struct {
	Phone      *string         `json:"phone,omitempty" validate:"omitempty,no_null_bytes,min=3,max=32"`
	Name       *string         `json:"name,omitempty" validate:"omitempty,no_null_bytes,max=255"`
	Email      *string         `json:"email,omitempty" validate:"omitempty,email,max=320"`
	Attributes json.RawMessage `json:"attributes,omitempty" validate:"omitempty,json_object"`
	OptedOut   *bool           `json:"opted_out,omitempty"`
}

// ListContactsFilters represents filters for listing contacts
type ListContactsFilters struct {
	Search   *string    `form:"search" validate:"omitempty,no_null_bytes,max=255"`
	OptedOut *bool      `form:"opted_out"`
	GroupID  *uuid.UUID `form:"group_id"`
	Include  string     `form:"include" validate:"omitempty,no_null_bytes,max=64"`
	Limit    int        `form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset   int        `form:"offset" validate:"omitempty,min=0"`
}

// ListContactsResponse represents the response for listing contacts
type ListContactsResponse struct {
	Data   []ContactView `json:"data"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// Relations that can be expanded on contact responses.
const (
	IncludeGroups   = "groups"
	IncludeMessages = "messages"
)

// Includes is the parsed form of the ?include= query parameter.
type Includes struct {
	Groups   bool
	Messages bool
}

// Any reports whether at least one relation was requested.
func (i Includes) Any() bool {
	return i.Groups || i.Messages
}

// ParseIncludes parses a comma separated include list such as "groups,messages".
func ParseIncludes(raw string) (Includes, error) {
	var inc Includes

	if strings.TrimSpace(raw) == "" {
		return inc, nil
	}

	for _, part := range strings.Split(raw, ",") {
		switch strings.TrimSpace(part) {
		case IncludeGroups:
			inc.Groups = true
		case IncludeMessages:
			inc.Messages = true
		case "":
		default:
			return Includes{}, fmt.Errorf("unknown include %q (allowed: %s, %s)", part, IncludeGroups, IncludeMessages)
		}
	}

	return inc, nil
}
