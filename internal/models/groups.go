package models

import (
	"time"

	"github.com/google/uuid"
)

// ContactGroup represents a named set of contacts used as a bulk send audience
type ContactGroup struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	MemberCount int64     `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateContactGroupRequest represents the request to create a group
type CreateContactGroupRequest struct {
	Name        string  `json:"name" validate:"required,no_null_bytes,min=1,max=255"`
	Description *string `json:"description,omitempty" validate:"omitempty,no_null_bytes,max=2000"`
}

// UpdateContactGroupRequest represents the request to update a group
type UpdateContactGroupRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,no_null_bytes,min=1,max=255"`
	Description *string `json:"description,omitempty" validate:"omitempty,no_null_bytes,max=2000"`
}

// ListContactGroupsFilters represents filters for listing groups
type ListContactGroupsFilters struct {
	Search *string `form:"search" validate:"omitempty,no_null_bytes,max=255"`
	Limit  int     `form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset int     `form:"offset" validate:"omitempty,min=0"`
}

// ListContactGroupsResponse represents the response for listing groups
type ListContactGroupsResponse struct {
	Data   []ContactGroup `json:"data"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// GroupMembersRequest adds contacts to a group
type GroupMembersRequest struct {
	ContactIDs []uuid.UUID `json:"contact_ids" validate:"required,min=1,max=1000"`
}

// GroupMembersResponse reports how many memberships were created
type GroupMembersResponse struct {
	Added int64 `json:"added"`
}
