package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/api/response"
	"github.com/msgdesk/hub/internal/models"
)

// GroupsService defines the interface for contact group business logic.
type GroupsService interface {
	CreateGroup(ctx context.Context, req *models.CreateContactGroupRequest) (*models.ContactGroup, error)
	GetGroup(ctx context.Context, id uuid.UUID) (*models.ContactGroup, error)
	ListGroups(ctx context.Context, filters *models.ListContactGroupsFilters) (*models.ListContactGroupsResponse, error)
	UpdateGroup(ctx context.Context, id uuid.UUID, req *models.UpdateContactGroupRequest) (*models.ContactGroup, error)
	DeleteGroup(ctx context.Context, id uuid.UUID) error
	AddMembers(ctx context.Context, groupID uuid.UUID, req *models.GroupMembersRequest) (*models.GroupMembersResponse, error)
	RemoveMember(ctx context.Context, groupID, contactID uuid.UUID) error
}

// ContactsLister lists contacts; group members are contacts filtered by group.
type ContactsLister interface {
	ListContacts(ctx context.Context, filters *models.ListContactsFilters) (*models.ListContactsResponse, error)
}

// GroupsHandler handles HTTP requests for contact groups and their members.
type GroupsHandler struct {
	service  GroupsService
	contacts ContactsLister
}

// NewGroupsHandler creates a new groups handler.
func NewGroupsHandler(service GroupsService, contacts ContactsLister) *GroupsHandler {
	return &GroupsHandler{service: service, contacts: contacts}
}

// Create handles POST /v1/groups.
func (h *GroupsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateContactGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	group, err := h.service.CreateGroup(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err, "create group", "Group not found")
		return
	}

	response.RespondJSON(w, http.StatusCreated, group)
}

// Get handles GET /v1/groups/{id}.
func (h *GroupsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Group")
	if !ok {
		return
	}

	group, err := h.service.GetGroup(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get group", "Group not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, group)
}

// List handles GET /v1/groups.
func (h *GroupsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListContactGroupsFilters{}
	if !decodeQuery(w, r, filters) {
		return
	}

	result, err := h.service.ListGroups(r.Context(), filters)
	if err != nil {
		respondServiceError(w, r, err, "list groups", "Group not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Update handles PATCH /v1/groups/{id}.
func (h *GroupsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Group")
	if !ok {
		return
	}

	var req models.UpdateContactGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	group, err := h.service.UpdateGroup(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, r, err, "update group", "Group not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, group)
}

// Delete handles DELETE /v1/groups/{id}.
func (h *GroupsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Group")
	if !ok {
		return
	}

	if err := h.service.DeleteGroup(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "delete group", "Group not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListMembers handles GET /v1/groups/{id}/members.
func (h *GroupsHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Group")
	if !ok {
		return
	}

	filters := &models.ListContactsFilters{}
	if !decodeQuery(w, r, filters) {
		return
	}

	if _, err := h.service.GetGroup(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "get group", "Group not found")
		return
	}

	filters.GroupID = &id

	result, err := h.contacts.ListContacts(r.Context(), filters)
	if err != nil {
		respondServiceError(w, r, err, "list group members", "Group not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// AddMembers handles POST /v1/groups/{id}/members.
func (h *GroupsHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Group")
	if !ok {
		return
	}

	var req models.GroupMembersRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.service.AddMembers(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, r, err, "add group members", "Group or contact not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// RemoveMember handles DELETE /v1/groups/{id}/members/{contactId}.
func (h *GroupsHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Group")
	if !ok {
		return
	}

	contactID, ok := pathID(w, r, "contactId", "Contact")
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), id, contactID); err != nil {
		respondServiceError(w, r, err, "remove group member", "Group member not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
