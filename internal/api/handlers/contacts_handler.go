package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/api/response"
	"github.com/msgdesk/hub/internal/models"
)

// ContactsService defines the interface for contacts business logic.
type ContactsService interface {
	CreateContact(ctx context.Context, req *models.CreateContactRequest) (*models.Contact, error)
	GetContact(ctx context.Context, id uuid.UUID, include string) (*models.ContactView, error)
	ListContacts(ctx context.Context, filters *models.ListContactsFilters) (*models.ListContactsResponse, error)
	UpdateContact(ctx context.Context, id uuid.UUID, req *models.UpdateContactRequest) (*models.Contact, error)
	DeleteContact(ctx context.Context, id uuid.UUID) error
}

// ContactsHandler handles HTTP requests for contacts.
type ContactsHandler struct {
	service ContactsService
}

// NewContactsHandler creates a new contacts handler.
func NewContactsHandler(service ContactsService) *ContactsHandler {
	return &ContactsHandler{service: service}
}

// Create handles POST /v1/contacts.
func (h *ContactsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateContactRequest
	if !decodeBody(w, r, &req) {
		return
	}

	contact, err := h.service.CreateContact(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err, "create contact", "Group not found")
		return
	}

	response.RespondJSON(w, http.StatusCreated, contact)
}

// Get handles GET /v1/contacts/{id}?include=groups,messages.
func (h *ContactsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Contact")
	if !ok {
		return
	}

	contact, err := h.service.GetContact(r.Context(), id, r.URL.Query().Get("include"))
	if err != nil {
		respondServiceError(w, r, err, "get contact", "Contact not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, contact)
}

// List handles GET /v1/contacts.
func (h *ContactsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListContactsFilters{}
	if !decodeQuery(w, r, filters) {
		return
	}

	result, err := h.service.ListContacts(r.Context(), filters)
	if err != nil {
		respondServiceError(w, r, err, "list contacts", "Contact not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Update handles PATCH /v1/contacts/{id}.
func (h *ContactsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Contact")
	if !ok {
		return
	}

	var req models.UpdateContactRequest
	if !decodeBody(w, r, &req) {
		return
	}

	contact, err := h.service.UpdateContact(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, r, err, "update contact", "Contact not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, contact)
}

// Delete handles DELETE /v1/contacts/{id}.
func (h *ContactsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Contact")
	if !ok {
		return
	}

	if err := h.service.DeleteContact(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "delete contact", "Contact not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
