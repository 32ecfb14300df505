package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/api/response"
	"github.com/msgdesk/hub/internal/models"
)

// ScheduledMessagesService defines the interface for deferred sends.
type ScheduledMessagesService interface {
	CreateScheduledMessage(ctx context.Context, req *models.CreateScheduledMessageRequest) (*models.ScheduledMessage, error)
	GetScheduledMessage(ctx context.Context, id uuid.UUID) (*models.ScheduledMessage, error)
	ListScheduledMessages(ctx context.Context, filters *models.ListScheduledMessagesFilters) (*models.ListScheduledMessagesResponse, error)
	CancelScheduledMessage(ctx context.Context, id uuid.UUID) (*models.ScheduledMessage, error)
}

// ScheduledMessagesHandler handles HTTP requests for scheduled messages.
type ScheduledMessagesHandler struct {
	service ScheduledMessagesService
}

// NewScheduledMessagesHandler creates a new scheduled messages handler.
func NewScheduledMessagesHandler(service ScheduledMessagesService) *ScheduledMessagesHandler {
	return &ScheduledMessagesHandler{service: service}
}

// Create handles POST /v1/scheduled-messages.
func (h *ScheduledMessagesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateScheduledMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, err := h.service.CreateScheduledMessage(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err, "create scheduled message", "Scheduled message not found")
		return
	}

	response.RespondJSON(w, http.StatusCreated, msg)
}

// Get handles GET /v1/scheduled-messages/{id}.
func (h *ScheduledMessagesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Scheduled message")
	if !ok {
		return
	}

	msg, err := h.service.GetScheduledMessage(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get scheduled message", "Scheduled message not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, msg)
}

// List handles GET /v1/scheduled-messages.
func (h *ScheduledMessagesHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListScheduledMessagesFilters{}
	if !decodeQuery(w, r, filters) {
		return
	}

	result, err := h.service.ListScheduledMessages(r.Context(), filters)
	if err != nil {
		respondServiceError(w, r, err, "list scheduled messages", "Scheduled message not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Cancel handles POST /v1/scheduled-messages/{id}/cancel.
func (h *ScheduledMessagesHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Scheduled message")
	if !ok {
		return
	}

	msg, err := h.service.CancelScheduledMessage(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "cancel scheduled message", "Scheduled message not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, msg)
}
