package handlers

import (
	"context"
	"net/http"

	"github.com/msgdesk/hub/internal/api/response"
	"github.com/msgdesk/hub/internal/models"
)

// MessagingService defines the interface for single sends and message history.
type MessagingService interface {
	SendSMS(ctx context.Context, req *models.SendSMSRequest) (*models.Message, error)
	SendTemplate(ctx context.Context, req *models.SendTemplateRequest) (*models.Message, error)
	ListMessages(ctx context.Context, filters *models.ListMessagesFilters) (*models.ListMessagesResponse, error)
}

// MessagesHandler handles HTTP requests for single sends and the history.
type MessagesHandler struct {
	service MessagingService
}

// NewMessagesHandler creates a new messages handler.
func NewMessagesHandler(service MessagingService) *MessagesHandler {
	return &MessagesHandler{service: service}
}

// SendSMS handles POST /v1/messages/sms.
func (h *MessagesHandler) SendSMS(w http.ResponseWriter, r *http.Request) {
	var req models.SendSMSRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, err := h.service.SendSMS(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err, "send sms", "Contact not found")
		return
	}

	response.RespondJSON(w, http.StatusCreated, msg)
}

// SendTemplate handles POST /v1/messages/template.
func (h *MessagesHandler) SendTemplate(w http.ResponseWriter, r *http.Request) {
	var req models.SendTemplateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, err := h.service.SendTemplate(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err, "send template message", "Template or contact not found")
		return
	}

	response.RespondJSON(w, http.StatusCreated, msg)
}

// List handles GET /v1/messages.
func (h *MessagesHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListMessagesFilters{}
	if !decodeQuery(w, r, filters) {
		return
	}

	result, err := h.service.ListMessages(r.Context(), filters)
	if err != nil {
		respondServiceError(w, r, err, "list messages", "Message not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}
