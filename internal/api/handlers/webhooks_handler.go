package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/api/response"
	"github.com/msgdesk/hub/internal/models"
)

const webhookNotFound = "Webhook not found"

// WebhooksService manages the outbound webhook subscriptions.
type WebhooksService interface {
	CreateWebhook(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error)
	GetWebhook(ctx context.Context, id uuid.UUID) (*models.Webhook, error)
	ListWebhooks(ctx context.Context, filters *models.ListWebhooksFilters) (*models.ListWebhooksResponse, error)
	UpdateWebhook(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.Webhook, error)
	DeleteWebhook(ctx context.Context, id uuid.UUID) error
}

// WebhooksHandler serves /v1/webhooks.
type WebhooksHandler struct {
	service WebhooksService
}

func NewWebhooksHandler(service WebhooksService) *WebhooksHandler {
	return &WebhooksHandler{service: service}
}

// Create handles POST /v1/webhooks.
func (h *WebhooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateWebhookRequest
	if !decodeBody(w, r, &req) {
		return
	}

	hook, err := h.service.CreateWebhook(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err, "create webhook", webhookNotFound)
		return
	}

	response.RespondJSON(w, http.StatusCreated, hook)
}

// Get handles GET /v1/webhooks/{id}.
func (h *WebhooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Webhook")
	if !ok {
		return
	}

	hook, err := h.service.GetWebhook(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get webhook", webhookNotFound)
		return
	}

	response.RespondJSON(w, http.StatusOK, hook)
}

// List handles GET /v1/webhooks.
func (h *WebhooksHandler) List(w http.ResponseWriter, r *http.Request) {
	var filters models.ListWebhooksFilters
	if !decodeQuery(w, r, &filters) {
		return
	}

	page, err := h.service.ListWebhooks(r.Context(), &filters)
	if err != nil {
		respondServiceError(w, r, err, "list webhooks", webhookNotFound)
		return
	}

	response.RespondJSON(w, http.StatusOK, page)
}

// Update handles PATCH /v1/webhooks/{id}.
func (h *WebhooksHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Webhook")
	if !ok {
		return
	}

	var req models.UpdateWebhookRequest
	if !decodeBody(w, r, &req) {
		return
	}

	hook, err := h.service.UpdateWebhook(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, r, err, "update webhook", webhookNotFound)
		return
	}

	response.RespondJSON(w, http.StatusOK, hook)
}

// Delete handles DELETE /v1/webhooks/{id}.
func (h *WebhooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Webhook")
	if !ok {
		return
	}

	if err := h.service.DeleteWebhook(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "delete webhook", webhookNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
