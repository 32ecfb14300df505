package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/api/response"
	"github.com/msgdesk/hub/internal/models"
)

// TemplatesService defines the interface for WhatsApp template business logic.
type TemplatesService interface {
	SyncTemplates(ctx context.Context) (*models.TemplateSyncResponse, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (*models.Template, error)
	ListTemplates(ctx context.Context, filters *models.ListTemplatesFilters) (*models.ListTemplatesResponse, error)
}

// TemplatesHandler handles HTTP requests for the synced template catalogue.
type TemplatesHandler struct {
	service TemplatesService
}

// NewTemplatesHandler creates a new templates handler.
func NewTemplatesHandler(service TemplatesService) *TemplatesHandler {
	return &TemplatesHandler{service: service}
}

// List handles GET /v1/templates.
func (h *TemplatesHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListTemplatesFilters{}
	if !decodeQuery(w, r, filters) {
		return
	}

	result, err := h.service.ListTemplates(r.Context(), filters)
	if err != nil {
		respondServiceError(w, r, err, "list templates", "Template not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Get handles GET /v1/templates/{id}.
func (h *TemplatesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Template")
	if !ok {
		return
	}

	template, err := h.service.GetTemplate(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get template", "Template not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, template)
}

// Sync handles POST /v1/templates/sync.
func (h *TemplatesHandler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.SyncTemplates(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "sync templates", "Template not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}
