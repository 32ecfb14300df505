package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/api/response"
	"github.com/msgdesk/hub/internal/models"
)

// BulkSendsService defines the interface for bulk template send runs.
type BulkSendsService interface {
	CreateBulkSend(ctx context.Context, req *models.CreateBulkSendRequest) (*models.BulkSend, error)
	GetBulkSend(ctx context.Context, id uuid.UUID) (*models.BulkSend, error)
	ListBulkSends(ctx context.Context, filters *models.ListBulkSendsFilters) (*models.ListBulkSendsResponse, error)
	ListResults(ctx context.Context, id uuid.UUID, filters *models.ListMessagesFilters) (*models.ListMessagesResponse, error)
	CancelBulkSend(ctx context.Context, id uuid.UUID) (*models.BulkSend, error)
}

// BulkSendsHandler handles HTTP requests for bulk sends.
type BulkSendsHandler struct {
	service BulkSendsService
}

// NewBulkSendsHandler creates a new bulk sends handler.
func NewBulkSendsHandler(service BulkSendsService) *BulkSendsHandler {
	return &BulkSendsHandler{service: service}
}

// Create handles POST /v1/bulk-sends. The run executes in the background, so the response is 202
// with a Location header pointing at the run.
func (h *BulkSendsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBulkSendRequest
	if !decodeBody(w, r, &req) {
		return
	}

	run, err := h.service.CreateBulkSend(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err, "create bulk send", "Template or group not found")
		return
	}

	w.Header().Set("Location", "/v1/bulk-sends/"+run.ID.String())
	response.RespondJSON(w, http.StatusAccepted, run)
}

// Get handles GET /v1/bulk-sends/{id}.
func (h *BulkSendsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Bulk send")
	if !ok {
		return
	}

	run, err := h.service.GetBulkSend(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get bulk send", "Bulk send not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, run)
}

// List handles GET /v1/bulk-sends.
func (h *BulkSendsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListBulkSendsFilters{}
	if !decodeQuery(w, r, filters) {
		return
	}

	result, err := h.service.ListBulkSends(r.Context(), filters)
	if err != nil {
		respondServiceError(w, r, err, "list bulk sends", "Bulk send not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Results handles GET /v1/bulk-sends/{id}/results: the per-recipient history rows of the run.
func (h *BulkSendsHandler) Results(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Bulk send")
	if !ok {
		return
	}

	filters := &models.ListMessagesFilters{}
	if !decodeQuery(w, r, filters) {
		return
	}

	result, err := h.service.ListResults(r.Context(), id, filters)
	if err != nil {
		respondServiceError(w, r, err, "list bulk send results", "Bulk send not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Cancel handles POST /v1/bulk-sends/{id}/cancel. Only pending runs can be cancelled.
func (h *BulkSendsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "Bulk send")
	if !ok {
		return
	}

	run, err := h.service.CancelBulkSend(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "cancel bulk send", "Bulk send not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, run)
}
