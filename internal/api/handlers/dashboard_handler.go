package handlers

import (
	"context"
	"net/http"

	"github.com/msgdesk/hub/internal/api/response"
	"github.com/msgdesk/hub/internal/models"
)

// DashboardService defines the interface for the dashboard aggregates.
type DashboardService interface {
	GetStats(ctx context.Context) (*models.DashboardStats, error)
}

// DashboardHandler serves the dashboard summary.
type DashboardHandler struct {
	service DashboardService
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(service DashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Get handles GET /v1/dashboard.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "get dashboard stats", "Not found")
		return
	}

	response.RespondJSON(w, http.StatusOK, stats)
}
