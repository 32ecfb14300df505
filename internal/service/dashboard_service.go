package service

import (
	"context"
	"time"

	"github.com/msgdesk/hub/internal/models"
)

const dashboardDays = 30

// DashboardRepository runs the dashboard aggregate queries.
type DashboardRepository interface {
	Stats(ctx context.Context, now time.Time, days int) (*models.DashboardStats, error)
}

// DashboardService serves the dashboard overview
type DashboardService struct {
	repo DashboardRepository
	now  func() time.Time
}

// NewDashboardService creates a dashboard service
func NewDashboardService(repo DashboardRepository) *DashboardService {
	return &DashboardService{repo: repo, now: time.Now}
}

// GetStats returns counters for today and the last 30 days
func (s *DashboardService) GetStats(ctx context.Context) (*models.DashboardStats, error) {
	return s.repo.Stats(ctx, s.now().UTC(), dashboardDays)
}
