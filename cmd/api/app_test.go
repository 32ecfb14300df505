package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgdesk/hub/internal/api/handlers"
	"github.com/msgdesk/hub/internal/config"
	"github.com/msgdesk/hub/internal/loaders"
	"github.com/msgdesk/hub/internal/models"
)

const testAPIKey = "test-key"

type stubDashboard struct{}

func (stubDashboard) GetStats(context.Context) (*models.DashboardStats, error) {
	return &models.DashboardStats{Contacts: 3}, nil
}

// newTestRouter mounts the real routes. Only the dashboard and health handlers have backing
// services; the rest are only reached by requests rejected before the service call.
func newTestRouter(metricsHandler http.Handler) http.Handler {
	cfg := &config.Config{APIKey: testAPIKey, MaxRequestBodyBytes: 64}

	h := apiHandlers{
		health:    handlers.NewHealthHandler(nil),
		contacts:  handlers.NewContactsHandler(nil),
		groups:    handlers.NewGroupsHandler(nil, nil),
		templates: handlers.NewTemplatesHandler(nil),
		messages:  handlers.NewMessagesHandler(nil),
		bulkSends: handlers.NewBulkSendsHandler(nil),
		scheduled: handlers.NewScheduledMessagesHandler(nil),
		dashboard: handlers.NewDashboardHandler(stubDashboard{}),
		webhooks:  handlers.NewWebhooksHandler(nil),
	}

	return newRouter(cfg, h, loaders.NewFactory(nil, nil, loaders.DefaultHistoryLimit), metricsHandler, nil)
}

func serve(t *testing.T, router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testAPIKey)

	return req
}

func TestRouter_HealthIsPublic(t *testing.T) {
	rec := serve(t, newTestRouter(nil), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_V1RequiresAPIKey(t *testing.T) {
	router := newTestRouter(nil)

	for _, path := range []string{"/v1/contacts", "/v1/dashboard", "/v1/bulk-sends", "/v1/templates"} {
		rec := serve(t, router, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestRouter_AuthenticatedRequestReachesHandler(t *testing.T) {
	rec := serve(t, newTestRouter(nil), authed(httptest.NewRequest(http.MethodGet, "/v1/dashboard", http.NoBody)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"contacts":3`)
}

func TestRouter_PathValuesReachHandlers(t *testing.T) {
	router := newTestRouter(nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/contacts/not-a-uuid"},
		{http.MethodGet, "/v1/bulk-sends/not-a-uuid/results"},
		{http.MethodPost, "/v1/scheduled-messages/not-a-uuid/cancel"},
		{http.MethodDelete, "/v1/groups/not-a-uuid/members/also-not"},
	}

	for _, tt := range tests {
		rec := serve(t, router, authed(httptest.NewRequest(tt.method, tt.path, http.NoBody)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, tt.path)
		assert.Contains(t, rec.Body.String(), "Invalid UUID format", tt.path)
	}
}

func TestRouter_OversizedBodyRejected(t *testing.T) {
	body := `{"phone":"+15551234567","body":"` + strings.Repeat("x", 128) + `"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/messages/sms", strings.NewReader(body)))

	rec := serve(t, newTestRouter(nil), req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRouter_UnknownRouteAndMethod(t *testing.T) {
	router := newTestRouter(nil)

	rec := serve(t, router, authed(httptest.NewRequest(http.MethodGet, "/v1/unknown", http.NoBody)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, router, authed(httptest.NewRequest(http.MethodPut, "/v1/dashboard", http.NoBody)))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_MetricsOnlyWhenExporterServesThem(t *testing.T) {
	rec := serve(t, newTestRouter(nil), httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})

	rec = serve(t, newTestRouter(metrics), httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
