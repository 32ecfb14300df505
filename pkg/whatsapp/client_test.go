package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *Client {
	return NewClient(ClientOptions{
		BaseURL:           serverURL,
		AccessToken:       "test-token",
		PhoneNumberID:     "1001",
		BusinessAccountID: "2002",
		RetryMax:          2,
		RetryWaitMin:      time.Millisecond,
		RetryWaitMax:      5 * time.Millisecond,
	})
}

func TestClient_SendTemplate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/1001/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var got sendMessageRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "whatsapp", got.MessagingProduct)
		assert.Equal(t, "14155550123", got.To)
		assert.Equal(t, "template", got.Type)
		assert.Equal(t, "order_update", got.Template.Name)
		assert.Equal(t, "en_US", got.Template.Language.Code)
		assert.Len(t, got.Template.Components, 1)
		assert.Equal(t, []templateParameter{{Type: "text", Text: "Ada"}, {Type: "text", Text: "42"}}, got.Template.Components[0].Parameters)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","contacts":[{"input":"14155550123","wa_id":"14155550123"}],"messages":[{"id":"wamid.ABC"}]}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).SendTemplate(context.Background(), TemplateMessage{
		To:             "+14155550123",
		TemplateName:   "order_update",
		LanguageCode:   "en_US",
		BodyParameters: []string{"Ada", "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, "wamid.ABC", resp.MessageID())
}

func TestClient_SendTemplate_NoParametersOmitsComponents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, hasComponents := raw["template"]["components"]
		assert.False(t, hasComponents)

		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).SendTemplate(context.Background(), TemplateMessage{
		To: "+14155550123", TemplateName: "hello_world", LanguageCode: "en_US",
	})
	require.NoError(t, err)
	assert.Equal(t, "wamid.1", resp.MessageID())
}

func TestClient_SendTemplate_APIError(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Template name does not exist in the translation","type":"OAuthException","code":132001,"error_subcode":2494073,"fbtrace_id":"AbC"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).SendTemplate(context.Background(), TemplateMessage{
		To: "+14155550123", TemplateName: "missing", LanguageCode: "en_US",
	})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, 132001, apiErr.Code)
	assert.Equal(t, 2494073, apiErr.Subcode)
	assert.False(t, apiErr.Retryable())
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestClient_SendTemplate_RetriesThrottling(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"throughput","code":130429}}`))

			return
		}

		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.retry"}]}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).SendTemplate(context.Background(), TemplateMessage{
		To: "+14155550123", TemplateName: "hello_world", LanguageCode: "en_US",
	})
	require.NoError(t, err)
	assert.Equal(t, "wamid.retry", resp.MessageID())
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_SendTemplate_GivesUpWithDecodedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"Service temporarily unavailable","code":131016}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).SendTemplate(context.Background(), TemplateMessage{
		To: "+14155550123", TemplateName: "hello_world", LanguageCode: "en_US",
	})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 131016, apiErr.Code)
	assert.True(t, apiErr.Retryable())
}

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient(ClientOptions{AccessToken: "x"})

	_, err := c.SendTemplate(context.Background(), TemplateMessage{To: "+1"})
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = c.ListTemplates(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_ListTemplates_Paginates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/2002/message_templates", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))

		switch r.URL.Query().Get("after") {
		case "":
			_, _ = w.Write([]byte(`{"data":[{"id":"1","name":"order_update","language":"en_US","status":"APPROVED","category":"UTILITY","components":[{"type":"BODY","text":"Hi {{1}}, order {{2}} shipped"}]}],"paging":{"cursors":{"after":"c1"},"next":"https://next"}}`))
		case "c1":
			_, _ = w.Write([]byte(`{"data":[{"id":"2","name":"promo","language":"fr","status":"PENDING","category":"MARKETING","components":[]}],"paging":{"cursors":{"after":"c2"}}}`))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("after"))
		}
	}))
	defer server.Close()

	templates, err := newTestClient(server.URL).ListTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "order_update", templates[0].Name)
	assert.Equal(t, "Hi {{1}}, order {{2}} shipped", templates[0].BodyText())
	assert.Equal(t, "promo", templates[1].Name)
	assert.Empty(t, templates[1].BodyText())
}

func TestCountPlaceholders(t *testing.T) {
	assert.Equal(t, 0, CountPlaceholders("Hello there"))
	assert.Equal(t, 2, CountPlaceholders("Hi {{1}}, order {{2}} shipped"))
	assert.Equal(t, 1, CountPlaceholders("{{1}} and again {{ 1 }}"))
	assert.Equal(t, 2, CountPlaceholders("Hi {{first_name}}, code {{code}}"))
}
