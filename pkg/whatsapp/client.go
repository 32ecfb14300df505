// Package whatsapp is a client for the WhatsApp Business Cloud API (Meta Graph API):
// template message sends and the message template catalog.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultBaseURL = "https://graph.facebook.com/v21.0"
	// templatePageSize is the page size requested from the template listing.
	templatePageSize = 100
	// maxTemplatePages bounds pagination when the API keeps returning cursors.
	maxTemplatePages = 50
)

// ErrNotConfigured is returned when a call needs an id the client was built without.
var ErrNotConfigured = errors.New("whatsapp client is not configured")

// ClientOptions configures the WhatsApp Cloud API client
type ClientOptions struct {
	// BaseURL is the Graph API base including version (default: "https://graph.facebook.com/v21.0")
	BaseURL string
	// AccessToken is the system user or app access token
	AccessToken string
	// PhoneNumberID is the sending business phone number id
	PhoneNumberID string
	// BusinessAccountID is the WhatsApp Business Account id that owns the templates
	BusinessAccountID string
	// RetryMax is the maximum number of retries (default: 3)
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the backoff between retries (defaults: 1s, 30s)
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Timeout is the HTTP client timeout (default: 30 seconds)
	Timeout time.Duration
}

// Client is the WhatsApp Cloud API client
type Client struct {
	baseURL           string
	accessToken       string
	phoneNumberID     string
	businessAccountID string
	httpClient        *retryablehttp.Client
}

// NewClient creates a new WhatsApp Cloud API client
func NewClient(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}

	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")

	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil
	retryClient.CheckRetry = checkRetry
	// Hand the final response back instead of a generic "giving up" error so the Graph error body is decoded.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if opts.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = opts.RetryWaitMin
	}

	if opts.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = opts.RetryWaitMax
	}

	return &Client{
		baseURL:           opts.BaseURL,
		accessToken:       opts.AccessToken,
		phoneNumberID:     opts.PhoneNumberID,
		businessAccountID: opts.BusinessAccountID,
		httpClient:        retryClient,
	}
}

// checkRetry retries transport errors, throttling and 502/503/504. A plain 500 is not retried
// because the message may already have been accepted.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, nil
	default:
		return false, nil
	}
}

// SendTemplate sends an approved template message to one recipient.
func (c *Client) SendTemplate(ctx context.Context, msg TemplateMessage) (*SendResponse, error) {
	if c.phoneNumberID == "" {
		return nil, fmt.Errorf("%w: phone number id is empty", ErrNotConfigured)
	}

	payload := sendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               strings.TrimPrefix(msg.To, "+"),
		Type:             "template",
		Template: &templatePayload{
			Name:     msg.TemplateName,
			Language: templateLanguage{Code: msg.LanguageCode},
		},
	}

	if len(msg.BodyParameters) > 0 {
		params := make([]templateParameter, len(msg.BodyParameters))
		for i, p := range msg.BodyParameters {
			params[i] = templateParameter{Type: "text", Text: p}
		}

		payload.Template.Components = []templateComponent{{Type: "body", Parameters: params}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	reqURL := fmt.Sprintf("%s/%s/messages", c.baseURL, url.PathEscape(c.phoneNumberID))

	var out SendResponse
	if err := c.do(ctx, http.MethodPost, reqURL, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ListTemplates returns every message template of the business account, following paging cursors.
func (c *Client) ListTemplates(ctx context.Context) ([]MessageTemplate, error) {
	if c.businessAccountID == "" {
		return nil, fmt.Errorf("%w: business account id is empty", ErrNotConfigured)
	}

	var (
		templates []MessageTemplate
		after     string
	)

	for page := 0; page < maxTemplatePages; page++ {
		params := url.Values{}
		params.Set("limit", fmt.Sprintf("%d", templatePageSize))
		params.Set("fields", "id,name,language,status,category,components")

		if after != "" {
			params.Set("after", after)
		}

		reqURL := fmt.Sprintf("%s/%s/message_templates?%s", c.baseURL, url.PathEscape(c.businessAccountID), params.Encode())

		var resp listTemplatesResponse
		if err := c.do(ctx, http.MethodGet, reqURL, nil, &resp); err != nil {
			return nil, err
		}

		templates = append(templates, resp.Data...)

		if resp.Paging.Next == "" || resp.Paging.Cursors.After == "" {
			return templates, nil
		}

		after = resp.Paging.Cursors.After
	}

	slog.Warn("WhatsApp template listing truncated", "pages", maxTemplatePages, "templates", len(templates))

	return templates, nil
}

func (c *Client) do(ctx context.Context, method, reqURL string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.StatusCode = status

		return envelope.Error
	}

	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}
