// Package sms is a client for a generic HTTP SMS gateway.
//
// The gateway accepts POST {base}/messages with a JSON body {"to","from","body"} and a
// bearer API key, and answers with {"id","status"}.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ClientOptions configures the SMS gateway client
type ClientOptions struct {
	// BaseURL is the gateway base URL, without the /messages suffix
	BaseURL string
	// APIKey is sent as a bearer token
	APIKey string
	// SenderID is the default "from" value (alphanumeric sender or number)
	SenderID string
	// RetryMax is the maximum number of retries (default: 3)
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the backoff between retries
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Timeout is the HTTP client timeout (default: 15 seconds)
	Timeout time.Duration
}

// Client sends SMS through the gateway
type Client struct {
	baseURL    string
	apiKey     string
	senderID   string
	httpClient *retryablehttp.Client
}

// Message is one outbound SMS.
type Message struct {
	To   string
	From string
	Body string
}

type sendRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

// SendResponse is the gateway answer to an accepted message.
type SendResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Error is a non-2xx gateway response.
type Error struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("sms gateway request failed with status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the gateway signalled a temporary condition.
func (e *Error) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NewClient creates a new SMS gateway client
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}

	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if opts.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = opts.RetryWaitMin
	}

	if opts.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = opts.RetryWaitMax
	}

	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		senderID:   opts.SenderID,
		httpClient: retryClient,
	}
}

// Send submits one message. An empty From uses the configured sender id.
func (c *Client) Send(ctx context.Context, msg Message) (*SendResponse, error) {
	from := msg.From
	if from == "" {
		from = c.senderID
	}

	body, err := json.Marshal(sendRequest{To: msg.To, From: from, Body: msg.Body})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var out SendResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &out, nil
}
