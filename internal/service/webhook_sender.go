package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"

	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/internal/observability"
)

const (
	webhookSendTimeout     = 15 * time.Second
	maxIdleConnsPerWebhook = 20

	goneReason       = "Endpoint returned 410 Gone"
	goneMetricReason = "410_gone"
)

// WebhookSender delivers one signed payload to one endpoint.
type WebhookSender interface {
	Send(ctx context.Context, webhook *models.Webhook, payload *models.WebhookPayload) error
}

type webhookUpdater interface {
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.Webhook, error)
}

// WebhookSenderImpl POSTs Standard Webhooks signed payloads. Endpoints answering 410 Gone are disabled.
type WebhookSenderImpl struct {
	repo    webhookUpdater
	client  *http.Client
	metrics observability.WebhookMetrics
}

// NewWebhookSenderImpl returns a sender whose client times out after 15s and never follows redirects.
// metrics may be nil.
func NewWebhookSenderImpl(repo webhookUpdater, metrics observability.WebhookMetrics) *WebhookSenderImpl {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = maxIdleConnsPerWebhook

	return &WebhookSenderImpl{
		repo: repo,
		client: &http.Client{
			Timeout:   webhookSendTimeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		metrics: metrics,
	}
}

func (s *WebhookSenderImpl) Send(ctx context.Context, webhook *models.Webhook, payload *models.WebhookPayload) error {
	req, err := newSignedRequest(ctx, webhook, payload)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.WarnContext(ctx, "close webhook response body", "webhook_id", webhook.ID, "error", err)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusGone:
		s.disableGone(ctx, webhook)

		return fmt.Errorf("endpoint %s is gone (410), webhook disabled", webhook.URL)
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("endpoint answered status %d", resp.StatusCode)
	}

	return nil
}

// newSignedRequest serializes payload and adds the webhook-id, webhook-timestamp and webhook-signature headers.
func newSignedRequest(ctx context.Context, webhook *models.Webhook, payload *models.WebhookPayload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode webhook payload: %w", err)
	}

	signer, err := standardwebhooks.NewWebhook(webhook.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("webhook signer: %w", err)
	}

	msgID := payload.ID.String()
	now := time.Now()

	signature, err := signer.Sign(msgID, now, body)
	if err != nil {
		return nil, fmt.Errorf("sign webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(standardwebhooks.HeaderWebhookID, msgID)
	req.Header.Set(standardwebhooks.HeaderWebhookTimestamp, strconv.FormatInt(now.Unix(), 10))
	req.Header.Set(standardwebhooks.HeaderWebhookSignature, signature)

	return req, nil
}

func (s *WebhookSenderImpl) disableGone(ctx context.Context, webhook *models.Webhook) {
	if _, err := s.repo.Update(ctx, webhook.ID, models.DisableWebhook(goneReason)); err != nil {
		slog.ErrorContext(ctx, "disable gone webhook", "webhook_id", webhook.ID, "url", webhook.URL, "error", err)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordWebhookDisabled(ctx, goneMetricReason)
	}

	slog.InfoContext(ctx, "webhook disabled: endpoint gone", "webhook_id", webhook.ID, "url", webhook.URL)
}
