package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"

	"github.com/msgdesk/hub/internal/datatypes"
	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/models"
)

const (
	signingKeyPrefix   = "whsec_"
	signingKeyBytes    = 32
	defaultListLimit   = 100
	webhookKeyField    = "signing_key"
	webhookLimitFormat = "webhook limit reached (%d)"
)

// WebhooksRepository defines the interface for webhooks data access.
type WebhooksRepository interface {
	Create(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webhook, error)
	List(ctx context.Context, filters *models.ListWebhooksFilters) ([]models.Webhook, error)
	Count(ctx context.Context, filters *models.ListWebhooksFilters) (int64, error)
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.Webhook, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListEnabledForEventType(ctx context.Context, eventType string) ([]models.Webhook, error)
}

// WebhooksService handles business logic for webhooks.
type WebhooksService struct {
	repo      WebhooksRepository
	publisher MessagePublisher
	maxCount  int
}

// NewWebhooksService creates a new webhooks service. maxCount caps how many webhooks may exist (0 = unlimited).
func NewWebhooksService(repo WebhooksRepository, publisher MessagePublisher, maxCount int) *WebhooksService {
	return &WebhooksService{repo: repo, publisher: publisher, maxCount: maxCount}
}

// CreateWebhook creates a new webhook, generating a signing key when none is given.
func (s *WebhooksService) CreateWebhook(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error) {
	if req.SigningKey == "" {
		key, err := generateSigningKey()
		if err != nil {
			return nil, err
		}

		req.SigningKey = key
	} else if err := validateSigningKey(req.SigningKey); err != nil {
		return nil, err
	}

	if s.maxCount > 0 {
		total, err := s.repo.Count(ctx, &models.ListWebhooksFilters{})
		if err != nil {
			return nil, fmt.Errorf("count webhooks: %w", err)
		}

		if total >= int64(s.maxCount) {
			return nil, huberrors.NewLimitExceededError(fmt.Sprintf(webhookLimitFormat, s.maxCount))
		}
	}

	webhook, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishEvent(ctx, datatypes.WebhookCreated, redactWebhook(webhook))

	return webhook, nil
}

// generateSigningKey returns a Standard Webhooks key: "whsec_" + base64(32 random bytes).
func generateSigningKey() (string, error) {
	key := make([]byte, signingKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate signing key: %w", err)
	}

	return signingKeyPrefix + base64.StdEncoding.EncodeToString(key), nil
}

// validateSigningKey rejects keys the Standard Webhooks signer cannot decode.
func validateSigningKey(key string) error {
	if _, err := standardwebhooks.NewWebhook(key); err != nil {
		return huberrors.NewValidationError(webhookKeyField, "signing_key must be base64, optionally prefixed with whsec_")
	}

	return nil
}

// redactWebhook copies a webhook without its signing key for event payloads.
func redactWebhook(w *models.Webhook) *models.Webhook {
	if w == nil {
		return nil
	}

	out := *w
	out.SigningKey = ""

	return &out
}

// GetWebhook retrieves a single webhook by ID.
func (s *WebhooksService) GetWebhook(ctx context.Context, id uuid.UUID) (*models.Webhook, error) {
	return s.repo.GetByID(ctx, id)
}

// ListWebhooks retrieves a page of webhooks with optional filters.
func (s *WebhooksService) ListWebhooks(ctx context.Context, filters *models.ListWebhooksFilters) (*models.ListWebhooksResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}

	webhooks, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &models.ListWebhooksResponse{
		Data:   webhooks,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// UpdateWebhook updates an existing webhook and publishes webhook.updated with the changed fields.
func (s *WebhooksService) UpdateWebhook(
	ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest,
) (*models.Webhook, error) {
	if req.SigningKey != nil {
		if err := validateSigningKey(*req.SigningKey); err != nil {
			return nil, err
		}
	}

	webhook, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishEventWithChangedFields(ctx, datatypes.WebhookUpdated, redactWebhook(webhook), webhookChangedFields(req))

	return webhook, nil
}

func webhookChangedFields(req *models.UpdateWebhookRequest) []string {
	var fields []string

	if req.URL != nil {
		fields = append(fields, "url")
	}

	if req.SigningKey != nil {
		fields = append(fields, "signing_key")
	}

	if req.Enabled != nil {
		fields = append(fields, "enabled")
	}

	if req.EventTypes != nil {
		fields = append(fields, "event_types")
	}

	return fields
}

// DeleteWebhook deletes a webhook by ID.
func (s *WebhooksService) DeleteWebhook(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.publisher.PublishEvent(ctx, datatypes.WebhookDeleted, map[string]uuid.UUID{"id": id})

	return nil
}
