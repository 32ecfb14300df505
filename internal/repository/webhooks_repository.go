package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/msgdesk/hub/internal/datatypes"
	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/models"
)

const webhookColumns = `id, url, signing_key, enabled, event_types, disabled_reason, disabled_at, created_at, updated_at`

// WebhooksRepository handles data access for webhooks
type WebhooksRepository struct {
	db *pgxpool.Pool
}

// NewWebhooksRepository creates a new webhooks repository
func NewWebhooksRepository(db *pgxpool.Pool) *WebhooksRepository {
	return &WebhooksRepository{db: db}
}

func scanWebhook(row rowScanner) (*models.Webhook, error) {
	var (
		w          models.Webhook
		eventTypes []string
	)

	err := row.Scan(&w.ID, &w.URL, &w.SigningKey, &w.Enabled, &eventTypes, &w.DisabledReason, &w.DisabledAt,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	// Stored values were validated on write; unknown strings are dropped rather than failing reads.
	for _, s := range eventTypes {
		if et, ok := datatypes.ParseEventType(s); ok {
			w.EventTypes = append(w.EventTypes, et)
		}
	}

	return &w, nil
}

func collectWebhooks(rows pgx.Rows) ([]models.Webhook, error) {
	defer rows.Close()

	webhooks := []models.Webhook{}

	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}

		webhooks = append(webhooks, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhooks: %w", err)
	}

	return webhooks, nil
}

// Create inserts a new webhook
func (r *WebhooksRepository) Create(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error) {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	query := `
		INSERT INTO webhooks (url, signing_key, enabled, event_types)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + webhookColumns

	w, err := scanWebhook(r.db.QueryRow(ctx, query,
		req.URL, req.SigningKey, enabled, datatypes.EventTypeStrings(req.EventTypes)))
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}

	return w, nil
}

// GetByID retrieves a single webhook by ID
func (r *WebhooksRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Webhook, error) {
	w, err := scanWebhook(r.db.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, huberrors.NewNotFoundError("webhook", "webhook not found")
		}

		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}

	return w, nil
}

// buildWebhookFilterConditions builds WHERE clause conditions and arguments from filters
func buildWebhookFilterConditions(filters *models.ListWebhooksFilters) (string, []any) {
	if filters.Enabled == nil {
		return "", nil
	}

	return " WHERE enabled = $1", []any{*filters.Enabled}
}

// List retrieves webhooks with optional filters
func (r *WebhooksRepository) List(ctx context.Context, filters *models.ListWebhooksFilters) ([]models.Webhook, error) {
	whereClause, args := buildWebhookFilterConditions(filters)
	page, args := pageClause(filters.Limit, filters.Offset, args)

	rows, err := r.db.Query(ctx, `SELECT `+webhookColumns+` FROM webhooks`+whereClause+` ORDER BY created_at DESC`+page, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}

	return collectWebhooks(rows)
}

// Count returns the total count of webhooks matching the filters
func (r *WebhooksRepository) Count(ctx context.Context, filters *models.ListWebhooksFilters) (int64, error) {
	whereClause, args := buildWebhookFilterConditions(filters)

	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM webhooks`+whereClause, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count webhooks: %w", err)
	}

	return count, nil
}

// Update updates an existing webhook. Re-enabling clears the disabled reason.
func (r *WebhooksRepository) Update(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.Webhook, error) {
	var (
		updates []string
		args    []any
	)

	set := func(column string, value any) {
		args = append(args, value)
		updates = append(updates, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if req.URL != nil {
		set("url", *req.URL)
	}

	if req.SigningKey != nil {
		set("signing_key", *req.SigningKey)
	}

	if req.Enabled != nil {
		set("enabled", *req.Enabled)

		if *req.Enabled && req.DisabledReason == nil {
			updates = append(updates, "disabled_reason = NULL", "disabled_at = NULL")
		}
	}

	if req.EventTypes != nil {
		set("event_types", datatypes.EventTypeStrings(*req.EventTypes))
	}

	if req.DisabledReason != nil {
		set("disabled_reason", *req.DisabledReason)
	}

	if req.DisabledAt != nil {
		set("disabled_at", *req.DisabledAt)
	}

	if len(updates) == 0 {
		return r.GetByID(ctx, id)
	}

	set("updated_at", time.Now())
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE webhooks SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(updates, ", "), len(args), webhookColumns)

	w, err := scanWebhook(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, huberrors.NewNotFoundError("webhook", "webhook not found")
		}

		return nil, fmt.Errorf("failed to update webhook: %w", err)
	}

	return w, nil
}

// Delete removes a webhook
func (r *WebhooksRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	if result.RowsAffected() == 0 {
		return huberrors.NewNotFoundError("webhook", "webhook not found")
	}

	return nil
}

// ListEnabledForEventType returns enabled webhooks subscribed to eventType.
// A webhook with no event types receives every event.
func (r *WebhooksRepository) ListEnabledForEventType(ctx context.Context, eventType string) ([]models.Webhook, error) {
	query := `
		SELECT ` + webhookColumns + `
		FROM webhooks
		WHERE enabled AND (event_types IS NULL OR cardinality(event_types) = 0 OR $1 = ANY(event_types))
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks for event type: %w", err)
	}

	return collectWebhooks(rows)
}
