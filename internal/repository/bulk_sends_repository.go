package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/models"
)

const bulkSendColumns = `id, template_name, language_code, group_id, status, total_recipients, processed,
	sent, failed, skipped, batch_size, batch_delay_ms, stop_on_error, last_error, started_at, completed_at,
	created_at, updated_at`

// BulkSendsRepository handles data access for bulk send runs
type BulkSendsRepository struct {
	db *pgxpool.Pool
}

// NewBulkSendsRepository creates a new bulk sends repository
func NewBulkSendsRepository(db *pgxpool.Pool) *BulkSendsRepository {
	return &BulkSendsRepository{db: db}
}

func scanBulkSend(row rowScanner, extra ...any) (*models.BulkSend, error) {
	var b models.BulkSend

	dest := []any{
		&b.ID, &b.TemplateName, &b.LanguageCode, &b.GroupID, &b.Status, &b.TotalRecipients, &b.Processed,
		&b.Sent, &b.Failed, &b.Skipped, &b.BatchSize, &b.BatchDelayMS, &b.StopOnError, &b.LastError,
		&b.StartedAt, &b.CompletedAt, &b.CreatedAt, &b.UpdatedAt,
	}

	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	return &b, nil
}

// Create inserts a pending run with its recipient list
func (r *BulkSendsRepository) Create(ctx context.Context, run *models.NewBulkSend) (*models.BulkSend, error) {
	query := `
		INSERT INTO bulk_sends (template_name, language_code, group_id, total_recipients, batch_size,
			batch_delay_ms, stop_on_error, recipients)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + bulkSendColumns

	b, err := scanBulkSend(r.db.QueryRow(ctx, query,
		run.TemplateName, run.LanguageCode, run.GroupID, len(run.Recipients), run.BatchSize,
		run.BatchDelayMS, run.StopOnError, run.Recipients,
	))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, huberrors.NewNotFoundError("contact group", "contact group not found")
		}

		return nil, fmt.Errorf("failed to create bulk send: %w", err)
	}

	b.Recipients = run.Recipients

	return b, nil
}

// GetByID retrieves a run without its recipient list
func (r *BulkSendsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BulkSend, error) {
	b, err := scanBulkSend(r.db.QueryRow(ctx, `SELECT `+bulkSendColumns+` FROM bulk_sends WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, huberrors.NewNotFoundError("bulk send", "bulk send not found")
		}

		return nil, fmt.Errorf("failed to get bulk send: %w", err)
	}

	return b, nil
}

// GetWithRecipients retrieves a run including the recipient list the worker sends to
func (r *BulkSendsRepository) GetWithRecipients(ctx context.Context, id uuid.UUID) (*models.BulkSend, error) {
	var recipients []models.BulkSendRecipient

	b, err := scanBulkSend(
		r.db.QueryRow(ctx, `SELECT `+bulkSendColumns+`, recipients FROM bulk_sends WHERE id = $1`, id),
		&recipients,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, huberrors.NewNotFoundError("bulk send", "bulk send not found")
		}

		return nil, fmt.Errorf("failed to get bulk send: %w", err)
	}

	b.Recipients = recipients

	return b, nil
}

func buildBulkSendFilterConditions(filters *models.ListBulkSendsFilters) (string, []any) {
	if filters.Status == nil {
		return "", nil
	}

	return " WHERE status = $1", []any{*filters.Status}
}

// List retrieves runs, newest first
func (r *BulkSendsRepository) List(ctx context.Context, filters *models.ListBulkSendsFilters) ([]models.BulkSend, error) {
	whereClause, args := buildBulkSendFilterConditions(filters)
	page, args := pageClause(filters.Limit, filters.Offset, args)

	rows, err := r.db.Query(ctx, `SELECT `+bulkSendColumns+` FROM bulk_sends`+whereClause+` ORDER BY created_at DESC, id DESC`+page, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bulk sends: %w", err)
	}
	defer rows.Close()

	runs := []models.BulkSend{}

	for rows.Next() {
		b, err := scanBulkSend(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bulk send: %w", err)
		}

		runs = append(runs, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bulk sends: %w", err)
	}

	return runs, nil
}

// Count returns the number of runs matching the filters
func (r *BulkSendsRepository) Count(ctx context.Context, filters *models.ListBulkSendsFilters) (int64, error) {
	whereClause, args := buildBulkSendFilterConditions(filters)

	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bulk_sends`+whereClause, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bulk sends: %w", err)
	}

	return count, nil
}

// MarkRunning moves a pending run to running. A run in any other state yields a ConflictError,
// which keeps a redelivered job from sending twice.
func (r *BulkSendsRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `
		UPDATE bulk_sends SET status = 'running', started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark bulk send running: %w", err)
	}

	if result.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}

		return huberrors.NewConflictError("bulk send is not pending")
	}

	return nil
}

// UpdateProgress stores the counters of a running run
func (r *BulkSendsRepository) UpdateProgress(ctx context.Context, id uuid.UUID, p models.BulkSendProgress) error {
	_, err := r.db.Exec(ctx, `
		UPDATE bulk_sends
		SET processed = $2, sent = $3, failed = $4, skipped = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'running'
	`, id, p.Processed, p.Sent, p.Failed, p.Skipped)
	if err != nil {
		return fmt.Errorf("failed to update bulk send progress: %w", err)
	}

	return nil
}

// Complete stores the final status and counters of a run
func (r *BulkSendsRepository) Complete(
	ctx context.Context, id uuid.UUID, status models.BulkSendStatus, p models.BulkSendProgress, lastError *string,
) error {
	result, err := r.db.Exec(ctx, `
		UPDATE bulk_sends
		SET status = $2, processed = $3, sent = $4, failed = $5, skipped = $6, last_error = $7,
			completed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, status, p.Processed, p.Sent, p.Failed, p.Skipped, lastError)
	if err != nil {
		return fmt.Errorf("failed to complete bulk send: %w", err)
	}

	if result.RowsAffected() == 0 {
		return huberrors.NewNotFoundError("bulk send", "bulk send not found")
	}

	return nil
}

// Cancel marks a pending run cancelled before a worker picks it up
func (r *BulkSendsRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `
		UPDATE bulk_sends SET status = 'cancelled', skipped = total_recipients, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to cancel bulk send: %w", err)
	}

	if result.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}

		return huberrors.NewConflictError("only pending bulk sends can be cancelled")
	}

	return nil
}
