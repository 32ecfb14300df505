package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/models"
)

const scheduledColumns = `id, kind, payload, send_at, status, bulk_send_id, last_error, created_at, updated_at`

// ScheduledMessagesRepository handles data access for deferred sends
type ScheduledMessagesRepository struct {
	db *pgxpool.Pool
}

// NewScheduledMessagesRepository creates a new scheduled messages repository
func NewScheduledMessagesRepository(db *pgxpool.Pool) *ScheduledMessagesRepository {
	return &ScheduledMessagesRepository{db: db}
}

func scanScheduled(row rowScanner) (*models.ScheduledMessage, error) {
	var s models.ScheduledMessage

	err := row.Scan(&s.ID, &s.Kind, &s.Payload, &s.SendAt, &s.Status, &s.BulkSendID, &s.LastError, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

func collectScheduled(rows pgx.Rows) ([]models.ScheduledMessage, error) {
	defer rows.Close()

	out := []models.ScheduledMessage{}

	for rows.Next() {
		s, err := scanScheduled(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled message: %w", err)
		}

		out = append(out, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled messages: %w", err)
	}

	return out, nil
}

// Create inserts a pending scheduled message
func (r *ScheduledMessagesRepository) Create(
	ctx context.Context, kind models.ScheduledKind, payload json.RawMessage, sendAt time.Time,
) (*models.ScheduledMessage, error) {
	query := `
		INSERT INTO scheduled_messages (kind, payload, send_at)
		VALUES ($1, $2, $3)
		RETURNING ` + scheduledColumns

	s, err := scanScheduled(r.db.QueryRow(ctx, query, kind, payload, sendAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduled message: %w", err)
	}

	return s, nil
}

// GetByID retrieves a single scheduled message
func (r *ScheduledMessagesRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduledMessage, error) {
	s, err := scanScheduled(r.db.QueryRow(ctx, `SELECT `+scheduledColumns+` FROM scheduled_messages WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, huberrors.NewNotFoundError("scheduled message", "scheduled message not found")
		}

		return nil, fmt.Errorf("failed to get scheduled message: %w", err)
	}

	return s, nil
}

func buildScheduledFilterConditions(filters *models.ListScheduledMessagesFilters) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	if filters.Status != nil {
		args = append(args, *filters.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	if filters.Kind != nil {
		args = append(args, *filters.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}

// List retrieves scheduled messages ordered by due time
func (r *ScheduledMessagesRepository) List(ctx context.Context, filters *models.ListScheduledMessagesFilters) ([]models.ScheduledMessage, error) {
	whereClause, args := buildScheduledFilterConditions(filters)
	page, args := pageClause(filters.Limit, filters.Offset, args)

	rows, err := r.db.Query(ctx, `SELECT `+scheduledColumns+` FROM scheduled_messages`+whereClause+` ORDER BY send_at, id`+page, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled messages: %w", err)
	}

	return collectScheduled(rows)
}

// Count returns the number of scheduled messages matching the filters
func (r *ScheduledMessagesRepository) Count(ctx context.Context, filters *models.ListScheduledMessagesFilters) (int64, error) {
	whereClause, args := buildScheduledFilterConditions(filters)

	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM scheduled_messages`+whereClause, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count scheduled messages: %w", err)
	}

	return count, nil
}

// Cancel cancels a pending scheduled message. Anything already enqueued or finished is a conflict.
func (r *ScheduledMessagesRepository) Cancel(ctx context.Context, id uuid.UUID) (*models.ScheduledMessage, error) {
	query := `
		UPDATE scheduled_messages SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + scheduledColumns

	s, err := scanScheduled(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			current, getErr := r.GetByID(ctx, id)
			if getErr != nil {
				return nil, getErr
			}

			return nil, huberrors.NewConflictError(
				fmt.Sprintf("scheduled message is %s and can no longer be cancelled", current.Status))
		}

		return nil, fmt.Errorf("failed to cancel scheduled message: %w", err)
	}

	return s, nil
}

// ClaimFunc runs inside the claiming transaction, typically to enqueue jobs with the same tx.
type ClaimFunc func(ctx context.Context, tx pgx.Tx, due []models.ScheduledMessage) error

// ClaimDue locks up to limit pending messages due at now (skipping rows locked by other pollers),
// hands them to fn and marks them enqueued when fn succeeds. Everything commits or rolls back together.
func (r *ScheduledMessagesRepository) ClaimDue(ctx context.Context, now time.Time, limit int, fn ClaimFunc) (int, error) {
	claimed := 0

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+scheduledColumns+`
			FROM scheduled_messages
			WHERE status = 'pending' AND send_at <= $1
			ORDER BY send_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, now, limit)
		if err != nil {
			return err
		}

		due, err := collectScheduled(rows)
		if err != nil {
			return err
		}

		if len(due) == 0 {
			return nil
		}

		if err := fn(ctx, tx, due); err != nil {
			return err
		}

		ids := make([]uuid.UUID, len(due))
		for i := range due {
			ids[i] = due[i].ID
		}

		if _, err := tx.Exec(ctx, `
			UPDATE scheduled_messages SET status = 'enqueued', updated_at = NOW() WHERE id = ANY($1)
		`, ids); err != nil {
			return err
		}

		claimed = len(due)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to claim due scheduled messages: %w", err)
	}

	return claimed, nil
}

// MarkSent records a successful execution; bulkSendID is set for bulk template sends.
func (r *ScheduledMessagesRepository) MarkSent(ctx context.Context, id uuid.UUID, bulkSendID *uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE scheduled_messages SET status = 'sent', bulk_send_id = $2, last_error = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, bulkSendID)
	if err != nil {
		return fmt.Errorf("failed to mark scheduled message sent: %w", err)
	}

	return nil
}

// MarkFailed records a failed execution
func (r *ScheduledMessagesRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE scheduled_messages SET status = 'failed', last_error = $2, updated_at = NOW()
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("failed to mark scheduled message failed: %w", err)
	}

	return nil
}
