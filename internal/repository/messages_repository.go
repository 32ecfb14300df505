package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/msgdesk/hub/internal/models"
)

const messageColumns = `id, contact_id, bulk_send_id, channel, phone, body, template_name, status,
	provider_message_id, error, created_at`

// MessagesRepository handles data access for the outbound message history
type MessagesRepository struct {
	db *pgxpool.Pool
}

// NewMessagesRepository creates a new messages repository
func NewMessagesRepository(db *pgxpool.Pool) *MessagesRepository {
	return &MessagesRepository{db: db}
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message

	err := row.Scan(&m.ID, &m.ContactID, &m.BulkSendID, &m.Channel, &m.Phone, &m.Body, &m.TemplateName,
		&m.Status, &m.ProviderMessageID, &m.Error, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// Insert records one outbound message
func (r *MessagesRepository) Insert(ctx context.Context, msg *models.NewMessage) (*models.Message, error) {
	query := `
		INSERT INTO messages (contact_id, bulk_send_id, channel, phone, body, template_name, status,
			provider_message_id, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + messageColumns

	m, err := scanMessage(r.db.QueryRow(ctx, query,
		msg.ContactID, msg.BulkSendID, msg.Channel, msg.Phone, msg.Body, msg.TemplateName, msg.Status,
		msg.ProviderMessageID, msg.Error,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	return m, nil
}

// buildMessageFilterConditions builds WHERE clause conditions and arguments from filters
func buildMessageFilterConditions(filters *models.ListMessagesFilters) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	add := func(cond string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filters.ContactID != nil {
		add("contact_id = $%d", *filters.ContactID)
	}

	if filters.BulkSendID != nil {
		add("bulk_send_id = $%d", *filters.BulkSendID)
	}

	if filters.Channel != nil {
		add("channel = $%d", *filters.Channel)
	}

	if filters.Status != nil {
		add("status = $%d", *filters.Status)
	}

	if filters.Since != nil {
		add("created_at >= $%d", *filters.Since)
	}

	if filters.Until != nil {
		add("created_at < $%d", *filters.Until)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}

// List retrieves message history with optional filters, newest first
func (r *MessagesRepository) List(ctx context.Context, filters *models.ListMessagesFilters) ([]models.Message, error) {
	whereClause, args := buildMessageFilterConditions(filters)
	page, args := pageClause(filters.Limit, filters.Offset, args)

	rows, err := r.db.Query(ctx, `SELECT `+messageColumns+` FROM messages`+whereClause+` ORDER BY created_at DESC, id DESC`+page, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()

	messages := []models.Message{}

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		messages = append(messages, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// Count returns the number of messages matching the filters
func (r *MessagesRepository) Count(ctx context.Context, filters *models.ListMessagesFilters) (int64, error) {
	whereClause, args := buildMessageFilterConditions(filters)

	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM messages`+whereClause, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return count, nil
}

// ListRecentForContacts returns up to perContact most recent messages for each contact in one query.
// Contacts without history are absent from the map.
func (r *MessagesRepository) ListRecentForContacts(
	ctx context.Context, contactIDs []uuid.UUID, perContact int,
) (map[uuid.UUID][]models.Message, error) {
	out := make(map[uuid.UUID][]models.Message, len(contactIDs))
	if len(contactIDs) == 0 || perContact <= 0 {
		return out, nil
	}

	query := `
		SELECT ` + messageColumns + `
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY contact_id ORDER BY created_at DESC, id DESC) AS rn
			FROM messages
			WHERE contact_id = ANY($1)
		) ranked
		WHERE rn <= $2
		ORDER BY contact_id, created_at DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query, contactIDs, perContact)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	for _, m := range messages {
		if m.ContactID != nil {
			out[*m.ContactID] = append(out[*m.ContactID], m)
		}
	}

	return out, nil
}
