package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/models"
)

const contactColumns = `id, phone, name, email, attributes, opted_out, created_at, updated_at`

// ContactsRepository handles data access for contacts
type ContactsRepository struct {
	db *pgxpool.Pool
}

// NewContactsRepository creates a new contacts repository
func NewContactsRepository(db *pgxpool.Pool) *ContactsRepository {
	return &ContactsRepository{db: db}
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var c models.Contact

	err := row.Scan(&c.ID, &c.Phone, &c.Name, &c.Email, &c.Attributes, &c.OptedOut, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &c, nil
}

func collectContacts(rows pgx.Rows) ([]models.Contact, error) {
	defer rows.Close()

	contacts := []models.Contact{}

	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}

		contacts = append(contacts, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contacts: %w", err)
	}

	return contacts, nil
}

// Create inserts a contact and its initial group memberships in one transaction.
// The phone must already be normalized.
func (r *ContactsRepository) Create(ctx context.Context, req *models.CreateContactRequest) (*models.Contact, error) {
	optedOut := false
	if req.OptedOut != nil {
		optedOut = *req.OptedOut
	}

	var contact *models.Contact

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO contacts (phone, name, email, attributes, opted_out)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING ` + contactColumns

		var err error

		contact, err = scanContact(tx.QueryRow(ctx, query, req.Phone, req.Name, req.Email, req.Attributes, optedOut))
		if err != nil {
			return err
		}

		if len(req.GroupIDs) == 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO contact_group_members (group_id, contact_id)
			SELECT g, $2 FROM unnest($1::uuid[]) AS g
			ON CONFLICT DO NOTHING
		`, req.GroupIDs, contact.ID)

		return err
	})
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return nil, huberrors.NewConflictError("a contact with this phone number already exists")
		case isForeignKeyViolation(err):
			return nil, huberrors.NewNotFoundError("contact group", "contact group not found")
		}

		return nil, fmt.Errorf("failed to create contact: %w", err)
	}

	return contact, nil
}

// GetByID retrieves a single contact by ID
func (r *ContactsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`

	contact, err := scanContact(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, huberrors.NewNotFoundError("contact", "contact not found")
		}

		return nil, fmt.Errorf("failed to get contact: %w", err)
	}

	return contact, nil
}

// GetByPhones returns the contacts whose phone is in phones, keyed by phone.
func (r *ContactsRepository) GetByPhones(ctx context.Context, phones []string) (map[string]models.Contact, error) {
	out := make(map[string]models.Contact, len(phones))
	if len(phones) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `SELECT `+contactColumns+` FROM contacts WHERE phone = ANY($1)`, phones)
	if err != nil {
		return nil, fmt.Errorf("failed to get contacts by phone: %w", err)
	}

	contacts, err := collectContacts(rows)
	if err != nil {
		return nil, err
	}

	for _, c := range contacts {
		out[c.Phone] = c
	}

	return out, nil
}

// ListGroupAudience returns the contacts of a group that have not opted out, oldest first.
func (r *ContactsRepository) ListGroupAudience(ctx context.Context, groupID uuid.UUID, limit int) ([]models.Contact, error) {
	query := `
		SELECT c.id, c.phone, c.name, c.email, c.attributes, c.opted_out, c.created_at, c.updated_at
		FROM contacts c
		JOIN contact_group_members m ON m.contact_id = c.id
		WHERE m.group_id = $1 AND NOT c.opted_out
		ORDER BY c.created_at, c.id
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list group audience: %w", err)
	}

	return collectContacts(rows)
}

// buildContactFilterConditions builds WHERE clause conditions and arguments from filters
func buildContactFilterConditions(filters *models.ListContactsFilters) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	if filters.Search != nil && *filters.Search != "" {
		args = append(args, "%"+*filters.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR phone ILIKE $%d OR email ILIKE $%d)", len(args), len(args), len(args)))
	}

	if filters.OptedOut != nil {
		args = append(args, *filters.OptedOut)
		conditions = append(conditions, fmt.Sprintf("opted_out = $%d", len(args)))
	}

	if filters.GroupID != nil {
		args = append(args, *filters.GroupID)
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM contact_group_members m WHERE m.contact_id = contacts.id AND m.group_id = $%d)", len(args)))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}

// List retrieves contacts with optional filters, newest first
func (r *ContactsRepository) List(ctx context.Context, filters *models.ListContactsFilters) ([]models.Contact, error) {
	whereClause, args := buildContactFilterConditions(filters)
	page, args := pageClause(filters.Limit, filters.Offset, args)

	query := `SELECT ` + contactColumns + ` FROM contacts` + whereClause + ` ORDER BY created_at DESC, id DESC` + page

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	return collectContacts(rows)
}

// Count returns the total count of contacts matching the filters
func (r *ContactsRepository) Count(ctx context.Context, filters *models.ListContactsFilters) (int64, error) {
	whereClause, args := buildContactFilterConditions(filters)

	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM contacts`+whereClause, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count contacts: %w", err)
	}

	return count, nil
}

// Update applies the non-nil fields of req. The phone, when set, must already be normalized.
func (r *ContactsRepository) Update(ctx context.Context, id uuid.UUID, req *models.UpdateContactRequest) (*models.Contact, error) {
	var (
		updates []string
		args    []any
	)

	set := func(column string, value any) {
		args = append(args, value)
		updates = append(updates, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if req.Phone != nil {
		set("phone", *req.Phone)
	}

	if req.Name != nil {
		set("name", *req.Name)
	}

	if req.Email != nil {
		set("email", *req.Email)
	}

	if req.Attributes != nil {
		set("attributes", req.Attributes)
	}

	if req.OptedOut != nil {
		set("opted_out", *req.OptedOut)
	}

	if len(updates) == 0 {
		return r.GetByID(ctx, id)
	}

	set("updated_at", time.Now())
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE contacts SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(updates, ", "), len(args), contactColumns)

	contact, err := scanContact(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		switch {
		case isNoRows(err):
			return nil, huberrors.NewNotFoundError("contact", "contact not found")
		case isUniqueViolation(err):
			return nil, huberrors.NewConflictError("a contact with this phone number already exists")
		}

		return nil, fmt.Errorf("failed to update contact: %w", err)
	}

	return contact, nil
}

// Delete removes a contact; its history rows keep the phone number
func (r *ContactsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}

	if result.RowsAffected() == 0 {
		return huberrors.NewNotFoundError("contact", "contact not found")
	}

	return nil
}
