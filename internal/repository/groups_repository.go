package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/models"
)

const groupColumns = `g.id, g.name, g.description,
	(SELECT COUNT(*) FROM contact_group_members m WHERE m.group_id = g.id) AS member_count,
	g.created_at, g.updated_at`

// GroupsRepository handles data access for contact groups and memberships
type GroupsRepository struct {
	db *pgxpool.Pool
}

// NewGroupsRepository creates a new groups repository
func NewGroupsRepository(db *pgxpool.Pool) *GroupsRepository {
	return &GroupsRepository{db: db}
}

func scanGroup(row rowScanner) (*models.ContactGroup, error) {
	var g models.ContactGroup

	if err := row.Scan(&g.ID, &g.Name, &g.Description, &g.MemberCount, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}

	return &g, nil
}

// Create inserts a new group
func (r *GroupsRepository) Create(ctx context.Context, req *models.CreateContactGroupRequest) (*models.ContactGroup, error) {
	query := `
		INSERT INTO contact_groups (name, description)
		VALUES ($1, $2)
		RETURNING id, name, description, 0::bigint, created_at, updated_at
	`

	group, err := scanGroup(r.db.QueryRow(ctx, query, req.Name, req.Description))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, huberrors.NewConflictError("a group with this name already exists")
		}

		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	return group, nil
}

// GetByID retrieves a single group with its member count
func (r *GroupsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ContactGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM contact_groups g WHERE g.id = $1`

	group, err := scanGroup(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, huberrors.NewNotFoundError("contact group", "contact group not found")
		}

		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return group, nil
}

func buildGroupFilterConditions(filters *models.ListContactGroupsFilters) (string, []any) {
	if filters.Search == nil || *filters.Search == "" {
		return "", nil
	}

	return " WHERE g.name ILIKE $1", []any{"%" + *filters.Search + "%"}
}

// List retrieves groups ordered by name
func (r *GroupsRepository) List(ctx context.Context, filters *models.ListContactGroupsFilters) ([]models.ContactGroup, error) {
	whereClause, args := buildGroupFilterConditions(filters)
	page, args := pageClause(filters.Limit, filters.Offset, args)

	rows, err := r.db.Query(ctx, `SELECT `+groupColumns+` FROM contact_groups g`+whereClause+` ORDER BY g.name`+page, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := []models.ContactGroup{}

	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}

		groups = append(groups, *g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}

	return groups, nil
}

// Count returns the number of groups matching the filters
func (r *GroupsRepository) Count(ctx context.Context, filters *models.ListContactGroupsFilters) (int64, error) {
	whereClause, args := buildGroupFilterConditions(filters)

	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM contact_groups g`+whereClause, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count groups: %w", err)
	}

	return count, nil
}

// Update applies the non-nil fields of req
func (r *GroupsRepository) Update(ctx context.Context, id uuid.UUID, req *models.UpdateContactGroupRequest) (*models.ContactGroup, error) {
	var (
		updates []string
		args    []any
	)

	if req.Name != nil {
		args = append(args, *req.Name)
		updates = append(updates, fmt.Sprintf("name = $%d", len(args)))
	}

	if req.Description != nil {
		args = append(args, *req.Description)
		updates = append(updates, fmt.Sprintf("description = $%d", len(args)))
	}

	if len(updates) == 0 {
		return r.GetByID(ctx, id)
	}

	args = append(args, time.Now())
	updates = append(updates, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE contact_groups g SET %s WHERE g.id = $%d
		RETURNING %s
	`, strings.Join(updates, ", "), len(args), groupColumns)

	group, err := scanGroup(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		switch {
		case isNoRows(err):
			return nil, huberrors.NewNotFoundError("contact group", "contact group not found")
		case isUniqueViolation(err):
			return nil, huberrors.NewConflictError("a group with this name already exists")
		}

		return nil, fmt.Errorf("failed to update group: %w", err)
	}

	return group, nil
}

// Delete removes a group and its memberships
func (r *GroupsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM contact_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}

	if result.RowsAffected() == 0 {
		return huberrors.NewNotFoundError("contact group", "contact group not found")
	}

	return nil
}

// AddMembers adds contacts to a group, ignoring existing memberships, and returns how many were added.
func (r *GroupsRepository) AddMembers(ctx context.Context, groupID uuid.UUID, contactIDs []uuid.UUID) (int64, error) {
	query := `
		INSERT INTO contact_group_members (group_id, contact_id)
		SELECT $1, c FROM unnest($2::uuid[]) AS c
		ON CONFLICT DO NOTHING
	`

	result, err := r.db.Exec(ctx, query, groupID, contactIDs)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, huberrors.NewNotFoundError("contact", "group or contact not found")
		}

		return 0, fmt.Errorf("failed to add group members: %w", err)
	}

	return result.RowsAffected(), nil
}

// RemoveMember removes one contact from a group
func (r *GroupsRepository) RemoveMember(ctx context.Context, groupID, contactID uuid.UUID) error {
	result, err := r.db.Exec(ctx,
		`DELETE FROM contact_group_members WHERE group_id = $1 AND contact_id = $2`, groupID, contactID)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}

	if result.RowsAffected() == 0 {
		return huberrors.NewNotFoundError("group member", "contact is not a member of this group")
	}

	return nil
}

// ListGroupsForContacts returns the groups of every contact in contactIDs in one query.
// Contacts without groups are absent from the map.
func (r *GroupsRepository) ListGroupsForContacts(ctx context.Context, contactIDs []uuid.UUID) (map[uuid.UUID][]models.ContactGroup, error) {
	out := make(map[uuid.UUID][]models.ContactGroup, len(contactIDs))
	if len(contactIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT m.contact_id, ` + groupColumns + `
		FROM contact_group_members m
		JOIN contact_groups g ON g.id = m.group_id
		WHERE m.contact_id = ANY($1)
		ORDER BY m.contact_id, g.name
	`

	rows, err := r.db.Query(ctx, query, contactIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups for contacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			contactID uuid.UUID
			g         models.ContactGroup
		)

		if err := rows.Scan(&contactID, &g.ID, &g.Name, &g.Description, &g.MemberCount, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact group: %w", err)
		}

		out[contactID] = append(out[contactID], g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contact groups: %w", err)
	}

	return out, nil
}
