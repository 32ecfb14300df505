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

const templateColumns = `id, provider_template_id, name, language, category, status, body_text,
	parameter_count, components, synced_at, created_at, updated_at`

// TemplatesRepository handles data access for the mirrored WhatsApp template catalog
type TemplatesRepository struct {
	db *pgxpool.Pool
}

// NewTemplatesRepository creates a new templates repository
func NewTemplatesRepository(db *pgxpool.Pool) *TemplatesRepository {
	return &TemplatesRepository{db: db}
}

func scanTemplate(row rowScanner) (*models.Template, error) {
	var t models.Template

	err := row.Scan(&t.ID, &t.ProviderTemplateID, &t.Name, &t.Language, &t.Category, &t.Status, &t.BodyText,
		&t.ParameterCount, &t.Components, &t.SyncedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// Upsert inserts or refreshes a template keyed by (name, language)
func (r *TemplatesRepository) Upsert(ctx context.Context, t *models.UpsertTemplate, syncedAt time.Time) (*models.Template, error) {
	query := `
		INSERT INTO templates (provider_template_id, name, language, category, status, body_text,
			parameter_count, components, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name, language) DO UPDATE SET
			provider_template_id = EXCLUDED.provider_template_id,
			category = EXCLUDED.category,
			status = EXCLUDED.status,
			body_text = EXCLUDED.body_text,
			parameter_count = EXCLUDED.parameter_count,
			components = EXCLUDED.components,
			synced_at = EXCLUDED.synced_at,
			updated_at = NOW()
		RETURNING ` + templateColumns

	tpl, err := scanTemplate(r.db.QueryRow(ctx, query,
		t.ProviderTemplateID, t.Name, t.Language, t.Category, t.Status, t.BodyText,
		t.ParameterCount, t.Components, syncedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert template: %w", err)
	}

	return tpl, nil
}

// DeleteSyncedBefore removes templates that a sync started at cutoff did not see.
func (r *TemplatesRepository) DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM templates WHERE synced_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale templates: %w", err)
	}

	return result.RowsAffected(), nil
}

// GetByID retrieves a single template by ID
func (r *TemplatesRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	tpl, err := scanTemplate(r.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, huberrors.NewNotFoundError("template", "template not found")
		}

		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return tpl, nil
}

// GetByNameAndLanguage retrieves the template a send refers to
func (r *TemplatesRepository) GetByNameAndLanguage(ctx context.Context, name, language string) (*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE name = $1 AND language = $2`

	tpl, err := scanTemplate(r.db.QueryRow(ctx, query, name, language))
	if err != nil {
		if isNoRows(err) {
			return nil, huberrors.NewNotFoundError("template",
				fmt.Sprintf("template %s (%s) not found", name, language))
		}

		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return tpl, nil
}

func buildTemplateFilterConditions(filters *models.ListTemplatesFilters) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	if filters.Status != nil {
		args = append(args, strings.ToUpper(*filters.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	if filters.Language != nil {
		args = append(args, *filters.Language)
		conditions = append(conditions, fmt.Sprintf("language = $%d", len(args)))
	}

	if filters.Search != nil && *filters.Search != "" {
		args = append(args, "%"+*filters.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR body_text ILIKE $%d)", len(args), len(args)))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}

// List retrieves templates ordered by name and language
func (r *TemplatesRepository) List(ctx context.Context, filters *models.ListTemplatesFilters) ([]models.Template, error) {
	whereClause, args := buildTemplateFilterConditions(filters)
	page, args := pageClause(filters.Limit, filters.Offset, args)

	rows, err := r.db.Query(ctx, `SELECT `+templateColumns+` FROM templates`+whereClause+` ORDER BY name, language`+page, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := []models.Template{}

	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

// Count returns the number of templates matching the filters
func (r *TemplatesRepository) Count(ctx context.Context, filters *models.ListTemplatesFilters) (int64, error) {
	whereClause, args := buildTemplateFilterConditions(filters)

	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM templates`+whereClause, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count templates: %w", err)
	}

	return count, nil
}
