package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/datatypes"
	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/internal/observability"
	"github.com/msgdesk/hub/pkg/cache"
	"github.com/msgdesk/hub/pkg/whatsapp"
)

// TemplatesRepository defines the interface for templates data access.
type TemplatesRepository interface {
	Upsert(ctx context.Context, t *models.UpsertTemplate, syncedAt time.Time) (*models.Template, error)
	DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Template, error)
	GetByNameAndLanguage(ctx context.Context, name, language string) (*models.Template, error)
	List(ctx context.Context, filters *models.ListTemplatesFilters) ([]models.Template, error)
	Count(ctx context.Context, filters *models.ListTemplatesFilters) (int64, error)
}

// TemplateCatalog lists the templates registered on the WhatsApp Business Account.
type TemplateCatalog interface {
	ListTemplates(ctx context.Context) ([]whatsapp.MessageTemplate, error)
}

// TemplateKey identifies a template by name and language.
type TemplateKey struct {
	Name     string
	Language string
}

// TemplateKeyString is the cache key form of a TemplateKey.
func TemplateKeyString(k TemplateKey) string {
	return k.Name + "|" + k.Language
}

// templatesSyncedEvent is the payload of template.synced.
type templatesSyncedEvent struct {
	Synced   int       `json:"synced"`
	Removed  int64     `json:"removed"`
	SyncedAt time.Time `json:"synced_at"`
}

// TemplatesService mirrors the WhatsApp template catalogue and serves lookups from a cache.
type TemplatesService struct {
	repo         TemplatesRepository
	catalog      TemplateCatalog
	lookups      *cache.LoaderCache[TemplateKey, *models.Template]
	publisher    MessagePublisher
	cacheMetrics observability.CacheMetrics
	metrics      observability.MessagingMetrics
}

// NewTemplatesService creates a templates service. catalog is nil when WhatsApp is not configured;
// lookups may be nil to disable caching. Metrics may be nil.
func NewTemplatesService(
	repo TemplatesRepository,
	catalog TemplateCatalog,
	lookups *cache.LoaderCache[TemplateKey, *models.Template],
	publisher MessagePublisher,
	cacheMetrics observability.CacheMetrics,
	metrics observability.MessagingMetrics,
) *TemplatesService {
	return &TemplatesService{
		repo:         repo,
		catalog:      catalog,
		lookups:      lookups,
		publisher:    publisher,
		cacheMetrics: cacheMetrics,
		metrics:      metrics,
	}
}

// SyncTemplates fetches every template from the business account, upserts them and removes
// templates that no longer exist upstream.
func (s *TemplatesService) SyncTemplates(ctx context.Context) (*models.TemplateSyncResponse, error) {
	if s.catalog == nil {
		return nil, huberrors.NewUpstreamError("whatsapp", "whatsapp is not configured", false)
	}

	remote, err := s.catalog.ListTemplates(ctx)
	if err != nil {
		return nil, toUpstreamError("whatsapp", err)
	}

	syncedAt := time.Now().UTC()

	for i := range remote {
		upsert, err := toUpsertTemplate(&remote[i])
		if err != nil {
			return nil, err
		}

		if _, err := s.repo.Upsert(ctx, upsert, syncedAt); err != nil {
			return nil, fmt.Errorf("upsert template %s/%s: %w", upsert.Name, upsert.Language, err)
		}
	}

	removed, err := s.repo.DeleteSyncedBefore(ctx, syncedAt)
	if err != nil {
		return nil, fmt.Errorf("remove stale templates: %w", err)
	}

	if s.lookups != nil {
		s.lookups.InvalidateAll()
	}

	if s.metrics != nil {
		s.metrics.RecordTemplatesSynced(ctx, len(remote))
	}

	slog.InfoContext(ctx, "templates synced", "synced", len(remote), "removed", removed)

	s.publisher.PublishEvent(ctx, datatypes.TemplatesSynced, templatesSyncedEvent{
		Synced:   len(remote),
		Removed:  removed,
		SyncedAt: syncedAt,
	})

	return &models.TemplateSyncResponse{Synced: len(remote), SyncedAt: syncedAt}, nil
}

func toUpsertTemplate(t *whatsapp.MessageTemplate) (*models.UpsertTemplate, error) {
	components, err := json.Marshal(t.Components)
	if err != nil {
		return nil, fmt.Errorf("encode components of %s: %w", t.Name, err)
	}

	upsert := &models.UpsertTemplate{
		ProviderTemplateID: t.ID,
		Name:               t.Name,
		Language:           t.Language,
		Category:           t.Category,
		Status:             t.Status,
		Components:         components,
	}

	if body := t.BodyText(); body != "" {
		upsert.BodyText = &body
		upsert.ParameterCount = whatsapp.CountPlaceholders(body)
	}

	return upsert, nil
}

// LookupTemplate returns the template with the given name and language, served from cache when possible.
func (s *TemplatesService) LookupTemplate(ctx context.Context, name, language string) (*models.Template, error) {
	if s.lookups == nil {
		return s.repo.GetByNameAndLanguage(ctx, name, language)
	}

	load := func(ctx context.Context, k TemplateKey) (*models.Template, error) {
		return s.repo.GetByNameAndLanguage(ctx, k.Name, k.Language)
	}

	return cachedLookup(ctx, s.lookups, s.cacheMetrics, observability.CacheTemplates, TemplateKey{Name: name, Language: language}, load)
}

// RequireSendable looks up a template and rejects it unless the provider approved it.
func (s *TemplatesService) RequireSendable(ctx context.Context, name, language string) (*models.Template, error) {
	t, err := s.LookupTemplate(ctx, name, language)
	if err != nil {
		return nil, err
	}

	if !t.Sendable() {
		return nil, huberrors.NewValidationError("template_name",
			fmt.Sprintf("template %s (%s) is %s, only %s templates can be sent", name, language, t.Status, models.TemplateStatusApproved))
	}

	return t, nil
}

// GetTemplate retrieves a single template by ID
func (s *TemplatesService) GetTemplate(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	return s.repo.GetByID(ctx, id)
}

// ListTemplates retrieves a page of synced templates
func (s *TemplatesService) ListTemplates(ctx context.Context, filters *models.ListTemplatesFilters) (*models.ListTemplatesResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}

	templates, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &models.ListTemplatesResponse{
		Data:   templates,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}
