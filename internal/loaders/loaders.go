// Package loaders holds the request-scoped DataLoaders used to expand contact relations
// (?include=groups,messages) without one query per contact.
package loaders

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/pkg/dataloader"
)

// DefaultHistoryLimit is how many recent messages are loaded per contact.
const DefaultHistoryLimit = 5

// GroupsBatcher loads the groups of many contacts in one query.
type GroupsBatcher interface {
	ListGroupsForContacts(ctx context.Context, contactIDs []uuid.UUID) (map[uuid.UUID][]models.ContactGroup, error)
}

// HistoryBatcher loads the most recent messages of many contacts in one query.
type HistoryBatcher interface {
	ListRecentForContacts(ctx context.Context, contactIDs []uuid.UUID, perContact int) (map[uuid.UUID][]models.Message, error)
}

// ContactGroupDataLoader resolves contact id → groups.
type ContactGroupDataLoader struct {
	*dataloader.Loader[uuid.UUID, []models.ContactGroup]
}

// NewContactGroupDataLoader creates a loader backed by repo.
func NewContactGroupDataLoader(repo GroupsBatcher, opts ...dataloader.Option) *ContactGroupDataLoader {
	return &ContactGroupDataLoader{
		Loader: dataloader.New(repo.ListGroupsForContacts, opts...),
	}
}

// SMSHistoryDataLoader resolves contact id → most recent messages, newest first.
type SMSHistoryDataLoader struct {
	*dataloader.Loader[uuid.UUID, []models.Message]
}

// NewSMSHistoryDataLoader creates a loader returning up to perContact messages per contact.
func NewSMSHistoryDataLoader(repo HistoryBatcher, perContact int, opts ...dataloader.Option) *SMSHistoryDataLoader {
	if perContact <= 0 {
		perContact = DefaultHistoryLimit
	}

	fetch := func(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]models.Message, error) {
		return repo.ListRecentForContacts(ctx, ids, perContact)
	}

	return &SMSHistoryDataLoader{Loader: dataloader.New(fetch, opts...)}
}

// Loaders is the set of loaders for one request.
type Loaders struct {
	ContactGroups *ContactGroupDataLoader
	SMSHistory    *SMSHistoryDataLoader
}

// Factory builds a fresh Loaders per request.
type Factory struct {
	groups       GroupsBatcher
	history      HistoryBatcher
	historyLimit int
	opts         []dataloader.Option
}

// NewFactory creates a Factory. opts apply to every loader it builds.
func NewFactory(groups GroupsBatcher, history HistoryBatcher, historyLimit int, opts ...dataloader.Option) *Factory {
	return &Factory{groups: groups, history: history, historyLimit: historyLimit, opts: opts}
}

// New returns loaders with empty caches.
func (f *Factory) New() *Loaders {
	return &Loaders{
		ContactGroups: NewContactGroupDataLoader(f.groups, f.opts...),
		SMSHistory:    NewSMSHistoryDataLoader(f.history, f.historyLimit, f.opts...),
	}
}

type contextKey struct{}

// WithLoaders returns a copy of ctx carrying l.
func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the loaders stored in ctx, or nil.
func FromContext(ctx context.Context) *Loaders {
	l, _ := ctx.Value(contextKey{}).(*Loaders)

	return l
}

// ExpandContacts wraps contacts in views and fills the relations requested by inc,
// issuing one batch per relation for the whole page.
func (l *Loaders) ExpandContacts(ctx context.Context, contacts []models.Contact, inc models.Includes) ([]models.ContactView, error) {
	views := make([]models.ContactView, len(contacts))
	ids := make([]uuid.UUID, len(contacts))

	for i := range contacts {
		views[i] = models.ContactView{Contact: contacts[i]}
		ids[i] = contacts[i].ID
	}

	if len(contacts) == 0 {
		return views, nil
	}

	if inc.Groups {
		groups, err := l.ContactGroups.LoadMany(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load contact groups: %w", err)
		}

		for i := range views {
			views[i].Groups = groups[i]
		}
	}

	if inc.Messages {
		history, err := l.SMSHistory.LoadMany(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load message history: %w", err)
		}

		for i := range views {
			views[i].RecentMessages = history[i]
		}
	}

	return views, nil
}
