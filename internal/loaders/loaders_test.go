package loaders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/pkg/dataloader"
)

type fakeRepo struct {
	mu           sync.Mutex
	groupCalls   [][]uuid.UUID
	historyCalls [][]uuid.UUID
	perContact   int
	groups       map[uuid.UUID][]models.ContactGroup
	history      map[uuid.UUID][]models.Message
	historyErr   error
}

func (f *fakeRepo) ListGroupsForContacts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]models.ContactGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.groupCalls = append(f.groupCalls, ids)

	out := map[uuid.UUID][]models.ContactGroup{}
	for _, id := range ids {
		if g, ok := f.groups[id]; ok {
			out[id] = g
		}
	}

	return out, nil
}

func (f *fakeRepo) ListRecentForContacts(_ context.Context, ids []uuid.UUID, perContact int) (map[uuid.UUID][]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.historyCalls = append(f.historyCalls, ids)
	f.perContact = perContact

	if f.historyErr != nil {
		return nil, f.historyErr
	}

	out := map[uuid.UUID][]models.Message{}
	for _, id := range ids {
		if m, ok := f.history[id]; ok {
			out[id] = m
		}
	}

	return out, nil
}

func TestExpandContacts(t *testing.T) {
	ada, bob := uuid.New(), uuid.New()
	repo := &fakeRepo{
		groups: map[uuid.UUID][]models.ContactGroup{
			ada: {{Name: "vip"}, {Name: "newsletter"}},
		},
		history: map[uuid.UUID][]models.Message{
			bob: {{Phone: "+4915100000002", Status: models.MessageStatusSent}},
		},
	}
	contacts := []models.Contact{{ID: ada}, {ID: bob}}

	t.Run("one batch per relation for the whole page", func(t *testing.T) {
		l := NewFactory(repo, repo, 3).New()

		views, err := l.ExpandContacts(context.Background(), contacts, models.Includes{Groups: true, Messages: true})
		require.NoError(t, err)
		require.Len(t, views, 2)

		assert.Len(t, views[0].Groups, 2)
		assert.Nil(t, views[0].RecentMessages)
		assert.Nil(t, views[1].Groups)
		assert.Len(t, views[1].RecentMessages, 1)

		assert.Len(t, repo.groupCalls, 1)
		assert.ElementsMatch(t, []uuid.UUID{ada, bob}, repo.groupCalls[0])
		assert.Len(t, repo.historyCalls, 1)
		assert.Equal(t, 3, repo.perContact)
	})

	t.Run("cached within a request", func(t *testing.T) {
		repo.groupCalls = nil
		l := NewFactory(repo, repo, 0).New()

		_, err := l.ExpandContacts(context.Background(), contacts, models.Includes{Groups: true})
		require.NoError(t, err)
		_, err = l.ContactGroups.Load(context.Background(), ada)
		require.NoError(t, err)

		assert.Len(t, repo.groupCalls, 1)
		assert.Equal(t, int64(1), l.ContactGroups.Stats().CacheHits)
	})

	t.Run("no includes issues no queries", func(t *testing.T) {
		repo.groupCalls, repo.historyCalls = nil, nil
		l := NewFactory(repo, repo, 0).New()

		views, err := l.ExpandContacts(context.Background(), contacts, models.Includes{})
		require.NoError(t, err)
		assert.Len(t, views, 2)
		assert.Empty(t, repo.groupCalls)
		assert.Empty(t, repo.historyCalls)
	})

	t.Run("batch error is returned", func(t *testing.T) {
		failing := &fakeRepo{historyErr: errors.New("db down")}
		l := NewFactory(failing, failing, 0).New()

		_, err := l.ExpandContacts(context.Background(), contacts, models.Includes{Messages: true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db down")
	})
}

func TestExpandContacts_WaitCoalescesConcurrentPages(t *testing.T) {
	ada, bob, cy := uuid.New(), uuid.New(), uuid.New()
	repo := &fakeRepo{
		groups: map[uuid.UUID][]models.ContactGroup{
			ada: {{Name: "vip"}},
			cy:  {{Name: "newsletter"}},
		},
	}
	l := NewFactory(repo, repo, 0, dataloader.WithWait(20*time.Millisecond)).New()
	ctx := context.Background()

	pages := [][]models.Contact{
		{{ID: ada}, {ID: bob}},
		{{ID: bob}, {ID: cy}},
	}
	views := make([][]models.ContactView, len(pages))

	var wg sync.WaitGroup
	for i, page := range pages {
		wg.Add(1)

		go func(i int, page []models.Contact) {
			defer wg.Done()

			v, err := l.ExpandContacts(ctx, page, models.Includes{Groups: true})
			assert.NoError(t, err)

			views[i] = v
		}(i, page)
	}

	wg.Wait()

	require.Len(t, views[0], 2)
	require.Len(t, views[1], 2)
	assert.Equal(t, "vip", views[0][0].Groups[0].Name)
	assert.Nil(t, views[0][1].Groups)
	assert.Equal(t, "newsletter", views[1][1].Groups[0].Name)

	repo.mu.Lock()
	defer repo.mu.Unlock()

	require.Len(t, repo.groupCalls, 1, "both pages share one batch")
	assert.ElementsMatch(t, []uuid.UUID{ada, bob, cy}, repo.groupCalls[0])
}

func TestFromContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	l := NewFactory(&fakeRepo{}, &fakeRepo{}, 0).New()
	ctx := WithLoaders(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}

func TestNewSMSHistoryDataLoader_DefaultLimit(t *testing.T) {
	repo := &fakeRepo{}
	l := NewSMSHistoryDataLoader(repo, 0)

	_, err := l.Load(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryLimit, repo.perContact)
}
