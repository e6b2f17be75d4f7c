package admin_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/admin"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
	"github.com/tendant/schema-content/pkg/schemacontent/repo/memory"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
	"go.uber.org/zap/zaptest"
)

func setup(t *testing.T) (schemacontent.Repository, *schema.Schema) {
	t.Helper()
	s := &schema.Schema{
		ID:     uuid.New(),
		AppID:  uuid.New(),
		Name:   "post",
		Fields: []schema.Field{{Name: "title", Type: schema.FieldTypeString}},
	}
	repo, err := schemacontent.New(
		schemacontent.WithStore(memory.New()),
		schemacontent.WithRegistry(schema.NewStaticRegistry(s)),
		schemacontent.WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)
	return repo, s
}

func seed(t *testing.T, repo schemacontent.Repository, s *schema.Schema, titles ...string) []*schemacontent.ContentItem {
	t.Helper()
	var items []*schemacontent.ContentItem
	for _, title := range titles {
		item, err := repo.Create(context.Background(), schemacontent.CreateRequest{
			AppID:    s.AppID,
			SchemaID: s.ID,
			Data:     schemacontent.ContentData{}.Set("title", "iv", schemacontent.StringValue(title)),
		})
		require.NoError(t, err)
		items = append(items, item)
	}
	return items
}

func TestGetStatistics(t *testing.T) {
	ctx := context.Background()
	repo, s := setup(t)
	items := seed(t, repo, s, "a", "b", "c", "d")

	req := func(item *schemacontent.ContentItem) schemacontent.StatusRequest {
		return schemacontent.StatusRequest{AppID: s.AppID, SchemaID: s.ID, ID: item.ID}
	}
	_, err := repo.Publish(ctx, req(items[0]))
	require.NoError(t, err)
	_, err = repo.Archive(ctx, req(items[1]))
	require.NoError(t, err)

	svc := admin.New(repo)
	resp, err := svc.GetStatistics(ctx, admin.StatisticsRequest{
		Filters: admin.ContentFilters{AppID: s.AppID, SchemaID: s.ID},
		Options: admin.DefaultStatisticsOptions(),
	})
	require.NoError(t, err)

	stats := resp.Statistics
	assert.Equal(t, int64(4), stats.TotalCount)
	assert.Equal(t, map[schemacontent.Status]int64{
		schemacontent.StatusDraft:     2,
		schemacontent.StatusPublished: 1,
		schemacontent.StatusArchived:  1,
	}, stats.ByStatus)
	require.NotNil(t, stats.Newest)
	assert.False(t, resp.ComputedAt.IsZero())

	count, err := svc.CountContents(ctx, admin.CountRequest{Filters: admin.ContentFilters{
		AppID:    s.AppID,
		SchemaID: s.ID,
		Statuses: []schemacontent.Status{schemacontent.StatusDraft},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count.Count)
}

func TestListAllContents(t *testing.T) {
	ctx := context.Background()
	repo, s := setup(t)
	seed(t, repo, s, "alpha", "beta", "gamma")

	svc := admin.New(repo)
	filters := admin.ContentFilters{
		AppID:    s.AppID,
		SchemaID: s.ID,
		Sort:     []query.SortField{{Path: "data/title/iv"}},
		Limit:    2,
	}

	first, err := svc.ListAllContents(ctx, admin.ListContentsRequest{Filters: filters})
	require.NoError(t, err)
	require.Len(t, first.Contents, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, int64(3), first.TotalCount)

	filters.Offset = 2
	second, err := svc.ListAllContents(ctx, admin.ListContentsRequest{Filters: filters})
	require.NoError(t, err)
	require.Len(t, second.Contents, 1)
	assert.False(t, second.HasMore)
	title, _ := second.Contents[0].Data.Get("title", "iv").AsString()
	assert.Equal(t, "gamma", title)

	filters.Offset = 0
	filters.Filter = query.StartsWith("data/title/iv", "b")
	filtered, err := svc.ListAllContents(ctx, admin.ListContentsRequest{Filters: filters})
	require.NoError(t, err)
	assert.Equal(t, int64(1), filtered.TotalCount)
}

func TestListAllContents_ValidationError(t *testing.T) {
	repo, s := setup(t)
	_, err := admin.New(repo).ListAllContents(context.Background(), admin.ListContentsRequest{
		Filters: admin.ContentFilters{AppID: s.AppID, SchemaID: s.ID, Filter: query.Eq("data/nope/iv", 1)},
	})
	assert.True(t, schemacontent.IsValidation(err))
}
