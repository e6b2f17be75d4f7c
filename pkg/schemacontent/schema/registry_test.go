package schema_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
)

func postSchema() *schema.Schema {
	return &schema.Schema{
		ID:        uuid.New(),
		AppID:     uuid.New(),
		Name:      "post",
		Languages: []string{"en", "de"},
		Fields: []schema.Field{
			{Name: "title", Type: schema.FieldTypeString, Partitioning: schema.PartitioningLanguage},
			{Name: "views", Type: schema.FieldTypeNumber},
		},
	}
}

func TestSchema_Partitions(t *testing.T) {
	s := postSchema()

	title, ok := s.Field("title")
	require.True(t, ok)
	assert.Equal(t, []string{"en", "de"}, s.Partitions(title))
	assert.True(t, s.HasPartition(title, "de"))
	assert.False(t, s.HasPartition(title, schema.InvariantPartition))

	views, ok := s.Field("views")
	require.True(t, ok)
	assert.Equal(t, []string{schema.InvariantPartition}, s.Partitions(views))

	_, ok = s.Field("missing")
	assert.False(t, ok)
}

func TestStaticRegistry(t *testing.T) {
	s := postSchema()
	reg := schema.NewStaticRegistry(s)

	got, err := reg.GetSchema(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = reg.GetSchema(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, schema.ErrSchemaNotFound))
}

func TestCachedRegistry(t *testing.T) {
	s := postSchema()
	var loads atomic.Int32
	source := schema.RegistryFunc(func(ctx context.Context, id uuid.UUID) (*schema.Schema, error) {
		loads.Add(1)
		if id != s.ID {
			return nil, schema.ErrSchemaNotFound
		}
		time.Sleep(10 * time.Millisecond)
		return s, nil
	})

	t.Run("ReadThrough", func(t *testing.T) {
		reg := schema.NewCachedRegistry(source, schema.CacheOptions{})
		loads.Store(0)

		for i := 0; i < 3; i++ {
			got, err := reg.GetSchema(context.Background(), s.ID)
			require.NoError(t, err)
			assert.Equal(t, s.ID, got.ID)
		}
		assert.Equal(t, int32(1), loads.Load())
	})

	t.Run("ConcurrentMissesCollapse", func(t *testing.T) {
		reg := schema.NewCachedRegistry(source, schema.CacheOptions{})
		loads.Store(0)

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := reg.GetSchema(context.Background(), s.ID)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), loads.Load())
	})

	t.Run("Invalidate", func(t *testing.T) {
		reg := schema.NewCachedRegistry(source, schema.CacheOptions{})
		loads.Store(0)

		_, err := reg.GetSchema(context.Background(), s.ID)
		require.NoError(t, err)
		reg.Invalidate(s.ID)
		_, err = reg.GetSchema(context.Background(), s.ID)
		require.NoError(t, err)
		assert.Equal(t, int32(2), loads.Load())
	})

	t.Run("Expiry", func(t *testing.T) {
		reg := schema.NewCachedRegistry(source, schema.CacheOptions{TTL: 20 * time.Millisecond})
		loads.Store(0)

		_, err := reg.GetSchema(context.Background(), s.ID)
		require.NoError(t, err)
		time.Sleep(60 * time.Millisecond)
		_, err = reg.GetSchema(context.Background(), s.ID)
		require.NoError(t, err)
		assert.Equal(t, int32(2), loads.Load())
	})

	t.Run("CancelledCallerDoesNotFailOthers", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan struct{}, 1)
		var blockingLoads atomic.Int32
		loadErr := make(chan error, 1)
		blocking := schema.RegistryFunc(func(ctx context.Context, id uuid.UUID) (*schema.Schema, error) {
			blockingLoads.Add(1)
			started <- struct{}{}
			<-release
			loadErr <- ctx.Err()
			return s, nil
		})
		reg := schema.NewCachedRegistry(blocking, schema.CacheOptions{})

		ctx, cancel := context.WithCancel(context.Background())
		first := make(chan error, 1)
		go func() {
			_, err := reg.GetSchema(ctx, s.ID)
			first <- err
		}()
		<-started

		second := make(chan *schema.Schema, 1)
		go func() {
			got, err := reg.GetSchema(context.Background(), s.ID)
			assert.NoError(t, err)
			second <- got
		}()
		time.Sleep(10 * time.Millisecond)

		cancel()
		assert.ErrorIs(t, <-first, context.Canceled)

		close(release)
		got := <-second
		require.NotNil(t, got)
		assert.Equal(t, s.ID, got.ID)
		assert.NoError(t, <-loadErr)
		assert.Equal(t, int32(1), blockingLoads.Load())
	})

	t.Run("ErrorsAreNotCached", func(t *testing.T) {
		reg := schema.NewCachedRegistry(source, schema.CacheOptions{})
		loads.Store(0)
		missing := uuid.New()

		_, err := reg.GetSchema(context.Background(), missing)
		assert.True(t, errors.Is(err, schema.ErrSchemaNotFound))
		_, err = reg.GetSchema(context.Background(), missing)
		assert.Error(t, err)
		assert.Equal(t, int32(2), loads.Load())
	})
}

func TestParse(t *testing.T) {
	raw := []byte(`
schemas:
  - id: 0f8fad5b-d9cb-469f-a165-70867728950e
    app_id: 7c9e6679-7425-40de-944b-e07fc1f90ae7
    name: post
    languages: [en, de]
    fields:
      - name: title
        type: String
        partitioning: language
      - name: views
        type: Number
`)

	reg, err := schema.Parse(raw)
	require.NoError(t, err)

	s, err := reg.GetSchema(context.Background(), uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e"))
	require.NoError(t, err)
	assert.Equal(t, "post", s.Name)
	require.Len(t, s.Fields, 2)
	assert.True(t, s.Fields[0].IsLocalized())
	assert.Equal(t, schema.PartitioningInvariant, s.Fields[1].Partitioning)

	t.Run("UnknownType", func(t *testing.T) {
		_, err := schema.Parse([]byte(`
schemas:
  - id: 0f8fad5b-d9cb-469f-a165-70867728950e
    name: post
    fields:
      - name: title
        type: Text
`))
		assert.ErrorContains(t, err, "unknown type")
	})

	t.Run("FieldNameWithSeparator", func(t *testing.T) {
		for _, name := range []string{"title.iv", "meta/score"} {
			_, err := schema.Parse([]byte(`
schemas:
  - id: 0f8fad5b-d9cb-469f-a165-70867728950e
    name: post
    fields:
      - name: ` + name + `
        type: String
`))
			assert.ErrorContains(t, err, "must not contain", name)
		}
	})

	t.Run("LanguageWithSeparator", func(t *testing.T) {
		_, err := schema.Parse([]byte(`
schemas:
  - id: 0f8fad5b-d9cb-469f-a165-70867728950e
    name: post
    languages: [en, de/at]
    fields:
      - name: title
        type: String
`))
		assert.ErrorContains(t, err, "invalid language")
	})

	t.Run("LocalizedWithoutLanguages", func(t *testing.T) {
		_, err := schema.Parse([]byte(`
schemas:
  - id: 0f8fad5b-d9cb-469f-a165-70867728950e
    name: post
    fields:
      - name: title
        type: String
        partitioning: language
`))
		assert.ErrorContains(t, err, "needs schema languages")
	})
}
