package schemacontent_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/schema-content/pkg/schemacontent"
)

func TestHydrate(t *testing.T) {
	s := testSchema()
	ref := uuid.New()
	row := &schemacontent.Row{
		ID:       uuid.New(),
		AppID:    s.AppID,
		SchemaID: s.ID,
		Version:  3,
		Status:   schemacontent.StatusPublished,
		IsLatest: true,
		Data: schemacontent.RawData{
			{Name: "title", Partitions: []schemacontent.RawPartition{{Key: "iv", Value: "Hello"}}},
			{Name: "body", Partitions: []schemacontent.RawPartition{
				{Key: "en", Value: "english"},
				{Key: "fr", Value: "dropped language"},
			}},
			{Name: "views", Partitions: []schemacontent.RawPartition{{Key: "iv", Value: int32(12)}}},
			{Name: "featured", Partitions: []schemacontent.RawPartition{{Key: "iv", Value: "not a bool"}}},
			{Name: "published", Partitions: []schemacontent.RawPartition{{Key: "iv", Value: "2024-05-01T12:00:00Z"}}},
			{Name: "related", Partitions: []schemacontent.RawPartition{{Key: "iv", Value: []any{ref.String()}}}},
			{Name: "tags", Partitions: []schemacontent.RawPartition{{Key: "iv", Value: []any{"a", "b"}}}},
			{Name: "meta", Partitions: []schemacontent.RawPartition{{Key: "iv", Value: map[string]any{"k": "v"}}}},
			{Name: "location", Partitions: []schemacontent.RawPartition{{Key: "iv", Value: map[string]any{"latitude": 1.5, "longitude": 2.5}}}},
			{Name: "removed", Partitions: []schemacontent.RawPartition{{Key: "iv", Value: "old"}}},
		},
	}

	item, err := schemacontent.Hydrate(row, s)
	require.NoError(t, err)

	title, ok := item.Data.Get("title", "iv").AsString()
	assert.True(t, ok)
	assert.Equal(t, "Hello", title)

	body, _ := item.Data.Get("body", "en").AsString()
	assert.Equal(t, "english", body)
	assert.True(t, item.Data.Get("body", "de").IsAbsent())

	views, ok := item.Data.Get("views", "iv").AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 12.0, views)

	published, ok := item.Data.Get("published", "iv").AsDateTime()
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), published)

	ids, ok := item.Data.Get("related", "iv").AsIDs()
	assert.True(t, ok)
	assert.Equal(t, []uuid.UUID{ref}, ids)

	tags, _ := item.Data.Get("tags", "iv").AsTags()
	assert.Equal(t, []string{"a", "b"}, tags)

	meta, ok := item.Data.Get("meta", "iv").AsJSON()
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"k": "v"}, meta)

	geo, ok := item.Data.Get("location", "iv").AsGeolocation()
	assert.True(t, ok)
	assert.Equal(t, schemacontent.Geolocation{Latitude: 1.5, Longitude: 2.5}, geo)

	// Drift is preserved, not interpreted.
	assert.True(t, item.Data.Get("featured", "iv").IsAbsent())
	assert.ElementsMatch(t, []schemacontent.RawField{
		{Name: "body", Partitions: []schemacontent.RawPartition{{Key: "fr", Value: "dropped language"}}},
		{Name: "featured", Partitions: []schemacontent.RawPartition{{Key: "iv", Value: "not a bool"}}},
		{Name: "removed", Partitions: []schemacontent.RawPartition{{Key: "iv", Value: "old"}}},
	}, item.Unknown)

	t.Run("WrongSchema", func(t *testing.T) {
		other := *row
		other.SchemaID = uuid.New()
		_, err := schemacontent.Hydrate(&other, s)
		assert.Error(t, err)
	})
}

func TestEncodeData_RoundTrip(t *testing.T) {
	s := testSchema()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	data := schemacontent.ContentData{}.
		Set("views", "iv", schemacontent.NumberValue(3)).
		Set("title", "iv", schemacontent.StringValue("t")).
		Set("published", "iv", schemacontent.DateTimeValue(ts)).
		Set("body", "de", schemacontent.StringValue("deutsch")).
		Set("body", "en", schemacontent.StringValue("english"))

	raw, err := schemacontent.EncodeData(s, data)
	require.NoError(t, err)

	names := make([]string, len(raw))
	for i, f := range raw {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"title", "body", "views", "published"}, names)
	assert.Equal(t, "en", raw[1].Partitions[0].Key)
	assert.Equal(t, "2024-05-01T12:00:00Z", raw[3].Partitions[0].Value)

	item, err := schemacontent.Hydrate(&schemacontent.Row{SchemaID: s.ID, Data: raw}, s)
	require.NoError(t, err)
	assert.Equal(t, data, item.Data)
	assert.Empty(t, item.Unknown)
}

func TestParseData(t *testing.T) {
	s := testSchema()

	var input map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"title": {"iv": "from json"},
		"views": {"iv": 7},
		"tags": {"iv": ["x"]},
		"featured": {"iv": null}
	}`), &input))

	data, err := schemacontent.ParseData(s, input)
	require.NoError(t, err)
	views, _ := data.Get("views", "iv").AsNumber()
	assert.Equal(t, 7.0, views)
	assert.True(t, data.Get("featured", "iv").IsAbsent())

	_, err = schemacontent.ParseData(s, map[string]map[string]any{"views": {"iv": "seven"}})
	assert.IsType(t, &schemacontent.TypeMismatchError{}, err)

	_, err = schemacontent.ParseData(s, map[string]map[string]any{"title": {"en": "x"}})
	assert.IsType(t, &schemacontent.UnknownFieldError{}, err)
}

func TestValue_MarshalJSON(t *testing.T) {
	data := schemacontent.ContentData{}.
		Set("when", "iv", schemacontent.DateTimeValue(time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC))).
		Set("where", "iv", schemacontent.GeolocationValue(1, 2)).
		Set("none", "iv", schemacontent.Value{})

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"when": {"iv": "2024-01-02T03:04:05Z"},
		"where": {"iv": {"latitude": 1, "longitude": 2}},
		"none": {"iv": null}
	}`, string(raw))
}
