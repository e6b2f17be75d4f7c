package schemacontent_test

import (
	"math"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
)

func testSchema() *schema.Schema {
	return &schema.Schema{
		ID:        uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e"),
		AppID:     uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7"),
		Name:      "post",
		Languages: []string{"en", "de"},
		Fields: []schema.Field{
			{Name: "title", Type: schema.FieldTypeString},
			{Name: "body", Type: schema.FieldTypeString, Partitioning: schema.PartitioningLanguage},
			{Name: "views", Type: schema.FieldTypeNumber},
			{Name: "featured", Type: schema.FieldTypeBoolean},
			{Name: "published", Type: schema.FieldTypeDateTime},
			{Name: "related", Type: schema.FieldTypeReferences},
			{Name: "images", Type: schema.FieldTypeAssets},
			{Name: "tags", Type: schema.FieldTypeTags},
			{Name: "meta", Type: schema.FieldTypeJSON},
			{Name: "location", Type: schema.FieldTypeGeolocation},
		},
	}
}

// userFilter returns the translated caller filter, the fifth child of the plan's And.
func userFilter(t *testing.T, plan *schemacontent.Plan) schemacontent.Expr {
	t.Helper()
	and, ok := plan.Filter.(*schemacontent.And)
	require.True(t, ok)
	require.GreaterOrEqual(t, len(and.Exprs), 5)
	return and.Exprs[4]
}

func TestTranslate_Scope(t *testing.T) {
	s := testSchema()

	plan, err := schemacontent.Translate(s, nil, nil)
	require.NoError(t, err)

	and := plan.Filter.(*schemacontent.And)
	require.Len(t, and.Exprs, 4)
	assert.Equal(t, &schemacontent.Compare{Column: schemacontent.System(schemacontent.ColumnAppID), Op: query.OpEq, Value: s.AppID}, and.Exprs[0])
	assert.Equal(t, &schemacontent.Compare{Column: schemacontent.System(schemacontent.ColumnSchemaID), Op: query.OpEq, Value: s.ID}, and.Exprs[1])
	assert.Equal(t, &schemacontent.Compare{Column: schemacontent.System(schemacontent.ColumnIsLatest), Op: query.OpEq, Value: true}, and.Exprs[2])
	assert.Equal(t, &schemacontent.In{
		Column: schemacontent.System(schemacontent.ColumnStatus),
		Values: []any{schemacontent.StatusDraft, schemacontent.StatusPublished},
	}, and.Exprs[3])

	assert.Equal(t, schemacontent.DefaultTake, plan.Take)
	assert.Equal(t, []schemacontent.Order{
		{Column: schemacontent.System(schemacontent.ColumnLastModified), Descending: true},
		{Column: schemacontent.System(schemacontent.ColumnID)},
	}, plan.Sort)
}

func TestTranslate_Paths(t *testing.T) {
	s := testSchema()

	tests := []struct {
		path string
		want schemacontent.Column
	}{
		{"data/title/iv", schemacontent.Column{Field: "title", Partition: "iv", Type: schema.FieldTypeString}},
		{"data.title.iv", schemacontent.Column{Field: "title", Partition: "iv", Type: schema.FieldTypeString}},
		{"title", schemacontent.Column{Field: "title", Partition: "iv", Type: schema.FieldTypeString}},
		{"data/body/de", schemacontent.Column{Field: "body", Partition: "de", Type: schema.FieldTypeString}},
		{"data/meta/iv/author/name", schemacontent.Column{Field: "meta", Partition: "iv", Nested: []string{"author", "name"}, Type: schema.FieldTypeJSON}},
		{"data/meta/author", schemacontent.Column{Field: "meta", Partition: "iv", Nested: []string{"author"}, Type: schema.FieldTypeJSON}},
		{"id", schemacontent.System(schemacontent.ColumnID)},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			plan, err := schemacontent.Translate(s, nil, &query.Query{Filter: query.Eq(tt.path, nil)})
			require.NoError(t, err)
			cmp := userFilter(t, plan).(*schemacontent.Compare)
			assert.Equal(t, tt.want, cmp.Column)
		})
	}
}

func TestTranslate_UnknownField(t *testing.T) {
	s := testSchema()

	paths := []string{
		"data/missing/iv",
		"data/body",       // localized field needs a language
		"data/body/fr",    // language not in schema
		"data/title/en",   // invariant field has no language partitions
		"data/title/iv/x", // nested path on a non-JSON field
		"data",
		"created",
	}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			_, err := schemacontent.Translate(s, nil, &query.Query{Filter: query.Eq(p, "x")})
			var unknown *schemacontent.UnknownFieldError
			require.True(t, errors.As(err, &unknown), "got %v", err)
			assert.Equal(t, p, unknown.Path)
		})
	}

	t.Run("Sort", func(t *testing.T) {
		_, err := schemacontent.Translate(s, nil, &query.Query{Sort: []query.SortField{{Path: "data/nope/iv"}}})
		var unknown *schemacontent.UnknownFieldError
		assert.True(t, errors.As(err, &unknown))
	})
}

func TestTranslate_Coercion(t *testing.T) {
	s := testSchema()
	ref := uuid.New()
	ts := time.Date(2024, 5, 1, 12, 30, 15, 999, time.FixedZone("x", 3600))

	tests := []struct {
		name   string
		filter query.Filter
		want   any
	}{
		{"int to number", query.Eq("data/views/iv", 3), 3.0},
		{"bool", query.Eq("data/featured/iv", true), true},
		{"datetime", query.Ge("data/published/iv", ts), "2024-05-01T11:30:16Z"},
		{"datetime whole second", query.Ge("data/published/iv", ts.Truncate(time.Second)), "2024-05-01T11:30:15Z"},
		{"datetime string", query.Lt("data/published/iv", "2024-05-01T12:00:00Z"), "2024-05-01T12:00:00Z"},
		{"reference uuid", query.Eq("data/related/iv", ref), ref.String()},
		{"reference string", query.Eq("data/images/iv", ref.String()), ref.String()},
		{"tag", query.Eq("data/tags/iv", "go"), "go"},
		{"json number", query.Gt("data/meta/iv/score", 2), 2.0},
		{"id", query.Eq("id", ref.String()), ref},
		{"version", query.Ge("version", 2.0), int64(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := schemacontent.Translate(s, nil, &query.Query{Filter: tt.filter})
			require.NoError(t, err)
			assert.Equal(t, tt.want, userFilter(t, plan).(*schemacontent.Compare).Value)
		})
	}
}

func TestTranslate_TypeMismatch(t *testing.T) {
	s := testSchema()

	filters := []query.Filter{
		query.Eq("data/views/iv", "ten"),
		query.Eq("data/title/iv", 10),
		query.Eq("data/featured/iv", "yes"),
		query.Eq("data/published/iv", "yesterday"),
		query.Eq("data/related/iv", "not-a-uuid"),
		query.Eq("id", 42),
		query.Eq("version", 1.5),
		query.Eq("data/views/iv", math.NaN()),
		query.Gt("data/views/iv", math.Inf(1)),
		query.Lt("data/meta/iv/score", math.Inf(-1)),
		query.Eq("version", math.NaN()),
		query.Eq("data/published/iv", "2024-05-01T12:00:00.5Z"),
		query.Ne("data/published/iv", "2024-05-01T12:00:00.5Z"),
		&query.Comparison{Path: "data/title/iv", Operator: query.OpContains, Value: 3},
	}
	for _, f := range filters {
		t.Run(f.String(), func(t *testing.T) {
			_, err := schemacontent.Translate(s, nil, &query.Query{Filter: f})
			var mismatch *schemacontent.TypeMismatchError
			assert.True(t, errors.As(err, &mismatch), "got %v", err)
		})
	}
}

func TestTranslate_SubSecondDateTime(t *testing.T) {
	s := testSchema()
	bound := "2024-05-01T12:00:00.5Z"

	tests := []struct {
		op   query.Operator
		want string
	}{
		{query.OpLt, "2024-05-01T12:00:01Z"},
		{query.OpLe, "2024-05-01T12:00:00Z"},
		{query.OpGt, "2024-05-01T12:00:00Z"},
		{query.OpGe, "2024-05-01T12:00:01Z"},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			f := &query.Comparison{Path: "data/published/iv", Operator: tt.op, Value: bound}
			plan, err := schemacontent.Translate(s, nil, &query.Query{Filter: f})
			require.NoError(t, err)
			cmp := userFilter(t, plan).(*schemacontent.Compare)
			assert.Equal(t, tt.op, cmp.Op)
			assert.Equal(t, tt.want, cmp.Value)
		})
	}
}

func TestTranslate_Unsupported(t *testing.T) {
	s := testSchema()

	tests := []struct {
		name string
		q    *query.Query
	}{
		{"ordered on boolean", &query.Query{Filter: query.Gt("data/featured/iv", true)}},
		{"ordered on references", &query.Query{Filter: query.Lt("data/related/iv", uuid.New())}},
		{"ordered on tags", &query.Query{Filter: query.Ge("data/tags/iv", "a")}},
		{"string function on number", &query.Query{Filter: query.StartsWith("data/views/iv", "1")}},
		{"null with ordered", &query.Query{Filter: query.Gt("data/views/iv", nil)}},
		{"geolocation", &query.Query{Filter: query.Eq("data/location/iv", 1)}},
		{"empty and", &query.Query{Filter: query.AllOf()}},
		{"empty or", &query.Query{Filter: query.AnyOf()}},
		{"negative skip", &query.Query{Skip: -1}},
		{"sort by tags", &query.Query{Sort: []query.SortField{{Path: "data/tags/iv"}}}},
		{"bad direction", &query.Query{Sort: []query.SortField{{Path: "id", Direction: "up"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schemacontent.Translate(s, nil, tt.q)
			var unsupported *schemacontent.UnsupportedQueryError
			assert.True(t, errors.As(err, &unsupported), "got %v", err)
		})
	}

	t.Run("UnknownStatus", func(t *testing.T) {
		_, err := schemacontent.Translate(s, []schemacontent.Status{"Deleted"}, nil)
		var unsupported *schemacontent.UnsupportedQueryError
		assert.True(t, errors.As(err, &unsupported))
	})
}

func TestTranslate_SortTieBreak(t *testing.T) {
	s := testSchema()

	plan, err := schemacontent.Translate(s, nil, &query.Query{
		Sort: []query.SortField{{Path: "data/views/iv", Direction: query.Descending}},
	})
	require.NoError(t, err)
	require.Len(t, plan.Sort, 2)
	assert.True(t, plan.Sort[0].Descending)
	assert.Equal(t, schemacontent.System(schemacontent.ColumnID), plan.Sort[1].Column)
	assert.False(t, plan.Sort[1].Descending)

	plan, err = schemacontent.Translate(s, nil, &query.Query{
		Sort: []query.SortField{{Path: "id", Direction: query.Descending}},
	})
	require.NoError(t, err)
	require.Len(t, plan.Sort, 1)
	assert.True(t, plan.Sort[0].Descending)
}

func TestTranslate_TakeAndSearch(t *testing.T) {
	s := testSchema()

	plan, err := schemacontent.Translate(s, nil, &query.Query{Take: 5000, Skip: 3, Search: " hello world "})
	require.NoError(t, err)
	assert.Equal(t, schemacontent.MaxTake, plan.Take)
	assert.Equal(t, 3, plan.Skip)
	assert.Equal(t, &schemacontent.TextMatch{Text: "hello world"}, userFilter(t, plan))
}

func TestTranslateIDs(t *testing.T) {
	s := testSchema()
	a, b := uuid.New(), uuid.New()

	plan, err := schemacontent.TranslateIDs(s, []schemacontent.Status{schemacontent.StatusPublished}, []uuid.UUID{a, b, a})
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Take)
	assert.Equal(t, &schemacontent.In{Column: schemacontent.System(schemacontent.ColumnID), Values: []any{a, b}}, userFilter(t, plan))
}
