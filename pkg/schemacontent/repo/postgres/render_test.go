package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
)

func dataCol(field string, t schema.FieldType, nested ...string) schemacontent.Column {
	return schemacontent.Column{Field: field, Partition: schema.InvariantPartition, Nested: nested, Type: t}
}

func TestBuilder_Where(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")

	tests := []struct {
		name     string
		expr     schemacontent.Expr
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:    "nil",
			expr:    nil,
			wantSQL: "TRUE",
		},
		{
			name:     "system eq",
			expr:     &schemacontent.Compare{Column: schemacontent.System(schemacontent.ColumnID), Op: query.OpEq, Value: id},
			wantSQL:  "id = $1",
			wantArgs: []interface{}{id},
		},
		{
			name:     "status in",
			expr:     &schemacontent.In{Column: schemacontent.System(schemacontent.ColumnStatus), Values: []any{schemacontent.StatusDraft, schemacontent.StatusPublished}},
			wantSQL:  "status = ANY($1::text[])",
			wantArgs: []interface{}{[]string{"Draft", "Published"}},
		},
		{
			name:     "id in",
			expr:     &schemacontent.In{Column: schemacontent.System(schemacontent.ColumnID), Values: []any{id}},
			wantSQL:  "id = ANY($1::uuid[])",
			wantArgs: []interface{}{[]uuid.UUID{id}},
		},
		{
			name:     "referenced ids",
			expr:     &schemacontent.Compare{Column: schemacontent.System(schemacontent.ColumnReferencedIDs), Op: query.OpEq, Value: id},
			wantSQL:  "$1 = ANY(referenced_ids)",
			wantArgs: []interface{}{id},
		},
		{
			name:     "data eq",
			expr:     &schemacontent.Compare{Column: dataCol("title", schema.FieldTypeString), Op: query.OpEq, Value: "hello"},
			wantSQL:  "((data #> $1::text[]) = $2::jsonb)",
			wantArgs: []interface{}{[]string{"title", "iv"}, []byte(`"hello"`)},
		},
		{
			name:     "data array element",
			expr:     &schemacontent.Compare{Column: dataCol("tags", schema.FieldTypeTags), Op: query.OpNe, Value: "go"},
			wantSQL:  "NOT COALESCE((jsonb_typeof((data #> $1::text[])) = 'array' AND (data #> $1::text[]) @> $2::jsonb), false)",
			wantArgs: []interface{}{[]string{"tags", "iv"}, []byte(`["go"]`)},
		},
		{
			name:     "data null",
			expr:     &schemacontent.Compare{Column: dataCol("views", schema.FieldTypeNumber), Op: query.OpEq},
			wantSQL:  "((data #> $1::text[]) IS NULL OR jsonb_typeof((data #> $1::text[])) = 'null')",
			wantArgs: []interface{}{[]string{"views", "iv"}},
		},
		{
			name:     "number ordered",
			expr:     &schemacontent.Compare{Column: dataCol("views", schema.FieldTypeNumber), Op: query.OpGe, Value: 3.0},
			wantSQL:  "CASE WHEN jsonb_typeof((data #> $1::text[])) = 'number' THEN ((data #> $1::text[]) #>> '{}')::float8 >= $2 ELSE false END",
			wantArgs: []interface{}{[]string{"views", "iv"}, 3.0},
		},
		{
			name:     "nested json startswith",
			expr:     &schemacontent.Compare{Column: dataCol("meta", schema.FieldTypeJSON, "author"), Op: query.OpStartsWith, Value: "50%_"},
			wantSQL:  "(jsonb_typeof((data #> $1::text[])) = 'string' AND ((data #> $1::text[]) #>> '{}') ILIKE $2)",
			wantArgs: []interface{}{[]string{"meta", "iv", "author"}, `50\%\_%`},
		},
		{
			name:     "text match",
			expr:     &schemacontent.TextMatch{Text: "Hello, World"},
			wantSQL:  "to_tsvector('simple', data_text) @@ plainto_tsquery('simple', $1)",
			wantArgs: []interface{}{"hello world"},
		},
		{
			name:    "empty text match",
			expr:    &schemacontent.TextMatch{Text: "  ,"},
			wantSQL: "FALSE",
		},
		{
			name: "and not",
			expr: &schemacontent.And{Exprs: []schemacontent.Expr{
				&schemacontent.Compare{Column: schemacontent.System(schemacontent.ColumnIsLatest), Op: query.OpEq, Value: true},
				&schemacontent.Not{Expr: &schemacontent.Compare{Column: schemacontent.System(schemacontent.ColumnVersion), Op: query.OpLt, Value: int64(2)}},
			}},
			wantSQL:  "(is_latest = $1) AND (NOT COALESCE((version < $2), false))",
			wantArgs: []interface{}{true, int64(2)},
		},
		{
			name:    "empty or",
			expr:    &schemacontent.Or{},
			wantSQL: "FALSE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &builder{}
			sql, err := b.where(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, b.args)
		})
	}
}

func TestBuilder_LastModifiedIsUTC(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	b := &builder{}
	_, err := b.where(&schemacontent.Compare{Column: schemacontent.System(schemacontent.ColumnLastModified), Op: query.OpGt, Value: ts})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, b.args[0].(time.Time).Location())
}

func TestBuilder_RejectsUnknownOperator(t *testing.T) {
	b := &builder{}
	_, err := b.where(&schemacontent.Compare{Column: schemacontent.System(schemacontent.ColumnReferencedIDs), Op: query.OpGt, Value: uuid.New()})
	assert.Error(t, err)
}

func TestSelectSQL(t *testing.T) {
	plan := &schemacontent.Plan{
		Filter: &schemacontent.Compare{Column: schemacontent.System(schemacontent.ColumnIsLatest), Op: query.OpEq, Value: true},
		Sort: []schemacontent.Order{
			{Column: dataCol("views", schema.FieldTypeNumber), Descending: true},
			{Column: schemacontent.System(schemacontent.ColumnID)},
		},
		Skip: 10,
		Take: 5,
	}

	sql, args, err := selectSQL("contents", plan)
	require.NoError(t, err)
	assert.Equal(t, "SELECT "+rowColumns+" FROM contents WHERE is_latest = $1"+
		" ORDER BY (CASE WHEN jsonb_typeof((data #> $2::text[])) = 'number' THEN ((data #> $2::text[]) #>> '{}')::float8 END) DESC NULLS LAST, id ASC NULLS FIRST"+
		" LIMIT $3 OFFSET $4", sql)
	assert.Equal(t, []interface{}{true, []string{"views", "iv"}, 5, 10}, args)

	sql, _, err = selectSQL("contents", &schemacontent.Plan{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT "+rowColumns+" FROM contents WHERE TRUE", sql)
}

func TestCountAndIDsSQL(t *testing.T) {
	plan := &schemacontent.Plan{
		Filter: &schemacontent.Compare{Column: schemacontent.System(schemacontent.ColumnIsLatest), Op: query.OpEq, Value: true},
		Take:   5,
	}

	sql, args, err := countSQL("contents", plan)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM contents WHERE is_latest = $1", sql)
	assert.Equal(t, []interface{}{true}, args)

	sql, _, err = idsSQL("contents", plan)
	require.NoError(t, err)
	assert.Equal(t, "SELECT DISTINCT id FROM contents WHERE is_latest = $1", sql)
}

func TestCreateIndexSQL(t *testing.T) {
	want := map[string]string{
		"id_version":             "CREATE INDEX IF NOT EXISTS contents_id_version ON contents (app_id, id, version)",
		"id_version_desc":        "CREATE INDEX IF NOT EXISTS contents_id_version_desc ON contents (app_id, id, version DESC)",
		"schema_latest_modified": "CREATE INDEX IF NOT EXISTS contents_schema_latest_modified ON contents (app_id, schema_id, is_latest DESC, last_modified DESC)",
		"referenced_ids":         "CREATE INDEX IF NOT EXISTS contents_referenced_ids ON contents USING GIN (referenced_ids)",
		"status":                 "CREATE INDEX IF NOT EXISTS contents_status ON contents (app_id, status)",
		"data_text":              "CREATE INDEX IF NOT EXISTS contents_data_text ON contents USING GIN (to_tsvector('simple', data_text))",
	}

	for _, idx := range schemacontent.RequiredIndexes() {
		sql, err := createIndexSQL("contents", idx)
		require.NoError(t, err)
		assert.Equal(t, want[idx.Name], sql, idx.Name)
	}

	_, err := createIndexSQL("contents", schemacontent.IndexSpec{Name: "empty"})
	assert.Error(t, err)
}
