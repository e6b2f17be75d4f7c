package postgres

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
)

var systemColumns = map[schemacontent.SystemColumn]string{
	schemacontent.ColumnID:            "id",
	schemacontent.ColumnAppID:         "app_id",
	schemacontent.ColumnSchemaID:      "schema_id",
	schemacontent.ColumnVersion:       "version",
	schemacontent.ColumnStatus:        "status",
	schemacontent.ColumnIsLatest:      "is_latest",
	schemacontent.ColumnLastModified:  "last_modified",
	schemacontent.ColumnReferencedIDs: "referenced_ids",
	schemacontent.ColumnDataText:      "data_text",
}

// textVector is shared by the full-text index and the filter that uses it.
const textVector = "to_tsvector('simple', data_text)"

// builder renders plan nodes into SQL with positional arguments.
type builder struct {
	args []interface{}
}

func (b *builder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) jsonArg(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "encode filter value")
	}
	return b.arg(raw) + "::jsonb", nil
}

func (b *builder) column(col schemacontent.Column) (string, error) {
	if col.IsData() {
		return fmt.Sprintf("(data #> %s::text[])", b.arg(col.Path())), nil
	}
	name, ok := systemColumns[col.System]
	if !ok {
		return "", errors.Newf("unknown system column %q", col.System)
	}
	return name, nil
}

// where renders a filter; a nil filter matches everything.
func (b *builder) where(e schemacontent.Expr) (string, error) {
	if e == nil {
		return "TRUE", nil
	}
	switch n := e.(type) {
	case *schemacontent.And:
		return b.join(n.Exprs, " AND ", "TRUE")
	case *schemacontent.Or:
		return b.join(n.Exprs, " OR ", "FALSE")
	case *schemacontent.Not:
		inner, err := b.where(n.Expr)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT COALESCE((%s), false)", inner), nil
	case *schemacontent.TextMatch:
		terms := schemacontent.SearchTerms(n.Text)
		if len(terms) == 0 {
			return "FALSE", nil
		}
		return fmt.Sprintf("%s @@ plainto_tsquery('simple', %s)", textVector, b.arg(strings.Join(terms, " "))), nil
	case *schemacontent.In:
		return b.in(n)
	case *schemacontent.Compare:
		if n.Column.IsData() {
			return b.compareData(n)
		}
		return b.compareSystem(n)
	}
	return "", errors.Newf("unsupported filter node %T", e)
}

func (b *builder) join(exprs []schemacontent.Expr, sep, empty string) (string, error) {
	if len(exprs) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(exprs))
	for _, child := range exprs {
		sql, err := b.where(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+sql+")")
	}
	return strings.Join(parts, sep), nil
}

func (b *builder) in(n *schemacontent.In) (string, error) {
	if len(n.Values) == 0 {
		return "FALSE", nil
	}
	if n.Column.IsData() || n.Column.System == schemacontent.ColumnReferencedIDs {
		alternatives := make([]schemacontent.Expr, len(n.Values))
		for i, v := range n.Values {
			alternatives[i] = &schemacontent.Compare{Column: n.Column, Op: query.OpEq, Value: v}
		}
		return b.join(alternatives, " OR ", "FALSE")
	}

	col, err := b.column(n.Column)
	if err != nil {
		return "", err
	}
	values, cast, err := systemArray(n.Values)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s = ANY(%s::%s)", col, b.arg(values), cast), nil
}

// systemArray converts typed system values into a slice pgx can encode.
func systemArray(values []interface{}) (interface{}, string, error) {
	switch values[0].(type) {
	case uuid.UUID:
		out := make([]uuid.UUID, len(values))
		for i, v := range values {
			id, ok := v.(uuid.UUID)
			if !ok {
				return nil, "", errors.Newf("mixed values in list: %T", v)
			}
			out[i] = id
		}
		return out, "uuid[]", nil
	case int64:
		out := make([]int64, len(values))
		for i, v := range values {
			n, ok := v.(int64)
			if !ok {
				return nil, "", errors.Newf("mixed values in list: %T", v)
			}
			out[i] = n
		}
		return out, "bigint[]", nil
	default:
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = fmt.Sprint(systemValue(v))
		}
		return out, "text[]", nil
	}
}

// systemValue unwraps named types pgx would otherwise not know.
func systemValue(v interface{}) interface{} {
	switch t := v.(type) {
	case schemacontent.Status:
		return string(t)
	case time.Time:
		return t.UTC()
	}
	return v
}

func (b *builder) compareSystem(c *schemacontent.Compare) (string, error) {
	col, err := b.column(c.Column)
	if err != nil {
		return "", err
	}

	if c.Value == nil {
		if c.Op == query.OpNe {
			return col + " IS NOT NULL", nil
		}
		return col + " IS NULL", nil
	}

	if c.Column.System == schemacontent.ColumnReferencedIDs {
		expr := fmt.Sprintf("%s = ANY(%s)", b.arg(c.Value), col)
		switch c.Op {
		case query.OpEq:
			return expr, nil
		case query.OpNe:
			return fmt.Sprintf("NOT (%s)", expr), nil
		}
		return "", errors.Newf("operator %s not supported on %s", c.Op, c.Column)
	}

	if c.Op.IsStringFunction() {
		s, ok := c.Value.(string)
		if !ok {
			return "", errors.Newf("operator %s needs a string value", c.Op)
		}
		return fmt.Sprintf("%s::text ILIKE %s", col, b.arg(likePattern(c.Op, s))), nil
	}

	op, err := sqlOperator(c.Op)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", col, op, b.arg(systemValue(c.Value))), nil
}

func (b *builder) compareData(c *schemacontent.Compare) (string, error) {
	col, err := b.column(c.Column)
	if err != nil {
		return "", err
	}

	if c.Value == nil {
		if c.Op == query.OpNe {
			return fmt.Sprintf("(%s IS NOT NULL AND jsonb_typeof(%s) <> 'null')", col, col), nil
		}
		return fmt.Sprintf("(%s IS NULL OR jsonb_typeof(%s) = 'null')", col, col), nil
	}

	switch {
	case c.Op == query.OpEq || c.Op == query.OpNe:
		eq, err := b.dataEquals(c.Column, col, c.Value)
		if err != nil {
			return "", err
		}
		if c.Op == query.OpNe {
			return fmt.Sprintf("NOT COALESCE(%s, false)", eq), nil
		}
		return eq, nil

	case c.Op.IsStringFunction():
		s, ok := c.Value.(string)
		if !ok {
			return "", errors.Newf("operator %s needs a string value", c.Op)
		}
		return fmt.Sprintf("(jsonb_typeof(%s) = 'string' AND (%s #>> '{}') ILIKE %s)",
			col, col, b.arg(likePattern(c.Op, s))), nil

	case c.Op.IsOrdered():
		op, err := sqlOperator(c.Op)
		if err != nil {
			return "", err
		}
		switch v := c.Value.(type) {
		case float64:
			return fmt.Sprintf("CASE WHEN jsonb_typeof(%s) = 'number' THEN (%s #>> '{}')::float8 %s %s ELSE false END",
				col, col, op, b.arg(v)), nil
		case string:
			return fmt.Sprintf("CASE WHEN jsonb_typeof(%s) = 'string' THEN (%s #>> '{}') COLLATE \"C\" %s %s ELSE false END",
				col, col, op, b.arg(v)), nil
		case bool:
			return fmt.Sprintf("CASE WHEN jsonb_typeof(%s) = 'boolean' THEN (%s #>> '{}')::boolean %s %s ELSE false END",
				col, col, op, b.arg(v)), nil
		}
		return "", errors.Newf("operator %s not supported for %T", c.Op, c.Value)
	}
	return "", errors.Newf("unsupported operator %s", c.Op)
}

// dataEquals matches scalars by value and arrays by element containment.
func (b *builder) dataEquals(column schemacontent.Column, col string, v interface{}) (string, error) {
	if column.IsArray() {
		arg, err := b.jsonArg([]interface{}{v})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(jsonb_typeof(%s) = 'array' AND %s @> %s)", col, col, arg), nil
	}
	arg, err := b.jsonArg(v)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s = %s)", col, arg), nil
}

func sqlOperator(op query.Operator) (string, error) {
	switch op {
	case query.OpEq:
		return "=", nil
	case query.OpNe:
		return "<>", nil
	case query.OpLt:
		return "<", nil
	case query.OpLe:
		return "<=", nil
	case query.OpGt:
		return ">", nil
	case query.OpGe:
		return ">=", nil
	}
	return "", errors.Newf("unsupported operator %s", op)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(op query.Operator, s string) string {
	s = likeEscaper.Replace(s)
	switch op {
	case query.OpStartsWith:
		return s + "%"
	case query.OpEndsWith:
		return "%" + s
	}
	return "%" + s + "%"
}

// orderBy renders sort keys. Missing values sort first ascending.
func (b *builder) orderBy(sort []schemacontent.Order) (string, error) {
	if len(sort) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(sort))
	for _, o := range sort {
		expr, err := b.sortExpr(o.Column)
		if err != nil {
			return "", err
		}
		if o.Descending {
			parts = append(parts, expr+" DESC NULLS LAST")
		} else {
			parts = append(parts, expr+" ASC NULLS FIRST")
		}
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func (b *builder) sortExpr(col schemacontent.Column) (string, error) {
	expr, err := b.column(col)
	if err != nil || !col.IsData() || len(col.Nested) > 0 {
		return expr, err
	}
	switch col.Type {
	case schema.FieldTypeNumber:
		return fmt.Sprintf("(CASE WHEN jsonb_typeof(%s) = 'number' THEN (%s #>> '{}')::float8 END)", expr, expr), nil
	case schema.FieldTypeString, schema.FieldTypeDateTime:
		return fmt.Sprintf("((%s #>> '{}') COLLATE \"C\")", expr), nil
	}
	return expr, nil
}

func (b *builder) page(skip, take int) string {
	var sql string
	if take > 0 {
		sql += " LIMIT " + b.arg(take)
	}
	if skip > 0 {
		sql += " OFFSET " + b.arg(skip)
	}
	return sql
}

// selectSQL renders a full row query for a plan.
func selectSQL(table string, plan *schemacontent.Plan) (string, []interface{}, error) {
	b := &builder{}
	where, err := b.where(plan.Filter)
	if err != nil {
		return "", nil, err
	}
	order, err := b.orderBy(plan.Sort)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s%s%s", rowColumns, table, where, order, b.page(plan.Skip, plan.Take))
	return sql, b.args, nil
}

func countSQL(table string, plan *schemacontent.Plan) (string, []interface{}, error) {
	b := &builder{}
	where, err := b.where(plan.Filter)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, where), b.args, nil
}

func idsSQL(table string, plan *schemacontent.Plan) (string, []interface{}, error) {
	b := &builder{}
	where, err := b.where(plan.Filter)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT DISTINCT id FROM %s WHERE %s", table, where), b.args, nil
}
