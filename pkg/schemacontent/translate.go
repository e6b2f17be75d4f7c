package schemacontent

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
)

const (
	// DefaultTake is the page size used when a query does not set one.
	DefaultTake = 20

	// MaxTake caps the page size of a single query.
	MaxTake = 200
)

// Translate resolves q against s and returns the plan every Store executes.
//
// The plan filter always restricts rows to the schema's app and schema, the
// latest version and the given statuses (DefaultStatuses when empty). Results
// are sorted by the query's sort keys, lastModified descending when there are
// none, with ascending id appended so paging is deterministic.
//
// Failures are *UnknownFieldError, *TypeMismatchError or *UnsupportedQueryError.
func Translate(s *schema.Schema, statuses []Status, q *query.Query) (*Plan, error) {
	if q == nil {
		q = &query.Query{}
	}
	if q.Skip < 0 {
		return nil, &UnsupportedQueryError{Reason: "skip must not be negative"}
	}

	t := translator{schema: s}

	exprs, err := scope(s, statuses)
	if err != nil {
		return nil, err
	}
	if q.Filter != nil {
		f, err := t.filter(q.Filter)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, f)
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		exprs = append(exprs, &TextMatch{Text: search})
	}

	sort, err := t.sort(q.Sort)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Filter: &And{Exprs: exprs},
		Sort:   sort,
		Skip:   q.Skip,
		Take:   clampTake(q.Take),
	}, nil
}

// TranslateIDs builds the plan of a point lookup for a set of ids.
func TranslateIDs(s *schema.Schema, statuses []Status, ids []uuid.UUID) (*Plan, error) {
	exprs, err := scope(s, statuses)
	if err != nil {
		return nil, err
	}
	ids = uniqueIDs(ids)
	exprs = append(exprs, &In{Column: System(ColumnID), Values: idValues(ids)})

	return &Plan{
		Filter: &And{Exprs: exprs},
		Sort:   defaultSort(),
		Take:   len(ids),
	}, nil
}

func scope(s *schema.Schema, statuses []Status) ([]Expr, error) {
	if len(statuses) == 0 {
		statuses = DefaultStatuses
	}
	values := make([]any, 0, len(statuses))
	for _, st := range statuses {
		if !st.Valid() {
			return nil, &UnsupportedQueryError{Reason: "unknown status " + string(st)}
		}
		values = append(values, st)
	}
	return []Expr{
		&Compare{Column: System(ColumnAppID), Op: query.OpEq, Value: s.AppID},
		&Compare{Column: System(ColumnSchemaID), Op: query.OpEq, Value: s.ID},
		&Compare{Column: System(ColumnIsLatest), Op: query.OpEq, Value: true},
		&In{Column: System(ColumnStatus), Values: values},
	}, nil
}

// latestPlan finds the newest latest-flagged row of a content item, any status.
func latestPlan(appID, schemaID, id uuid.UUID) *Plan {
	return &Plan{
		Filter: &And{Exprs: []Expr{
			&Compare{Column: System(ColumnAppID), Op: query.OpEq, Value: appID},
			&Compare{Column: System(ColumnSchemaID), Op: query.OpEq, Value: schemaID},
			&Compare{Column: System(ColumnID), Op: query.OpEq, Value: id},
			&Compare{Column: System(ColumnIsLatest), Op: query.OpEq, Value: true},
		}},
		Sort: []Order{{Column: System(ColumnVersion), Descending: true}},
		Take: 1,
	}
}

// versionPlan finds the smallest stored version at or above minVersion.
func versionPlan(appID, schemaID, id uuid.UUID, minVersion int64) *Plan {
	return &Plan{
		Filter: &And{Exprs: []Expr{
			&Compare{Column: System(ColumnAppID), Op: query.OpEq, Value: appID},
			&Compare{Column: System(ColumnSchemaID), Op: query.OpEq, Value: schemaID},
			&Compare{Column: System(ColumnID), Op: query.OpEq, Value: id},
			&Compare{Column: System(ColumnVersion), Op: query.OpGe, Value: minVersion},
		}},
		Sort: []Order{{Column: System(ColumnVersion)}},
		Take: 1,
	}
}

// existsPlan matches any stored row of a content id within the app.
func existsPlan(appID, id uuid.UUID) *Plan {
	return &Plan{
		Filter: &And{Exprs: []Expr{
			&Compare{Column: System(ColumnAppID), Op: query.OpEq, Value: appID},
			&Compare{Column: System(ColumnID), Op: query.OpEq, Value: id},
		}},
		Take: 1,
	}
}

// idsPlan matches every stored row of the given ids within app and schema.
func idsPlan(appID, schemaID uuid.UUID, ids []uuid.UUID) *Plan {
	return &Plan{
		Filter: &And{Exprs: []Expr{
			&Compare{Column: System(ColumnAppID), Op: query.OpEq, Value: appID},
			&Compare{Column: System(ColumnSchemaID), Op: query.OpEq, Value: schemaID},
			&In{Column: System(ColumnID), Values: idValues(ids)},
		}},
	}
}

func defaultSort() []Order {
	return []Order{
		{Column: System(ColumnLastModified), Descending: true},
		{Column: System(ColumnID)},
	}
}

func clampTake(take int) int {
	switch {
	case take <= 0:
		return DefaultTake
	case take > MaxTake:
		return MaxTake
	}
	return take
}

type translator struct {
	schema *schema.Schema
}

func (t translator) filter(f query.Filter) (Expr, error) {
	switch n := f.(type) {
	case *query.Comparison:
		return t.comparison(n)
	case *query.And:
		exprs, err := t.children("and", n.Filters)
		if err != nil {
			return nil, err
		}
		return &And{Exprs: exprs}, nil
	case *query.Or:
		exprs, err := t.children("or", n.Filters)
		if err != nil {
			return nil, err
		}
		return &Or{Exprs: exprs}, nil
	case *query.Not:
		if n.Filter == nil {
			return nil, &UnsupportedQueryError{Reason: "not without operand"}
		}
		inner, err := t.filter(n.Filter)
		if err != nil {
			return nil, err
		}
		return &Not{Expr: inner}, nil
	default:
		return nil, &UnsupportedQueryError{Reason: "unknown filter node"}
	}
}

func (t translator) children(op string, filters []query.Filter) ([]Expr, error) {
	if len(filters) == 0 {
		return nil, &UnsupportedQueryError{Reason: op + " without operands"}
	}
	exprs := make([]Expr, 0, len(filters))
	for _, f := range filters {
		if f == nil {
			return nil, &UnsupportedQueryError{Reason: op + " with nil operand"}
		}
		e, err := t.filter(f)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

func (t translator) comparison(c *query.Comparison) (Expr, error) {
	if !c.Operator.Valid() {
		return nil, &UnsupportedQueryError{Path: c.Path, Reason: "unknown operator " + string(c.Operator)}
	}
	col, err := t.resolve(c.Path)
	if err != nil {
		return nil, err
	}

	if c.Value == nil {
		if c.Operator != query.OpEq && c.Operator != query.OpNe {
			return nil, &UnsupportedQueryError{Path: c.Path, Reason: "null can only be compared with eq or ne"}
		}
		return &Compare{Column: col, Op: c.Operator, Value: nil}, nil
	}

	kind := columnKind(col)
	switch {
	case c.Operator.IsStringFunction():
		if kind != schema.FieldTypeString && kind != schema.FieldTypeJSON {
			return nil, &UnsupportedQueryError{Path: c.Path, Reason: string(c.Operator) + " requires a string field"}
		}
		s, ok := c.Value.(string)
		if !ok {
			return nil, &TypeMismatchError{Path: c.Path, Expected: string(schema.FieldTypeString), Value: c.Value}
		}
		return &Compare{Column: col, Op: c.Operator, Value: s}, nil
	case c.Operator.IsOrdered():
		if !orderable(col) {
			return nil, &UnsupportedQueryError{Path: c.Path, Reason: string(c.Operator) + " is not supported for " + string(kind)}
		}
	}

	op, value := c.Operator, c.Value
	if col.IsData() && kind == schema.FieldTypeDateTime {
		if op, value, err = wholeSecondBound(c.Path, op, value); err != nil {
			return nil, err
		}
	}

	v, err := coerce(col, c.Path, value)
	if err != nil {
		return nil, err
	}
	return &Compare{Column: col, Op: op, Value: v}, nil
}

// wholeSecondBound rewrites a sub-second bound on a DateTime field into the
// whole-second bound that selects the same stored values. Stored DateTimes
// have second precision, so eq and ne cannot be expressed.
func wholeSecondBound(path string, op query.Operator, v any) (query.Operator, any, error) {
	ts, ok := toTime(v)
	if !ok || ts.Nanosecond() == 0 {
		return op, v, nil
	}
	floor := ts.Truncate(time.Second)
	switch op {
	case query.OpLt, query.OpGe:
		return op, floor.Add(time.Second), nil
	case query.OpLe, query.OpGt:
		return op, floor, nil
	}
	return op, nil, &TypeMismatchError{Path: path, Expected: "DateTime with whole seconds", Value: v}
}

func (t translator) sort(fields []query.SortField) ([]Order, error) {
	if len(fields) == 0 {
		return defaultSort(), nil
	}

	orders := make([]Order, 0, len(fields)+1)
	hasID := false
	for _, f := range fields {
		col, err := t.resolve(f.Path)
		if err != nil {
			return nil, err
		}
		if col.IsArray() {
			return nil, &UnsupportedQueryError{Path: f.Path, Reason: "cannot sort by an array field"}
		}
		var desc bool
		switch f.Direction {
		case "", query.Ascending:
		case query.Descending:
			desc = true
		default:
			return nil, &UnsupportedQueryError{Path: f.Path, Reason: "unknown sort direction " + string(f.Direction)}
		}
		if !col.IsData() && col.System == ColumnID {
			hasID = true
		}
		orders = append(orders, Order{Column: col, Descending: desc})
	}
	if !hasID {
		orders = append(orders, Order{Column: System(ColumnID)})
	}
	return orders, nil
}

// resolve maps a query path onto a column.
//
// Accepted forms are "id", "version", "lastModified" and
// "[data/]<field>[/<partition>][/<nested>...]" with "/" or "." separators.
// The partition may be omitted for invariant fields.
func (t translator) resolve(path string) (Column, error) {
	unknown := &UnknownFieldError{Schema: t.schema.Name, Path: path}

	segs := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '.' })
	if len(segs) == 0 {
		return Column{}, unknown
	}

	if len(segs) == 1 {
		switch segs[0] {
		case string(ColumnID):
			return System(ColumnID), nil
		case string(ColumnVersion):
			return System(ColumnVersion), nil
		case string(ColumnLastModified):
			return System(ColumnLastModified), nil
		}
	}

	if segs[0] == "data" {
		segs = segs[1:]
		if len(segs) == 0 {
			return Column{}, unknown
		}
	}

	field, ok := t.schema.Field(segs[0])
	if !ok {
		return Column{}, unknown
	}
	if field.Type == schema.FieldTypeGeolocation {
		return Column{}, &UnsupportedQueryError{Path: path, Reason: "geolocation fields cannot be queried"}
	}

	col := Column{Field: field.Name, Type: field.Type}
	rest := segs[1:]
	switch {
	case len(rest) > 0 && t.schema.HasPartition(field, rest[0]):
		col.Partition = rest[0]
		rest = rest[1:]
	case !field.IsLocalized() && (len(rest) == 0 || field.Type == schema.FieldTypeJSON):
		col.Partition = schema.InvariantPartition
	default:
		return Column{}, unknown
	}

	if len(rest) > 0 {
		if field.Type != schema.FieldTypeJSON {
			return Column{}, unknown
		}
		col.Nested = rest
	}
	return col, nil
}

// columnKind returns the value kind a column compares as.
func columnKind(c Column) schema.FieldType {
	if c.IsData() {
		if len(c.Nested) > 0 {
			return schema.FieldTypeJSON
		}
		return c.Type
	}
	switch c.System {
	case ColumnVersion:
		return schema.FieldTypeNumber
	case ColumnLastModified:
		return schema.FieldTypeDateTime
	default:
		return schema.FieldType("Guid")
	}
}

func orderable(c Column) bool {
	switch columnKind(c) {
	case schema.FieldTypeString, schema.FieldTypeNumber, schema.FieldTypeDateTime, schema.FieldTypeJSON:
		return true
	}
	return false
}

// coerce converts a literal into the representation the column is compared in.
func coerce(c Column, path string, v any) (any, error) {
	mismatch := func(expected string) error {
		return &TypeMismatchError{Path: path, Expected: expected, Value: v}
	}

	if !c.IsData() {
		switch c.System {
		case ColumnID:
			id, ok := toUUID(v)
			if !ok {
				return nil, mismatch("Guid")
			}
			return id, nil
		case ColumnVersion:
			n, ok := toFloat(v)
			if !ok || n != math.Trunc(n) {
				return nil, mismatch("Integer")
			}
			return int64(n), nil
		case ColumnLastModified:
			ts, ok := toTime(v)
			if !ok {
				return nil, mismatch(string(schema.FieldTypeDateTime))
			}
			return ts, nil
		}
		return nil, mismatch(string(c.System))
	}

	kind := columnKind(c)
	switch kind {
	case schema.FieldTypeString, schema.FieldTypeTags:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case schema.FieldTypeNumber:
		if n, ok := toFloat(v); ok {
			return n, nil
		}
	case schema.FieldTypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case schema.FieldTypeDateTime:
		if ts, ok := toTime(v); ok {
			return ts.Format(DateTimeFormat), nil
		}
	case schema.FieldTypeReferences, schema.FieldTypeAssets:
		if id, ok := toUUID(v); ok {
			return id.String(), nil
		}
	case schema.FieldTypeJSON:
		switch t := v.(type) {
		case string, bool:
			return t, nil
		}
		if n, ok := toFloat(v); ok {
			return n, nil
		}
	}
	return nil, mismatch(string(kind))
}

// toFloat converts numeric values. NaN and infinities are rejected.
func toFloat(v any) (float64, bool) {
	f, ok := anyFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func anyFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		ts, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return ts.UTC(), true
	}
	return time.Time{}, false
}

func toUUID(v any) (uuid.UUID, bool) {
	switch t := v.(type) {
	case uuid.UUID:
		return t, true
	case string:
		id, err := uuid.Parse(t)
		return id, err == nil
	}
	return uuid.Nil, false
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func idValues(ids []uuid.UUID) []any {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return values
}
