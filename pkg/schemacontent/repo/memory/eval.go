package memory

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
)

// matches evaluates a plan filter against one row.
func matches(row *schemacontent.Row, e schemacontent.Expr) bool {
	switch n := e.(type) {
	case *schemacontent.And:
		for _, child := range n.Exprs {
			if !matches(row, child) {
				return false
			}
		}
		return true
	case *schemacontent.Or:
		for _, child := range n.Exprs {
			if matches(row, child) {
				return true
			}
		}
		return false
	case *schemacontent.Not:
		return !matches(row, n.Expr)
	case *schemacontent.In:
		for _, v := range n.Values {
			if equals(row, n.Column, v) {
				return true
			}
		}
		return false
	case *schemacontent.TextMatch:
		return textMatches(row.DataText, n.Text)
	case *schemacontent.Compare:
		return compare(row, n)
	}
	return false
}

func compare(row *schemacontent.Row, c *schemacontent.Compare) bool {
	if c.Value == nil {
		v, ok := lookup(row, c.Column)
		present := ok && v != nil
		if c.Op == query.OpNe {
			return present
		}
		return !present
	}

	switch {
	case c.Op == query.OpEq:
		return equals(row, c.Column, c.Value)
	case c.Op == query.OpNe:
		return !equals(row, c.Column, c.Value)
	case c.Op.IsStringFunction():
		v, _ := lookup(row, c.Column)
		s, ok := v.(string)
		if !ok {
			return false
		}
		return stringMatches(c.Op, strings.ToLower(s), strings.ToLower(c.Value.(string)))
	case c.Op.IsOrdered():
		v, ok := lookup(row, c.Column)
		if !ok {
			return false
		}
		cmp, ok := compareValues(v, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case query.OpLt:
			return cmp < 0
		case query.OpLe:
			return cmp <= 0
		case query.OpGt:
			return cmp > 0
		case query.OpGe:
			return cmp >= 0
		}
	}
	return false
}

func stringMatches(op query.Operator, s, pattern string) bool {
	switch op {
	case query.OpContains:
		return strings.Contains(s, pattern)
	case query.OpStartsWith:
		return strings.HasPrefix(s, pattern)
	case query.OpEndsWith:
		return strings.HasSuffix(s, pattern)
	}
	return false
}

// equals matches scalars by value and arrays by element.
func equals(row *schemacontent.Row, col schemacontent.Column, want any) bool {
	v, ok := lookup(row, col)
	if !ok || v == nil {
		return false
	}
	if col.IsArray() {
		for _, elem := range elements(v) {
			if cmp, ok := compareValues(elem, want); ok && cmp == 0 {
				return true
			}
		}
		return false
	}
	cmp, ok := compareValues(v, want)
	return ok && cmp == 0
}

func elements(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []uuid.UUID:
		out := make([]any, len(t))
		for i, id := range t {
			out[i] = id
		}
		return out
	}
	return nil
}

func textMatches(text, search string) bool {
	words := make(map[string]bool)
	for _, w := range schemacontent.SearchTerms(text) {
		words[w] = true
	}
	terms := schemacontent.SearchTerms(search)
	if len(terms) == 0 {
		return false
	}
	for _, term := range terms {
		if !words[term] {
			return false
		}
	}
	return true
}

// lookup returns the value a column addresses in a row.
func lookup(row *schemacontent.Row, col schemacontent.Column) (any, bool) {
	if !col.IsData() {
		switch col.System {
		case schemacontent.ColumnID:
			return row.ID, true
		case schemacontent.ColumnAppID:
			return row.AppID, true
		case schemacontent.ColumnSchemaID:
			return row.SchemaID, true
		case schemacontent.ColumnVersion:
			return row.Version, true
		case schemacontent.ColumnStatus:
			return row.Status, true
		case schemacontent.ColumnIsLatest:
			return row.IsLatest, true
		case schemacontent.ColumnLastModified:
			return row.LastModified, true
		case schemacontent.ColumnReferencedIDs:
			return row.ReferencedIDs, true
		case schemacontent.ColumnDataText:
			return row.DataText, true
		}
		return nil, false
	}

	v, ok := row.Data.Lookup(col.Field, col.Partition)
	if !ok {
		return nil, false
	}
	for _, seg := range col.Nested {
		m, isMap := v.(map[string]any)
		if !isMap {
			return nil, false
		}
		v, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return v, true
}

// compareValues orders two values of the same kind. It reports false when the
// kinds differ.
func compareValues(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		return compareOrdered(x, y), true
	case int64:
		y, ok := b.(int64)
		if !ok {
			return 0, false
		}
		return compareOrdered(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case uuid.UUID:
		y, ok := b.(uuid.UUID)
		if !ok {
			return 0, false
		}
		return strings.Compare(x.String(), y.String()), true
	case schemacontent.Status:
		y, ok := b.(schemacontent.Status)
		if !ok {
			return 0, false
		}
		return strings.Compare(string(x), string(y)), true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	}
	return 0, false
}

func compareOrdered[T int64 | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// kindRank orders values of different kinds: missing, numbers, strings,
// everything else.
func kindRank(v any, ok bool) int {
	if !ok || v == nil {
		return 0
	}
	switch v.(type) {
	case float64, int64:
		return 1
	case string:
		return 2
	}
	return 3
}

func sortRows(rows []*schemacontent.Row, orders []schemacontent.Order) {
	if len(orders) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range orders {
			a, aok := lookup(rows[i], o.Column)
			b, bok := lookup(rows[j], o.Column)

			cmp, ok := compareValues(a, b)
			if !ok {
				cmp = kindRank(a, aok) - kindRank(b, bok)
			}
			if cmp == 0 {
				continue
			}
			if o.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}
