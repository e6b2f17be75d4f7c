// Package query defines the abstract, schema-independent query language used
// to filter, sort and page content: a predicate tree over field paths plus
// ordering and pagination. Field paths are resolved against a schema only when
// the query is translated for a storage backend.
package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operator is a comparison operator.
type Operator string

// Comparison operators.
const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpLt         Operator = "lt"
	OpLe         Operator = "le"
	OpGt         Operator = "gt"
	OpGe         Operator = "ge"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startswith"
	OpEndsWith   Operator = "endswith"
)

// IsOrdered reports whether the operator compares by order rather than equality.
func (o Operator) IsOrdered() bool {
	switch o {
	case OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// IsStringFunction reports whether the operator is a substring match.
func (o Operator) IsStringFunction() bool {
	switch o {
	case OpContains, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	return o == OpEq || o == OpNe || o.IsOrdered() || o.IsStringFunction()
}

// Filter is a node of the predicate tree: *Comparison, *And, *Or or *Not.
type Filter interface {
	fmt.Stringer
	isFilter()
}

// Comparison compares the value at Path with a literal.
// A nil Value matches null or missing values and is only valid with eq and ne.
type Comparison struct {
	Path     string
	Operator Operator
	Value    any
}

// And matches when every child filter matches.
type And struct {
	Filters []Filter
}

// Or matches when at least one child filter matches.
type Or struct {
	Filters []Filter
}

// Not negates its child filter.
type Not struct {
	Filter Filter
}

func (*Comparison) isFilter() {}
func (*And) isFilter()        {}
func (*Or) isFilter()         {}
func (*Not) isFilter()        {}

// Eq builds an equality comparison.
func Eq(path string, value any) Filter { return &Comparison{Path: path, Operator: OpEq, Value: value} }

// Ne builds an inequality comparison.
func Ne(path string, value any) Filter { return &Comparison{Path: path, Operator: OpNe, Value: value} }

// Lt builds a less-than comparison.
func Lt(path string, value any) Filter { return &Comparison{Path: path, Operator: OpLt, Value: value} }

// Le builds a less-or-equal comparison.
func Le(path string, value any) Filter { return &Comparison{Path: path, Operator: OpLe, Value: value} }

// Gt builds a greater-than comparison.
func Gt(path string, value any) Filter { return &Comparison{Path: path, Operator: OpGt, Value: value} }

// Ge builds a greater-or-equal comparison.
func Ge(path string, value any) Filter { return &Comparison{Path: path, Operator: OpGe, Value: value} }

// Contains builds a substring match.
func Contains(path, value string) Filter {
	return &Comparison{Path: path, Operator: OpContains, Value: value}
}

// StartsWith builds a prefix match.
func StartsWith(path, value string) Filter {
	return &Comparison{Path: path, Operator: OpStartsWith, Value: value}
}

// EndsWith builds a suffix match.
func EndsWith(path, value string) Filter {
	return &Comparison{Path: path, Operator: OpEndsWith, Value: value}
}

// AllOf combines filters with AND.
func AllOf(filters ...Filter) Filter { return &And{Filters: filters} }

// AnyOf combines filters with OR.
func AnyOf(filters ...Filter) Filter { return &Or{Filters: filters} }

// Negate wraps a filter in NOT.
func Negate(f Filter) Filter { return &Not{Filter: f} }

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// SortField orders results by the value at Path.
type SortField struct {
	Path      string
	Direction Direction
}

// Query is a complete abstract query.
type Query struct {
	Filter Filter
	Sort   []SortField

	// Skip and Take page the result; Take <= 0 selects the repository default.
	Skip int
	Take int

	// Search is matched against the full-text index of the content.
	Search string
}

// String renders the comparison in OData filter syntax.
func (c *Comparison) String() string {
	if c.Operator.IsStringFunction() {
		return fmt.Sprintf("%s(%s,%s)", c.Operator, c.Path, formatLiteral(c.Value))
	}
	return fmt.Sprintf("%s %s %s", c.Path, c.Operator, formatLiteral(c.Value))
}

func (a *And) String() string { return joinFilters(a.Filters, " and ") }

func (o *Or) String() string { return joinFilters(o.Filters, " or ") }

func (n *Not) String() string { return "not (" + n.Filter.String() + ")" }

func joinFilters(filters []Filter, sep string) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = "(" + f.String() + ")"
	}
	return strings.Join(parts, sep)
}

func formatLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case uuid.UUID:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
