package schemacontent

import (
	"strings"
	"unicode"

	"github.com/tendant/schema-content/pkg/schemacontent/query"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
)

// SystemColumn names a column every row carries.
type SystemColumn string

const (
	ColumnID            SystemColumn = "id"
	ColumnAppID         SystemColumn = "appId"
	ColumnSchemaID      SystemColumn = "schemaId"
	ColumnVersion       SystemColumn = "version"
	ColumnStatus        SystemColumn = "status"
	ColumnIsLatest      SystemColumn = "isLatest"
	ColumnLastModified  SystemColumn = "lastModified"
	ColumnReferencedIDs SystemColumn = "referencedIds"
	ColumnDataText      SystemColumn = "dataText"
)

// Column is either a system column or a resolved data path.
//
// Values compared against system columns are typed: uuid.UUID for ids,
// int64 for version, Status, bool and time.Time. Values compared against data
// columns are in stored representation (see Value.Raw) and, for References,
// Assets and Tags, name a single array element.
type Column struct {
	System SystemColumn

	Field     string
	Partition string
	Nested    []string
	Type      schema.FieldType
}

// System returns the column for a system field.
func System(c SystemColumn) Column { return Column{System: c} }

// IsData reports whether the column addresses the content payload.
func (c Column) IsData() bool { return c.Field != "" }

// IsArray reports whether the stored value is an array matched per element.
func (c Column) IsArray() bool {
	if !c.IsData() {
		return c.System == ColumnReferencedIDs
	}
	if len(c.Nested) > 0 {
		return false
	}
	switch c.Type {
	case schema.FieldTypeReferences, schema.FieldTypeAssets, schema.FieldTypeTags:
		return true
	}
	return false
}

// Path returns the data path segments (field, partition, nested...).
func (c Column) Path() []string {
	return append([]string{c.Field, c.Partition}, c.Nested...)
}

func (c Column) String() string {
	if !c.IsData() {
		return string(c.System)
	}
	return "data." + strings.Join(c.Path(), ".")
}

// Expr is a node of a plan filter.
type Expr interface {
	isExpr()
}

// Compare matches rows whose column compares to Value with Op.
// A nil Value matches null or missing and is only used with eq and ne.
// String functions match case-insensitively.
type Compare struct {
	Column Column
	Op     query.Operator
	Value  any
}

// In matches rows whose column equals any of Values.
type In struct {
	Column Column
	Values []any
}

// And matches when every child matches.
type And struct {
	Exprs []Expr
}

// Or matches when any child matches.
type Or struct {
	Exprs []Expr
}

// Not matches when its child does not, including when the child's column is missing.
type Not struct {
	Expr Expr
}

// TextMatch matches rows whose indexed text contains every term of Text.
// It only appears as a direct child of the plan's top-level And.
type TextMatch struct {
	Text string
}

func (*Compare) isExpr()   {}
func (*In) isExpr()        {}
func (*And) isExpr()       {}
func (*Or) isExpr()        {}
func (*Not) isExpr()       {}
func (*TextMatch) isExpr() {}

// Order is one sort key of a plan.
type Order struct {
	Column     Column
	Descending bool
}

// Plan is a translated query every Store renders natively. Missing values
// sort before present ones in ascending order. Take 0 means no limit.
type Plan struct {
	Filter Expr
	Sort   []Order
	Skip   int
	Take   int
}

// SearchTerms splits full-text input into lower-cased terms.
func SearchTerms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
