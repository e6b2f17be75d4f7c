package mongodb

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Short field names keep documents small.
const (
	fieldKey          = "_id"
	fieldID           = "id"
	fieldAppID        = "ai"
	fieldSchemaID     = "si"
	fieldVersion      = "vs"
	fieldStatus       = "st"
	fieldIsLatest     = "il"
	fieldLastModified = "mt"
	fieldReferenced   = "rf"
	fieldData         = "do"
	fieldDataText     = "dt"
)

var systemFields = map[schemacontent.SystemColumn]string{
	schemacontent.ColumnID:            fieldID,
	schemacontent.ColumnAppID:         fieldAppID,
	schemacontent.ColumnSchemaID:      fieldSchemaID,
	schemacontent.ColumnVersion:       fieldVersion,
	schemacontent.ColumnStatus:        fieldStatus,
	schemacontent.ColumnIsLatest:      fieldIsLatest,
	schemacontent.ColumnLastModified:  fieldLastModified,
	schemacontent.ColumnReferencedIDs: fieldReferenced,
	schemacontent.ColumnDataText:      fieldDataText,
}

var matchNothing = bson.D{{Key: fieldKey, Value: bson.D{{Key: "$in", Value: bson.A{}}}}}

func fieldName(col schemacontent.Column) (string, error) {
	if col.IsData() {
		return fieldData + "." + strings.Join(col.Path(), "."), nil
	}
	name, ok := systemFields[col.System]
	if !ok {
		return "", errors.Newf("unknown system column %q", col.System)
	}
	return name, nil
}

// bsonValue converts a plan value into its stored form.
func bsonValue(v interface{}) interface{} {
	switch t := v.(type) {
	case uuid.UUID:
		return t.String()
	case schemacontent.Status:
		return string(t)
	case time.Time:
		return primitive.NewDateTimeFromTime(t)
	}
	return v
}

// renderFilter converts a plan filter into a query document. A nil filter
// matches everything.
func renderFilter(e schemacontent.Expr) (bson.D, error) {
	if e == nil {
		return bson.D{}, nil
	}
	switch n := e.(type) {
	case *schemacontent.And:
		if len(n.Exprs) == 0 {
			return bson.D{}, nil
		}
		children, err := renderAll(n.Exprs)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$and", Value: children}}, nil

	case *schemacontent.Or:
		if len(n.Exprs) == 0 {
			return matchNothing, nil
		}
		children, err := renderAll(n.Exprs)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$or", Value: children}}, nil

	case *schemacontent.Not:
		inner, err := renderFilter(n.Expr)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$nor", Value: bson.A{inner}}}, nil

	case *schemacontent.TextMatch:
		terms := schemacontent.SearchTerms(n.Text)
		if len(terms) == 0 {
			return matchNothing, nil
		}
		quoted := make([]string, len(terms))
		for i, term := range terms {
			quoted[i] = strconv.Quote(term)
		}
		return bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: strings.Join(quoted, " ")}}}}, nil

	case *schemacontent.In:
		field, err := fieldName(n.Column)
		if err != nil {
			return nil, err
		}
		values := make(bson.A, len(n.Values))
		for i, v := range n.Values {
			values[i] = bsonValue(v)
		}
		return bson.D{{Key: field, Value: bson.D{{Key: "$in", Value: values}}}}, nil

	case *schemacontent.Compare:
		return renderCompare(n)
	}
	return nil, errors.Newf("unsupported filter node %T", e)
}

func renderAll(exprs []schemacontent.Expr) (bson.A, error) {
	out := make(bson.A, 0, len(exprs))
	for _, child := range exprs {
		doc, err := renderFilter(child)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// renderCompare relies on the query engine's semantics: equality on an array
// field matches any element, null matches missing, and ordered operators
// only compare values of the same type.
func renderCompare(c *schemacontent.Compare) (bson.D, error) {
	field, err := fieldName(c.Column)
	if err != nil {
		return nil, err
	}
	value := bsonValue(c.Value)

	switch {
	case c.Op == query.OpEq:
		return bson.D{{Key: field, Value: value}}, nil
	case c.Op == query.OpNe:
		return bson.D{{Key: field, Value: bson.D{{Key: "$ne", Value: value}}}}, nil
	case c.Value == nil:
		return nil, errors.Newf("operator %s does not accept null", c.Op)
	case c.Op.IsStringFunction():
		s, ok := c.Value.(string)
		if !ok {
			return nil, errors.Newf("operator %s needs a string value", c.Op)
		}
		return bson.D{{Key: field, Value: primitive.Regex{Pattern: regexPattern(c.Op, s), Options: "i"}}}, nil
	case c.Op.IsOrdered():
		op := map[query.Operator]string{
			query.OpLt: "$lt",
			query.OpLe: "$lte",
			query.OpGt: "$gt",
			query.OpGe: "$gte",
		}[c.Op]
		return bson.D{{Key: field, Value: bson.D{{Key: op, Value: value}}}}, nil
	}
	return nil, errors.Newf("unsupported operator %s", c.Op)
}

func regexPattern(op query.Operator, s string) string {
	quoted := regexp.QuoteMeta(s)
	switch op {
	case query.OpStartsWith:
		return "^" + quoted
	case query.OpEndsWith:
		return quoted + "$"
	}
	return quoted
}

func renderSort(sort []schemacontent.Order) (bson.D, error) {
	out := make(bson.D, 0, len(sort))
	for _, o := range sort {
		field, err := fieldName(o.Column)
		if err != nil {
			return nil, err
		}
		dir := 1
		if o.Descending {
			dir = -1
		}
		out = append(out, bson.E{Key: field, Value: dir})
	}
	return out, nil
}
