package query

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/CiscoM31/godata"
	"github.com/google/uuid"
)

// SyntaxError reports malformed OData query text.
type SyntaxError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d in %q: %s", e.Pos, e.Input, e.Msg)
}

// ParseOData builds a Query from OData system query options
// ($filter, $orderby, $top, $skip, $search).
func ParseOData(values url.Values) (*Query, error) {
	ctx := context.Background()
	q := &Query{}

	if raw := values.Get("$filter"); strings.TrimSpace(raw) != "" {
		f, err := ParseFilter(raw)
		if err != nil {
			return nil, err
		}
		q.Filter = f
	}

	if raw := values.Get("$orderby"); strings.TrimSpace(raw) != "" {
		sort, err := ParseOrderBy(raw)
		if err != nil {
			return nil, err
		}
		q.Sort = sort
	}

	if raw := strings.TrimSpace(values.Get("$top")); raw != "" {
		top, err := godata.ParseTopString(ctx, raw)
		if err != nil || top == nil || int(*top) < 0 {
			return nil, &SyntaxError{Input: raw, Msg: "$top must be a non-negative integer"}
		}
		q.Take = int(*top)
	}
	if raw := strings.TrimSpace(values.Get("$skip")); raw != "" {
		skip, err := godata.ParseSkipString(ctx, raw)
		if err != nil || skip == nil || int(*skip) < 0 {
			return nil, &SyntaxError{Input: raw, Msg: "$skip must be a non-negative integer"}
		}
		q.Skip = int(*skip)
	}

	if raw := strings.TrimSpace(values.Get("$search")); raw != "" {
		if _, err := godata.ParseSearchString(ctx, raw); err != nil {
			return nil, wrapParseError(raw, err)
		}
		q.Search = raw
	}
	return q, nil
}

// ParseOrderBy parses an OData $orderby expression such as
// "data/title/iv desc, lastModified".
func ParseOrderBy(input string) ([]SortField, error) {
	parsed, err := godata.ParseOrderByString(context.Background(), input)
	if err != nil {
		return nil, wrapParseError(input, err)
	}
	fields := make([]SortField, 0, len(parsed.OrderByItems))
	for _, item := range parsed.OrderByItems {
		path := ""
		if item.Field != nil {
			path = strings.TrimSpace(item.Field.Value)
		}
		if path == "" || strings.ContainsAny(path, " \t()'") {
			return nil, &SyntaxError{Input: input, Pos: strings.Index(input, path), Msg: "expected 'path [asc|desc]'"}
		}
		dir := Ascending
		if strings.EqualFold(item.Order, string(Descending)) {
			dir = Descending
		}
		fields = append(fields, SortField{Path: path, Direction: dir})
	}
	return fields, nil
}

// ParseFilter parses an OData $filter expression.
//
// Supported: eq, ne, lt, le, gt, ge, and, or, not, parentheses and the
// contains, startswith and endswith functions. Literals are quoted strings,
// numbers, true, false, null, RFC3339 timestamps and GUIDs.
func ParseFilter(input string) (Filter, error) {
	parsed, err := godata.ParseFilterString(context.Background(), input)
	if err != nil {
		return nil, wrapParseError(input, err)
	}
	if parsed == nil || parsed.Tree == nil {
		return nil, &SyntaxError{Input: input, Msg: "empty filter"}
	}
	b := &treeBuilder{input: input}
	return b.filter(parsed.Tree)
}

func wrapParseError(input string, err error) error {
	return &SyntaxError{Input: input, Msg: err.Error()}
}

// treeBuilder maps a godata parse tree onto the Filter AST.
type treeBuilder struct {
	input string
}

func (b *treeBuilder) errorf(n *godata.ParseNode, format string, args ...any) error {
	pos := 0
	if n != nil && n.Token != nil {
		if i := strings.Index(b.input, n.Token.Value); i >= 0 {
			pos = i
		}
	}
	return &SyntaxError{Input: b.input, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func tokenText(n *godata.ParseNode) string {
	if n == nil || n.Token == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(n.Token.Value))
}

func (b *treeBuilder) filter(n *godata.ParseNode) (Filter, error) {
	name := tokenText(n)
	switch name {
	case "and", "or":
		if len(n.Children) != 2 {
			return nil, b.errorf(n, "%q needs two operands", name)
		}
		var filters []Filter
		for _, child := range n.Children {
			f, err := b.filter(child)
			if err != nil {
				return nil, err
			}
			filters = append(filters, flatten(name, f)...)
		}
		if name == "and" {
			return &And{Filters: filters}, nil
		}
		return &Or{Filters: filters}, nil
	case "not":
		if len(n.Children) != 1 {
			return nil, b.errorf(n, "not needs one operand")
		}
		inner, err := b.filter(n.Children[0])
		if err != nil {
			return nil, err
		}
		return &Not{Filter: inner}, nil
	}

	op := Operator(name)
	switch {
	case op == OpEq || op == OpNe || op.IsOrdered() || op.IsStringFunction():
	default:
		return nil, b.errorf(n, "unsupported operator or function %q", name)
	}
	if len(n.Children) != 2 {
		return nil, b.errorf(n, "%q needs a field path and a literal", name)
	}
	path, err := b.path(n.Children[0])
	if err != nil {
		return nil, err
	}
	value, err := b.literal(n.Children[1])
	if err != nil {
		return nil, err
	}
	return &Comparison{Path: path, Operator: op, Value: value}, nil
}

// flatten merges a nested and/or of the same kind into its parent.
func flatten(kind string, f Filter) []Filter {
	switch t := f.(type) {
	case *And:
		if kind == "and" {
			return t.Filters
		}
	case *Or:
		if kind == "or" {
			return t.Filters
		}
	}
	return []Filter{f}
}

func (b *treeBuilder) path(n *godata.ParseNode) (string, error) {
	if n == nil || n.Token == nil {
		return "", b.errorf(n, "expected field path")
	}
	if n.Token.Value == "/" {
		if len(n.Children) != 2 {
			return "", b.errorf(n, "incomplete field path")
		}
		left, err := b.path(n.Children[0])
		if err != nil {
			return "", err
		}
		right, err := b.path(n.Children[1])
		if err != nil {
			return "", err
		}
		return left + "/" + right, nil
	}
	v := strings.TrimSpace(n.Token.Value)
	if len(n.Children) > 0 || v == "" || n.Token.Type == godata.ExpressionTokenString || strings.HasPrefix(v, "'") {
		return "", b.errorf(n, "expected field path, got %q", v)
	}
	return v, nil
}

func (b *treeBuilder) literal(n *godata.ParseNode) (any, error) {
	if n == nil || n.Token == nil || len(n.Children) > 0 {
		return nil, b.errorf(n, "expected literal")
	}
	v := strings.TrimSpace(n.Token.Value)
	if n.Token.Type == godata.ExpressionTokenString || strings.HasPrefix(v, "'") {
		if len(v) >= 2 && strings.HasPrefix(v, "'") && strings.HasSuffix(v, "'") {
			v = v[1 : len(v)-1]
		}
		return strings.ReplaceAll(v, "''", "'"), nil
	}

	switch strings.ToLower(v) {
	case "null":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if len(v) == 36 {
		if id, err := uuid.Parse(v); err == nil {
			return id, nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, b.errorf(n, "number %q is not finite", v)
		}
		return f, nil
	}
	return nil, b.errorf(n, "invalid literal %q", v)
}
