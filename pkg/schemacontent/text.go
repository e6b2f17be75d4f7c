package schemacontent

import (
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
)

// referencedIDs collects the distinct ids of References and Assets values.
func referencedIDs(s *schema.Schema, data ContentData) []uuid.UUID {
	var ids []uuid.UUID
	for _, field := range s.Fields {
		if field.Type != schema.FieldTypeReferences && field.Type != schema.FieldTypeAssets {
			continue
		}
		for _, key := range s.Partitions(field) {
			refs, _ := data.Get(field.Name, key).AsIDs()
			ids = append(ids, refs...)
		}
	}
	return uniqueIDs(ids)
}

// indexedText joins every textual value of the content for full-text search.
func indexedText(s *schema.Schema, data ContentData) string {
	var parts []string
	for _, field := range s.Fields {
		for _, key := range s.Partitions(field) {
			v := data.Get(field.Name, key)
			switch field.Type {
			case schema.FieldTypeString:
				if str, ok := v.AsString(); ok && str != "" {
					parts = append(parts, str)
				}
			case schema.FieldTypeTags:
				tags, _ := v.AsTags()
				parts = append(parts, tags...)
			case schema.FieldTypeJSON:
				if doc, ok := v.AsJSON(); ok {
					parts = appendJSONText(parts, doc)
				}
			}
		}
	}
	return strings.Join(parts, " ")
}

func appendJSONText(parts []string, v any) []string {
	switch t := v.(type) {
	case string:
		if t != "" {
			parts = append(parts, t)
		}
	case []any:
		for _, e := range t {
			parts = appendJSONText(parts, e)
		}
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(t)) {
			parts = appendJSONText(parts, t[k])
		}
	}
	return parts
}
