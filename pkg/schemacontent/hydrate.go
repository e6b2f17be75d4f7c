package schemacontent

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
)

// Hydrate decodes a stored row into a ContentItem using the schema's field list.
//
// Values of unknown fields, unknown partitions or undecodable values are kept
// in ContentItem.Unknown untouched. Missing values are simply absent.
func Hydrate(row *Row, s *schema.Schema) (*ContentItem, error) {
	if row == nil {
		return nil, errors.New("hydrate: nil row")
	}
	if row.SchemaID != s.ID {
		return nil, errors.Newf("hydrate: row %s belongs to schema %s, not %s", row.ID, row.SchemaID, s.ID)
	}

	item := &ContentItem{
		ID:            row.ID,
		AppID:         row.AppID,
		SchemaID:      row.SchemaID,
		Version:       row.Version,
		Status:        row.Status,
		IsLatest:      row.IsLatest,
		LastModified:  row.LastModified,
		ReferencedIDs: append([]uuid.UUID(nil), row.ReferencedIDs...),
		Data:          ContentData{},
		IndexedText:   row.DataText,
	}

	for _, rf := range row.Data {
		field, ok := s.Field(rf.Name)
		if !ok {
			item.Unknown = append(item.Unknown, rf)
			continue
		}

		var leftover []RawPartition
		for _, p := range rf.Partitions {
			if !s.HasPartition(field, p.Key) {
				leftover = append(leftover, p)
				continue
			}
			if p.Value == nil {
				continue
			}
			v, ok := decodeValue(field.Type, p.Value)
			if !ok {
				leftover = append(leftover, p)
				continue
			}
			item.Data.Set(field.Name, p.Key, v)
		}
		if len(leftover) > 0 {
			item.Unknown = append(item.Unknown, RawField{Name: rf.Name, Partitions: leftover})
		}
	}
	return item, nil
}

// EncodeData converts typed content data into the stored layout, ordered by
// the schema's fields and partitions. Absent values are skipped.
//
// Unknown fields or partitions fail with *UnknownFieldError and values of the
// wrong type with *TypeMismatchError.
func EncodeData(s *schema.Schema, data ContentData) (RawData, error) {
	for name, fd := range data {
		field, ok := s.Field(name)
		if !ok {
			return nil, &UnknownFieldError{Schema: s.Name, Path: name}
		}
		for key, v := range fd {
			path := name + "/" + key
			if !s.HasPartition(field, key) {
				return nil, &UnknownFieldError{Schema: s.Name, Path: path}
			}
			if !v.IsAbsent() && v.Type() != field.Type {
				return nil, &TypeMismatchError{Path: path, Expected: string(field.Type), Value: v.Raw()}
			}
		}
	}

	var out RawData
	for _, field := range s.Fields {
		fd, ok := data[field.Name]
		if !ok {
			continue
		}
		var parts []RawPartition
		for _, key := range s.Partitions(field) {
			if v, ok := fd[key]; ok && !v.IsAbsent() {
				parts = append(parts, RawPartition{Key: key, Value: v.Raw()})
			}
		}
		if len(parts) > 0 {
			out = append(out, RawField{Name: field.Name, Partitions: parts})
		}
	}
	return out, nil
}

// ParseData decodes loosely typed input (typically JSON) into typed content
// data. Unlike Hydrate it rejects anything the schema does not describe.
func ParseData(s *schema.Schema, input map[string]map[string]any) (ContentData, error) {
	data := ContentData{}
	for name, parts := range input {
		field, ok := s.Field(name)
		if !ok {
			return nil, &UnknownFieldError{Schema: s.Name, Path: name}
		}
		for key, raw := range parts {
			path := name + "/" + key
			if !s.HasPartition(field, key) {
				return nil, &UnknownFieldError{Schema: s.Name, Path: path}
			}
			if raw == nil {
				continue
			}
			v, ok := decodeValue(field.Type, raw)
			if !ok {
				return nil, &TypeMismatchError{Path: path, Expected: string(field.Type), Value: raw}
			}
			data.Set(name, key, v)
		}
	}
	return data, nil
}

func decodeValue(t schema.FieldType, raw any) (Value, bool) {
	switch t {
	case schema.FieldTypeString:
		if s, ok := raw.(string); ok {
			return StringValue(s), true
		}
	case schema.FieldTypeNumber:
		if n, ok := toFloat(raw); ok {
			return NumberValue(n), true
		}
	case schema.FieldTypeBoolean:
		if b, ok := raw.(bool); ok {
			return BoolValue(b), true
		}
	case schema.FieldTypeDateTime:
		switch v := raw.(type) {
		case time.Time:
			return DateTimeValue(v), true
		case string:
			if ts, err := time.Parse(DateTimeFormat, v); err == nil {
				return DateTimeValue(ts), true
			}
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				return DateTimeValue(ts), true
			}
		}
	case schema.FieldTypeReferences, schema.FieldTypeAssets:
		ids, ok := decodeIDs(raw)
		if !ok {
			break
		}
		if t == schema.FieldTypeAssets {
			return AssetsValue(ids...), true
		}
		return ReferencesValue(ids...), true
	case schema.FieldTypeTags:
		if tags, ok := decodeStrings(raw); ok {
			return TagsValue(tags...), true
		}
	case schema.FieldTypeJSON:
		return JSONValue(raw), true
	case schema.FieldTypeGeolocation:
		m, ok := raw.(map[string]any)
		if !ok {
			break
		}
		lat, ok1 := toFloat(m["latitude"])
		lon, ok2 := toFloat(m["longitude"])
		if ok1 && ok2 {
			return GeolocationValue(lat, lon), true
		}
	}
	return Value{}, false
}

func decodeIDs(raw any) ([]uuid.UUID, bool) {
	if ids, ok := raw.([]uuid.UUID); ok {
		return ids, true
	}
	strs, ok := decodeStrings(raw)
	if !ok {
		return nil, false
	}
	ids := make([]uuid.UUID, 0, len(strs))
	for _, s := range strs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func decodeStrings(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// normalizeJSON reduces v to plain JSON types.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeJSON(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeJSON(e)
		}
		return out
	}
	if n, ok := toFloat(v); ok {
		return n
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
