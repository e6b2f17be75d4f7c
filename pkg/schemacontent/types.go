package schemacontent

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
)

// Status is the lifecycle state of a content item.
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusPublished Status = "Published"
	StatusArchived  Status = "Archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// DefaultStatuses is the status filter applied when a caller passes none.
// Archived content is excluded.
var DefaultStatuses = []Status{StatusDraft, StatusPublished}

// DateTimeFormat is the stored representation of DateTime field values.
// It sorts lexically in every backend.
const DateTimeFormat = "2006-01-02T15:04:05Z"

// AnyVersion disables the expected-version precondition of a write.
const AnyVersion int64 = 0

// ContentItem is one hydrated version row of a content item.
type ContentItem struct {
	ID            uuid.UUID   `json:"id"`
	AppID         uuid.UUID   `json:"app_id"`
	SchemaID      uuid.UUID   `json:"schema_id"`
	Version       int64       `json:"version"`
	Status        Status      `json:"status"`
	IsLatest      bool        `json:"is_latest"`
	LastModified  time.Time   `json:"last_modified"`
	ReferencedIDs []uuid.UUID `json:"referenced_ids,omitempty"`
	Data          ContentData `json:"data"`

	// Unknown holds stored values the schema no longer describes.
	Unknown []RawField `json:"unknown,omitempty"`

	IndexedText string `json:"-"`
}

// ResultPage is one page of a query result plus the total match count.
type ResultPage struct {
	Items []*ContentItem `json:"items"`
	Total int64          `json:"total"`
}

// Geolocation is the value of a Geolocation field.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ContentData maps field names to their partitioned values.
type ContentData map[string]FieldData

// FieldData maps partition keys ("iv" or a language) to values.
type FieldData map[string]Value

// Set stores v under field and partition, creating the field entry if needed.
func (d ContentData) Set(field, partition string, v Value) ContentData {
	fd, ok := d[field]
	if !ok {
		fd = FieldData{}
		d[field] = fd
	}
	fd[partition] = v
	return d
}

// Get returns the value stored under field and partition.
func (d ContentData) Get(field, partition string) Value {
	return d[field][partition]
}

// Value is a field value tagged with the schema field type it belongs to.
// The zero Value is absent.
type Value struct {
	typ schema.FieldType
	v   any
}

func StringValue(s string) Value { return Value{typ: schema.FieldTypeString, v: s} }

func NumberValue(n float64) Value { return Value{typ: schema.FieldTypeNumber, v: n} }

func BoolValue(b bool) Value { return Value{typ: schema.FieldTypeBoolean, v: b} }

// DateTimeValue stores t in UTC at second precision.
func DateTimeValue(t time.Time) Value {
	return Value{typ: schema.FieldTypeDateTime, v: t.UTC().Truncate(time.Second)}
}

func ReferencesValue(ids ...uuid.UUID) Value {
	return Value{typ: schema.FieldTypeReferences, v: append([]uuid.UUID(nil), ids...)}
}

func AssetsValue(ids ...uuid.UUID) Value {
	return Value{typ: schema.FieldTypeAssets, v: append([]uuid.UUID(nil), ids...)}
}

func TagsValue(tags ...string) Value {
	return Value{typ: schema.FieldTypeTags, v: append([]string(nil), tags...)}
}

// JSONValue wraps an arbitrary JSON document. Values that are not plain
// JSON types (maps, slices, strings, numbers, bools, nil) are normalized
// through encoding/json.
func JSONValue(v any) Value {
	return Value{typ: schema.FieldTypeJSON, v: normalizeJSON(v)}
}

func GeolocationValue(lat, lon float64) Value {
	return Value{typ: schema.FieldTypeGeolocation, v: Geolocation{Latitude: lat, Longitude: lon}}
}

// Type returns the field type the value belongs to, or "" when absent.
func (v Value) Type() schema.FieldType { return v.typ }

// IsAbsent reports whether the value is missing.
func (v Value) IsAbsent() bool { return v.typ == "" }

func (v Value) AsString() (string, bool) {
	s, ok := v.v.(string)
	return s, ok && v.typ == schema.FieldTypeString
}

func (v Value) AsNumber() (float64, bool) {
	n, ok := v.v.(float64)
	return n, ok && v.typ == schema.FieldTypeNumber
}

func (v Value) AsBool() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok && v.typ == schema.FieldTypeBoolean
}

func (v Value) AsDateTime() (time.Time, bool) {
	t, ok := v.v.(time.Time)
	return t, ok
}

// AsIDs returns the ids of a References or Assets value.
func (v Value) AsIDs() ([]uuid.UUID, bool) {
	ids, ok := v.v.([]uuid.UUID)
	return ids, ok
}

func (v Value) AsTags() ([]string, bool) {
	tags, ok := v.v.([]string)
	return tags, ok
}

func (v Value) AsJSON() (any, bool) {
	return v.v, v.typ == schema.FieldTypeJSON
}

func (v Value) AsGeolocation() (Geolocation, bool) {
	g, ok := v.v.(Geolocation)
	return g, ok
}

// Raw returns the stored representation of the value: plain JSON types only,
// with DateTime formatted per DateTimeFormat and ids as strings.
func (v Value) Raw() any {
	switch t := v.v.(type) {
	case time.Time:
		return t.Format(DateTimeFormat)
	case []uuid.UUID:
		out := make([]any, len(t))
		for i, id := range t {
			out[i] = id.String()
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case Geolocation:
		return map[string]any{"latitude": t.Latitude, "longitude": t.Longitude}
	default:
		return t
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsAbsent() {
		return []byte("null"), nil
	}
	return json.Marshal(v.Raw())
}

// RawData is the persisted payload: an ordered list of fields, each with an
// ordered list of partition values in stored representation.
type RawData []RawField

// RawField is one stored field.
type RawField struct {
	Name       string         `json:"name"`
	Partitions []RawPartition `json:"partitions"`
}

// RawPartition is one stored partition value.
type RawPartition struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Map converts the payload to nested maps keyed by field then partition.
func (d RawData) Map() map[string]map[string]any {
	out := make(map[string]map[string]any, len(d))
	for _, f := range d {
		parts := make(map[string]any, len(f.Partitions))
		for _, p := range f.Partitions {
			parts[p.Key] = p.Value
		}
		out[f.Name] = parts
	}
	return out
}

// Lookup returns the stored value of field and partition.
func (d RawData) Lookup(field, partition string) (any, bool) {
	for _, f := range d {
		if f.Name != field {
			continue
		}
		for _, p := range f.Partitions {
			if p.Key == partition {
				return p.Value, true
			}
		}
	}
	return nil, false
}

// Row is the persisted layout of one content version. Stores read and write
// rows; the Repository only hands out hydrated ContentItem values.
type Row struct {
	ID            uuid.UUID
	AppID         uuid.UUID
	SchemaID      uuid.UUID
	Version       int64
	Status        Status
	IsLatest      bool
	LastModified  time.Time
	ReferencedIDs []uuid.UUID
	Data          RawData
	DataText      string
}

// Clone returns a deep copy of the row's slices; stored values are shared.
func (r *Row) Clone() *Row {
	c := *r
	c.ReferencedIDs = append([]uuid.UUID(nil), r.ReferencedIDs...)
	c.Data = make(RawData, len(r.Data))
	for i, f := range r.Data {
		c.Data[i] = RawField{Name: f.Name, Partitions: append([]RawPartition(nil), f.Partitions...)}
	}
	return &c
}

// CreateRequest contains parameters for creating content.
type CreateRequest struct {
	AppID    uuid.UUID
	SchemaID uuid.UUID
	// ID is generated when zero.
	ID   uuid.UUID
	Data ContentData
}

// UpdateRequest contains parameters for writing a new content version.
type UpdateRequest struct {
	AppID           uuid.UUID
	SchemaID        uuid.UUID
	ID              uuid.UUID
	Data            ContentData
	ExpectedVersion int64
}

// StatusRequest contains parameters for a status change of the latest version.
type StatusRequest struct {
	AppID           uuid.UUID
	SchemaID        uuid.UUID
	ID              uuid.UUID
	ExpectedVersion int64
}
