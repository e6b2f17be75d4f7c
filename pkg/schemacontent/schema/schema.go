// Package schema holds the read-only schema model consumed by the content
// repository and the registries that resolve schemas by id.
//
// Schemas are owned by the schema layer. The repository never writes them; it
// only reads field names, field types and partitioning to translate queries and
// hydrate stored rows.
package schema

import (
	"slices"

	"github.com/google/uuid"
)

// FieldType is the declared type of a schema field.
type FieldType string

// Field type constants (typed).
const (
	FieldTypeString      FieldType = "String"
	FieldTypeNumber      FieldType = "Number"
	FieldTypeBoolean     FieldType = "Boolean"
	FieldTypeDateTime    FieldType = "DateTime"
	FieldTypeReferences  FieldType = "References"
	FieldTypeAssets      FieldType = "Assets"
	FieldTypeTags        FieldType = "Tags"
	FieldTypeJSON        FieldType = "Json"
	FieldTypeGeolocation FieldType = "Geolocation"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeString, FieldTypeNumber, FieldTypeBoolean, FieldTypeDateTime,
		FieldTypeReferences, FieldTypeAssets, FieldTypeTags, FieldTypeJSON, FieldTypeGeolocation:
		return true
	}
	return false
}

// Partitioning scopes a field's values by language or keeps a single invariant value.
type Partitioning string

const (
	PartitioningInvariant Partitioning = "invariant"
	PartitioningLanguage  Partitioning = "language"
)

// InvariantPartition is the partition key used by invariant fields.
const InvariantPartition = "iv"

// Field describes one field of a schema.
type Field struct {
	Name         string       `json:"name" yaml:"name"`
	Type         FieldType    `json:"type" yaml:"type"`
	Partitioning Partitioning `json:"partitioning,omitempty" yaml:"partitioning,omitempty"`
	Required     bool         `json:"required,omitempty" yaml:"required,omitempty"`
}

// IsLocalized reports whether the field is partitioned by language.
func (f Field) IsLocalized() bool {
	return f.Partitioning == PartitioningLanguage
}

// Schema is the ordered field list of one content type within an app.
type Schema struct {
	ID        uuid.UUID `json:"id" yaml:"id"`
	AppID     uuid.UUID `json:"app_id" yaml:"app_id"`
	Name      string    `json:"name" yaml:"name"`
	Languages []string  `json:"languages,omitempty" yaml:"languages,omitempty"`
	Fields    []Field   `json:"fields" yaml:"fields"`
}

// Field returns the field with the given name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Partitions returns the partition keys a field can hold values for.
func (s *Schema) Partitions(f Field) []string {
	if f.IsLocalized() {
		return s.Languages
	}
	return []string{InvariantPartition}
}

// HasPartition reports whether key is a valid partition of f.
func (s *Schema) HasPartition(f Field, key string) bool {
	return slices.Contains(s.Partitions(f), key)
}
