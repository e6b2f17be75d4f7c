package schema

import (
	"os"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a schema definition file.
//
//	schemas:
//	  - id: 6f1c...
//	    app_id: 0b7e...
//	    name: post
//	    languages: [en, de]
//	    fields:
//	      - name: title
//	        type: String
//	        partitioning: language
type File struct {
	Schemas []*Schema `yaml:"schemas"`
}

// LoadFile reads schema definitions from a YAML file into a StaticRegistry.
func LoadFile(path string) (*StaticRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read schema file %s", path)
	}
	return Parse(raw)
}

// Parse decodes YAML schema definitions into a StaticRegistry.
func Parse(raw []byte) (*StaticRegistry, error) {
	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(err, "decode schema file")
	}

	for _, s := range file.Schemas {
		if err := validate(s); err != nil {
			return nil, err
		}
	}
	return NewStaticRegistry(file.Schemas...), nil
}

func validate(s *Schema) error {
	if s.Name == "" {
		return errors.Newf("schema %s: name is required", s.ID)
	}
	seen := make(map[string]bool, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return errors.Newf("schema %s: field %d has no name", s.Name, i)
		}
		if strings.ContainsAny(f.Name, "./") {
			return errors.Newf("schema %s: field %q must not contain '.' or '/'", s.Name, f.Name)
		}
		if seen[f.Name] {
			return errors.Newf("schema %s: duplicate field %q", s.Name, f.Name)
		}
		seen[f.Name] = true
		if !f.Type.Valid() {
			return errors.Newf("schema %s: field %q has unknown type %q", s.Name, f.Name, f.Type)
		}
		if f.Partitioning == "" {
			f.Partitioning = PartitioningInvariant
		}
		if f.IsLocalized() && len(s.Languages) == 0 {
			return errors.Newf("schema %s: localized field %q needs schema languages", s.Name, f.Name)
		}
	}
	if slices.Contains(s.Languages, InvariantPartition) {
		return errors.Newf("schema %s: %q is reserved and cannot be a language", s.Name, InvariantPartition)
	}
	for _, lang := range s.Languages {
		if lang == "" || strings.ContainsAny(lang, "./") {
			return errors.Newf("schema %s: invalid language %q", s.Name, lang)
		}
	}
	return nil
}
