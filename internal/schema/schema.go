// Package schema holds the static TRF field definitions every other component
// consumes. The field table is data, loaded once at process start; declaration
// order in fields.yaml is the deterministic order for validation output.
package schema

import (
	"fmt"
	"regexp"
	"sync"

	_ "embed"

	"gopkg.in/yaml.v3"

	"github.com/genesilico/trf-intake/constants"
)

//go:embed fields.yaml
var fieldsYAML []byte

// FieldSpec is one schema entry. Immutable after Load.
type FieldSpec struct {
	Name        string              `yaml:"name"`
	Type        constants.FieldType `yaml:"type"`
	Required    bool                `yaml:"required"`
	ValidValues []string            `yaml:"valid_values"`
	Pattern     string              `yaml:"pattern"`
	Min         *float64            `yaml:"min"`
	Max         *float64            `yaml:"max"`
	Description string              `yaml:"description"`

	patternRe *regexp.Regexp
}

// MatchesPattern reports whether v satisfies the spec's format constraint.
// Specs without a pattern accept anything.
func (f *FieldSpec) MatchesPattern(v string) bool {
	if f.patternRe == nil {
		return true
	}
	return f.patternRe.MatchString(v)
}

// AllowsValue reports enum membership; non-enum specs accept anything.
func (f *FieldSpec) AllowsValue(v string) bool {
	if f.Type != constants.FieldEnum {
		return true
	}
	for _, vv := range f.ValidValues {
		if vv == v {
			return true
		}
	}
	return false
}

// Rule is a cross-field requirement: when IfField equals Equals, every field
// in ThenRequire must be present.
type Rule struct {
	IfField     string   `yaml:"if_field"`
	Equals      string   `yaml:"equals"`
	ThenRequire []string `yaml:"then_require"`
}

// Schema is the loaded field table.
type Schema struct {
	fields []FieldSpec
	byName map[string]*FieldSpec
	rules  []Rule
}

type schemaFile struct {
	Fields []FieldSpec `yaml:"fields"`
	Rules  []Rule      `yaml:"rules"`
}

// Load parses the embedded field table and compiles its patterns.
func Load() (*Schema, error) {
	var sf schemaFile
	if err := yaml.Unmarshal(fieldsYAML, &sf); err != nil {
		return nil, fmt.Errorf("parse fields.yaml: %w", err)
	}
	s := &Schema{
		fields: sf.Fields,
		byName: make(map[string]*FieldSpec, len(sf.Fields)),
		rules:  sf.Rules,
	}
	for i := range s.fields {
		f := &s.fields[i]
		if f.Name == "" {
			return nil, fmt.Errorf("field %d: missing name", i)
		}
		if _, dup := s.byName[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		switch f.Type {
		case constants.FieldString, constants.FieldDate, constants.FieldEnum, constants.FieldNumber:
		default:
			return nil, fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
		}
		if f.Type == constants.FieldEnum && len(f.ValidValues) == 0 {
			return nil, fmt.Errorf("field %q: enum without valid_values", f.Name)
		}
		if f.Pattern != "" {
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				return nil, fmt.Errorf("field %q: bad pattern: %w", f.Name, err)
			}
			f.patternRe = re
		}
		s.byName[f.Name] = f
	}
	for _, r := range s.rules {
		if _, ok := s.byName[r.IfField]; !ok {
			return nil, fmt.Errorf("rule references unknown field %q", r.IfField)
		}
		for _, dep := range r.ThenRequire {
			if _, ok := s.byName[dep]; !ok {
				return nil, fmt.Errorf("rule requires unknown field %q", dep)
			}
		}
	}
	return s, nil
}

var (
	loadOnce sync.Once
	loaded   *Schema
	loadErr  error
)

// Default returns the process-wide schema, loading it on first use.
func Default() (*Schema, error) {
	loadOnce.Do(func() {
		loaded, loadErr = Load()
	})
	return loaded, loadErr
}

// Fields returns the specs in declaration order. Callers must not mutate.
func (s *Schema) Fields() []FieldSpec {
	return s.fields
}

// Lookup returns the spec for a field name.
func (s *Schema) Lookup(name string) (*FieldSpec, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Has reports whether the schema declares the field.
func (s *Schema) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Rules returns the cross-field requirements.
func (s *Schema) Rules() []Rule {
	return s.rules
}

// RequiredFields returns the names of required fields in declaration order.
func (s *Schema) RequiredFields() []string {
	var out []string
	for i := range s.fields {
		if s.fields[i].Required {
			out = append(out, s.fields[i].Name)
		}
	}
	return out
}
