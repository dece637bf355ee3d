// Package validate checks an extracted field set against the TRF schema. The
// check is pure and total: it never mutates its input, never fails on garbage
// values, and reports violations in schema declaration order.
package validate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/genesilico/trf-intake/constants"
	"github.com/genesilico/trf-intake/internal/schema"
	"github.com/genesilico/trf-intake/internal/trf"
)

// Violation is one schema breach in a field set.
type Violation struct {
	FieldName string                  `json:"fieldName"`
	Kind      constants.ViolationKind `json:"kind"`
	Detail    string                  `json:"detail"`
}

// Validate reports every schema violation in the given field set. Per-field
// checks come first in declaration order, then cross-field rule checks in
// rule order. A required field that is absent yields exactly one violation.
func Validate(sch *schema.Schema, fields map[string]trf.ExtractedField) []Violation {
	var out []Violation
	for _, spec := range sch.Fields() {
		f, present := fields[spec.Name]
		if !present || strings.TrimSpace(f.Value) == "" {
			if spec.Required {
				out = append(out, Violation{
					FieldName: spec.Name,
					Kind:      constants.ViolationMissingRequired,
					Detail:    "required field is absent",
				})
			}
			continue
		}
		if v, ok := checkValue(&spec, f.Value); !ok {
			out = append(out, v)
		}
	}
	for _, rule := range sch.Rules() {
		trigger, present := fields[rule.IfField]
		if !present || trigger.Value != rule.Equals {
			continue
		}
		for _, dep := range rule.ThenRequire {
			if f, ok := fields[dep]; ok && strings.TrimSpace(f.Value) != "" {
				continue
			}
			out = append(out, Violation{
				FieldName: dep,
				Kind:      constants.ViolationMissingRequired,
				Detail:    fmt.Sprintf("required because %s is %q", rule.IfField, rule.Equals),
			})
		}
	}
	return out
}

// ValidateField checks a single value against one spec, for manual overrides.
// Absent values are only a problem when the field is required.
func ValidateField(spec *schema.FieldSpec, value string) (Violation, bool) {
	if strings.TrimSpace(value) == "" {
		if spec.Required {
			return Violation{
				FieldName: spec.Name,
				Kind:      constants.ViolationMissingRequired,
				Detail:    "required field is absent",
			}, false
		}
		return Violation{}, true
	}
	if v, ok := checkValue(spec, value); !ok {
		return v, false
	}
	return Violation{}, true
}

func checkValue(spec *schema.FieldSpec, value string) (Violation, bool) {
	switch spec.Type {
	case constants.FieldNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return Violation{
				FieldName: spec.Name,
				Kind:      constants.ViolationTypeMismatch,
				Detail:    fmt.Sprintf("%q is not a number", value),
			}, false
		}
		if spec.Min != nil && n < *spec.Min {
			return Violation{
				FieldName: spec.Name,
				Kind:      constants.ViolationOutOfRange,
				Detail:    fmt.Sprintf("%v is below minimum %v", n, *spec.Min),
			}, false
		}
		if spec.Max != nil && n > *spec.Max {
			return Violation{
				FieldName: spec.Name,
				Kind:      constants.ViolationOutOfRange,
				Detail:    fmt.Sprintf("%v is above maximum %v", n, *spec.Max),
			}, false
		}
	case constants.FieldDate:
		if _, ok := ParseDate(strings.TrimSpace(value)); !ok {
			return Violation{
				FieldName: spec.Name,
				Kind:      constants.ViolationTypeMismatch,
				Detail:    fmt.Sprintf("%q is not a recognizable date", value),
			}, false
		}
	case constants.FieldEnum:
		if !spec.AllowsValue(value) {
			return Violation{
				FieldName: spec.Name,
				Kind:      constants.ViolationInvalidEnum,
				Detail:    fmt.Sprintf("%q is not one of %s", value, strings.Join(spec.ValidValues, ", ")),
			}, false
		}
	}
	if !spec.MatchesPattern(value) {
		return Violation{
			FieldName: spec.Name,
			Kind:      constants.ViolationTypeMismatch,
			Detail:    fmt.Sprintf("%q does not match the expected format", value),
		}, false
	}
	return Violation{}, true
}
