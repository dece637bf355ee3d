package llm

import (
	"github.com/genesilico/trf-intake/constants"
	"github.com/genesilico/trf-intake/internal/schema"
)

// BuildExtractionJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass this to the inference collaborator as a structured
// output constraint and also use it locally to validate whatever comes back.
// No field is required: a field the model does not address is simply absent.
func BuildExtractionJSONSchema(fields []schema.FieldSpec) map[string]any {
	props := make(map[string]any, len(fields))
	for i := range fields {
		f := &fields[i]
		valueProp := map[string]any{"type": "string", "minLength": 1}
		if len(f.ValidValues) > 0 {
			valueProp = map[string]any{"type": "string", "enum": anySlice(f.ValidValues)}
		} else if f.Pattern != "" && f.Type != constants.FieldDate {
			valueProp = map[string]any{"type": "string", "pattern": f.Pattern}
		}
		props[f.Name] = map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"value":      valueProp,
				"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			},
			"required": []any{"value"},
		}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

func anySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
