package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	compiled, err := CompileSchema(schemaMap)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// CompileSchema compiles "schemaMap" once so callers can validate many
// payloads, or single properties, against it.
func CompileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// ValidateFieldObject checks one field's {value, confidence} object against
// that field's property sub-schema, so a single bad answer discards only
// itself and never the rest of the extraction.
func ValidateFieldObject(compiled *jsonschema.Schema, name string, fv FieldValue) error {
	sub, ok := compiled.Properties[name]
	if !ok {
		return fmt.Errorf("schema has no property %q", name)
	}
	obj := map[string]any{"value": fv.Value}
	if fv.Confidence != nil {
		obj["confidence"] = *fv.Confidence
	}
	if err := sub.Validate(obj); err != nil {
		return fmt.Errorf("field %s does not match schema: %w", name, err)
	}
	return nil
}
