package llm

import (
	"encoding/json"
	"fmt"
)

// FieldValue is one parsed extraction entry. Confidence is nil when the model
// gave none; the extractor then derives a heuristic score.
type FieldValue struct {
	Value      string   `json:"value"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ParseExtraction decodes a sanitized extraction document into field values.
func ParseExtraction(sanitized []byte) (map[string]FieldValue, error) {
	var out map[string]FieldValue
	if err := json.Unmarshal(sanitized, &out); err != nil {
		return nil, fmt.Errorf("parse extraction: %w", err)
	}
	return out, nil
}
