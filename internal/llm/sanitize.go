package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/genesilico/trf-intake/internal/schema"
)

// NormalizeExtractionJSON
// - Strips markdown code fences models like to wrap JSON in
// - Coerces bare strings/numbers into the {value, confidence} object shape
// - Drops null/empty values and unknown keys (strict additionalProperties friendliness)
// - Clamps confidence into [0,1]
func NormalizeExtractionJSON(raw []byte, sch *schema.Schema, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(StripCodeFence(raw), &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 4)
	out := make(map[string]any, len(m))

	for k, v := range m {
		if !sch.Has(k) {
			dropped = append(dropped, k+"(unknown)")
			continue
		}
		obj := coerceFieldObject(v)
		if obj == nil {
			dropped = append(dropped, k+"(empty)")
			continue
		}
		out[k] = obj
	}

	bs, err := json.Marshal(out)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return bs, dropped, nil
}

// coerceFieldObject turns whatever shape the model emitted for one field into
// the canonical {value, confidence} object, or nil when nothing usable is left.
func coerceFieldObject(v any) map[string]any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.EqualFold(s, "null") {
			return nil
		}
		return map[string]any{"value": s}
	case float64:
		return map[string]any{"value": trimFloat(t)}
	case map[string]any:
		val, _ := t["value"]
		obj := coerceFieldObject(val)
		if obj == nil {
			return nil
		}
		if c, ok := t["confidence"].(float64); ok {
			if c < 0 {
				c = 0
			}
			if c > 1 {
				c = 1
			}
			obj["confidence"] = c
		}
		return obj
	default:
		return nil
	}
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	return s
}

// StripCodeFence removes a surrounding ```json ... ``` block if present.
func StripCodeFence(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return raw
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(strings.TrimSpace(s))
}
