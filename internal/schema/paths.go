package schema

import (
	"strconv"
	"strings"
)

// Field names are dotted paths into the nested TRF document shape, with
// numeric segments addressing array positions ("Sample.0.sampleID"). The
// helpers below convert between the flat per-field view the pipeline works in
// and the nested view the API serves.

// GetPath resolves a dotted path inside a nested document.
func GetPath(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = data
	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// SetPath writes a value at a dotted path, creating intermediate objects and
// growing arrays as needed. Existing scalars in the way are replaced by
// containers.
func SetPath(data map[string]any, path string, value any) {
	if path == "" || data == nil {
		return
	}
	setIn(data, strings.Split(path, "."), value)
}

func setIn(m map[string]any, parts []string, value any) {
	key := parts[0]
	if len(parts) == 1 {
		m[key] = value
		return
	}
	next := parts[1]
	if isIndex(next) {
		idx, _ := strconv.Atoi(next)
		s, _ := m[key].([]any)
		for len(s) <= idx {
			s = append(s, map[string]any{})
		}
		m[key] = s
		if len(parts) == 2 {
			s[idx] = value
			return
		}
		child, ok := s[idx].(map[string]any)
		if !ok {
			child = map[string]any{}
			s[idx] = child
		}
		setIn(child, parts[2:], value)
		return
	}
	child, ok := m[key].(map[string]any)
	if !ok {
		child = map[string]any{}
		m[key] = child
	}
	setIn(child, parts[1:], value)
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
