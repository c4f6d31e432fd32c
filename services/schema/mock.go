package schema

import "strings"

// Mock synthesizes one representative JSON-like value per declared field.
// Output is deterministic: a field's Example always wins; otherwise a
// name-aware sample is chosen, falling back to a fixed per-type default.
// A nil or empty schema yields an empty map.
func Mock(s *Schema) map[string]any {
	out := make(map[string]any)
	if s == nil {
		return out
	}
	for _, f := range s.Fields {
		out[f.Name] = MockField(f)
	}
	return out
}

// MockField synthesizes a representative value for a single field, under the
// same rules as Mock.
func MockField(f Field) any {
	if f.Example != nil {
		return cloneExample(f.Example)
	}
	switch f.Type {
	case TypeObject:
		obj := make(map[string]any, len(f.Fields))
		for _, child := range f.Fields {
			obj[child.Name] = MockField(child)
		}
		return obj
	case TypeArray:
		if f.Items != nil {
			return []any{MockField(*f.Items)}
		}
		return []any{}
	case TypeNumber:
		return sampleNumber(f.Name)
	case TypeBoolean:
		return true
	default:
		return sampleString(f.Name)
	}
}

// sampleString picks a plausible value for common field names so previews
// read naturally in the editor.
func sampleString(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "email"):
		return "alice@example.com"
	case strings.Contains(lower, "url") || strings.Contains(lower, "endpoint"):
		return "https://example.com"
	case strings.Contains(lower, "name"):
		return "Alice"
	case strings.Contains(lower, "city") || strings.Contains(lower, "location"):
		return "Sydney"
	case strings.Contains(lower, "id"):
		return "sample-id-001"
	case strings.Contains(lower, "date") || strings.Contains(lower, "time"):
		return "2024-01-15T09:30:00Z"
	case strings.Contains(lower, "status"):
		return "ok"
	default:
		return "sample " + name
	}
}

func sampleNumber(name string) float64 {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "temperature"):
		return 28.5
	case strings.Contains(lower, "count") || strings.Contains(lower, "total"):
		return 3
	case strings.Contains(lower, "lat"):
		return -33.8688
	case strings.Contains(lower, "lon"):
		return 151.2093
	default:
		return 42
	}
}
