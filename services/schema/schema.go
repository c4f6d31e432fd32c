// Package schema describes the shape of the data a node emits: a flat or
// nested set of named, typed fields with optional example values. Schemas are
// declarative only; they carry no behavior beyond merging and mock synthesis.
package schema

// FieldType enumerates the JSON-like types a field can declare.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
	TypeAny     FieldType = "any"
)

// Field declares one named value in a schema. Object fields nest via Fields;
// array fields describe their element via Items.
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
	Example     any       `json:"example,omitempty"`
	Fields      []Field   `json:"fields,omitempty"`
	Items       *Field    `json:"items,omitempty"`
}

// Schema is the declared output shape of a node. Type is currently always
// "object"; Fields lists the top-level fields in declaration order.
type Schema struct {
	Type   string  `json:"type"`
	Fields []Field `json:"fields"`
}

// New returns an object schema over the given fields.
func New(fields ...Field) *Schema {
	return &Schema{Type: "object", Fields: fields}
}

// IsEmpty reports whether the schema declares no fields. A nil schema is
// empty.
func (s *Schema) IsEmpty() bool {
	return s == nil || len(s.Fields) == 0
}

// FieldNames returns the top-level field names in declaration order.
func (s *Schema) FieldNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	out := &Schema{Type: s.Type, Fields: cloneFields(s.Fields)}
	return out
}

// Clone returns a deep copy of the field.
func (f Field) Clone() Field {
	f.Fields = cloneFields(f.Fields)
	if f.Items != nil {
		item := f.Items.Clone()
		f.Items = &item
	}
	f.Example = cloneExample(f.Example)
	return f
}

func cloneFields(fields []Field) []Field {
	if fields == nil {
		return nil
	}
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = f.Clone()
	}
	return out
}

func cloneExample(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneExample(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneExample(item)
		}
		return out
	default:
		return v
	}
}

// Merge unions the given schemas field-wise into a new object schema. Fields
// keep the order of first appearance; on a name conflict the first schema's
// declaration wins and later conflicting types are not reconciled (the union
// is best effort, for display and mock generation only). Nil schemas are
// skipped; the result is never nil.
func Merge(schemas ...*Schema) *Schema {
	merged := &Schema{Type: "object"}
	seen := make(map[string]bool)
	for _, s := range schemas {
		if s == nil {
			continue
		}
		for _, f := range s.Fields {
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			merged.Fields = append(merged.Fields, f.Clone())
		}
	}
	return merged
}
