package recovery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FieldType enumerates the value shapes a schema field can declare.
type FieldType int

// Field type constants
const (
	String FieldType = iota
	Integer
	Number
	Boolean
	StringList
	Object
	ObjectList
)

// Field declares one expected field of a recovered object.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	// Min and Max bound numeric fields. Out-of-range values are clamped,
	// not rejected.
	Min *float64
	Max *float64
	// Default fills the field in the fallback object and when a best-effort
	// stage could not find it.
	Default any
	// Fields describes the members of an Object field.
	Fields []Field
}

// Schema is the required shape a recovered object must satisfy.
type Schema struct {
	Name   string
	Fields []Field
	// Document optionally holds a JSON Schema text. When set, the conformed
	// object is additionally checked against it before a stage is accepted.
	Document string
}

// Bounds is a convenience constructor for Min/Max pointers.
func Bounds(min, max float64) (*float64, *float64) {
	return &min, &max
}

// conform validates obj against the schema, coercing field types and clamping
// numeric values. When fillDefaults is false a missing required field fails
// the stage; when true (best-effort and fallback stages) it is defaulted.
func (s Schema) conform(obj map[string]any, fillDefaults bool) (map[string]any, error) {
	out := make(map[string]any, len(s.Fields))

	for _, field := range s.Fields {
		raw, present := obj[field.Name]
		if !present || raw == nil {
			if field.Required && !fillDefaults {
				return nil, fmt.Errorf("missing required field %q", field.Name)
			}
			if def, ok := field.defaultValue(); ok {
				out[field.Name] = def
			}
			continue
		}

		value, err := coerceValue(raw, field, fillDefaults)
		if err != nil {
			if field.Required && !fillDefaults {
				return nil, fmt.Errorf("field %q: %w", field.Name, err)
			}
			if def, ok := field.defaultValue(); ok {
				out[field.Name] = def
			}
			continue
		}
		out[field.Name] = value
	}

	return out, nil
}

// Fallback returns the schema's minimal valid object: every field at its
// declared default. This is the ladder's last rung and always validates.
func (s Schema) Fallback() map[string]any {
	out := make(map[string]any, len(s.Fields))
	for _, field := range s.Fields {
		if def, ok := field.defaultValue(); ok {
			out[field.Name] = def
		}
	}
	return out
}

func (f Field) defaultValue() (any, bool) {
	if f.Default != nil {
		return f.Default, true
	}
	switch f.Type {
	case String:
		return "", true
	case Integer:
		return int(clampNumber(0, f.Min, f.Max)), true
	case Number:
		return clampNumber(0, f.Min, f.Max), true
	case Boolean:
		return false, true
	case StringList:
		return []string{}, true
	case Object:
		nested := make(map[string]any, len(f.Fields))
		for _, member := range f.Fields {
			if def, ok := member.defaultValue(); ok {
				nested[member.Name] = def
			}
		}
		return nested, true
	case ObjectList:
		return []map[string]any{}, true
	}
	return nil, false
}

func coerceValue(raw any, field Field, fillDefaults bool) (any, error) {
	switch field.Type {
	case String:
		return coerceString(raw)
	case Integer:
		n, err := coerceNumber(raw)
		if err != nil {
			return nil, err
		}
		return int(clampNumber(n, field.Min, field.Max)), nil
	case Number:
		n, err := coerceNumber(raw)
		if err != nil {
			return nil, err
		}
		return clampNumber(n, field.Min, field.Max), nil
	case Boolean:
		return coerceBool(raw)
	case StringList:
		return coerceStringList(raw)
	case Object:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected object, got %T", raw)
		}
		nested := Schema{Name: field.Name, Fields: field.Fields}
		return nested.conform(m, fillDefaults)
	case ObjectList:
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("expected list, got %T", raw)
		}
		nested := Schema{Name: field.Name, Fields: field.Fields}
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				// A bare string in an object list is treated as the first
				// declared member, which is the text in every schema here.
				if s, err := coerceString(item); err == nil && s != "" && len(field.Fields) > 0 {
					m = map[string]any{field.Fields[0].Name: s}
				} else {
					continue
				}
			}
			conformed, err := nested.conform(m, fillDefaults)
			if err != nil {
				if !fillDefaults {
					return nil, fmt.Errorf("list element: %w", err)
				}
				continue
			}
			out = append(out, conformed)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown field type %d", field.Type)
}

func coerceString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case []any:
		// Models sometimes return a list where a sentence was asked for.
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, err := coerceString(item); err == nil && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), nil
	}
	return "", fmt.Errorf("expected string, got %T", raw)
}

// leadingNumber matches the first integer or decimal in a string, tolerating
// prose like "Score: 8/10" around the value.
var leadingNumber = regexp.MustCompile(`-?\d+(\.\d+)?`)

func coerceNumber(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		match := leadingNumber.FindString(v)
		if match == "" {
			return 0, fmt.Errorf("no numeric value in %q", v)
		}
		return strconv.ParseFloat(match, 64)
	}
	return 0, fmt.Errorf("expected number, got %T", raw)
}

func coerceBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes":
			return true, nil
		case "false", "no":
			return false, nil
		}
	}
	return false, fmt.Errorf("expected boolean, got %T", raw)
}

func coerceStringList(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := coerceString(item)
			if err != nil {
				// Objects in place of strings appear in historical model
				// output; pull a text-ish member if one exists.
				if m, ok := item.(map[string]any); ok {
					s = textMember(m)
				}
			}
			if s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case []string:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return []string{}, nil
		}
		return []string{strings.TrimSpace(v)}, nil
	}
	return nil, fmt.Errorf("expected list, got %T", raw)
}

// textMember pulls the most likely display string out of an object-shaped
// list element ({"label": ..., "score": ...} and similar variants).
func textMember(m map[string]any) string {
	for _, key := range []string{"label", "text", "description", "value", "name"} {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func clampNumber(n float64, min, max *float64) float64 {
	if min != nil && n < *min {
		n = *min
	}
	if max != nil && n > *max {
		n = *max
	}
	return n
}
