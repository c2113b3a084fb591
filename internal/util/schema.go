package util

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ValidationError reports the first argument that does not match a tool's
// parameter schema. Field is a dotted path for nested values.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// SchemaFor derives a JSON schema object from a struct value or pointer.
// Field names follow the json tag; `description` and `enum` (comma separated)
// tags are copied. Fields without omitempty that are not pointers are required.
func SchemaFor(v any) map[string]any {
	return objectSchema(reflect.TypeOf(v))
}

func objectSchema(t reflect.Type) map[string]any {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	props := map[string]any{}
	schema := map[string]any{"type": "object", "properties": props}

	if t == nil || t.Kind() != reflect.Struct {
		return schema
	}

	var required []string

	for f := range fields(t) {
		name, opts := jsonName(f)
		if name == "" {
			continue
		}

		prop := typeSchema(f.Type)
		if d := f.Tag.Get("description"); d != "" {
			prop["description"] = d
		}

		if e := f.Tag.Get("enum"); e != "" {
			prop["enum"] = strings.Split(e, ",")
		}

		props[name] = prop

		if !slices.Contains(opts, "omitempty") && f.Type.Kind() != reflect.Pointer {
			required = append(required, name)
		}
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

func fields(t reflect.Type) func(yield func(reflect.StructField) bool) {
	return func(yield func(reflect.StructField) bool) {
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}

			if !yield(f) {
				return
			}
		}
	}
}

func jsonName(f reflect.StructField) (string, []string) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", nil
	}

	parts := strings.Split(tag, ",")
	if parts[0] == "" {
		return f.Name, parts[1:]
	}

	return parts[0], parts[1:]
}

func typeSchema(t reflect.Type) map[string]any {
	switch t.Kind() {
	case reflect.Pointer:
		return typeSchema(t.Elem())
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": typeSchema(t.Elem())}
	case reflect.Struct:
		return objectSchema(t)
	case reflect.Map:
		return map[string]any{"type": "object"}
	default:
		return map[string]any{}
	}
}

// Validate checks args against an object schema: required fields, primitive
// types, enums, array items and nested objects. Unknown fields are allowed.
func Validate(args map[string]any, schema map[string]any) error {
	return validateObject("", args, schema)
}

func validateObject(path string, obj map[string]any, schema map[string]any) error {
	for _, name := range requiredFields(schema["required"]) {
		if _, ok := obj[name]; !ok {
			return &ValidationError{Field: join(path, name), Message: "required field is missing"}
		}
	}

	props, _ := schema["properties"].(map[string]any)

	for name, value := range obj {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}

		if err := validateValue(join(path, name), value, prop); err != nil {
			return err
		}
	}

	return nil
}

func validateValue(path string, value any, schema map[string]any) error {
	if value == nil {
		return nil
	}

	want, _ := schema["type"].(string)
	if !matchesType(value, want) {
		return &ValidationError{Field: path, Value: value, Message: fmt.Sprintf("expected type %s, got %T", want, value)}
	}

	if enum := requiredFields(schema["enum"]); len(enum) > 0 {
		if s, ok := value.(string); ok && !slices.Contains(enum, s) {
			return &ValidationError{Field: path, Value: value, Message: fmt.Sprintf("must be one of %s", strings.Join(enum, ", "))}
		}
	}

	switch v := value.(type) {
	case map[string]any:
		if _, nested := schema["properties"]; nested {
			return validateObject(path, v, schema)
		}
	case []any:
		items, ok := schema["items"].(map[string]any)
		if !ok {
			return nil
		}

		for i, item := range v {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), item, items); err != nil {
				return err
			}
		}
	}

	return nil
}

// requiredFields accepts []string from Go-built schemas and []any from
// decoded JSON.
func requiredFields(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, r := range x {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}

func matchesType(value any, want string) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		switch n := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return n == float64(int64(n))
		}

		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}

		return false
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}

	return path + "." + name
}
