package core

import (
	"fmt"
	"strings"
)

type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeInt    FieldType = "int"
	FieldTypeBool   FieldType = "bool"
	FieldTypeSecret FieldType = "secret"
)

// SchemaField declares one connector config entry. Secret fields are redacted
// in logs and encrypted at rest.
type SchemaField struct {
	Name     string
	Type     FieldType
	Required bool
	Default  any
}

// ConfigSchema is a connector's declared configuration surface. Validation is
// structural only; connectors own deeper semantic checks.
type ConfigSchema struct {
	Fields []SchemaField
}

func (s ConfigSchema) Validate() error {
	seen := map[string]struct{}{}
	for _, field := range s.Fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return fmt.Errorf("core: schema field name is required")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("core: duplicate schema field %q", name)
		}
		seen[name] = struct{}{}
		switch field.Type {
		case FieldTypeString, FieldTypeInt, FieldTypeBool, FieldTypeSecret:
		default:
			return fmt.Errorf("core: schema field %q has unknown type %q", name, field.Type)
		}
	}
	return nil
}

// ApplyDefaults returns config with declared defaults filled in for absent
// keys. The input map is not mutated.
func (s ConfigSchema) ApplyDefaults(config map[string]any) map[string]any {
	out := make(map[string]any, len(config)+len(s.Fields))
	for k, v := range config {
		out[k] = v
	}
	for _, field := range s.Fields {
		if field.Default == nil {
			continue
		}
		if _, ok := out[field.Name]; !ok {
			out[field.Name] = field.Default
		}
	}
	return out
}

// Check validates config against the schema: required fields present and
// types structurally correct. Errors report every failing field.
func (s ConfigSchema) Check(config map[string]any) error {
	var problems []string
	for _, field := range s.Fields {
		value, ok := config[field.Name]
		if !ok || value == nil {
			if field.Required {
				problems = append(problems, fmt.Sprintf("missing required field %q", field.Name))
			}
			continue
		}
		if !fieldTypeMatches(field.Type, value) {
			problems = append(problems, fmt.Sprintf("field %q expects %s", field.Name, field.Type))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("core: config schema check failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SecretFields lists the schema fields holding credential material.
func (s ConfigSchema) SecretFields() []string {
	var names []string
	for _, field := range s.Fields {
		if field.Type == FieldTypeSecret {
			names = append(names, field.Name)
		}
	}
	return names
}

func fieldTypeMatches(ft FieldType, value any) bool {
	switch ft {
	case FieldTypeString, FieldTypeSecret:
		_, ok := value.(string)
		return ok
	case FieldTypeBool:
		_, ok := value.(bool)
		return ok
	case FieldTypeInt:
		switch value.(type) {
		case int, int32, int64, float64:
			return true
		}
		return false
	default:
		return false
	}
}
