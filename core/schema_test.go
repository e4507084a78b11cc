package core

import (
	"strings"
	"testing"
)

func TestConfigSchema_CheckMissingRequired(t *testing.T) {
	schema := ConfigSchema{Fields: []SchemaField{
		{Name: "secret", Type: FieldTypeSecret, Required: true},
		{Name: "verbose", Type: FieldTypeBool},
	}}

	err := schema.Check(map[string]any{"verbose": true})
	if err == nil {
		t.Fatalf("expected missing required field error")
	}
	if !strings.Contains(err.Error(), "secret") {
		t.Fatalf("expected error to name the field, got %v", err)
	}
}

func TestConfigSchema_CheckTypeMismatch(t *testing.T) {
	schema := ConfigSchema{Fields: []SchemaField{
		{Name: "retries", Type: FieldTypeInt, Required: true},
	}}
	if err := schema.Check(map[string]any{"retries": "three"}); err == nil {
		t.Fatalf("expected type mismatch error")
	}
	if err := schema.Check(map[string]any{"retries": 3}); err != nil {
		t.Fatalf("int value rejected: %v", err)
	}
	// json decoding yields float64 for numbers
	if err := schema.Check(map[string]any{"retries": float64(3)}); err != nil {
		t.Fatalf("float64 value rejected: %v", err)
	}
}

func TestConfigSchema_CheckReportsAllProblems(t *testing.T) {
	schema := ConfigSchema{Fields: []SchemaField{
		{Name: "secret", Type: FieldTypeSecret, Required: true},
		{Name: "retries", Type: FieldTypeInt, Required: true},
	}}
	err := schema.Check(map[string]any{"retries": "three"})
	if err == nil {
		t.Fatalf("expected errors")
	}
	if !strings.Contains(err.Error(), "secret") || !strings.Contains(err.Error(), "retries") {
		t.Fatalf("expected both problems reported, got %v", err)
	}
}

func TestConfigSchema_ApplyDefaults(t *testing.T) {
	schema := ConfigSchema{Fields: []SchemaField{
		{Name: "mode", Type: FieldTypeString, Default: "polling"},
		{Name: "secret", Type: FieldTypeSecret, Required: true},
	}}
	input := map[string]any{"secret": "hush"}
	out := schema.ApplyDefaults(input)
	if out["mode"] != "polling" {
		t.Fatalf("expected default applied, got %v", out["mode"])
	}
	if _, mutated := input["mode"]; mutated {
		t.Fatalf("expected input map untouched")
	}
	// explicit values win over defaults
	out = schema.ApplyDefaults(map[string]any{"secret": "hush", "mode": "webhook"})
	if out["mode"] != "webhook" {
		t.Fatalf("expected explicit value kept, got %v", out["mode"])
	}
}

func TestConfigSchema_ValidateRejectsDuplicates(t *testing.T) {
	schema := ConfigSchema{Fields: []SchemaField{
		{Name: "secret", Type: FieldTypeSecret},
		{Name: "secret", Type: FieldTypeString},
	}}
	if err := schema.Validate(); err == nil {
		t.Fatalf("expected duplicate field rejection")
	}
}

func TestConfigSchema_SecretFields(t *testing.T) {
	schema := ConfigSchema{Fields: []SchemaField{
		{Name: "secret", Type: FieldTypeSecret},
		{Name: "mode", Type: FieldTypeString},
		{Name: "signing_key", Type: FieldTypeSecret},
	}}
	fields := schema.SecretFields()
	if len(fields) != 2 {
		t.Fatalf("expected 2 secret fields, got %v", fields)
	}
}
