package core

import "testing"

func TestRedactSensitiveMap(t *testing.T) {
	input := map[string]any{
		"connector":      "demo",
		"bot_token":      "xoxb-123",
		"signing_secret": "hush",
		"nested": map[string]any{
			"api_key": "k-1",
			"team":    "T1",
		},
		"items": []any{
			map[string]any{"password": "pw"},
		},
	}
	redacted := RedactSensitiveMap(input)

	if redacted["connector"] != "demo" {
		t.Fatalf("traceability key should survive: %v", redacted["connector"])
	}
	if redacted["bot_token"] != RedactedValue {
		t.Fatalf("expected bot_token redacted, got %v", redacted["bot_token"])
	}
	if redacted["signing_secret"] != RedactedValue {
		t.Fatalf("expected signing_secret redacted")
	}
	nested := redacted["nested"].(map[string]any)
	if nested["api_key"] != RedactedValue || nested["team"] != "T1" {
		t.Fatalf("nested redaction failed: %v", nested)
	}
	items := redacted["items"].([]any)
	if items[0].(map[string]any)["password"] != RedactedValue {
		t.Fatalf("slice redaction failed: %v", items)
	}
	if input["bot_token"] == RedactedValue {
		t.Fatalf("input map must not be mutated")
	}
}

func TestRedactSensitiveMap_Empty(t *testing.T) {
	out := RedactSensitiveMap(nil)
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty map, got %v", out)
	}
}
