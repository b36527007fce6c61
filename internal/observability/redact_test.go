package observability

import (
	"encoding/json"
	"testing"
)

func TestRedactJSON_SimpleAndNested(t *testing.T) {
	in := map[string]any{
		"query": "remind me to call the vet",
		"provider": map[string]any{
			"name":    "openai",
			"api_key": "sk-super-secret",
		},
		"headers": []any{
			map[string]any{"x-aria-service-token": "tok-abc"},
			"plain",
		},
		"user_id": "keepme",
	}
	b, _ := json.Marshal(in)
	out := RedactJSON(b)
	var v any
	if err := json.Unmarshal(out, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", v)
	}
	provider := m["provider"].(map[string]any)
	if provider["api_key"] != "[REDACTED]" {
		t.Errorf("api_key not redacted: %v", provider["api_key"])
	}
	headers := m["headers"].([]any)
	first := headers[0].(map[string]any)
	if first["x-aria-service-token"] != "[REDACTED]" {
		t.Errorf("array-nested service token not redacted: %v", first["x-aria-service-token"])
	}
	if m["user_id"] != "keepme" {
		t.Errorf("non-sensitive value mutated: %v", m["user_id"])
	}
	if m["query"] != "remind me to call the vet" {
		t.Errorf("non-sensitive value mutated: %v", m["query"])
	}
}

func TestRedactJSON_EmptyAndInvalid(t *testing.T) {
	empty := json.RawMessage(nil)
	if got := RedactJSON(empty); got != nil {
		t.Errorf("expected nil raw for empty input, got %v", got)
	}

	raw := json.RawMessage([]byte("notjson"))
	res := RedactJSON(raw)
	if string(res) != "notjson" {
		t.Errorf("expected original bytes for invalid json, got %s", string(res))
	}
}
