package observability

import (
	"encoding/json"
	"strings"
)

// sensitiveKeys names the JSON keys RedactJSON scrubs before a payload is
// allowed into the Action Log (§4.B) or a log line: LLM provider keys, the
// internal-service token, and similar credentials. Matching is by key name
// only; a secret inside the free-text value of a non-sensitive key (such as
// a user's raw query) is not detected.
var sensitiveKeys = []string{
	"api_key", "apikey", "apiKey", "x-api-key", "x-aria-service-token",
	"authorization", "auth", "token", "access_token", "refresh_token",
	"password", "secret", "bearer",
}

// RedactJSON takes a JSON payload and replaces sensitive values with a
// fixed placeholder based on common key names. Used before a request/
// response body or an expert's ToolParams is persisted or logged.
func RedactJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	redacted := redactValue(v)
	b, err := json.Marshal(redacted)
	if err != nil {
		return raw
	}
	return b
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, vv := range val {
			if isSensitiveKey(k) {
				val[k] = "[REDACTED]"
			} else {
				val[k] = redactValue(vv)
			}
		}
		return val
	case []any:
		for i := range val {
			val[i] = redactValue(val[i])
		}
		return val
	default:
		return v
	}
}

func isSensitiveKey(k string) bool {
	low := strings.ToLower(k)
	for _, s := range sensitiveKeys {
		if low == s || strings.Contains(low, s) {
			return true
		}
	}
	return false
}
