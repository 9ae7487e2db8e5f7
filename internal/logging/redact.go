package logging

import (
	"regexp"
	"strings"
)

// sensitiveKeySubstrings is the case-insensitive substring set that marks a
// key as carrying a value that must never appear in full.
var sensitiveKeySubstrings = []string{
	"password", "passwd", "secret", "token", "apikey", "api_key",
	"authorization", "bearer", "cookie", "session", "private",
	"ssh", "cert", "key", "salt", "credential",
}

var (
	jwtPattern      = regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`)
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)
	urlQueryPattern = regexp.MustCompile(`(https?://[^\s?]+)\?\S*`)
)

// isSensitiveKey reports whether key's lowercased form contains any of the
// documented sensitive substrings.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeySubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// maskSensitive applies the key-based masking rule: values of length <= 8
// become "[REDACTED]"; longer values keep their first and last 4 characters.
func maskSensitive(value string) string {
	if len(value) <= 8 {
		return "[REDACTED]"
	}
	return value[:4] + "****" + value[len(value)-4:]
}

// redactStringValue applies the value-based patterns (JWT, email, URL
// query string) to a string that sits under a non-sensitive key.
func redactStringValue(value string) string {
	value = jwtPattern.ReplaceAllString(value, "[REDACTED_JWT]")
	value = emailPattern.ReplaceAllString(value, "[REDACTED_EMAIL]")
	value = urlQueryPattern.ReplaceAllString(value, "$1?[QUERY_REDACTED]")
	return value
}

// RedactConfig recursively redacts sensitive values in a configuration
// snapshot using key-based substring matching only.
func RedactConfig(config map[string]any) map[string]any {
	return redactConfigValue(config, "").(map[string]any)
}

func redactConfigValue(v any, parentKey string) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = redactConfigValue(vv, k)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactConfigValue(item, parentKey)
		}
		return out
	case string:
		if isSensitiveKey(parentKey) {
			return maskSensitive(val)
		}
		return val
	default:
		return val
	}
}

// RedactLogEntry applies both key-based and value-based redaction to a
// logged record: key-based masking takes priority for sensitive keys;
// otherwise value-based patterns run against the string.
func RedactLogEntry(entry map[string]any) map[string]any {
	out := make(map[string]any, len(entry))
	for k, v := range entry {
		out[k] = redactEntryValue(k, v)
	}
	return out
}

func redactEntryValue(key string, v any) any {
	switch val := v.(type) {
	case map[string]any:
		return RedactLogEntry(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			switch iv := item.(type) {
			case map[string]any:
				out[i] = RedactLogEntry(iv)
			case string:
				out[i] = redactStringValue(iv)
			default:
				out[i] = item
			}
		}
		return out
	case string:
		if isSensitiveKey(key) {
			return maskSensitive(val)
		}
		return redactStringValue(val)
	default:
		return v
	}
}
