package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// sensitiveFragments mark attribute keys whose values never reach the log,
// whatever the call site passes. Matching is case-insensitive on substrings
// so hmacSecret, authorization and privateKeyHex are all caught.
var sensitiveFragments = []string{
	"secret",
	"password",
	"passphrase",
	"authorization",
	"token",
	"privatekey",
}

// IsSensitive reports whether values logged under key are redacted.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return false
	}
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// MaskField returns an attribute that records whether value was configured
// without revealing it.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, "")
	}
	return slog.String(key, RedactedValue)
}

func redact(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup || !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && attr.Value.String() == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
