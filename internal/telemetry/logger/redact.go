package logger

import (
	"log/slog"
	"strings"

	"github.com/yndnr/lime-go/internal/core/domain"
)

// Credential prefixes that are partially masked wherever they appear.
var sensitiveValuePrefixes = []string{
	"Bearer ",
	"Basic ",
}

// Key fragments whose values are fully redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"credential",
	"api_key",
	"apikey",
	"private_key",
}

const redactedValue = "***REDACTED***"

func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		for _, prefix := range sensitiveValuePrefixes {
			if strings.HasPrefix(s, prefix) {
				return slog.String(a.Key, maskValue(s, prefix))
			}
		}
		if s != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}

	case slog.KindAny:
		if auth, ok := a.Value.Any().(domain.Authentication); ok {
			switch auth.Scheme() {
			case domain.SchemePlain, domain.SchemeKey:
				return slog.String(a.Key, string(auth.Scheme())+":"+redactedValue)
			}
		}

	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// maskValue keeps the prefix and the first and last three characters.
func maskValue(value, prefix string) string {
	body := value[len(prefix):]
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}

// RedactString masks value if it carries a credential prefix.
func RedactString(value string) string {
	for _, prefix := range sensitiveValuePrefixes {
		if strings.HasPrefix(value, prefix) {
			return maskValue(value, prefix)
		}
	}
	return value
}

// IsSensitiveKey reports whether a key name suggests secret content.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(k, pattern) {
			return true
		}
	}
	return false
}
