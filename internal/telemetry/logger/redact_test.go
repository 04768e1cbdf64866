package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/yndnr/lime-go/internal/core/domain"
)

func TestRedactSensitive_KeyNames(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Level: "info", Format: "json", Output: &buf})

	l.Info("login",
		"password", "hunter2",
		"jwt_secret", "s3cr3t",
		"Authorization", "opaque",
		"empty_token", "",
		"identity", "alice@lime.local",
	)

	entry := decodeLines(t, &buf)[0]
	for _, key := range []string{"password", "jwt_secret", "Authorization"} {
		if entry[key] != redactedValue {
			t.Errorf("%s = %v, want redacted", key, entry[key])
		}
	}
	if entry["empty_token"] != "" {
		t.Errorf("empty_token = %v, want empty", entry["empty_token"])
	}
	if entry["identity"] != "alice@lime.local" {
		t.Errorf("identity = %v, want untouched", entry["identity"])
	}
}

func TestRedactSensitive_BearerValue(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Level: "info", Format: "json", Output: &buf})

	l.Info("request", "header", "Bearer eyJhbGciOiJIUzI1NiJ9.payload.sig")

	entry := decodeLines(t, &buf)[0]
	if entry["header"] != "Bearer eyJ...sig" {
		t.Errorf("header = %v", entry["header"])
	}
}

func TestRedactSensitive_Authentication(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Level: "info", Format: "json", Output: &buf})

	l.Info("auth",
		"plain", domain.NewPlainAuthentication("hunter2"),
		"guest", domain.GuestAuthentication{},
	)

	entry := decodeLines(t, &buf)[0]
	if entry["plain"] != "plain:"+redactedValue {
		t.Errorf("plain = %v", entry["plain"])
	}
	if _, ok := entry["guest"].(map[string]any); !ok {
		t.Errorf("guest = %#v, want object", entry["guest"])
	}
}

func TestRedactSensitive_Group(t *testing.T) {
	a := redactSensitive(slog.Group("session", slog.String("password", "x"), slog.String("id", "1")))
	attrs := a.Value.Group()
	if attrs[0].Value.String() != redactedValue {
		t.Errorf("nested password = %q", attrs[0].Value.String())
	}
	if attrs[1].Value.String() != "1" {
		t.Errorf("nested id = %q", attrs[1].Value.String())
	}
}

func TestRedactString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Bearer abcdefghijkl", "Bearer abc...jkl"},
		{"Bearer abc", "Bearer ***"},
		{"Basic YWxpY2U6aHVudGVyMg==", "Basic YWx...g=="},
		{"plain value", "plain value"},
	}
	for _, tt := range tests {
		if got := RedactString(tt.in); got != tt.want {
			t.Errorf("RedactString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"password", true},
		{"JWT_SECRET", true},
		{"access_token", true},
		{"api_key", true},
		{"session_id", false},
		{"remote", false},
	}
	for _, tt := range tests {
		if got := IsSensitiveKey(tt.key); got != tt.want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
