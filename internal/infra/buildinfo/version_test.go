package buildinfo

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	tests := []struct {
		name  string
		value string
	}{
		{"Version", info.Version},
		{"Commit", info.Commit},
		{"BuildTime", info.BuildTime},
		{"GoVersion", info.GoVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value == "" {
				t.Errorf("%s field should not be empty", tt.name)
			}
		})
	}
}

func TestGet_GoVersionFallback(t *testing.T) {
	old := GoVersion
	GoVersion = "unknown"
	defer func() { GoVersion = old }()

	if got := Get().GoVersion; got != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", got, runtime.Version())
	}
}

func TestString(t *testing.T) {
	s := String()

	want := Version + " (" + Commit + ") built at " + BuildTime
	if !strings.HasPrefix(s, want) {
		t.Errorf("String() = %q, want prefix %q", s, want)
	}
	if !strings.HasSuffix(s, Get().GoVersion) {
		t.Errorf("String() = %q should end with the Go version", s)
	}
}
