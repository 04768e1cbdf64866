package token

import (
	"encoding/base64"
	"testing"
)

func TestGenerate(t *testing.T) {
	for _, length := range []int{8, 16, 32} {
		id, err := Generate(length)
		if err != nil {
			t.Fatalf("Generate(%d) error = %v", length, err)
		}
		decoded, err := base64.RawURLEncoding.DecodeString(id)
		if err != nil {
			t.Fatalf("Generate(%d) = %q is not RawURL base64", length, id)
		}
		if len(decoded) != length {
			t.Errorf("Generate(%d) decodes to %d bytes", length, len(decoded))
		}
	}

	a, _ := Generate(16)
	b, _ := Generate(16)
	if a == b {
		t.Error("Generate() returned the same value twice")
	}
}

func TestHash(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}
	for _, tt := range tests {
		if got := Hash(tt.in); got != tt.want {
			t.Errorf("Hash(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
