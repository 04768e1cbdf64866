package repl

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHistory_AddGet(t *testing.T) {
	h := NewHistory("")
	h.Add("first")
	h.Add("second")
	h.Add("second")
	h.Add("third")

	tests := []struct {
		index int
		want  string
	}{
		{0, "third"},
		{1, "second"},
		{2, "first"},
		{3, ""},
		{-1, ""},
	}
	for _, tt := range tests {
		if got := h.Get(tt.index); got != tt.want {
			t.Errorf("Get(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestHistory_MaxSize(t *testing.T) {
	h := NewHistory("")
	h.maxSize = 3
	for _, cmd := range []string{"cmd1", "cmd2", "cmd3", "cmd4"} {
		h.Add(cmd)
	}
	if h.Len() != 3 || h.Get(2) != "cmd2" {
		t.Errorf("entries = %v, want cmd2..cmd4", h.entries)
	}
}

func TestHistory_SaveLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".lime", "history")

	h := NewHistory(file)
	h.Add("send bob hi")
	h.Add("get /profile")
	if err := h.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	loaded := NewHistory(file)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Len() != 2 || loaded.Get(0) != "get /profile" {
		t.Errorf("loaded entries = %v", loaded.entries)
	}
}

func TestHistory_MissingAndMemoryOnly(t *testing.T) {
	if err := NewHistory(filepath.Join(t.TempDir(), "none")).Load(); err != nil {
		t.Errorf("Load() of missing file error = %v", err)
	}
	h := NewHistory("")
	h.Add("x")
	if err := h.Save(); err != nil {
		t.Errorf("Save() without file error = %v", err)
	}
	if err := h.Load(); err != nil {
		t.Errorf("Load() without file error = %v", err)
	}
}
