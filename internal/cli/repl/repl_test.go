package repl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestREPL_Exit(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"exit command", "exit\n"},
		{"quit command", "quit\n"},
		{"EOF", ""},
		{"blank lines then exit", "\n\n  \nexit\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(strings.NewReader(tt.input), io.Discard)
			if err := r.Run(context.Background()); err != nil {
				t.Errorf("Run() error = %v", err)
			}
		})
	}
}

func TestREPL_Dispatch(t *testing.T) {
	var got [][]string
	out := &syncBuffer{}
	r := New(strings.NewReader("send bob hello world\nbogus\nse\nfail\nexit\nsend never\n"), out)
	r.Handle("send", "send a message", func(_ context.Context, args []string) error {
		got = append(got, args)
		return nil
	})
	r.Handle("fail", "always fails", func(context.Context, []string) error {
		return errors.New("boom")
	})

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(got) != 1 || strings.Join(got[0], " ") != "bob hello world" {
		t.Errorf("send args = %v", got)
	}
	text := out.String()
	for _, want := range []string{
		`unknown command "bogus", type help`,
		`unknown command "se" (did you mean send?)`,
		"error: boom",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if r.History().Len() != 5 {
		t.Errorf("history has %d entries, want 5", r.History().Len())
	}
}

func TestREPL_Help(t *testing.T) {
	out := &syncBuffer{}
	r := New(strings.NewReader("help\n"), out, WithPrompt("> "))
	r.Handle("get", "fetch a resource", func(context.Context, []string) error { return nil })
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	if !strings.HasPrefix(text, "> ") {
		t.Errorf("prompt not printed: %q", text)
	}
	for _, want := range []string{"exit", "get", "fetch a resource", "help"} {
		if !strings.Contains(text, want) {
			t.Errorf("help output missing %q:\n%s", want, text)
		}
	}
}

func TestREPL_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := New(pr, io.Discard)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestREPL_Printf(t *testing.T) {
	out := &syncBuffer{}
	r := New(strings.NewReader(""), out, WithPrompt("$ "))
	r.Printf("incoming %s\n", "m1")
	if got := out.String(); got != "\rincoming m1\n$ " {
		t.Errorf("Printf output = %q", got)
	}
}
