package command

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/lime-go/internal/core/domain"
)

func TestSend_ToServer(t *testing.T) {
	env := newTestEnv(t)
	res := env.run("", as("alice", "--output", "json", "send", "hello", "world")...)
	if res.err != nil {
		t.Fatalf("send error = %v", res.err)
	}

	var got SendResult
	if err := json.Unmarshal([]byte(res.stdout.String()), &got); err != nil {
		t.Fatalf("decode %q: %v", res.stdout.String(), err)
	}
	if got.Event != string(domain.EventReceived) || got.ID == "" {
		t.Errorf("result = %+v, want received with id", got)
	}
	if got.To != "postmaster@lime.local/server" {
		t.Errorf("To = %q", got.To)
	}
}

func TestSend_NoWait(t *testing.T) {
	env := newTestEnv(t)
	res := env.run("", as("alice", "--output", "json", "send", "--no-wait", "ping")...)
	if res.err != nil {
		t.Fatalf("send error = %v", res.err)
	}
	var got SendResult
	if err := json.Unmarshal([]byte(res.stdout.String()), &got); err != nil {
		t.Fatal(err)
	}
	if got.Event != "sent" {
		t.Errorf("Event = %q, want sent", got.Event)
	}
}

func TestSend_UnknownDestination(t *testing.T) {
	env := newTestEnv(t)
	res := env.run("", as("alice", "send", "--to", "nobody@lime.local", "hi")...)
	if res.err == nil || !strings.Contains(res.err.Error(), "failed") {
		t.Fatalf("error = %v, want failed message", res.err)
	}
	out := res.stdout.String()
	if !strings.Contains(out, "failed") || !strings.Contains(out, "code 42") {
		t.Errorf("output = %q, want failed event with reason 42", out)
	}
}

func TestSend_ArgumentErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no text", []string{"send"}, "text required"},
		{"bad destination", []string{"send", "--to", "@", "hi"}, "--to"},
		{"bad media type", []string{"send", "--type", "nonsense", "hi"}, "--type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.run("", as("alice", tt.args...)...)
			if res.err == nil || !strings.Contains(res.err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", res.err, tt.want)
			}
		})
	}
}

func TestListen_ReceivesForwardedMessage(t *testing.T) {
	env := newTestEnv(t)

	done := make(chan runResult, 1)
	go func() {
		done <- env.run("", as("bob", "--output", "json", "listen", "--kind", "message", "--count", "1", "--ack")...)
	}()

	// Retry until bob is routable; the listener exits after one message.
	var sent bool
	for i := 0; i < 50 && !sent; i++ {
		res := env.run("", as("alice", "send", "--to", "bob@lime.local", "hi", "bob")...)
		sent = res.err == nil
		if !sent {
			time.Sleep(50 * time.Millisecond)
		}
	}
	if !sent {
		t.Fatal("message to bob never dispatched")
	}

	var res runResult
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("listen did not exit after --count 1")
	}
	if res.err != nil {
		t.Fatalf("listen error = %v", res.err)
	}
	if !strings.Contains(res.stderr.String(), "listening as bob@lime.local/cli") {
		t.Errorf("stderr = %q", res.stderr.String())
	}

	var m struct {
		From    string `json:"from"`
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	line := strings.TrimSpace(strings.SplitN(res.stdout.String(), "\n", 2)[0])
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	if m.Content != "hi bob" || m.Type != "text/plain" || !strings.HasPrefix(m.From, "alice@lime.local") {
		t.Errorf("message = %+v", m)
	}
}

func TestParseKinds(t *testing.T) {
	tests := []struct {
		in      []string
		want    []domain.Kind
		wantErr bool
	}{
		{[]string{"message", "Notifications"}, []domain.Kind{domain.KindMessage, domain.KindNotification}, false},
		{[]string{" command "}, []domain.Kind{domain.KindCommand}, false},
		{[]string{"session"}, nil, true},
	}
	for _, tt := range tests {
		got, err := parseKinds(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseKinds(%v) error = %v", tt.in, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseKinds(%v) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseKinds(%v)[%d] = %v, want %v", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}
