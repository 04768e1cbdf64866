package command

import (
	"os"
	"strings"
	"testing"

	"github.com/yndnr/lime-go/internal/core/domain"
)

func TestChat_Session(t *testing.T) {
	env := newTestEnv(t)
	script := strings.Join([]string{
		"who",
		"set /x y",
		"get /x",
		"delete /x",
		"get /x",
		"to bob@lime.local",
		"sen hi",
		"exit",
	}, "\n") + "\n"

	res := env.run(script, as("alice", "chat")...)
	if res.err != nil {
		t.Fatalf("chat error = %v", res.err)
	}
	out := res.stdout.String()
	for _, want := range []string{
		"connected as alice@lime.local/cli",
		"alice@lime.local/cli (session ",
		"/x stored",
		"/x (text/plain): y",
		"/x deleted",
		"code 67",
		"destination: bob@lime.local",
		`unknown command "sen" (did you mean send?)`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	data, err := os.ReadFile(env.dir + "/history")
	if err != nil {
		t.Fatalf("history not saved: %v", err)
	}
	if !strings.Contains(string(data), "set /x y\n") {
		t.Errorf("history = %q", data)
	}
}

func TestChat_BadDestination(t *testing.T) {
	env := newTestEnv(t)
	res := env.run("", as("alice", "chat", "--to", "@")...)
	if res.err == nil || !strings.Contains(res.err.Error(), "--to") {
		t.Errorf("error = %v", res.err)
	}
}

func TestDestinationName(t *testing.T) {
	server := domain.MustParseNode("postmaster@lime.local/server")
	if got := destinationName(nil, server); got != server.String() {
		t.Errorf("destinationName(nil) = %q", got)
	}
	bob := domain.MustParseNode("bob@lime.local")
	if got := destinationName(&bob, server); got != "bob@lime.local" {
		t.Errorf("destinationName(bob) = %q", got)
	}
}
