package command

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/yndnr/lime-go/internal/cli/config"
)

func TestConfig_Profiles(t *testing.T) {
	env := newTestEnv(t)

	mustRun := func(args ...string) string {
		t.Helper()
		res := env.run("", args...)
		if res.err != nil {
			t.Fatalf("%v: %v", args, res.err)
		}
		return res.stdout.String()
	}

	mustRun("config", "set-profile", "--server", "net.tcp://a:55321", "--identity", "alice@lime.local", "local")
	mustRun("config", "set-profile", "--server", "net.tcp://b:55321", "--tls", "remote")
	mustRun("config", "set-profile", "--instance", "desk", "local")

	cfg, err := config.Load(env.config)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CurrentProfile != "local" {
		t.Errorf("CurrentProfile = %q, want the first profile", cfg.CurrentProfile)
	}
	local := cfg.Profiles["local"]
	if local.Server != "net.tcp://a:55321" || local.Identity != "alice@lime.local" || local.Instance != "desk" {
		t.Errorf("local = %+v, update must keep unset fields", local)
	}
	if !cfg.Profiles["remote"].TLS {
		t.Error("remote.TLS not saved")
	}

	mustRun("config", "use", "remote")
	var rows []ProfileRow
	if err := json.Unmarshal([]byte(mustRun("-o", "json", "config", "show")), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Name != "local" || rows[1].Name != "remote" || !rows[1].Current || rows[0].Current {
		t.Errorf("rows = %+v", rows)
	}

	mustRun("config", "delete-profile", "remote")
	if cfg, _ = config.Load(env.config); cfg.CurrentProfile != "" || len(cfg.Profiles) != 1 {
		t.Errorf("after delete: current %q, %d profiles", cfg.CurrentProfile, len(cfg.Profiles))
	}

	if out := mustRun("config", "path"); strings.TrimSpace(out) != env.config {
		t.Errorf("path = %q", out)
	}
	if out := mustRun("config", "validate"); !strings.Contains(out, "valid") {
		t.Errorf("validate = %q", out)
	}
}

func TestConfig_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"use unknown", []string{"config", "use", "nope"}, "unknown profile"},
		{"delete unknown", []string{"config", "delete-profile", "nope"}, "unknown profile"},
		{"set without name", []string{"config", "set-profile"}, "name required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.run("", tt.args...)
			if res.err == nil || !strings.Contains(res.err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", res.err, tt.want)
			}
		})
	}
}

func TestConfig_ValidateReportsErrors(t *testing.T) {
	env := newTestEnv(t)
	bad := "default_output: table\ncolor: rainbow\nprofiles:\n  x:\n    identity: a@b\n"
	if err := os.WriteFile(env.config, []byte(bad), 0o600); err != nil {
		t.Fatal(err)
	}
	res := env.run("", "config", "validate")
	if res.err == nil {
		t.Fatal("validate accepted an invalid file")
	}
	for _, want := range []string{"color", "profiles.x.server"} {
		if !strings.Contains(res.err.Error(), want) {
			t.Errorf("error %q missing %q", res.err, want)
		}
	}
}
