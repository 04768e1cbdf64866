package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Node.Address != DefaultNodeAddress {
		t.Errorf("Node.Address = %q, want %q", cfg.Node.Address, DefaultNodeAddress)
	}
	if !cfg.Server.TCP.Enabled || cfg.Server.TCP.Addr != DefaultTCPAddr {
		t.Errorf("TCP = %+v", cfg.Server.TCP)
	}
	if !cfg.Server.HTTP.Enabled || cfg.Server.HTTP.Addr != DefaultHTTPAddr {
		t.Errorf("HTTP = %+v", cfg.Server.HTTP)
	}
	if cfg.Session.MaxAuthRoundtrips != 3 {
		t.Errorf("MaxAuthRoundtrips = %d, want 3", cfg.Session.MaxAuthRoundtrips)
	}
	if cfg.Bridge.SessionTTL != DefaultSessionTTL {
		t.Errorf("SessionTTL = %v, want %v", cfg.Bridge.SessionTTL, DefaultSessionTTL)
	}
	if cfg.Storage.Type != StorageMemory {
		t.Errorf("Storage.Type = %q, want memory", cfg.Storage.Type)
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log = %+v", cfg.Log)
	}

	if err := Verify(cfg); err != nil {
		t.Errorf("Verify(Default()) error = %v", err)
	}
}

func TestSanitize(t *testing.T) {
	cfg := Default()
	cfg.Security.JWTSecret = "super-secret-key-1234567890"
	cfg.Storage.Redis.Password = "abc"
	cfg.Security.Users = map[string]string{"alice@lime.local": "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"}

	sanitized := Sanitize(cfg)

	if cfg.Security.JWTSecret != "super-secret-key-1234567890" {
		t.Error("original config should not be modified")
	}
	if !strings.HasPrefix(cfg.Security.Users["alice@lime.local"], "$argon2id$") {
		t.Error("original users should not be modified")
	}
	if sanitized.Security.JWTSecret == cfg.Security.JWTSecret {
		t.Error("JWT secret should be masked")
	}
	if len(sanitized.Security.JWTSecret) != len(cfg.Security.JWTSecret) {
		t.Errorf("masked length = %d, want %d", len(sanitized.Security.JWTSecret), len(cfg.Security.JWTSecret))
	}
	if sanitized.Storage.Redis.Password != "****" {
		t.Errorf("short password should be fully masked, got %q", sanitized.Storage.Redis.Password)
	}
	if sanitized.Security.Users["alice@lime.local"] != "****" {
		t.Errorf("password hash should be masked, got %q", sanitized.Security.Users["alice@lime.local"])
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a", "****"},
		{"abcd", "****"},
		{"abcde", "ab*de"},
		{"abcdef", "ab**ef"},
		{"1234567890", "12******90"},
	}

	for _, tt := range tests {
		if result := maskSecret(tt.input); result != tt.expected {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"node without domain", func(c *ServerConfig) { c.Node.Address = "postmaster" }, "node.address"},
		{"empty node", func(c *ServerConfig) { c.Node.Address = "" }, "node.address"},
		{"no listeners", func(c *ServerConfig) {
			c.Server.TCP.Enabled = false
			c.Server.HTTP.Enabled = false
		}, "at least one"},
		{"bad tcp addr", func(c *ServerConfig) { c.Server.TCP.Addr = "nope" }, "server.tcp.addr"},
		{"shared addr", func(c *ServerConfig) { c.Server.HTTP.Addr = c.Server.TCP.Addr }, "share"},
		{"half tls", func(c *ServerConfig) { c.Server.HTTP.TLSCertFile = "cert.pem" }, "set together"},
		{"missing tls files", func(c *ServerConfig) {
			c.Server.TCP.TLSCertFile = "/nonexistent/cert.pem"
			c.Server.TCP.TLSKeyFile = "/nonexistent/key.pem"
		}, "server.tcp"},
		{"negative rate", func(c *ServerConfig) { c.Server.HTTP.RateLimit = -1 }, "rate_limit"},
		{"zero roundtrips", func(c *ServerConfig) { c.Session.MaxAuthRoundtrips = 0 }, "max_auth_roundtrips"},
		{"bad compression", func(c *ServerConfig) { c.Session.Compression = []string{"zstd"} }, "session.compression"},
		{"bad encryption", func(c *ServerConfig) { c.Session.Encryption = []string{"rot13"} }, "session.encryption"},
		{"no schemes", func(c *ServerConfig) { c.Security.Schemes = nil }, "security.schemes"},
		{"unknown scheme", func(c *ServerConfig) { c.Security.Schemes = []string{"kerberos"} }, "security.schemes"},
		{"bad user", func(c *ServerConfig) { c.Security.Users = map[string]string{"": "x"} }, "security.users"},
		{"unknown storage", func(c *ServerConfig) { c.Storage.Type = "etcd" }, "storage.type"},
		{"badger without dir", func(c *ServerConfig) {
			c.Storage.Type = StorageBadger
			c.Storage.Badger.Dir = ""
		}, "storage.badger.dir"},
		{"redis without addr", func(c *ServerConfig) { c.Storage.Type = StorageRedis }, "storage.redis.addr"},
		{"bad level", func(c *ServerConfig) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *ServerConfig) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Verify(cfg)
			if err == nil {
				t.Fatalf("Verify() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Verify() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "xml"
	cfg.Storage.Type = "etcd"

	err := Verify(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "log.format") || !strings.Contains(err.Error(), "storage.type") {
		t.Errorf("Verify() = %v, want both problems", err)
	}
}

func TestVerify_CreateBadgerDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "subdir", "data")
	cfg := Default()
	cfg.Storage.Type = StorageBadger
	cfg.Storage.Badger.Dir = dir

	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Error("data directory should have been created")
	}
}
