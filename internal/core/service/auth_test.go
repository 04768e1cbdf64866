package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/transport"
)

func TestHashPassword_Verify(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=16384,t=2,p=2$") {
		t.Errorf("unexpected hash format: %s", hash)
	}
	if !VerifyPassword("hunter2", hash) {
		t.Error("VerifyPassword() = false for the right password")
	}
	if VerifyPassword("hunter3", hash) {
		t.Error("VerifyPassword() = true for a wrong password")
	}

	other, _ := HashPassword("hunter2")
	if other == hash {
		t.Error("hashes should be salted")
	}
}

func TestVerifyPassword_Malformed(t *testing.T) {
	for _, hash := range []string{
		"",
		"plain",
		"$argon2i$v=19$m=16384,t=2,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=2,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=16384,t=2,p=2$!!!$aGFzaA",
	} {
		if VerifyPassword("x", hash) {
			t.Errorf("VerifyPassword(%q) = true", hash)
		}
	}
}

func TestAuthenticator_Authenticate(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatal(err)
	}
	a := NewAuthenticator(AuthConfig{
		Domain: "lime.local",
		Users:  map[string]string{"Alice@lime.local": hash},
	})

	identified, _ := transport.Pipe(1)
	identified.SetRemoteIdentity(domain.MustParseNode("bob@lime.local"))
	anonymous, _ := transport.Pipe(1)

	alice := domain.MustParseNode("alice@lime.local/home")
	bob := domain.MustParseNode("bob@lime.local/desk")

	tests := []struct {
		name     string
		from     *domain.Node
		auth     domain.Authentication
		t        transport.Transport
		want     string
		wantFail bool
	}{
		{"guest", nil, &domain.GuestAuthentication{}, anonymous, "session-1@lime.local/default", false},
		{"guest keeps instance", &alice, domain.GuestAuthentication{}, anonymous, "session-1@lime.local/home", false},
		{"plain", &alice, domain.NewPlainAuthentication("secret"), anonymous, "alice@lime.local/home", false},
		{"plain fills domain and instance", domain.NodePtr(domain.Node{Name: "alice"}), domain.NewPlainAuthentication("secret"), anonymous, "alice@lime.local/default", false},
		{"plain wrong password", &alice, domain.NewPlainAuthentication("nope"), anonymous, "", true},
		{"plain unknown user", &bob, domain.NewPlainAuthentication("secret"), anonymous, "", true},
		{"plain without identity", nil, domain.NewPlainAuthentication("secret"), anonymous, "", true},
		{"transport", &bob, &domain.TransportAuthentication{}, identified, "bob@lime.local/desk", false},
		{"transport mismatch", &alice, &domain.TransportAuthentication{}, identified, "", true},
		{"transport anonymous", &bob, &domain.TransportAuthentication{}, anonymous, "", true},
		{"key not offered", &alice, domain.NewKeyAuthentication("k"), anonymous, "", true},
		{"nil", &alice, nil, anonymous, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := a.Authenticate(context.Background(), "session-1", tt.from, tt.auth, tt.t)
			if tt.wantFail {
				if !errors.Is(err, ErrAuthenticationFailed) {
					t.Fatalf("error = %v, want ErrAuthenticationFailed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if node.String() != tt.want {
				t.Errorf("node = %s, want %s", node, tt.want)
			}
		})
	}
}

func TestAuthenticator_SetUser(t *testing.T) {
	a := NewAuthenticator(AuthConfig{Domain: "lime.local", Schemes: []domain.AuthenticationScheme{domain.SchemePlain}})
	from := domain.MustParseNode("carol@lime.local")

	if _, err := a.Authenticate(context.Background(), "s", &from, domain.NewPlainAuthentication("pw"), nil); err == nil {
		t.Fatal("expected failure before SetUser")
	}

	hash, _ := HashPassword("pw")
	a.SetUser("carol@lime.local", hash)
	if _, err := a.Authenticate(context.Background(), "s", &from, domain.NewPlainAuthentication("pw"), nil); err != nil {
		t.Fatalf("Authenticate() after SetUser error = %v", err)
	}

	if _, err := a.Authenticate(context.Background(), "s", &from, domain.GuestAuthentication{}, nil); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("guest should not be offered, err = %v", err)
	}
	if got := a.Schemes(); len(got) != 1 || got[0] != domain.SchemePlain {
		t.Errorf("Schemes() = %v", got)
	}
}
