package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/transport"
)

// Argon2id parameters used by HashPassword.
const (
	argon2Time    = 2
	argon2Memory  = 16 * 1024
	argon2Threads = 2
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

// ErrAuthenticationFailed indicates rejected credentials.
var ErrAuthenticationFailed = domain.NewDomainError("LM-AUTH-4010", "authentication failed")

// AuthConfig configures an Authenticator.
type AuthConfig struct {
	// Domain is assigned to guests and to identities without a domain.
	Domain string

	// Schemes are offered to clients in order. Default: guest, plain, transport.
	Schemes []domain.AuthenticationScheme

	// Users maps an identity (name@domain) to an Argon2id password hash.
	Users map[string]string
}

// Authenticator validates session credentials.
type Authenticator struct {
	domain  string
	schemes []domain.AuthenticationScheme

	mu    sync.RWMutex
	users map[string]string
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	schemes := cfg.Schemes
	if len(schemes) == 0 {
		schemes = []domain.AuthenticationScheme{domain.SchemeGuest, domain.SchemePlain, domain.SchemeTransport}
	}
	users := make(map[string]string, len(cfg.Users))
	for identity, hash := range cfg.Users {
		users[strings.ToLower(identity)] = hash
	}
	return &Authenticator{domain: cfg.Domain, schemes: schemes, users: users}
}

// Schemes returns the schemes offered to clients.
func (a *Authenticator) Schemes() []domain.AuthenticationScheme {
	return append([]domain.AuthenticationScheme(nil), a.schemes...)
}

// SetUser adds or replaces a user's password hash.
func (a *Authenticator) SetUser(identity, hash string) {
	a.mu.Lock()
	a.users[strings.ToLower(identity)] = hash
	a.mu.Unlock()
}

// Authenticate validates the session's credentials and returns the node the
// session is bound to. from is the node claimed by the client and t is the
// transport the session arrived on.
func (a *Authenticator) Authenticate(ctx context.Context, sessionID string, from *domain.Node, auth domain.Authentication, t transport.Transport) (domain.Node, error) {
	if auth == nil {
		return domain.Node{}, ErrAuthenticationFailed.WithDetails("missing authentication")
	}
	if !a.offers(auth.Scheme()) {
		return domain.Node{}, ErrAuthenticationFailed.WithDetails("scheme " + string(auth.Scheme()) + " not offered")
	}

	switch auth := auth.(type) {
	case domain.GuestAuthentication, *domain.GuestAuthentication:
		node := domain.Node{Name: sessionID, Domain: a.domain, Instance: "default"}
		if from != nil && from.Instance != "" {
			node.Instance = from.Instance
		}
		return node, nil

	case *domain.PlainAuthentication:
		node, err := a.claimedNode(from)
		if err != nil {
			return domain.Node{}, err
		}
		password, err := auth.DecodedPassword()
		if err != nil {
			return domain.Node{}, ErrAuthenticationFailed.WithCause(err)
		}
		a.mu.RLock()
		hash, ok := a.users[strings.ToLower(node.Identity().String())]
		a.mu.RUnlock()
		if !ok || !VerifyPassword(password, hash) {
			return domain.Node{}, ErrAuthenticationFailed.WithDetails("invalid identity or password")
		}
		return node, nil

	case domain.TransportAuthentication, *domain.TransportAuthentication:
		id, ok := t.(transport.Identified)
		if !ok {
			return domain.Node{}, ErrAuthenticationFailed.WithDetails("transport does not identify its peer")
		}
		remote, ok := id.RemoteIdentity()
		if !ok {
			return domain.Node{}, ErrAuthenticationFailed.WithDetails("peer identity unavailable")
		}
		node, err := a.claimedNode(from)
		if err != nil {
			return domain.Node{}, err
		}
		if !strings.EqualFold(remote.Identity().String(), node.Identity().String()) {
			return domain.Node{}, ErrAuthenticationFailed.WithDetails("identity does not match the transport")
		}
		return node, nil

	default:
		return domain.Node{}, ErrAuthenticationFailed.WithDetails("scheme " + string(auth.Scheme()) + " not supported")
	}
}

func (a *Authenticator) offers(scheme domain.AuthenticationScheme) bool {
	for _, s := range a.schemes {
		if s == scheme {
			return true
		}
	}
	return false
}

// claimedNode completes the node claimed by the client.
func (a *Authenticator) claimedNode(from *domain.Node) (domain.Node, error) {
	if from == nil || from.Name == "" {
		return domain.Node{}, ErrAuthenticationFailed.WithDetails("identity required")
	}
	node := *from
	if node.Domain == "" {
		node.Domain = a.domain
	}
	if node.Instance == "" {
		node.Instance = "default"
	}
	return node, nil
}

// ============================================================================
// Argon2id password hashes
// ============================================================================

// HashPassword returns an Argon2id hash in the PHC format
// $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// VerifyPassword checks password against a hash produced by HashPassword.
// The cost parameters are read from the hash.
func VerifyPassword(password, hash string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var memory uint32
	var iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}
