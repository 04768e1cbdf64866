package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/core/service"
	"github.com/yndnr/lime-go/internal/server/httpbridge"
)

// ErrMissingCredentials indicates a request without credentials when guests
// are not allowed.
var ErrMissingCredentials = service.ErrAuthenticationFailed.WithDetails("credentials required")

// PrincipalConfig configures how requests are mapped to principals.
type PrincipalConfig struct {
	// Domain completes identities given without a domain.
	Domain string

	// AllowGuest maps requests without credentials to guest principals.
	AllowGuest bool

	// JWTSecret verifies HMAC-signed bearer tokens.
	JWTSecret string

	// JWKSURL verifies asymmetric bearer tokens. It takes precedence over
	// JWTSecret.
	JWKSURL string

	// Issuer and Audience, when set, are required claims.
	Issuer   string
	Audience string

	// Leeway tolerates clock skew (default: 60s).
	Leeway time.Duration
}

// PrincipalResolver authenticates HTTP requests.
type PrincipalResolver struct {
	cfg     PrincipalConfig
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
}

// NewPrincipalResolver creates a resolver. With JWKSURL set the key set is
// fetched and refreshed in the background until ctx is done.
func NewPrincipalResolver(ctx context.Context, cfg PrincipalConfig) (*PrincipalResolver, error) {
	if cfg.Leeway == 0 {
		cfg.Leeway = 60 * time.Second
	}
	r := &PrincipalResolver{cfg: cfg}

	var methods []string
	switch {
	case cfg.JWKSURL != "":
		kf, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("jwks init failed: %w", err)
		}
		r.keyfunc = kf.Keyfunc
		methods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "EdDSA"}
	case cfg.JWTSecret != "":
		secret := []byte(cfg.JWTSecret)
		r.keyfunc = func(*jwt.Token) (any, error) { return secret, nil }
		methods = []string{"HS256", "HS384", "HS512"}
	}

	if r.keyfunc != nil {
		opts := []jwt.ParserOption{
			jwt.WithValidMethods(methods),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(cfg.Leeway),
		}
		if cfg.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.Issuer))
		}
		if cfg.Audience != "" {
			opts = append(opts, jwt.WithAudience(cfg.Audience))
		}
		r.parser = jwt.NewParser(opts...)
	}
	return r, nil
}

// Resolve returns the principal of r.
func (p *PrincipalResolver) Resolve(r *http.Request) (httpbridge.Principal, error) {
	if identity, password, ok := r.BasicAuth(); ok {
		node, err := p.identity(identity)
		if err != nil {
			return httpbridge.Principal{}, err
		}
		return httpbridge.Principal{Identity: node, Scheme: domain.SchemePlain, Secret: password}, nil
	}

	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return p.bearer(strings.TrimSpace(auth[7:]))
	}

	if r.Header.Get("Authorization") != "" {
		return httpbridge.Principal{}, service.ErrAuthenticationFailed.WithDetails("unsupported authorization scheme")
	}
	if !p.cfg.AllowGuest {
		return httpbridge.Principal{}, ErrMissingCredentials
	}
	// Guests are told apart by their address.
	return httpbridge.Principal{
		Identity: domain.Node{Name: "guest", Domain: p.cfg.Domain},
		Scheme:   domain.SchemeGuest,
		Secret:   getClientIP(r),
	}, nil
}

func (p *PrincipalResolver) bearer(tok string) (httpbridge.Principal, error) {
	if p.parser == nil {
		return httpbridge.Principal{}, service.ErrAuthenticationFailed.WithDetails("bearer tokens are not accepted")
	}
	parsed, err := p.parser.Parse(tok, p.keyfunc)
	if err != nil {
		return httpbridge.Principal{}, service.ErrAuthenticationFailed.WithDetails("token parse/verify failed").WithCause(err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return httpbridge.Principal{}, errors.New("invalid claims type")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return httpbridge.Principal{}, service.ErrAuthenticationFailed.WithDetails("missing sub")
	}
	node, err := p.identity(sub)
	if err != nil {
		return httpbridge.Principal{}, err
	}
	return httpbridge.Principal{Identity: node, Scheme: domain.SchemeTransport, Secret: tok}, nil
}

func (p *PrincipalResolver) identity(s string) (domain.Node, error) {
	node, err := domain.ParseNode(s)
	if err != nil {
		return domain.Node{}, service.ErrAuthenticationFailed.WithDetails("invalid identity").WithCause(err)
	}
	if node.Domain == "" {
		node.Domain = p.cfg.Domain
	}
	return node, nil
}

// Challenges returns the WWW-Authenticate values for a rejected request.
func (p *PrincipalResolver) Challenges(realm string) []string {
	out := []string{`Basic realm="` + realm + `"`}
	if p.parser != nil {
		out = append(out, `Bearer realm="`+realm+`"`)
	}
	return out
}
