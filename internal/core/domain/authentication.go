package domain

import (
	"encoding/base64"
	"encoding/json"
	"sync"
)

// AuthenticationScheme names an authentication mechanism.
type AuthenticationScheme string

// Authentication schemes.
const (
	SchemeGuest     AuthenticationScheme = "guest"
	SchemePlain     AuthenticationScheme = "plain"
	SchemeKey       AuthenticationScheme = "key"
	SchemeTransport AuthenticationScheme = "transport"
)

// Authentication is the payload of an authenticating session envelope.
type Authentication interface {
	Scheme() AuthenticationScheme
}

// GuestAuthentication requests an anonymous session.
type GuestAuthentication struct{}

// Scheme implements Authentication.
func (GuestAuthentication) Scheme() AuthenticationScheme { return SchemeGuest }

// PlainAuthentication carries a base64 encoded password.
type PlainAuthentication struct {
	Password string `json:"password"`
}

// NewPlainAuthentication encodes password for the plain scheme.
func NewPlainAuthentication(password string) *PlainAuthentication {
	return &PlainAuthentication{Password: base64.StdEncoding.EncodeToString([]byte(password))}
}

// Scheme implements Authentication.
func (*PlainAuthentication) Scheme() AuthenticationScheme { return SchemePlain }

// DecodedPassword returns the clear-text password.
func (a *PlainAuthentication) DecodedPassword() (string, error) {
	b, err := base64.StdEncoding.DecodeString(a.Password)
	if err != nil {
		return "", NewArgumentError("password", "not base64 encoded")
	}
	return string(b), nil
}

// KeyAuthentication carries a base64 encoded access key.
type KeyAuthentication struct {
	Key string `json:"key"`
}

// NewKeyAuthentication encodes key for the key scheme.
func NewKeyAuthentication(key string) *KeyAuthentication {
	return &KeyAuthentication{Key: base64.StdEncoding.EncodeToString([]byte(key))}
}

// Scheme implements Authentication.
func (*KeyAuthentication) Scheme() AuthenticationScheme { return SchemeKey }

// DecodedKey returns the clear-text key.
func (a *KeyAuthentication) DecodedKey() (string, error) {
	b, err := base64.StdEncoding.DecodeString(a.Key)
	if err != nil {
		return "", NewArgumentError("key", "not base64 encoded")
	}
	return string(b), nil
}

// TransportAuthentication delegates authentication to the transport layer.
type TransportAuthentication struct{}

// Scheme implements Authentication.
func (TransportAuthentication) Scheme() AuthenticationScheme { return SchemeTransport }

// AuthenticationFactory returns an empty authentication ready to be unmarshaled into.
type AuthenticationFactory func() Authentication

var (
	authenticationsMu sync.RWMutex
	authentications   = make(map[AuthenticationScheme]AuthenticationFactory)
)

func init() {
	RegisterAuthentication(SchemeGuest, func() Authentication { return &GuestAuthentication{} })
	RegisterAuthentication(SchemePlain, func() Authentication { return &PlainAuthentication{} })
	RegisterAuthentication(SchemeKey, func() Authentication { return &KeyAuthentication{} })
	RegisterAuthentication(SchemeTransport, func() Authentication { return &TransportAuthentication{} })
}

// RegisterAuthentication associates a scheme with an authentication constructor.
func RegisterAuthentication(scheme AuthenticationScheme, factory AuthenticationFactory) {
	authenticationsMu.Lock()
	authentications[scheme] = factory
	authenticationsMu.Unlock()
}

// DecodeAuthentication builds the authentication for scheme from raw JSON.
func DecodeAuthentication(scheme AuthenticationScheme, raw json.RawMessage) (Authentication, error) {
	authenticationsMu.RLock()
	factory, ok := authentications[scheme]
	authenticationsMu.RUnlock()
	if !ok {
		return nil, ErrUnknownScheme.WithDetails(string(scheme))
	}

	auth := factory()
	if len(raw) == 0 || string(raw) == "null" {
		return auth, nil
	}
	if err := json.Unmarshal(raw, auth); err != nil {
		return nil, ErrMalformedEnvelope.WithDetails("authentication for scheme " + string(scheme)).WithCause(err)
	}
	return auth, nil
}
