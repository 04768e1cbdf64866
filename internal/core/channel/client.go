package channel

import (
	"context"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/transport"
)

// CompressionSelector picks one of the compression options offered by the server.
type CompressionSelector func(options []domain.SessionCompression) domain.SessionCompression

// EncryptionSelector picks one of the encryption options offered by the server.
type EncryptionSelector func(options []domain.SessionEncryption) domain.SessionEncryption

// Authenticator builds the authentication for the offered schemes. roundtrip
// is the server's challenge on subsequent calls and nil on the first.
type Authenticator func(schemes []domain.AuthenticationScheme, roundtrip domain.Authentication) domain.Authentication

// ClientChannel drives the client side of a session.
type ClientChannel struct {
	*Channel
}

// NewClientChannel wraps an open transport. The session id is assigned by
// the server.
func NewClientChannel(t transport.Transport, cfg Config) *ClientChannel {
	return &ClientChannel{Channel: newChannel(t, "", domain.Node{}, cfg)}
}

// onSessionReceived tracks the server's view of the session.
func (c *ClientChannel) onSessionReceived(ctx context.Context, s *domain.Session) {
	c.mu.Lock()
	if c.sessionID == "" {
		c.sessionID = s.ID
	}
	if s.State == domain.SessionEstablished {
		c.localNode = domain.NodeValue(s.To)
		c.remoteNode = domain.NodeValue(s.From)
	}
	c.mu.Unlock()

	c.setState(s.State)
	if s.State.IsTerminal() {
		_ = c.Close(ctx)
	}
}

func (c *ClientChannel) receiveSession(ctx context.Context) (*domain.Session, error) {
	s, err := c.Channel.receiveSession(ctx)
	if err != nil {
		return nil, err
	}
	c.onSessionReceived(ctx, s)
	return s, nil
}

// StartNewSession opens the session and returns the server's answer.
func (c *ClientChannel) StartNewSession(ctx context.Context) (*domain.Session, error) {
	if err := c.requireState("start new session", domain.SessionNew); err != nil {
		return nil, err
	}
	if err := c.send(ctx, &domain.Session{State: domain.SessionNew}); err != nil {
		return nil, err
	}
	return c.receiveSession(ctx)
}

// NegotiateSession sends the chosen options and awaits the server's confirmation.
func (c *ClientChannel) NegotiateSession(ctx context.Context, compression domain.SessionCompression, encryption domain.SessionEncryption) (*domain.Session, error) {
	if err := c.requireState("negotiate session", domain.SessionNegotiating); err != nil {
		return nil, err
	}
	if compression == "" || encryption == "" {
		return nil, domain.NewArgumentError("options", "compression and encryption must be set")
	}
	s := c.newSession(domain.SessionNegotiating)
	s.Compression = compression
	s.Encryption = encryption
	if err := c.send(ctx, s); err != nil {
		return nil, err
	}
	return c.receiveSession(ctx)
}

// ReceiveAuthenticationSession awaits the scheme options after negotiation.
func (c *ClientChannel) ReceiveAuthenticationSession(ctx context.Context) (*domain.Session, error) {
	if err := c.requireState("receive authentication session", domain.SessionNegotiating); err != nil {
		return nil, err
	}
	return c.receiveSession(ctx)
}

// AuthenticateSession sends the identity and authentication and awaits the
// server's answer (Established, Failed or another roundtrip).
func (c *ClientChannel) AuthenticateSession(ctx context.Context, identity domain.Node, auth domain.Authentication, instance string) (*domain.Session, error) {
	if err := c.requireState("authenticate session", domain.SessionAuthenticating); err != nil {
		return nil, err
	}
	if identity.IsZero() {
		return nil, domain.NewArgumentError("identity", "must not be empty")
	}
	if auth == nil {
		return nil, domain.NewArgumentError("authentication", "must not be nil")
	}

	from := identity.Identity()
	from.Instance = instance
	s := c.newSession(domain.SessionAuthenticating)
	s.From = domain.NodePtr(from)
	s.Authentication = auth
	s.Scheme = auth.Scheme()
	if err := c.send(ctx, s); err != nil {
		return nil, err
	}
	return c.receiveSession(ctx)
}

// SendFinishingSession asks the server to end the session.
func (c *ClientChannel) SendFinishingSession(ctx context.Context) error {
	if err := c.requireState("send finishing session", domain.SessionEstablished); err != nil {
		return err
	}
	c.setState(domain.SessionFinishing)
	return c.send(ctx, c.newSession(domain.SessionFinishing))
}

// ReceiveFinishedSession awaits the server's confirmation that the session ended.
func (c *ClientChannel) ReceiveFinishedSession(ctx context.Context) (*domain.Session, error) {
	if err := c.requireState("receive finished session", domain.SessionFinishing); err != nil {
		return nil, err
	}
	return c.receiveSession(ctx)
}

// EstablishSession runs the whole client flow: start, optional negotiation,
// authentication roundtrips. It returns the last session received, which is
// Established on success or Failed with a reason.
func (c *ClientChannel) EstablishSession(ctx context.Context, compression CompressionSelector, encryption EncryptionSelector, identity domain.Node, authenticate Authenticator, instance string) (*domain.Session, error) {
	if authenticate == nil {
		return nil, domain.NewArgumentError("authenticator", "must not be nil")
	}

	s, err := c.StartNewSession(ctx)
	if err != nil {
		return nil, err
	}

	if s.State == domain.SessionNegotiating {
		comp, enc := domain.CompressionNone, domain.EncryptionNone
		if compression != nil && len(s.CompressionOptions) > 0 {
			comp = compression(s.CompressionOptions)
		} else if len(s.CompressionOptions) > 0 {
			comp = s.CompressionOptions[0]
		}
		if encryption != nil && len(s.EncryptionOptions) > 0 {
			enc = encryption(s.EncryptionOptions)
		} else if len(s.EncryptionOptions) > 0 {
			enc = s.EncryptionOptions[0]
		}

		if s, err = c.NegotiateSession(ctx, comp, enc); err != nil {
			return nil, err
		}
		if s.State == domain.SessionNegotiating {
			if s, err = c.ReceiveAuthenticationSession(ctx); err != nil {
				return nil, err
			}
		}
	}

	schemes := s.SchemeOptions
	var roundtrip domain.Authentication
	for s.State == domain.SessionAuthenticating {
		auth := authenticate(schemes, roundtrip)
		if auth == nil {
			return nil, domain.NewArgumentError("authentication", "authenticator returned nil")
		}
		if s, err = c.AuthenticateSession(ctx, identity, auth, instance); err != nil {
			return nil, err
		}
		roundtrip = s.Authentication
	}
	return s, nil
}

// Finish ends an established session gracefully.
func (c *ClientChannel) Finish(ctx context.Context) error {
	if err := c.SendFinishingSession(ctx); err != nil {
		return err
	}
	_, err := c.ReceiveFinishedSession(ctx)
	return err
}
