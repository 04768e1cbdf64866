package channel

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/transport"
)

// ServerChannel drives the server side of a session.
type ServerChannel struct {
	*Channel
	roundtrips atomic.Int32
}

// NewServerChannel wraps an accepted transport. sessionID is fixed for the
// lifetime of the channel.
func NewServerChannel(sessionID string, serverNode domain.Node, t transport.Transport, cfg Config) *ServerChannel {
	return &ServerChannel{Channel: newChannel(t, sessionID, serverNode, cfg)}
}

// ReceiveNewSession awaits the session envelope that opens the session.
func (s *ServerChannel) ReceiveNewSession(ctx context.Context) (*domain.Session, error) {
	if err := s.requireState("receive new session", domain.SessionNew); err != nil {
		return nil, err
	}
	return s.receiveSession(ctx)
}

// NegotiateSession offers compression and encryption options and awaits the
// client's choice.
func (s *ServerChannel) NegotiateSession(ctx context.Context, compression []domain.SessionCompression, encryption []domain.SessionEncryption) (*domain.Session, error) {
	if err := s.requireState("negotiate session", domain.SessionNew); err != nil {
		return nil, err
	}
	if len(compression) == 0 {
		return nil, domain.NewArgumentError("compressionOptions", "must not be empty")
	}
	if len(encryption) == 0 {
		return nil, domain.NewArgumentError("encryptionOptions", "must not be empty")
	}

	s.setState(domain.SessionNegotiating)
	session := s.newSession(domain.SessionNegotiating)
	session.CompressionOptions = compression
	session.EncryptionOptions = encryption
	if err := s.send(ctx, session); err != nil {
		return nil, err
	}
	return s.receiveSession(ctx)
}

// SendNegotiatingSession confirms the negotiated options.
func (s *ServerChannel) SendNegotiatingSession(ctx context.Context, compression domain.SessionCompression, encryption domain.SessionEncryption) error {
	if err := s.requireState("send negotiating session", domain.SessionNegotiating); err != nil {
		return err
	}
	session := s.newSession(domain.SessionNegotiating)
	session.Compression = compression
	session.Encryption = encryption
	return s.send(ctx, session)
}

// AuthenticateSession offers authentication schemes and awaits the client's
// first authentication.
func (s *ServerChannel) AuthenticateSession(ctx context.Context, schemes []domain.AuthenticationScheme) (*domain.Session, error) {
	if err := s.requireState("authenticate session", domain.SessionNew, domain.SessionNegotiating); err != nil {
		return nil, err
	}
	if len(schemes) == 0 {
		return nil, domain.NewArgumentError("schemeOptions", "must not be empty")
	}

	s.roundtrips.Store(0)
	s.setState(domain.SessionAuthenticating)
	session := s.newSession(domain.SessionAuthenticating)
	session.SchemeOptions = schemes
	if err := s.send(ctx, session); err != nil {
		return nil, err
	}
	return s.receiveSession(ctx)
}

// AuthenticateSessionRoundtrip sends an authentication challenge and awaits
// the client's answer. The number of roundtrips per authentication is
// bounded by Config.MaxAuthenticationRoundtrips; exceeding it fails the
// session.
func (s *ServerChannel) AuthenticateSessionRoundtrip(ctx context.Context, auth domain.Authentication) (*domain.Session, error) {
	if err := s.requireState("authenticate session roundtrip", domain.SessionAuthenticating); err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, domain.NewArgumentError("authentication", "must not be nil")
	}

	limit := s.cfg.MaxAuthenticationRoundtrips
	if n := int(s.roundtrips.Add(1)); n > limit {
		reason := domain.NewReason(domain.ReasonSessionAuthenticationFailed, "Authentication roundtrips exceeded")
		if err := s.SendFailedSession(ctx, reason); err != nil {
			s.Logger().Debug("failed to send failed session", "error", err)
		}
		return nil, domain.ErrAuthRoundtripsExceeded.WithDetails("limit " + strconv.Itoa(limit))
	}

	session := s.newSession(domain.SessionAuthenticating)
	session.Authentication = auth
	session.Scheme = auth.Scheme()
	if err := s.send(ctx, session); err != nil {
		return nil, err
	}
	return s.receiveSession(ctx)
}

// SendEstablishedSession binds the remote node and establishes the session.
func (s *ServerChannel) SendEstablishedSession(ctx context.Context, node domain.Node) error {
	if err := s.requireState("send established session",
		domain.SessionNew, domain.SessionNegotiating, domain.SessionAuthenticating); err != nil {
		return err
	}
	if node.IsZero() {
		return domain.NewArgumentError("node", "must not be empty")
	}

	s.mu.Lock()
	s.remoteNode = node
	s.mu.Unlock()
	s.setState(domain.SessionEstablished)

	if err := s.send(ctx, s.newSession(domain.SessionEstablished)); err != nil {
		return err
	}
	s.Logger().Info("session established", "remote", node.String())
	return nil
}

// ReceiveFinishingSession awaits the client's request to end the session.
func (s *ServerChannel) ReceiveFinishingSession(ctx context.Context) (*domain.Session, error) {
	if err := s.requireState("receive finishing session", domain.SessionEstablished); err != nil {
		return nil, err
	}
	session, err := s.receiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if session.State == domain.SessionFinishing {
		s.setState(domain.SessionFinishing)
	}
	return session, nil
}
