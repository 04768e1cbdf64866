package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/lime-go/internal/core/channel"
	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/transport"
	"github.com/yndnr/lime-go/internal/transport/tcp"
)

// DefaultIdentity is claimed when no identity is configured.
const DefaultIdentity = "guest"

// finishTimeout bounds the finishing handshake on Close.
const finishTimeout = 5 * time.Second

// Options configures Connect.
type Options struct {
	// Server is the transport URI, e.g. net.tcp://127.0.0.1:55321.
	Server string
	// Identity is the claimed node (name@domain[/instance]).
	Identity string
	// Password selects the plain scheme when offered.
	Password string
	// Key selects the key scheme when offered.
	Key string
	// Instance overrides the instance of Identity.
	Instance string
	// Channel tunes the client channel.
	Channel channel.Config
}

// Dialer opens a transport to uri.
type Dialer func(ctx context.Context, uri string) (transport.Transport, error)

// TCPDialer dials TCP transports with opts.
func TCPDialer(opts tcp.Options) Dialer {
	return func(ctx context.Context, uri string) (transport.Transport, error) {
		return tcp.Dial(ctx, uri, opts)
	}
}

// authenticate picks the strongest credential the server offers.
func (o Options) authenticate(schemes []domain.AuthenticationScheme, _ domain.Authentication) domain.Authentication {
	switch {
	case o.Password != "" && offered(schemes, domain.SchemePlain):
		return domain.NewPlainAuthentication(o.Password)
	case o.Key != "" && offered(schemes, domain.SchemeKey):
		return domain.NewKeyAuthentication(o.Key)
	case o.Password == "" && o.Key == "" && offered(schemes, domain.SchemeGuest):
		return &domain.GuestAuthentication{}
	case offered(schemes, domain.SchemeTransport):
		return &domain.TransportAuthentication{}
	case o.Password != "":
		return domain.NewPlainAuthentication(o.Password)
	default:
		return &domain.GuestAuthentication{}
	}
}

func offered(schemes []domain.AuthenticationScheme, s domain.AuthenticationScheme) bool {
	for _, o := range schemes {
		if o == s {
			return true
		}
	}
	return false
}

// Session is an established client session.
type Session struct {
	ch   *channel.ClientChannel
	corr *channel.Correlator

	closeOnce sync.Once
	closeErr  error
}

// Connect dials opts.Server and establishes a session. A session the server
// rejects is reported as a *domain.RemoteFailureError carrying its reason.
func Connect(ctx context.Context, dial Dialer, opts Options) (*Session, error) {
	if dial == nil {
		return nil, domain.NewArgumentError("dialer", "must not be nil")
	}
	identity := opts.Identity
	if identity == "" {
		identity = DefaultIdentity
	}
	node, err := domain.ParseNode(identity)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	instance := opts.Instance
	if instance == "" {
		instance = node.Instance
	}

	t, err := dial(ctx, opts.Server)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.Server, err)
	}

	ch := channel.NewClientChannel(t, opts.Channel)
	s, err := ch.EstablishSession(ctx, nil, nil, node, opts.authenticate, instance)
	if err != nil {
		_ = t.Close(ctx)
		return nil, fmt.Errorf("establish session: %w", err)
	}
	if s.State != domain.SessionEstablished {
		_ = t.Close(ctx)
		reason := s.Reason
		if reason == nil {
			reason = domain.NewReason(domain.ReasonGeneralError, "session "+s.State.String())
		}
		return nil, fmt.Errorf("session %s: %w", s.State, domain.NewRemoteFailureError(reason))
	}
	return &Session{ch: ch, corr: channel.NewCorrelator(ch)}, nil
}

// ID returns the session id assigned by the server.
func (s *Session) ID() string {
	return s.ch.SessionID()
}

// Node returns the node the server bound this session to.
func (s *Session) Node() domain.Node {
	return s.ch.LocalNode()
}

// Remote returns the server node.
func (s *Session) Remote() domain.Node {
	return s.ch.RemoteNode()
}

// Connected reports whether the session can still exchange envelopes.
func (s *Session) Connected() bool {
	return s.ch.State() == domain.SessionEstablished && s.ch.Transport().IsConnected()
}

// Send sends content to to (the server when nil) and returns the message.
func (s *Session) Send(ctx context.Context, to *domain.Node, content domain.Document) (*domain.Message, error) {
	if content == nil {
		return nil, domain.NewArgumentError("content", "must not be nil")
	}
	m := domain.NewMessage(to, content)
	if err := s.ch.SendMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// WaitNotification returns the first notification for message id.
// Notifications for other messages are skipped.
func (s *Session) WaitNotification(ctx context.Context, id string) (*domain.Notification, error) {
	for {
		n, err := s.ch.ReceiveNotification(ctx)
		if err != nil {
			return nil, err
		}
		if n.ID == id {
			return n, nil
		}
	}
}

// SendAndWait sends content and waits for its first notification.
func (s *Session) SendAndWait(ctx context.Context, to *domain.Node, content domain.Document) (*domain.Message, *domain.Notification, error) {
	m, err := s.Send(ctx, to, content)
	if err != nil {
		return nil, nil, err
	}
	n, err := s.WaitNotification(ctx, m.ID)
	if err != nil {
		return m, nil, err
	}
	return m, n, nil
}

// Notify reports event for m back to its sender.
func (s *Session) Notify(ctx context.Context, m *domain.Message, event domain.Event) error {
	if m.ID == "" || m.From == nil {
		return nil
	}
	n := domain.NewNotification(m.ID, event)
	n.To = m.From
	return s.ch.SendNotification(ctx, n)
}

// Get fetches the resource at uri from the server.
func (s *Session) Get(ctx context.Context, uri string) (domain.Document, error) {
	return s.corr.GetResource(ctx, uri, nil)
}

// Set stores doc at uri on the server.
func (s *Session) Set(ctx context.Context, uri string, doc domain.Document) error {
	return s.corr.SetResource(ctx, uri, doc, nil)
}

// Delete removes the resource at uri on the server.
func (s *Session) Delete(ctx context.Context, uri string) error {
	return s.corr.DeleteResource(ctx, uri, nil)
}

// Listen calls fn for every envelope of the given kinds until ctx is done
// or the session ends. Listening for commands competes with Get, Set and
// Delete, so callers that issue commands leave KindCommand out. fn may be
// called from several goroutines at once.
func (s *Session) Listen(ctx context.Context, kinds []domain.Kind, fn func(domain.Envelope)) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range kinds {
		receive, err := s.receiver(kind)
		if err != nil {
			return err
		}
		g.Go(func() error {
			for {
				env, err := receive(gctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				fn(env)
			}
		})
	}
	return g.Wait()
}

func (s *Session) receiver(kind domain.Kind) (func(context.Context) (domain.Envelope, error), error) {
	switch kind {
	case domain.KindMessage:
		return func(ctx context.Context) (domain.Envelope, error) { return s.ch.ReceiveMessage(ctx) }, nil
	case domain.KindNotification:
		return func(ctx context.Context) (domain.Envelope, error) { return s.ch.ReceiveNotification(ctx) }, nil
	case domain.KindCommand:
		return func(ctx context.Context) (domain.Envelope, error) { return s.ch.ReceiveCommand(ctx) }, nil
	default:
		return nil, domain.NewArgumentError("kind", "cannot listen for "+kind.String()+" envelopes")
	}
}

// Close finishes the session when it is still established and closes the
// transport. Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.ch.State() == domain.SessionEstablished {
			fctx, cancel := context.WithTimeout(ctx, finishTimeout)
			err := s.ch.Finish(fctx)
			cancel()
			if err != nil && !errors.Is(err, transport.ErrClosed) {
				s.closeErr = fmt.Errorf("finish session: %w", err)
			}
		}
		if err := s.ch.Close(ctx); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
