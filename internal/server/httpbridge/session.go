package httpbridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yndnr/lime-go/internal/core/channel"
	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/transport"
)

// Session is the view of an HTTP session transport available to processors.
type Session interface {
	SessionID() string
	LocalNode() domain.Node

	SendMessage(ctx context.Context, m *domain.Message) error
	SendNotification(ctx context.Context, n *domain.Notification) error
	ProcessCommand(ctx context.Context, cmd *domain.Command) (*domain.Command, error)

	// MessageIDs lists the ids of the messages received and not yet taken.
	MessageIDs() []string
	// TakeMessage removes and returns the received message with id.
	TakeMessage(id string) (*domain.Message, bool)

	NotificationIDs() []string
	TakeNotification(id string) (*domain.Notification, bool)

	// WaitNotification blocks until a notification for the message id
	// reports event, a later event, or a failure.
	WaitNotification(ctx context.Context, id string, event domain.Event) (*domain.Notification, error)
}

// SessionTransport is a session transport serving bridge requests.
type SessionTransport interface {
	transport.SessionTransport
	Session
}

// eventRank orders the notification events of a successful delivery.
var eventRank = map[domain.Event]int{
	domain.EventAccepted:   1,
	domain.EventValidated:  2,
	domain.EventAuthorized: 3,
	domain.EventDispatched: 4,
	domain.EventReceived:   5,
	domain.EventConsumed:   6,
}

// SessionConfig tunes HTTP session transports.
type SessionConfig struct {
	// TTL is the inactivity period after which a transport expires
	// (default: 180s).
	TTL time.Duration

	// AuthenticationTimeout bounds session establishment (default: 30s).
	AuthenticationTimeout time.Duration

	// FinishTimeout bounds the finishing handshake (default: 5s).
	FinishTimeout time.Duration

	// MaxStoredEnvelopes bounds the received messages and notifications
	// kept per session (default: 1024 each).
	MaxStoredEnvelopes int

	// PipeBuffer is the envelope buffer between the session and the node
	// (default: 64).
	PipeBuffer int

	Channel channel.Config
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TTL:                   180 * time.Second,
		AuthenticationTimeout: 30 * time.Second,
		FinishTimeout:         5 * time.Second,
		MaxStoredEnvelopes:    1024,
		PipeBuffer:            64,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	d := DefaultSessionConfig()
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	if c.AuthenticationTimeout <= 0 {
		c.AuthenticationTimeout = d.AuthenticationTimeout
	}
	if c.FinishTimeout <= 0 {
		c.FinishTimeout = d.FinishTimeout
	}
	if c.MaxStoredEnvelopes <= 0 {
		c.MaxStoredEnvelopes = d.MaxStoredEnvelopes
	}
	if c.PipeBuffer <= 0 {
		c.PipeBuffer = d.PipeBuffer
	}
	return c
}

// HTTPSession is the session transport of one HTTP principal. Its client
// side is driven by the bridge; the server side is served by the node.
type HTTPSession struct {
	cfg       SessionConfig
	principal Principal
	logger    *slog.Logger

	remote     *transport.PipeTransport
	client     *channel.ClientChannel
	correlator *channel.Correlator

	auth        singleflight.Group
	established atomic.Pointer[domain.Session]
	lastActive  atomic.Int64

	messages      *envelopeStore[*domain.Message]
	notifications *envelopeStore[*domain.Notification]

	ctx    context.Context
	cancel context.CancelFunc
	pumped sync.WaitGroup

	finishOnce sync.Once
	finishErr  error
}

var (
	_ SessionTransport = (*HTTPSession)(nil)
)

// NewHTTPSession creates the transport pair for principal. The server end
// returned by Remote must be served by the node before Authenticate can
// complete.
func NewHTTPSession(p Principal, cfg SessionConfig, logger *slog.Logger) *HTTPSession {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("principal", p.Identity.String())

	remote, local := transport.Pipe(cfg.PipeBuffer)
	chCfg := cfg.Channel
	chCfg.Logger = logger
	client := channel.NewClientChannel(local, chCfg)

	ctx, cancel := context.WithCancel(context.Background())
	s := &HTTPSession{
		cfg:           cfg,
		principal:     p,
		logger:        logger,
		remote:        remote,
		client:        client,
		correlator:    channel.NewCorrelator(client),
		messages:      newEnvelopeStore[*domain.Message](cfg.MaxStoredEnvelopes),
		notifications: newEnvelopeStore[*domain.Notification](cfg.MaxStoredEnvelopes),
		ctx:           ctx,
		cancel:        cancel,
	}
	if p.Scheme == domain.SchemeTransport {
		remote.SetRemoteIdentity(p.Identity)
	}
	s.touch()
	return s
}

// Remote returns the server end of the transport pair.
func (s *HTTPSession) Remote() transport.Transport {
	return s.remote
}

// Principal returns the principal owning the session.
func (s *HTTPSession) Principal() Principal {
	return s.principal
}

func (s *HTTPSession) touch() {
	s.lastActive.Store(time.Now().UnixMilli())
}

// Expiration implements transport.SessionTransport.
func (s *HTTPSession) Expiration() time.Time {
	return time.UnixMilli(s.lastActive.Load()).Add(s.cfg.TTL)
}

// Expired reports whether the session is past its expiration at now.
func (s *HTTPSession) Expired(now time.Time) bool {
	return !now.Before(s.Expiration())
}

// SessionID returns the id assigned by the node, empty before the session
// starts.
func (s *HTTPSession) SessionID() string {
	return s.client.SessionID()
}

// LocalNode returns the node assigned by the server.
func (s *HTTPSession) LocalNode() domain.Node {
	return s.client.LocalNode()
}

// State returns the session state.
func (s *HTTPSession) State() domain.SessionState {
	return s.client.State()
}

// Authenticate implements transport.SessionTransport. The first call
// establishes the session; concurrent and later calls share its result.
// Cancelling ctx abandons the wait but not the establishment.
func (s *HTTPSession) Authenticate(ctx context.Context) (*domain.Session, error) {
	s.touch()
	if sess := s.established.Load(); sess != nil {
		return sess, nil
	}

	result := s.auth.DoChan("authenticate", func() (any, error) {
		if sess := s.established.Load(); sess != nil {
			return sess, nil
		}
		actx, cancel := context.WithTimeout(s.ctx, s.cfg.AuthenticationTimeout)
		defer cancel()
		sess, err := s.establish(actx)
		if err != nil {
			return nil, err
		}
		s.established.Store(sess)
		return sess, nil
	})

	select {
	case r := <-result:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*domain.Session), nil
	case <-ctx.Done():
		return nil, domain.NewTimeoutError("authenticate", ctx.Err())
	}
}

func (s *HTTPSession) establish(ctx context.Context) (*domain.Session, error) {
	identity := s.principal.Identity
	if identity.IsZero() {
		identity = domain.Node{Name: "guest"}
	}
	auth := s.principal.Authentication()
	sess, err := s.client.EstablishSession(ctx, nil, nil, identity.Identity(),
		func([]domain.AuthenticationScheme, domain.Authentication) domain.Authentication { return auth },
		identity.Instance)
	if err != nil {
		s.logger.Debug("session establishment failed", "error", err)
		_ = s.Close(context.Background())
		return nil, err
	}

	switch sess.State {
	case domain.SessionEstablished:
		s.logger.Info("http session established", "session_id", sess.ID, "node", domain.NodeValue(sess.To).String())
		s.pumped.Add(1)
		go s.pump()
	case domain.SessionFailed:
		s.logger.Info("http session failed", "session_id", sess.ID, "reason", sess.Reason.String())
	}
	return sess, nil
}

// pump moves received envelopes into the session stores until the session
// closes.
func (s *HTTPSession) pump() {
	defer s.pumped.Done()

	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error {
		for {
			m, err := s.client.ReceiveMessage(ctx)
			if err != nil {
				return err
			}
			s.messages.add(m)
		}
	})
	g.Go(func() error {
		for {
			n, err := s.client.ReceiveNotification(ctx)
			if err != nil {
				return err
			}
			s.notifications.add(n)
		}
	})
	if err := g.Wait(); err != nil && s.ctx.Err() == nil {
		s.logger.Debug("http session receive stopped", "error", err)
	}
}

// SendMessage sends m on the established session.
func (s *HTTPSession) SendMessage(ctx context.Context, m *domain.Message) error {
	s.touch()
	return s.client.SendMessage(ctx, m)
}

// SendNotification sends n on the established session.
func (s *HTTPSession) SendNotification(ctx context.Context, n *domain.Notification) error {
	s.touch()
	return s.client.SendNotification(ctx, n)
}

// ProcessCommand sends cmd and awaits its response.
func (s *HTTPSession) ProcessCommand(ctx context.Context, cmd *domain.Command) (*domain.Command, error) {
	s.touch()
	return s.correlator.ProcessCommand(ctx, cmd)
}

// MessageIDs implements Session.
func (s *HTTPSession) MessageIDs() []string {
	return s.messages.ids()
}

// TakeMessage implements Session.
func (s *HTTPSession) TakeMessage(id string) (*domain.Message, bool) {
	return s.messages.take(id)
}

// NotificationIDs implements Session.
func (s *HTTPSession) NotificationIDs() []string {
	return s.notifications.ids()
}

// TakeNotification implements Session.
func (s *HTTPSession) TakeNotification(id string) (*domain.Notification, bool) {
	return s.notifications.take(id)
}

// WaitNotification implements Session.
func (s *HTTPSession) WaitNotification(ctx context.Context, id string, event domain.Event) (*domain.Notification, error) {
	want, ok := eventRank[event]
	if !ok && event != domain.EventFailed {
		return nil, domain.NewArgumentError("event", "unknown event '"+string(event)+"'")
	}
	match := func(n *domain.Notification) bool {
		return n.Event == domain.EventFailed || eventRank[n.Event] >= want && want > 0
	}
	for {
		changed := s.notifications.wait()
		if n, ok := s.notifications.takeFunc(id, match); ok {
			return n, nil
		}
		select {
		case <-changed:
		case <-s.ctx.Done():
			return nil, transport.ErrClosed
		case <-ctx.Done():
			return nil, domain.NewTimeoutError("wait notification", ctx.Err())
		}
	}
}

// Open implements transport.Transport. The pair is created open.
func (s *HTTPSession) Open(ctx context.Context, uri string) error {
	if !s.IsConnected() {
		return transport.ErrClosed
	}
	return nil
}

// Send implements transport.Transport for message, notification and
// command envelopes.
func (s *HTTPSession) Send(ctx context.Context, env domain.Envelope) error {
	switch e := env.(type) {
	case *domain.Message:
		return s.SendMessage(ctx, e)
	case *domain.Notification:
		return s.SendNotification(ctx, e)
	case *domain.Command:
		s.touch()
		return s.client.SendCommand(ctx, e)
	case nil:
		return domain.NewArgumentError("envelope", "must not be nil")
	default:
		return domain.NewArgumentError("envelope", "session envelopes are managed by the transport")
	}
}

// Receive implements transport.Transport. It returns the oldest received
// message.
func (s *HTTPSession) Receive(ctx context.Context) (domain.Envelope, error) {
	for {
		changed := s.messages.wait()
		if m, ok := s.messages.pop(); ok {
			return m, nil
		}
		select {
		case <-changed:
		case <-s.ctx.Done():
			return nil, transport.ErrClosed
		case <-ctx.Done():
			return nil, domain.NewTimeoutError("receive", ctx.Err())
		}
	}
}

// IsConnected implements transport.Transport.
func (s *HTTPSession) IsConnected() bool {
	return s.ctx.Err() == nil && s.remote.IsConnected()
}

// Finish implements transport.SessionTransport. It runs once; later calls
// return the first result.
func (s *HTTPSession) Finish(ctx context.Context) error {
	s.finishOnce.Do(func() {
		if s.client.State() == domain.SessionEstablished {
			fctx, cancel := context.WithTimeout(ctx, s.cfg.FinishTimeout)
			s.finishErr = s.client.Finish(fctx)
			cancel()
			if s.finishErr == nil {
				s.logger.Info("http session finished", "session_id", s.client.SessionID())
			}
		}
		if err := s.Close(ctx); err != nil && s.finishErr == nil {
			s.finishErr = err
		}
	})
	return s.finishErr
}

// Close implements transport.Transport. Both ends of the pair are closed.
func (s *HTTPSession) Close(ctx context.Context) error {
	s.cancel()
	err := s.client.Close(ctx)
	if cerr := s.remote.Close(ctx); err == nil {
		err = cerr
	}
	s.pumped.Wait()
	return err
}
