package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/transport"
)

// globalCommandLock is shared by channels configured with GlobalCommandLock.
var globalCommandLock = semaphore.NewWeighted(1)

const kinds = 4

// Channel is the state shared by server and client channels.
type Channel struct {
	transport transport.Transport
	cfg       Config
	logger    *slog.Logger

	mu         sync.RWMutex
	sessionID  string
	state      domain.SessionState
	localNode  domain.Node
	remoteNode domain.Node

	sendMu sync.Mutex

	queues    [kinds]chan domain.Envelope
	receiving [kinds]atomic.Bool
	dropped   atomic.Uint64

	consumeOnce sync.Once
	consumeStop context.CancelFunc
	consumed    chan struct{} // closed when the consumer exits
	consumeErr  error

	closeOnce sync.Once

	commandLock *semaphore.Weighted
}

func newChannel(t transport.Transport, sessionID string, local domain.Node, cfg Config) *Channel {
	cfg = cfg.withDefaults()
	c := &Channel{
		transport: t,
		cfg:       cfg,
		sessionID: sessionID,
		localNode: local,
		consumed:  make(chan struct{}),
		logger:    cfg.Logger,
	}
	for i := range c.queues {
		c.queues[i] = make(chan domain.Envelope, cfg.ReceiveBuffer)
	}
	if cfg.GlobalCommandLock {
		c.commandLock = globalCommandLock
	} else {
		c.commandLock = semaphore.NewWeighted(1)
	}
	return c
}

// SessionID returns the session id. A client channel learns it from the
// first session envelope the server sends.
func (c *Channel) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// State returns the current session state.
func (c *Channel) State() domain.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LocalNode returns the address of this side.
func (c *Channel) LocalNode() domain.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.localNode
}

// RemoteNode returns the address of the peer, bound at establishment.
func (c *Channel) RemoteNode() domain.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteNode
}

// Transport returns the underlying transport.
func (c *Channel) Transport() transport.Transport {
	return c.transport
}

// CommandLock returns the semaphore guarding command round trips.
func (c *Channel) CommandLock() *semaphore.Weighted {
	return c.commandLock
}

// Logger returns the channel logger annotated with the session id.
func (c *Channel) Logger() *slog.Logger {
	return c.logger.With("session_id", c.SessionID())
}

// requireState returns an InvalidStateError unless the state is one of allowed.
func (c *Channel) requireState(op string, allowed ...domain.SessionState) error {
	current := c.State()
	for _, s := range allowed {
		if current == s {
			return nil
		}
	}
	return domain.NewInvalidStateError(op, current, allowed...)
}

// setState moves the state machine forward. Backward moves and moves out of
// a terminal state are ignored.
func (c *Channel) setState(s domain.SessionState) {
	c.mu.Lock()
	prev := c.state
	if prev.IsTerminal() || (s < prev && s != domain.SessionFailed) {
		c.mu.Unlock()
		return
	}
	c.state = s
	id := c.sessionID
	c.mu.Unlock()

	if prev != s {
		c.logger.Debug("session state changed", "session_id", id, "from", prev.String(), "to", s.String())
	}
}

// ============================================================================
// Send
// ============================================================================

func (c *Channel) send(ctx context.Context, env domain.Envelope) error {
	if env == nil {
		return domain.NewArgumentError("envelope", "must not be nil")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.SendTimeout)
		defer cancel()
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.transport.Send(ctx, env); err != nil {
		if ctx.Err() != nil && !domain.IsTimeout(err) {
			return domain.NewTimeoutError("send "+env.Kind().String(), ctx.Err())
		}
		return err
	}
	return nil
}

func (c *Channel) requireEstablished(op string) error {
	return c.requireState(op, domain.SessionEstablished)
}

// SendMessage sends a message on an established session.
func (c *Channel) SendMessage(ctx context.Context, m *domain.Message) error {
	if err := c.requireEstablished("send message"); err != nil {
		return err
	}
	if m == nil {
		return domain.NewArgumentError("message", "must not be nil")
	}
	return c.send(ctx, m)
}

// SendNotification sends a notification on an established session.
func (c *Channel) SendNotification(ctx context.Context, n *domain.Notification) error {
	if err := c.requireEstablished("send notification"); err != nil {
		return err
	}
	if n == nil {
		return domain.NewArgumentError("notification", "must not be nil")
	}
	return c.send(ctx, n)
}

// SendCommand sends a command on an established session.
func (c *Channel) SendCommand(ctx context.Context, cmd *domain.Command) error {
	if err := c.requireEstablished("send command"); err != nil {
		return err
	}
	if cmd == nil {
		return domain.NewArgumentError("command", "must not be nil")
	}
	return c.send(ctx, cmd)
}

func (c *Channel) newSession(state domain.SessionState) *domain.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &domain.Session{
		EnvelopeHeader: domain.EnvelopeHeader{
			ID:   c.sessionID,
			From: domain.NodePtr(c.localNode),
			To:   domain.NodePtr(c.remoteNode),
		},
		State: state,
	}
}

// SendFinishedSession sends a finished session, closes the transport and
// moves to Finished. It is valid in any state.
func (c *Channel) SendFinishedSession(ctx context.Context) error {
	err := c.send(ctx, c.newSession(domain.SessionFinished))
	c.setState(domain.SessionFinished)
	if cerr := c.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

// SendFailedSession sends a failed session with reason, closes the
// transport and moves to Failed.
func (c *Channel) SendFailedSession(ctx context.Context, reason *domain.Reason) error {
	if reason == nil {
		return domain.NewArgumentError("reason", "must not be nil")
	}
	s := c.newSession(domain.SessionFailed)
	s.Reason = reason
	err := c.send(ctx, s)
	c.setState(domain.SessionFailed)
	if cerr := c.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

// ============================================================================
// Receive
// ============================================================================

// startConsumer starts the goroutine that reads the transport and
// distributes envelopes by kind.
func (c *Channel) startConsumer() {
	c.consumeOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.consumeStop = cancel
		go c.consume(ctx)
	})
}

func (c *Channel) consume(ctx context.Context) {
	defer close(c.consumed)
	for {
		env, err := c.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				err = transport.ErrClosed
			}
			c.consumeErr = err
			return
		}
		select {
		case c.queues[env.Kind()] <- env:
		default:
			c.drop(env)
		}
	}
}

// drop discards env because nobody drains its kind fast enough.
func (c *Channel) drop(env domain.Envelope) {
	c.dropped.Add(1)
	c.logger.Warn("receive queue full, envelope dropped",
		"session_id", c.SessionID(), "kind", env.Kind().String(), "envelope_id", env.Header().ID)
	if c.cfg.OnDrop != nil {
		c.cfg.OnDrop(env.Kind())
	}
}

// Dropped returns the number of envelopes discarded on full receive queues.
func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *Channel) receive(ctx context.Context, kind domain.Kind) (domain.Envelope, error) {
	if !c.receiving[kind].CompareAndSwap(false, true) {
		return nil, domain.ErrConcurrentReceive.WithDetails(kind.String())
	}
	defer c.receiving[kind].Store(false)

	c.startConsumer()
	q := c.queues[kind]

	select {
	case env := <-q:
		return env, nil
	default:
	}

	select {
	case env := <-q:
		return env, nil
	case <-c.consumed:
		select {
		case env := <-q:
			return env, nil
		default:
		}
		if c.consumeErr != nil && !errors.Is(c.consumeErr, transport.ErrClosed) {
			return nil, c.consumeErr
		}
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, domain.NewTimeoutError("receive "+kind.String(), ctx.Err())
	}
}

// ReceiveMessage awaits the next message.
func (c *Channel) ReceiveMessage(ctx context.Context) (*domain.Message, error) {
	if err := c.requireEstablished("receive message"); err != nil {
		return nil, err
	}
	env, err := c.receive(ctx, domain.KindMessage)
	if err != nil {
		return nil, err
	}
	return env.(*domain.Message), nil
}

// ReceiveNotification awaits the next notification.
func (c *Channel) ReceiveNotification(ctx context.Context) (*domain.Notification, error) {
	if err := c.requireEstablished("receive notification"); err != nil {
		return nil, err
	}
	env, err := c.receive(ctx, domain.KindNotification)
	if err != nil {
		return nil, err
	}
	return env.(*domain.Notification), nil
}

// ReceiveCommand awaits the next command.
func (c *Channel) ReceiveCommand(ctx context.Context) (*domain.Command, error) {
	if err := c.requireEstablished("receive command"); err != nil {
		return nil, err
	}
	env, err := c.receive(ctx, domain.KindCommand)
	if err != nil {
		return nil, err
	}
	return env.(*domain.Command), nil
}

// receiveSession awaits the next session envelope and applies the
// session-id guard: a non-new session carrying another session's id makes
// the channel fail the session and close the transport.
func (c *Channel) receiveSession(ctx context.Context) (*domain.Session, error) {
	env, err := c.receive(ctx, domain.KindSession)
	if err != nil {
		return nil, err
	}
	s := env.(*domain.Session)

	id := c.SessionID()
	if s.State != domain.SessionNew && id != "" && s.ID != id {
		c.logger.Warn("invalid session id received", "session_id", id, "received_id", s.ID)
		reason := domain.NewReason(domain.ReasonSessionError, "Invalid session id")
		if ferr := c.SendFailedSession(ctx, reason); ferr != nil {
			c.logger.Debug("failed to send failed session", "session_id", id, "error", ferr)
		}
		return nil, domain.ErrSessionProtocol.WithDetails("invalid session id '" + s.ID + "'")
	}
	return s, nil
}

// Close closes the transport and stops the consumer. Close is idempotent and
// does not change the session state.
func (c *Channel) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		err = c.transport.Close(ctx)
		c.consumeOnce.Do(func() {
			c.consumeStop = func() {}
			close(c.consumed)
		})
		c.consumeStop()
	})
	return err
}
