package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/lime-go/internal/core/channel"
	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/storage"
	"github.com/yndnr/lime-go/internal/telemetry/metric"
	"github.com/yndnr/lime-go/internal/transport"
	"github.com/yndnr/lime-go/pkg/cmap"
)

// errSessionFinishing stops the consumers of a session whose client asked
// to finish.
var errSessionFinishing = errors.New("session finishing")

// RouterConfig configures a Router.
type RouterConfig struct {
	// Node is the server node, e.g. postmaster@lime.local/server.
	Node domain.Node

	// Compression and Encryption are offered during negotiation. With a
	// single option each, negotiation is skipped.
	Compression []domain.SessionCompression
	Encryption  []domain.SessionEncryption

	// FinishTimeout bounds the Finished session sent on shutdown (default: 5s).
	FinishTimeout time.Duration

	Channel channel.Config
	Logger  *slog.Logger
	Metrics *metric.Registry
}

// Router is the server node: it establishes sessions and routes envelopes
// between the connected nodes.
type Router struct {
	cfg     RouterConfig
	auth    *Authenticator
	store   storage.ResourceStore
	logger  *slog.Logger
	metrics *metric.Registry

	nodes *cmap.Map[*routedSession]
	wg    sync.WaitGroup
}

// routedSession is an established session reachable by its node.
type routedSession struct {
	node domain.Node
	ch   *channel.ServerChannel
}

// NewRouter creates a Router.
func NewRouter(cfg RouterConfig, auth *Authenticator, store storage.ResourceStore) *Router {
	if len(cfg.Compression) == 0 {
		cfg.Compression = []domain.SessionCompression{domain.CompressionNone}
	}
	if len(cfg.Encryption) == 0 {
		cfg.Encryption = []domain.SessionEncryption{domain.EncryptionNone}
	}
	if cfg.FinishTimeout <= 0 {
		cfg.FinishTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metric.Global()
	}
	return &Router{
		cfg:     cfg,
		auth:    auth,
		store:   store,
		logger:  cfg.Logger.With("component", "router"),
		metrics: cfg.Metrics,
		nodes:   cmap.New[*routedSession](),
	}
}

// Node returns the server node.
func (r *Router) Node() domain.Node {
	return r.cfg.Node
}

// Nodes returns the nodes with an established session.
func (r *Router) Nodes() []domain.Node {
	var out []domain.Node
	r.nodes.Range(func(_ string, s *routedSession) bool {
		out = append(out, s.node)
		return true
	})
	return out
}

// Serve accepts transports from l until ctx is cancelled or the listener
// stops, handling each in its own goroutine. It waits for the sessions to
// end before returning.
func (r *Router) Serve(ctx context.Context, l transport.Listener) error {
	defer r.wg.Wait()
	for {
		t, err := l.AcceptConnection(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.HandleTransport(ctx, t); err != nil {
				r.logger.Debug("session ended with error", "error", err)
			}
		}()
	}
}

// HandleTransport runs one session over t until it finishes or fails.
func (r *Router) HandleTransport(ctx context.Context, t transport.Transport) error {
	sessionID := domain.NewSessionID()
	logger := r.logger.With("session_id", sessionID)
	chCfg := r.cfg.Channel
	chCfg.Logger = logger
	ch := channel.NewServerChannel(sessionID, r.cfg.Node, t, chCfg)
	defer ch.Close(context.Background())

	node, err := r.establish(ctx, ch, t)
	if err != nil {
		return err
	}

	sess := &routedSession{node: node, ch: ch}
	key := node.String()
	if prev, ok := r.nodes.Get(key); ok {
		logger.Info("node session replaced", "node", key, "previous_session_id", prev.ch.SessionID())
	}
	r.nodes.Set(key, sess)
	r.metrics.SessionEstablished()
	defer func() {
		r.nodes.RemoveIf(key, func(s *routedSession) bool { return s == sess })
		r.metrics.SessionEnded()
	}()

	err = r.consume(ctx, sess)
	switch {
	case errors.Is(err, errSessionFinishing), ctx.Err() != nil:
		fctx, cancel := context.WithTimeout(context.Background(), r.cfg.FinishTimeout)
		defer cancel()
		logger.Info("session finished", "node", key)
		return ch.SendFinishedSession(fctx)
	default:
		logger.Info("session closed", "node", key, "error", err)
		return err
	}
}

// establish drives a new session to the established state and returns the
// remote node.
func (r *Router) establish(ctx context.Context, ch *channel.ServerChannel, t transport.Transport) (domain.Node, error) {
	s, err := ch.ReceiveNewSession(ctx)
	if err != nil {
		return domain.Node{}, err
	}
	if s.State != domain.SessionNew {
		return domain.Node{}, r.fail(ctx, ch, "protocol", domain.NewReason(domain.ReasonSessionInvalidActionForState, "Expected a new session"))
	}

	if len(r.cfg.Compression) > 1 || len(r.cfg.Encryption) > 1 {
		if s, err = ch.NegotiateSession(ctx, r.cfg.Compression, r.cfg.Encryption); err != nil {
			return domain.Node{}, err
		}
		if s.State != domain.SessionNegotiating ||
			!contains(r.cfg.Compression, s.Compression) || !contains(r.cfg.Encryption, s.Encryption) {
			return domain.Node{}, r.fail(ctx, ch, "negotiation", domain.NewReason(domain.ReasonSessionNegotiationInvalidOptions, "Invalid negotiation options"))
		}
		if err := ch.SendNegotiatingSession(ctx, s.Compression, s.Encryption); err != nil {
			return domain.Node{}, err
		}
	}

	if s, err = ch.AuthenticateSession(ctx, r.auth.Schemes()); err != nil {
		return domain.Node{}, err
	}
	if s.State != domain.SessionAuthenticating {
		return domain.Node{}, r.fail(ctx, ch, "protocol", domain.NewReason(domain.ReasonSessionInvalidActionForState, "Expected an authenticating session"))
	}

	node, err := r.auth.Authenticate(ctx, ch.SessionID(), s.From, s.Authentication, t)
	if err != nil {
		scheme := string(s.Scheme)
		if s.Authentication != nil {
			scheme = string(s.Authentication.Scheme())
		}
		r.metrics.RecordAuthFailure(scheme)
		ch.Logger().Warn("authentication failed", "scheme", scheme, "error", err)
		_ = r.fail(ctx, ch, "authentication", domain.NewReason(domain.ReasonSessionAuthenticationFailed, "The authentication failed"))
		return domain.Node{}, err
	}

	if err := ch.SendEstablishedSession(ctx, node); err != nil {
		return domain.Node{}, err
	}
	return node, nil
}

func (r *Router) fail(ctx context.Context, ch *channel.ServerChannel, label string, reason *domain.Reason) error {
	r.metrics.RecordSessionFailed(label)
	if err := ch.SendFailedSession(ctx, reason); err != nil {
		ch.Logger().Debug("failed to send failed session", "error", err)
	}
	return domain.ErrSessionProtocol.WithDetails(reason.Description)
}

// consume processes envelopes until the client finishes the session, the
// transport closes or ctx is cancelled.
func (r *Router) consume(ctx context.Context, sess *routedSession) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			m, err := sess.ch.ReceiveMessage(gctx)
			if err != nil {
				return err
			}
			r.metrics.RecordEnvelope(domain.KindMessage.String(), "in")
			r.routeMessage(gctx, sess, m)
		}
	})
	g.Go(func() error {
		for {
			n, err := sess.ch.ReceiveNotification(gctx)
			if err != nil {
				return err
			}
			r.metrics.RecordEnvelope(domain.KindNotification.String(), "in")
			r.routeNotification(gctx, sess, n)
		}
	})
	g.Go(func() error {
		for {
			cmd, err := sess.ch.ReceiveCommand(gctx)
			if err != nil {
				return err
			}
			r.metrics.RecordEnvelope(domain.KindCommand.String(), "in")
			r.routeCommand(gctx, sess, cmd)
		}
	})
	g.Go(func() error {
		s, err := sess.ch.ReceiveFinishingSession(gctx)
		if err != nil {
			return err
		}
		if s.State != domain.SessionFinishing {
			return domain.ErrSessionProtocol.WithDetails("unexpected session state '" + s.State.String() + "'")
		}
		return errSessionFinishing
	})

	return g.Wait()
}

// ============================================================================
// Routing
// ============================================================================

// isServer reports whether to addresses the server node.
func (r *Router) isServer(to *domain.Node) bool {
	return to == nil || to.IsZero() || to.Identity() == r.cfg.Node.Identity()
}

// lookup finds the session of to. A node without instance matches any
// instance of its identity.
func (r *Router) lookup(to domain.Node) (*routedSession, bool) {
	if s, ok := r.nodes.Get(to.String()); ok {
		return s, true
	}
	if to.Instance != "" {
		return nil, false
	}
	var found *routedSession
	identity := to.Identity()
	r.nodes.Range(func(_ string, s *routedSession) bool {
		if s.node.Identity() == identity {
			found = s
			return false
		}
		return true
	})
	return found, found != nil
}

func (r *Router) routeMessage(ctx context.Context, from *routedSession, m *domain.Message) {
	if r.isServer(m.To) {
		r.notify(ctx, from, m.ID, domain.EventReceived, nil)
		return
	}

	target, ok := r.lookup(*m.To)
	if !ok {
		r.metrics.RecordRoutingFailure(domain.KindMessage.String())
		r.notify(ctx, from, m.ID, domain.EventFailed,
			domain.NewReason(domain.ReasonRoutingDestinationNotFound, "Destination not found"))
		return
	}

	fwd := *m
	fwd.From = domain.NodePtr(from.node)
	if err := target.ch.SendMessage(ctx, &fwd); err != nil {
		from.ch.Logger().Warn("message forward failed", "to", m.To.String(), "error", err)
		r.notify(ctx, from, m.ID, domain.EventFailed,
			domain.NewReason(domain.ReasonDispatchError, "Dispatch failed"))
		return
	}
	r.metrics.RecordEnvelope(domain.KindMessage.String(), "out")
	r.notify(ctx, from, m.ID, domain.EventDispatched, nil)
}

// notify reports the progress of a message to its sender. Messages without
// id are fire-and-forget.
func (r *Router) notify(ctx context.Context, to *routedSession, id string, event domain.Event, reason *domain.Reason) {
	if id == "" {
		return
	}
	n := domain.NewNotification(id, event)
	n.From = domain.NodePtr(r.cfg.Node)
	n.To = domain.NodePtr(to.node)
	n.Reason = reason
	if err := to.ch.SendNotification(ctx, n); err != nil {
		to.ch.Logger().Debug("notification send failed", "id", id, "event", string(event), "error", err)
		return
	}
	r.metrics.RecordEnvelope(domain.KindNotification.String(), "out")
}

func (r *Router) routeNotification(ctx context.Context, from *routedSession, n *domain.Notification) {
	if r.isServer(n.To) {
		return
	}
	target, ok := r.lookup(*n.To)
	if !ok {
		r.metrics.RecordRoutingFailure(domain.KindNotification.String())
		from.ch.Logger().Debug("notification destination not found", "to", n.To.String())
		return
	}
	fwd := *n
	fwd.From = domain.NodePtr(from.node)
	if err := target.ch.SendNotification(ctx, &fwd); err != nil {
		from.ch.Logger().Warn("notification forward failed", "to", n.To.String(), "error", err)
		return
	}
	r.metrics.RecordEnvelope(domain.KindNotification.String(), "out")
}

func (r *Router) routeCommand(ctx context.Context, from *routedSession, cmd *domain.Command) {
	if cmd.Status != domain.StatusPending || !r.isServer(cmd.To) {
		r.forwardCommand(ctx, from, cmd)
		return
	}

	resp := r.execute(ctx, from, cmd)
	resp.From = domain.NodePtr(r.cfg.Node)
	resp.To = domain.NodePtr(from.node)
	if err := from.ch.SendCommand(ctx, resp); err != nil {
		from.ch.Logger().Warn("command response failed", "id", cmd.ID, "error", err)
		return
	}
	r.metrics.RecordEnvelope(domain.KindCommand.String(), "out")
}

func (r *Router) forwardCommand(ctx context.Context, from *routedSession, cmd *domain.Command) {
	if cmd.To == nil || cmd.To.IsZero() {
		return
	}
	target, ok := r.lookup(*cmd.To)
	if !ok {
		r.metrics.RecordRoutingFailure(domain.KindCommand.String())
		if cmd.Status == domain.StatusPending {
			resp := cmd.FailureResponse(domain.NewReason(domain.ReasonRoutingDestinationNotFound, "Destination not found"))
			resp.From = domain.NodePtr(r.cfg.Node)
			resp.To = domain.NodePtr(from.node)
			if err := from.ch.SendCommand(ctx, resp); err != nil {
				from.ch.Logger().Debug("routing failure response failed", "id", cmd.ID, "error", err)
			}
		}
		return
	}
	fwd := *cmd
	fwd.From = domain.NodePtr(from.node)
	if err := target.ch.SendCommand(ctx, &fwd); err != nil {
		from.ch.Logger().Warn("command forward failed", "to", cmd.To.String(), "error", err)
		return
	}
	r.metrics.RecordEnvelope(domain.KindCommand.String(), "out")
}

// execute runs a command addressed to the server against the resource
// store of the sender's identity.
func (r *Router) execute(ctx context.Context, from *routedSession, cmd *domain.Command) *domain.Command {
	owner := from.node.Identity().String()

	resp := r.executeMethod(ctx, owner, cmd)
	r.metrics.RecordCommand(string(cmd.Method), string(resp.Status))
	return resp
}

func (r *Router) executeMethod(ctx context.Context, owner string, cmd *domain.Command) *domain.Command {
	if cmd.URI == "" {
		return cmd.FailureResponse(domain.NewReason(domain.ReasonCommandInvalidArgument, "The command URI is required"))
	}

	switch cmd.Method {
	case domain.MethodGet:
		res, err := r.store.Get(ctx, owner, cmd.URI)
		if err != nil {
			return r.storeFailure(cmd, err)
		}
		doc, err := res.Document()
		if err != nil {
			return cmd.FailureResponse(domain.NewReason(domain.ReasonCommandProcessingError, err.Error()))
		}
		resp := cmd.Response(domain.StatusSuccess)
		resp.Type = doc.MediaType()
		resp.Resource = doc
		return resp

	case domain.MethodSet, domain.MethodMerge:
		if cmd.Resource == nil {
			return cmd.FailureResponse(domain.NewReason(domain.ReasonCommandInvalidArgument, "The resource is required"))
		}
		res, err := storage.NewResource(cmd.Resource)
		if err != nil {
			return cmd.FailureResponse(domain.NewReason(domain.ReasonValidationInvalidResource, err.Error()))
		}
		if err := r.store.Set(ctx, owner, cmd.URI, res); err != nil {
			return r.storeFailure(cmd, err)
		}
		return cmd.Response(domain.StatusSuccess)

	case domain.MethodDelete:
		if err := r.store.Delete(ctx, owner, cmd.URI); err != nil {
			return r.storeFailure(cmd, err)
		}
		return cmd.Response(domain.StatusSuccess)

	default:
		return cmd.FailureResponse(domain.NewReason(domain.ReasonCommandMethodNotSupported,
			"The method '"+string(cmd.Method)+"' is not supported"))
	}
}

func (r *Router) storeFailure(cmd *domain.Command, err error) *domain.Command {
	if errors.Is(err, storage.ErrNotFound) {
		return cmd.FailureResponse(domain.NewReason(domain.ReasonCommandResourceNotFound, "The resource was not found"))
	}
	r.logger.Error("resource store failed", "method", string(cmd.Method), "uri", cmd.URI, "error", err)
	return cmd.FailureResponse(domain.NewReason(domain.ReasonCommandProcessingError, "The command could not be processed"))
}

func contains[T comparable](options []T, v T) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
