package httpbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/yosida95/uritemplate/v3"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/telemetry/metric"
	"github.com/yndnr/lime-go/internal/transport"
)

type bridgeState int

const (
	bridgeNew bridgeState = iota
	bridgeStarted
	bridgeStopped
)

func (s bridgeState) String() string {
	switch s {
	case bridgeNew:
		return "new"
	case bridgeStarted:
		return "started"
	case bridgeStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TransportProvider resolves the session transport of a principal and
// surfaces newly created transports to the node.
type TransportProvider interface {
	GetTransport(ctx context.Context, p Principal, keep bool) (SessionTransport, error)
	AcceptTransport(ctx context.Context) (transport.Transport, error)

	// Run performs periodic maintenance until ctx is done.
	Run(ctx context.Context, interval time.Duration)
	Close(ctx context.Context) error
}

// Config tunes the bridge.
type Config struct {
	// RequestTimeout bounds the handling of one request (default: 60s).
	RequestTimeout time.Duration

	// SweepInterval is the period of the expired transport sweep
	// (default: 30s).
	SweepInterval time.Duration

	Logger  *slog.Logger
	Metrics *metric.Registry
}

// Bridge turns HTTP requests into operations on LIME sessions. It is a
// transport.Listener producing the server end of every session transport.
type Bridge struct {
	cfg        Config
	server     Server
	sessions   TransportProvider
	processors *Registry
	logger     *slog.Logger
	metrics    *metric.Registry

	mu     sync.Mutex
	state  bridgeState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ transport.Listener = (*Bridge)(nil)

// New creates a bridge serving the requests of server with processors.
func New(cfg Config, server Server, sessions TransportProvider, processors *Registry) *Bridge {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metric.Global()
	}
	return &Bridge{
		cfg:        cfg,
		server:     server,
		sessions:   sessions,
		processors: processors,
		logger:     cfg.Logger.With("component", "httpbridge"),
		metrics:    cfg.Metrics,
	}
}

// Start implements transport.Listener. It starts the HTTP server and the
// request loop; a bridge starts once.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != bridgeNew {
		return domain.NewInvalidStateError("start bridge", b.state, bridgeNew)
	}
	if err := b.server.Start(ctx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.state = bridgeStarted

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.run(runCtx)
	}()
	go func() {
		defer b.wg.Done()
		b.sessions.Run(runCtx, b.cfg.SweepInterval)
	}()
	b.logger.Info("http bridge started")
	return nil
}

// Stop implements transport.Listener. Registered session transports are
// finished.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.state != bridgeStarted {
		state := b.state
		b.mu.Unlock()
		return domain.NewInvalidStateError("stop bridge", state, bridgeStarted)
	}
	b.state = bridgeStopped
	b.mu.Unlock()

	b.cancel()
	err := b.server.Stop(ctx)
	if cerr := b.sessions.Close(ctx); err == nil {
		err = cerr
	}
	b.wg.Wait()
	b.logger.Info("http bridge stopped")
	return err
}

// AcceptConnection implements transport.Listener. After Stop it returns
// transport.ErrClosed.
func (b *Bridge) AcceptConnection(ctx context.Context) (transport.Transport, error) {
	b.mu.Lock()
	state := b.state
	b.mu.Unlock()
	switch state {
	case bridgeStarted:
	case bridgeStopped:
		return nil, transport.ErrClosed
	default:
		return nil, domain.NewInvalidStateError("accept connection", state, bridgeStarted)
	}
	return b.sessions.AcceptTransport(ctx)
}

func (b *Bridge) run(ctx context.Context) {
	for {
		req, err := b.server.AcceptRequest(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return
			}
			b.logger.Warn("accept request failed", "error", err)
			continue
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.serve(ctx, req)
		}()
	}
}

// serve answers one request. A transport the client asked to close is
// finished before the response is submitted.
func (b *Bridge) serve(ctx context.Context, req *Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	resp, session := b.Handle(ctx, req)
	if session != nil && !req.KeepSession() {
		if err := session.Finish(ctx); err != nil {
			b.logger.Debug("finish http session failed", "correlator_id", req.CorrelatorID, "error", err)
		}
	}
	if err := b.server.SubmitResponse(resp); err != nil {
		b.logger.Warn("submit response failed", "correlator_id", req.CorrelatorID, "error", err)
	}

	b.metrics.RecordRequest("http", req.Method, strconv.Itoa(resp.Status))
	b.metrics.ObserveRequestDuration("http", req.Method, time.Since(start).Seconds())
}

// Handle produces the response to req and returns the session transport
// used, if any. The caller finishes the transport when the request does
// not keep the session.
func (b *Bridge) Handle(ctx context.Context, req *Request) (*Response, SessionTransport) {
	logger := b.logger.With("correlator_id", req.CorrelatorID, "method", req.Method, "path", req.URL.Path)

	session, err := b.sessions.GetTransport(ctx, req.Principal, req.KeepSession())
	if err != nil {
		logger.Warn("get session transport failed", "error", err)
		if domain.IsTimeout(err) {
			return NewTextResponse(req, http.StatusRequestTimeout, err.Error()), nil
		}
		return NewTextResponse(req, http.StatusServiceUnavailable, err.Error()), nil
	}

	sess, err := session.Authenticate(ctx)
	switch {
	case err != nil && domain.IsTimeout(err):
		return NewTextResponse(req, http.StatusRequestTimeout, "session authentication timed out"), session
	case err != nil:
		logger.Warn("session authentication failed", "error", err)
		return NewTextResponse(req, http.StatusServiceUnavailable, err.Error()), session
	case sess.State == domain.SessionFailed && sess.Reason != nil:
		b.metrics.RecordAuthFailure(string(req.Principal.Scheme))
		resp := NewTextResponse(req, http.StatusUnauthorized, sess.Reason.Description)
		resp.SetReason(sess.Reason)
		return resp, session
	case sess.State != domain.SessionEstablished:
		return NewTextResponse(req, http.StatusServiceUnavailable, "session could not be established"), session
	}

	var resp *Response
	p, params, ok := b.processors.Match(req.Method, req.URL.Path)
	if !ok {
		resp = NewTextResponse(req, http.StatusNotFound, domain.ErrProcessorNotFound.Error())
	} else {
		resp = b.invoke(ctx, logger, p, req, params, session)
	}
	resp.CorrelatorID = req.CorrelatorID
	resp.Header.Set(HeaderSessionID, sess.ID)
	resp.Header.Set(HeaderSessionExpiration, session.Expiration().UTC().Format(http.TimeFormat))
	return resp, session
}

func (b *Bridge) invoke(ctx context.Context, logger *slog.Logger, p Processor, req *Request, params uritemplate.Values, session SessionTransport) (resp *Response) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("processor panicked", "panic", rec)
			err := domain.ErrProcessorExecution.WithDetails(fmt.Sprint(rec))
			resp = NewTextResponse(req, http.StatusInternalServerError, err.Error())
		}
	}()

	resp, err := p.Process(ctx, req, params, session)
	if err != nil {
		if domain.IsTimeout(err) {
			logger.Info("processor timed out", "error", err)
			return NewTextResponse(req, http.StatusRequestTimeout, err.Error())
		}
		logger.Warn("processor failed", "error", err)
		return NewTextResponse(req, http.StatusInternalServerError, domain.ErrProcessorExecution.WithCause(err).WithDetails(err.Error()).Error())
	}
	if resp == nil {
		return NewResponse(req, http.StatusNoContent)
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	return resp
}
