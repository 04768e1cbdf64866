package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/server/httpbridge"
	"github.com/yndnr/lime-go/internal/telemetry/metric"
	"github.com/yndnr/lime-go/internal/transport"
	"github.com/yndnr/lime-go/pkg/cmap"
)

var _ httpbridge.Server = (*Server)(nil)

// ErrUnknownCorrelator indicates a response for a request that is no longer
// waiting.
var ErrUnknownCorrelator = errors.New("no pending request for correlator id")

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address (default ":8080").
	Addr string

	// TLSConfig enables HTTPS when set.
	TLSConfig *tls.Config

	// RequestTimeout bounds the wait for a bridge response (default 60s).
	RequestTimeout time.Duration

	// ReadHeaderTimeout (default 10s).
	ReadHeaderTimeout time.Duration

	// MaxBodyBytes limits request bodies (default 1MB).
	MaxBodyBytes int64

	// QueueSize is the capacity of the accept queue (default 256).
	QueueSize int

	// RateLimit is the per-IP request rate; zero disables limiting.
	RateLimit float64
	RateBurst int

	CORSAllowedOrigins []string

	// MetricsAllowList restricts /metrics to IPs or CIDRs.
	MetricsAllowList []string

	EnableAudit bool

	Logger  *slog.Logger
	Metrics *metric.Registry
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Server is an httpbridge.Server over net/http. Each request is queued for
// the bridge and held open until its response is submitted.
type Server struct {
	cfg      Config
	resolver *PrincipalResolver
	logger   *slog.Logger

	queue   chan *httpbridge.Request
	pending *cmap.Map[chan *httpbridge.Response]

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
	closeOnce  sync.Once
}

// New creates a server.
func New(cfg Config, resolver *PrincipalResolver) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:      cfg,
		resolver: resolver,
		logger:   cfg.Logger.With("component", "httpserver"),
		queue:    make(chan *httpbridge.Request, cfg.QueueSize),
		pending:  cmap.New[chan *httpbridge.Response](),
		done:     make(chan struct{}),
	}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("http server already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           NewRouter(s),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	secure := s.cfg.TLSConfig != nil
	if secure {
		ln = tls.NewListener(ln, s.cfg.TLSConfig)
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()

	s.listener = ln
	s.logger.Info("http server started", "addr", ln.Addr().String(), "tls", secure)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the server down, failing AcceptRequest and pending requests.
func (s *Server) Stop(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// AcceptRequest returns the next queued request.
func (s *Server) AcceptRequest(ctx context.Context) (*httpbridge.Request, error) {
	select {
	case req := <-s.queue:
		return req, nil
	case <-s.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubmitResponse delivers resp to the request waiting on its correlator id.
func (s *Server) SubmitResponse(resp *httpbridge.Response) error {
	if resp == nil {
		return domain.NewArgumentError("response", "must not be nil")
	}
	ch, ok := s.pending.Pop(resp.CorrelatorID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCorrelator, resp.CorrelatorID)
	}
	ch <- resp
	return nil
}

// ServeHTTP hands the request to the bridge and writes its response.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.GetErrorCode(ErrMissingCredentials), "authentication required")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "LM-SYS-4130", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "LM-SYS-4000", "failed to read request body")
		return
	}

	req := &httpbridge.Request{
		CorrelatorID: domain.NewID(),
		Method:       r.Method,
		URL:          r.URL,
		Header:       r.Header.Clone(),
		Body:         body,
		RemoteAddr:   getClientIP(r),
		Principal:    principal,
	}

	respCh := make(chan *httpbridge.Response, 1)
	s.pending.Set(req.CorrelatorID, respCh)
	defer s.pending.Delete(req.CorrelatorID)

	timer := time.NewTimer(s.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case s.queue <- req:
	case <-s.done:
		writeError(w, http.StatusServiceUnavailable, domain.GetErrorCode(domain.ErrChannelClosed), "server is shutting down")
		return
	case <-timer.C:
		writeError(w, http.StatusServiceUnavailable, "LM-SYS-5030", "request queue is full")
		return
	case <-r.Context().Done():
		return
	}

	select {
	case resp := <-respCh:
		writeResponse(w, resp)
	case <-timer.C:
		writeError(w, http.StatusGatewayTimeout, domain.GetErrorCode(domain.ErrTimeout), "no response in time")
	case <-s.done:
		writeError(w, http.StatusServiceUnavailable, domain.GetErrorCode(domain.ErrChannelClosed), "server is shutting down")
	case <-r.Context().Done():
	}
}

func writeResponse(w http.ResponseWriter, resp *httpbridge.Response) {
	h := w.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
