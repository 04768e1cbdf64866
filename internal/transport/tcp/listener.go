package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/transport"
)

// Config holds the TCP listener configuration.
type Config struct {
	// Address is the listen address (default: 127.0.0.1:55321).
	Address string
	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config
	// WriteTimeout bounds each send on accepted transports (default: 30s).
	WriteTimeout time.Duration
	// Backlog is the number of accepted transports waiting for
	// AcceptConnection before the accept loop blocks (default: 64).
	Backlog int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      "127.0.0.1:" + DefaultPort,
		WriteTimeout: 30 * time.Second,
		Backlog:      64,
	}
}

// Listener accepts TCP connections and surfaces them as transports.
type Listener struct {
	cfg    *Config
	logger *slog.Logger

	mu       sync.Mutex
	ln       net.Listener
	accepted chan transport.Transport
	done     chan struct{}

	running atomic.Bool
	stopped atomic.Bool
	wg      sync.WaitGroup
}

var _ transport.Listener = (*Listener)(nil)

// NewListener creates a listener. It does not bind until Start.
func NewListener(cfg *Config, logger *slog.Logger) *Listener {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		cfg:      cfg,
		logger:   logger,
		accepted: make(chan transport.Transport, cfg.Backlog),
		done:     make(chan struct{}),
	}
}

// Start binds the address and starts the accept loop. A stopped listener
// cannot be restarted.
func (l *Listener) Start(ctx context.Context) error {
	if l.stopped.Load() || !l.running.CompareAndSwap(false, true) {
		return &domain.InvalidStateError{Operation: "start listener", Current: "started", Required: []string{"stopped"}}
	}

	var (
		ln  net.Listener
		err error
	)
	if l.cfg.TLSConfig != nil {
		ln, err = tls.Listen("tcp", l.cfg.Address, l.cfg.TLSConfig)
	} else {
		ln, err = net.Listen("tcp", l.cfg.Address)
	}
	if err != nil {
		l.running.Store(false)
		return err
	}

	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	l.logger.Info("tcp listener started", "address", ln.Addr().String(), "tls", l.cfg.TLSConfig != nil)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.acceptLoop(ln); err != nil && l.running.Load() {
			l.logger.Error("tcp accept loop failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// AcceptConnection returns the next accepted transport.
func (l *Listener) AcceptConnection(ctx context.Context) (transport.Transport, error) {
	if !l.running.Load() {
		return nil, &domain.InvalidStateError{Operation: "accept connection", Current: "stopped", Required: []string{"started"}}
	}
	select {
	case t := <-l.accepted:
		return t, nil
	case <-l.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, domain.NewTimeoutError("accept connection", ctx.Err())
	}
}

// Stop closes the listener and waits for the accept loop to exit.
func (l *Listener) Stop(ctx context.Context) error {
	if !l.running.CompareAndSwap(true, false) {
		return &domain.InvalidStateError{Operation: "stop listener", Current: "stopped", Required: []string{"started"}}
	}
	l.stopped.Store(true)
	close(l.done)

	var firstErr error
	l.mu.Lock()
	if l.ln != nil {
		firstErr = l.ln.Close()
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Close transports nobody accepted.
	for {
		select {
		case t := <-l.accepted:
			_ = t.Close(ctx)
		default:
			return firstErr
		}
	}
}

func (l *Listener) acceptLoop(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if !l.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		l.logger.Debug("tcp connection accepted", "remote", c.RemoteAddr().String())
		t := newServerTransport(c, Options{WriteTimeout: l.cfg.WriteTimeout})
		select {
		case l.accepted <- t:
		case <-l.done:
			_ = c.Close()
			return nil
		}
	}
}
