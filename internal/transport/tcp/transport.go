package tcp

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/transport"
)

// URIScheme is the scheme of TCP transport URIs.
const URIScheme = "net.tcp"

// DefaultPort is used when a URI has no port.
const DefaultPort = "55321"

// Options configures a TCP transport.
type Options struct {
	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config
	// DialTimeout bounds connection establishment (default: 30s).
	DialTimeout time.Duration
	// WriteTimeout bounds each send (default: 30s).
	WriteTimeout time.Duration
}

// Transport is a TCP envelope transport.
type Transport struct {
	opts Options

	mu      sync.Mutex // guards conn and br during Open
	conn    net.Conn
	br      *bufio.Reader
	writeMu sync.Mutex
	readMu  sync.Mutex

	closed atomic.Bool
}

var _ transport.Transport = (*Transport)(nil)

// NewTransport returns an unopened client transport.
func NewTransport(opts Options) *Transport {
	return &Transport{opts: opts}
}

// newServerTransport wraps an accepted connection.
func newServerTransport(c net.Conn, opts Options) *Transport {
	return &Transport{opts: opts, conn: c, br: bufio.NewReaderSize(c, 64*1024)}
}

// Dial opens a client transport to uri.
func Dial(ctx context.Context, uri string, opts Options) (*Transport, error) {
	t := NewTransport(opts)
	if err := t.Open(ctx, uri); err != nil {
		return nil, err
	}
	return t, nil
}

// Open implements transport.Transport.
func (t *Transport) Open(ctx context.Context, uri string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}
	addr, err := parseAddress(uri)
	if err != nil {
		return err
	}

	timeout := t.opts.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}

	var c net.Conn
	if t.opts.TLSConfig != nil {
		td := &tls.Dialer{NetDialer: dialer, Config: t.opts.TLSConfig}
		c, err = td.DialContext(ctx, "tcp", addr)
	} else {
		c, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	t.conn = c
	t.br = bufio.NewReaderSize(c, 64*1024)
	return nil
}

// Send implements transport.Transport.
func (t *Transport) Send(ctx context.Context, env domain.Envelope) error {
	if t.closed.Load() || t.conn == nil {
		return transport.ErrClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(t.writeTimeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := transport.WriteEnvelope(t.conn, env); err != nil {
		return t.translate("send", err)
	}
	return nil
}

// Receive implements transport.Transport. Cancelling ctx interrupts the read
// by moving the read deadline.
func (t *Transport) Receive(ctx context.Context) (domain.Envelope, error) {
	if t.closed.Load() || t.conn == nil {
		return nil, transport.ErrClosed
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer func() {
		if stop() {
			return
		}
		_ = t.conn.SetReadDeadline(time.Time{})
	}()

	env, err := transport.ReadEnvelope(t.br)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewTimeoutError("receive", ctx.Err())
		}
		return nil, t.translate("receive", err)
	}
	return env, nil
}

// Close implements transport.Transport.
func (t *Transport) Close(ctx context.Context) error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

// IsConnected implements transport.Transport.
func (t *Transport) IsConnected() bool {
	return !t.closed.Load() && t.conn != nil
}

// RemoteAddr returns the peer address.
func (t *Transport) RemoteAddr() net.Addr {
	if t.conn == nil {
		return nil
	}
	return t.conn.RemoteAddr()
}

// RemoteIdentity implements transport.Identified using the common name of a
// verified TLS client certificate.
func (t *Transport) RemoteIdentity() (domain.Node, bool) {
	tc, ok := t.conn.(*tls.Conn)
	if !ok {
		return domain.Node{}, false
	}
	state := tc.ConnectionState()
	if !state.HandshakeComplete || len(state.VerifiedChains) == 0 || len(state.PeerCertificates) == 0 {
		return domain.Node{}, false
	}
	n, err := domain.ParseNode(state.PeerCertificates[0].Subject.CommonName)
	if err != nil {
		return domain.Node{}, false
	}
	return n, true
}

func (t *Transport) writeTimeout() time.Duration {
	if t.opts.WriteTimeout > 0 {
		return t.opts.WriteTimeout
	}
	return 30 * time.Second
}

func (t *Transport) translate(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		_ = t.Close(context.Background())
		return transport.ErrClosed.WithCause(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewTimeoutError(op, err)
	}
	return err
}

func parseAddress(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return "", domain.NewArgumentError("uri", "invalid transport uri '"+uri+"'")
	}
	if u.Scheme != URIScheme && u.Scheme != "tcp" {
		return "", domain.NewArgumentError("uri", "unsupported scheme '"+u.Scheme+"'")
	}
	if u.Port() == "" {
		return net.JoinHostPort(u.Hostname(), DefaultPort), nil
	}
	return u.Host, nil
}
