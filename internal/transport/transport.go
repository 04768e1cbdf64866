package transport

import (
	"context"
	"time"

	"github.com/yndnr/lime-go/internal/core/domain"
)

// Transport is an ordered, bidirectional envelope stream.
type Transport interface {
	// Open connects the transport to uri. Transports produced by a Listener
	// are already open and return nil.
	Open(ctx context.Context, uri string) error

	// Send writes one envelope. Sends are delivered in call order.
	Send(ctx context.Context, env domain.Envelope) error

	// Receive blocks until the next envelope arrives.
	Receive(ctx context.Context) (domain.Envelope, error)

	// Close releases the transport. Close is idempotent.
	Close(ctx context.Context) error

	// IsConnected reports whether the transport can still send and receive.
	IsConnected() bool
}

// SessionTransport is a transport whose session is established and finished
// by its owner.
type SessionTransport interface {
	Transport

	// Expiration is the instant after which the transport is discarded.
	Expiration() time.Time

	// Authenticate establishes the session if needed and returns the last
	// session envelope received (Established or Failed).
	Authenticate(ctx context.Context) (*domain.Session, error)

	// Finish terminates the session and closes the transport.
	Finish(ctx context.Context) error
}

// Listener produces server-side transports.
type Listener interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// AcceptConnection blocks until a new transport is available.
	AcceptConnection(ctx context.Context) (Transport, error)
}

// Identified is implemented by transports that authenticate the remote peer
// themselves (TLS client certificates, bearer tokens). It backs the
// transport authentication scheme.
type Identified interface {
	RemoteIdentity() (domain.Node, bool)
}

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = domain.ErrChannelClosed
