package transport

import (
	"context"
	"sync"

	"github.com/yndnr/lime-go/internal/core/domain"
)

// PipeTransport is one end of an in-memory transport pair. Closing either
// end closes both.
type PipeTransport struct {
	in     <-chan domain.Envelope
	out    chan<- domain.Envelope
	shared *pipeState

	mu       sync.RWMutex
	identity domain.Node
}

type pipeState struct {
	once   sync.Once
	closed chan struct{}
}

// Pipe returns two connected transports. buffer is the number of envelopes
// each direction holds before Send blocks.
func Pipe(buffer int) (*PipeTransport, *PipeTransport) {
	if buffer < 0 {
		buffer = 0
	}
	ab := make(chan domain.Envelope, buffer)
	ba := make(chan domain.Envelope, buffer)
	shared := &pipeState{closed: make(chan struct{})}

	a := &PipeTransport{in: ba, out: ab, shared: shared}
	b := &PipeTransport{in: ab, out: ba, shared: shared}
	return a, b
}

// SetRemoteIdentity records the identity the owner verified for the peer.
func (p *PipeTransport) SetRemoteIdentity(n domain.Node) {
	p.mu.Lock()
	p.identity = n
	p.mu.Unlock()
}

// RemoteIdentity implements Identified.
func (p *PipeTransport) RemoteIdentity() (domain.Node, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity, !p.identity.IsZero()
}

// Open implements Transport.
func (p *PipeTransport) Open(ctx context.Context, uri string) error {
	if !p.IsConnected() {
		return ErrClosed
	}
	return nil
}

// Send implements Transport.
func (p *PipeTransport) Send(ctx context.Context, env domain.Envelope) error {
	if env == nil {
		return domain.NewArgumentError("envelope", "must not be nil")
	}
	if !p.IsConnected() {
		return ErrClosed
	}
	select {
	case p.out <- env:
		return nil
	case <-p.shared.closed:
		return ErrClosed
	case <-ctx.Done():
		return domain.NewTimeoutError("send", ctx.Err())
	}
}

// Receive implements Transport. Envelopes already buffered when the pipe is
// closed are still delivered.
func (p *PipeTransport) Receive(ctx context.Context) (domain.Envelope, error) {
	select {
	case env := <-p.in:
		return env, nil
	default:
	}
	select {
	case env := <-p.in:
		return env, nil
	case <-p.shared.closed:
		select {
		case env := <-p.in:
			return env, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, domain.NewTimeoutError("receive", ctx.Err())
	}
}

// Close implements Transport.
func (p *PipeTransport) Close(ctx context.Context) error {
	p.shared.once.Do(func() { close(p.shared.closed) })
	return nil
}

// IsConnected implements Transport.
func (p *PipeTransport) IsConnected() bool {
	select {
	case <-p.shared.closed:
		return false
	default:
		return true
	}
}
