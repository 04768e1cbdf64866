package httpbridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/telemetry/metric"
	"github.com/yndnr/lime-go/internal/transport"
	"github.com/yndnr/lime-go/pkg/cmap"
	"github.com/yndnr/lime-go/pkg/token"
)

var _ TransportProvider = (*SessionRegistry)(nil)

// SessionRegistry maps principals to their session transports and queues
// the server ends for the node.
type SessionRegistry struct {
	cfg     SessionConfig
	logger  *slog.Logger
	metrics *metric.Registry

	sessions *cmap.Map[*HTTPSession]
	accept   chan transport.Transport

	closeOnce sync.Once
	closed    chan struct{}
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(cfg SessionConfig, logger *slog.Logger, metrics *metric.Registry) *SessionRegistry {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = metric.Global()
	}
	return &SessionRegistry{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		sessions: cmap.New[*HTTPSession](),
		accept:   make(chan transport.Transport, 64),
		closed:   make(chan struct{}),
	}
}

// principalKey identifies a principal without keeping its secret.
func principalKey(p Principal) string {
	return p.Identity.String() + ":" + string(p.Scheme) + ":" + token.Hash(p.Secret)
}

// GetTransport returns the session transport of p, creating it when p has
// none or its previous one expired or closed. With keep false the
// transport is removed from the registry and must be finished by the
// caller.
func (r *SessionRegistry) GetTransport(ctx context.Context, p Principal, keep bool) (SessionTransport, error) {
	select {
	case <-r.closed:
		return nil, transport.ErrClosed
	default:
	}

	key := principalKey(p)
	now := time.Now()

	if !keep {
		if s, ok := r.sessions.Pop(key); ok {
			r.updateGauge()
			if s.IsConnected() && !s.Expired(now) {
				return s, nil
			}
			go r.finish(s)
		}
		s := NewHTTPSession(p, r.cfg, r.logger)
		if err := r.enqueue(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	}

	for {
		s, loaded, _ := r.sessions.GetOrCompute(key, func() (*HTTPSession, error) {
			return NewHTTPSession(p, r.cfg, r.logger), nil
		})
		if !loaded {
			r.updateGauge()
			if err := r.enqueue(ctx, s); err != nil {
				r.remove(key, s)
				return nil, err
			}
			return s, nil
		}
		if s.IsConnected() && !s.Expired(now) {
			return s, nil
		}
		r.remove(key, s)
		go r.finish(s)
	}
}

// enqueue hands the server end of s to AcceptTransport.
func (r *SessionRegistry) enqueue(ctx context.Context, s *HTTPSession) error {
	select {
	case r.accept <- s.Remote():
		return nil
	case <-r.closed:
		_ = s.Close(context.Background())
		return transport.ErrClosed
	case <-ctx.Done():
		_ = s.Close(context.Background())
		return domain.NewTimeoutError("enqueue transport", ctx.Err())
	}
}

func (r *SessionRegistry) remove(key string, s *HTTPSession) bool {
	_, ok := r.sessions.RemoveIf(key, func(cur *HTTPSession) bool { return cur == s })
	if ok {
		r.updateGauge()
	}
	return ok
}

// Remove drops s from the registry if it is still the principal's current
// transport.
func (r *SessionRegistry) Remove(s *HTTPSession) bool {
	return r.remove(principalKey(s.Principal()), s)
}

func (r *SessionRegistry) finish(s *HTTPSession) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.FinishTimeout)
	defer cancel()
	if err := s.Finish(ctx); err != nil {
		r.logger.Debug("finish http session failed", "session_id", s.SessionID(), "error", err)
	}
}

// AcceptTransport blocks until a new server end is available.
func (r *SessionRegistry) AcceptTransport(ctx context.Context) (transport.Transport, error) {
	select {
	case t := <-r.accept:
		return t, nil
	case <-r.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, domain.NewTimeoutError("accept transport", ctx.Err())
	}
}

// Count returns the number of registered transports.
func (r *SessionRegistry) Count() int {
	return r.sessions.Count()
}

// Sweep finishes the transports expired or closed at now and returns how
// many were removed.
func (r *SessionRegistry) Sweep(now time.Time) int {
	type entry struct {
		key string
		s   *HTTPSession
	}
	var stale []entry
	r.sessions.Range(func(key string, s *HTTPSession) bool {
		if s.Expired(now) || !s.IsConnected() {
			stale = append(stale, entry{key, s})
		}
		return true
	})

	removed := 0
	for _, e := range stale {
		if r.remove(e.key, e.s) {
			removed++
			r.finish(e.s)
		}
	}
	if removed > 0 {
		r.logger.Debug("expired http sessions removed", "count", removed)
	}
	return removed
}

// Run sweeps expired transports every interval until ctx is done.
func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			r.Sweep(now)
		case <-ctx.Done():
			return
		case <-r.closed:
			return
		}
	}
}

// Close finishes every registered transport and stops AcceptTransport.
func (r *SessionRegistry) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		close(r.closed)
		var wg sync.WaitGroup
		for _, key := range r.sessions.Keys() {
			s, ok := r.sessions.Pop(key)
			if !ok {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.finish(s)
			}()
		}
		wg.Wait()
		r.updateGauge()
	})
	return nil
}

func (r *SessionRegistry) updateGauge() {
	r.metrics.SetBridgeTransports(r.sessions.Count())
}
