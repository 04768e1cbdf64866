package httpbridge

import (
	"sync"

	"github.com/yndnr/lime-go/internal/core/domain"
)

// envelopeStore buffers envelopes received by a session in arrival order.
// When full, the oldest envelope is dropped.
type envelopeStore[T domain.Envelope] struct {
	mu      sync.Mutex
	items   []T
	limit   int
	changed chan struct{}
}

func newEnvelopeStore[T domain.Envelope](limit int) *envelopeStore[T] {
	return &envelopeStore[T]{limit: limit, changed: make(chan struct{})}
}

func (s *envelopeStore[T]) add(env T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && len(s.items) >= s.limit {
		s.items = s.items[1:]
	}
	s.items = append(s.items, env)
	close(s.changed)
	s.changed = make(chan struct{})
}

// wait returns a channel closed on the next add.
func (s *envelopeStore[T]) wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *envelopeStore[T]) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.items))
	seen := make(map[string]struct{}, len(s.items))
	for _, env := range s.items {
		id := env.Header().ID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// take removes the most recent envelope with id and every older one
// sharing it.
func (s *envelopeStore[T]) take(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		found T
		ok    bool
	)
	kept := s.items[:0]
	for _, env := range s.items {
		if env.Header().ID == id {
			found, ok = env, true
			continue
		}
		kept = append(kept, env)
	}
	clearTail(s.items, len(kept))
	s.items = kept
	return found, ok
}

// takeFunc removes and returns the first envelope with id accepted by match.
// On success, the other envelopes sharing the id are removed as well.
func (s *envelopeStore[T]) takeFunc(id string, match func(T) bool) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		found T
		ok    bool
	)
	for _, env := range s.items {
		if env.Header().ID == id && match(env) {
			found, ok = env, true
			break
		}
	}
	if !ok {
		return found, false
	}
	kept := s.items[:0]
	for _, env := range s.items {
		if env.Header().ID != id {
			kept = append(kept, env)
		}
	}
	clearTail(s.items, len(kept))
	s.items = kept
	return found, true
}

// pop removes the oldest envelope.
func (s *envelopeStore[T]) pop() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	env := s.items[0]
	s.items[0] = zero
	s.items = s.items[1:]
	return env, true
}

func (s *envelopeStore[T]) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func clearTail[T any](items []T, from int) {
	var zero T
	for i := from; i < len(items); i++ {
		items[i] = zero
	}
}
