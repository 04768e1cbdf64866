package memory

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/storage"
	"github.com/yndnr/lime-go/pkg/cmap"
)

// Store implements storage.ResourceStore in memory.
type Store struct {
	resources *cmap.Map[*storage.Resource]
	closed    atomic.Bool
}

var _ storage.ResourceStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{resources: cmap.New[*storage.Resource]()}
}

// Get implements storage.ResourceStore.
func (s *Store) Get(_ context.Context, owner, uri string) (*storage.Resource, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	r, ok := s.resources.Get(storage.ResourceKey(owner, uri))
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

// Set implements storage.ResourceStore.
func (s *Store) Set(_ context.Context, owner, uri string, r *storage.Resource) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	if r == nil {
		return domain.NewArgumentError("resource", "must not be nil")
	}
	clone := *r
	s.resources.Set(storage.ResourceKey(owner, uri), &clone)
	return nil
}

// Delete implements storage.ResourceStore.
func (s *Store) Delete(_ context.Context, owner, uri string) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	if _, ok := s.resources.Pop(storage.ResourceKey(owner, uri)); !ok {
		return storage.ErrNotFound
	}
	return nil
}

// List implements storage.ResourceStore.
func (s *Store) List(_ context.Context, owner, prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	scan := storage.OwnerPrefix(owner)
	if prefix != "" {
		scan = storage.ResourceKey(owner, prefix)
	}

	var uris []string
	s.resources.Range(func(key string, _ *storage.Resource) bool {
		if strings.HasPrefix(key, scan) {
			uris = append(uris, storage.URIFromKey(owner, key))
		}
		return true
	})
	sort.Strings(uris)
	return uris, nil
}

// Count returns the number of stored resources.
func (s *Store) Count() int {
	return s.resources.Count()
}

// Close implements storage.ResourceStore.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}
