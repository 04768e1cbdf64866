package cmap

import (
	"hash/maphash"
	"sync"
)

// shardCount is a power of two so a mask selects the shard.
const shardCount = 16

// Map is a concurrent map keyed by string.
type Map[V any] struct {
	seed   maphash.Seed
	shards [shardCount]shard[V]
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// New creates an empty map.
func New[V any]() *Map[V] {
	m := &Map[V]{seed: maphash.MakeSeed()}
	for i := range m.shards {
		m.shards[i].items = make(map[string]V)
	}
	return m
}

func (m *Map[V]) shardOf(key string) *shard[V] {
	return &m.shards[maphash.String(m.seed, key)&(shardCount-1)]
}

// Get returns the value of key.
func (m *Map[V]) Get(key string) (V, bool) {
	s := m.shardOf(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (m *Map[V]) Set(key string, value V) {
	s := m.shardOf(key)
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
}

// Delete removes key.
func (m *Map[V]) Delete(key string) {
	s := m.shardOf(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Pop removes key and returns the value it held.
func (m *Map[V]) Pop(key string) (V, bool) {
	s := m.shardOf(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	return v, ok
}

// GetOrCompute returns the value of key, calling create under the shard
// lock to build and store it when absent, so create runs at most once per
// absent key. existed reports whether the value was already there. A
// create error stores nothing.
func (m *Map[V]) GetOrCompute(key string, create func() (V, error)) (value V, existed bool, err error) {
	s := m.shardOf(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.items[key]; ok {
		return v, true, nil
	}
	if value, err = create(); err != nil {
		var zero V
		return zero, false, err
	}
	s.items[key] = value
	return value, false, nil
}

// RemoveIf deletes key when pred accepts its current value and returns
// the removed value.
func (m *Map[V]) RemoveIf(key string, pred func(V) bool) (V, bool) {
	s := m.shardOf(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if !ok || !pred(v) {
		var zero V
		return zero, false
	}
	delete(s.items, key)
	return v, true
}

// Count returns the number of entries.
func (m *Map[V]) Count() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for each entry until it returns false. Shards are locked
// one at a time, so the view is not a snapshot; fn must not modify m.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Keys returns the keys in no particular order.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0, m.Count())
	m.Range(func(k string, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}
