// Package cmap provides a string-keyed concurrent map split into shards,
// each guarded by its own RWMutex.
//
// Besides Get/Set/Delete the map offers the atomic compound operations the
// node and session registries rely on:
//
//   - GetOrCompute: build a value exactly once for an absent key
//   - RemoveIf: remove only while the stored value still matches
//   - Pop: remove and return
//
// Usage:
//
//	m := cmap.New[*Session]()
//	s, existed, err := m.GetOrCompute(key, newSession)
//	m.RemoveIf(key, func(v *Session) bool { return v == s })
package cmap
