// Package storage persists command resources for the server node.
//
// Resources are documents addressed by the identity that owns them and a
// resource URI (for example "/greeting"). Three backends implement
// ResourceStore:
//
//   - memory.Store: sharded in-process map, the default
//   - BadgerStore: embedded LSM store with background value-log GC
//   - RedisStore: shared store for several server nodes
//
// All backends store a Resource as JSON and report missing keys with
// ErrNotFound.
package storage
