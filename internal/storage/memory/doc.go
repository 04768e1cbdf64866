// Package memory provides the in-process resource store.
//
// Resources live in a sharded concurrent map keyed by owner and URI and are
// lost when the process exits.
package memory
