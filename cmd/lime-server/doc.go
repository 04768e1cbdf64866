// Package main provides the entry point for lime-server.
//
// The server is a LIME node that accepts sessions and routes envelopes
// between the connected clients:
//
//   - TCP transport (net.tcp, optionally TLS) with newline-delimited JSON
//   - HTTP bridge mapping REST requests onto sessions
//   - per-identity resource storage (memory, badger or redis)
//   - Prometheus metrics and health checks on the HTTP listener
//
// Usage:
//
//	lime-server [flags]
//	lime-server --config /etc/lime/server.yaml
//	lime-server hash-password
package main
