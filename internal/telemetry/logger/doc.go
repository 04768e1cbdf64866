// Package logger provides structured logging for lime-go.
//
// It wraps log/slog with a process-wide dynamic level, JSON or text output
// and redaction of credentials (passwords, keys, bearer tokens and plain or
// key authentication payloads). Context helpers carry the logger, request id
// and session id through request and session goroutines.
package logger
