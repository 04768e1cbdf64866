// Package domain defines the LIME protocol model shared by every layer.
//
// This package contains:
//
//   - Node: protocol address in the form name@domain/instance
//   - Envelope: the closed set of Message, Notification, Command and Session
//   - Document: media-typed payloads with an explicit constructor registry
//   - Authentication: per-scheme payloads with an explicit constructor registry
//   - Reason: failure codes shared by sessions, notifications and commands
//   - Errors: structured DomainError values and typed channel errors
//
// The package has no IO dependencies. EncodeEnvelope and DecodeEnvelope
// define the JSON form used by every transport.
package domain
