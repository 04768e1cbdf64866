// Package transport defines the envelope transport abstractions and the
// shared building blocks used by concrete transports.
//
// A Transport is an ordered, bidirectional envelope stream owned by exactly
// one channel. A Listener produces server-side transports. A SessionTransport
// is a transport whose session lifecycle is driven by its owner (the HTTP
// bridge) rather than by the remote peer.
//
// Pipe returns a connected in-memory pair, used by the HTTP bridge to attach
// virtual sessions to the server stack and by tests.
package transport
