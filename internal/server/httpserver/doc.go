// Package httpserver is the net/http front end of the HTTP bridge.
//
// Server implements httpbridge.Server: every request reaching the bridge
// endpoint is authenticated into a principal, queued for AcceptRequest and
// answered when the bridge submits the response with the same correlator
// id. The same mux serves /health and /metrics.
//
// Principals come from HTTP Basic credentials (plain scheme) or from a
// bearer JWT verified with an HMAC secret or a JWKS endpoint (transport
// scheme).
package httpserver
