// Package tcp implements the LIME transport over TCP and TLS.
//
// Envelopes are exchanged as newline-delimited JSON, one envelope per line,
// with each line bounded by transport.MaxEnvelopeSize. URIs use the
// net.tcp://host:port form.
package tcp
