// Package token generates random identifiers and fingerprints secrets.
//
// Fingerprints let credentials serve as map keys without being kept in
// clear: the HTTP bridge keys session transports by the hash of the
// principal's password or bearer token.
package token
