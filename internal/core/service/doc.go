// Package service implements the server node of a LIME deployment.
//
// Router accepts transports from any transport.Listener, drives each
// session through negotiation, authentication and establishment, and then
// routes messages, notifications and commands between the connected nodes.
// Authenticator validates guest, plain and transport credentials. Commands
// addressed to the server are executed against a storage.ResourceStore.
package service
