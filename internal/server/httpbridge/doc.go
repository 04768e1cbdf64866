// Package httpbridge exposes LIME sessions to plain HTTP clients.
//
// Each HTTP principal is mapped to a session transport (HTTPSession) that
// authenticates against the server node on first use and is reused by later
// requests until it expires or the client sends "X-Session: Close". Requests
// are dispatched to processors matched by method and URI template; the
// built-in processors send messages and notifications, expose the envelopes
// received by the session and run resource commands.
//
// Bridge implements transport.Listener: the server end of every session
// transport is handed to the node through AcceptConnection.
package httpbridge
