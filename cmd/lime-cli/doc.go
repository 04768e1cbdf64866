// Package main provides the entry point for lime-cli.
//
// The CLI opens a LIME session to a server and offers:
//
//   - send, listen: exchange messages and notifications
//   - get, set, delete: manage resources through commands
//   - chat: an interactive session
//   - schema: JSON schemas of the envelope kinds
//   - config: connection profiles
//
// Usage:
//
//	lime-cli [global flags] command [flags] [args]
//	lime-cli -i alice@lime.local -p secret send --to bob@lime.local hello
//	lime-cli -o json get /presence
package main
