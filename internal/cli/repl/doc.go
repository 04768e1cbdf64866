// Package repl provides the interactive chat mode of lime-cli.
//
//   - repl.go: read loop, dispatch to registered handlers, async printing
//   - completer.go: prefix completion over the registered commands
//   - history.go: command history persisted between runs
package repl
