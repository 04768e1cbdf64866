// Package connection opens and manages lime-cli's session with a server.
//
//   - session.go: Connect (dial, establish, authenticate) and the session
//     helpers used by the commands
//   - manager.go: lazily connected session shared by the commands of one run
package connection
