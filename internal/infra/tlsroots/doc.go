// Package tlsroots manages the TLS material of lime-server and lime-cli.
//
//   - roots.go: trusted roots (system pool plus an optional CA file) and
//     client configurations for dialing TLS endpoints
//   - certificate.go: a server certificate that is reloaded when its files
//     change, served through tls.Config.GetCertificate
package tlsroots
