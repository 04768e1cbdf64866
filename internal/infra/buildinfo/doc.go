// Package buildinfo exposes build information for lime-server and lime-cli.
//
// Values are injected at build time:
//
//	go build -ldflags "-X github.com/yndnr/lime-go/internal/infra/buildinfo.Version=v1.0.0 \
//	    -X github.com/yndnr/lime-go/internal/infra/buildinfo.Commit=abc123"
//
// GoVersion falls back to the toolchain recorded in the binary.
package buildinfo
