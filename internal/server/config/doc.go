// Package config provides the lime-server configuration.
//
// This package defines the configuration structure and its validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (addresses, schemes, storage)
//   - sanitize.go: Log sanitization (hide sensitive values)
//
// Configuration is loaded via internal/infra/confloader from a YAML or
// TOML file and LIME_ environment variables.
package config
