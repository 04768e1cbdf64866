// Package config holds lime-cli's local settings (~/.lime/cli.yaml):
// named connection profiles, the current profile and output preferences.
// Passwords are never written to disk; supply them with --password or
// LIME_PASSWORD.
package config
