package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/yndnr/lime-go/internal/cli/output"
)

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".lime", "cli.yaml")
	}
	return filepath.Join(homeDir, ".lime", "cli.yaml")
}

// Load loads CLI configuration from file. A missing file yields Default().
func Load(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	return cfg, nil
}

// Save writes the configuration with owner-only permissions.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks enumerated settings and profile references.
func Validate(cfg *CLIConfig) error {
	var errs []error
	if _, err := output.ParseFormat(cfg.DefaultOutput); err != nil {
		errs = append(errs, fmt.Errorf("default_output: %w", err))
	}
	switch output.ColorMode(cfg.Color) {
	case "", output.ColorAuto, output.ColorAlways, output.ColorNever:
	default:
		errs = append(errs, fmt.Errorf("color: unknown mode %q", cfg.Color))
	}
	if cfg.CurrentProfile != "" {
		if _, ok := cfg.Profiles[cfg.CurrentProfile]; !ok {
			errs = append(errs, fmt.Errorf("current_profile: no profile named %q", cfg.CurrentProfile))
		}
	}
	for name, p := range cfg.Profiles {
		if p.Server == "" {
			errs = append(errs, fmt.Errorf("profiles.%s.server: required", name))
		}
	}
	return errors.Join(errs...)
}

// Merge overlays non-empty flag values on the active profile. Keys are
// server, identity, instance, ca_file; tls and insecure are set when their
// value is "true".
func Merge(cfg *CLIConfig, flags map[string]string) Profile {
	p := cfg.Current()
	for key, value := range flags {
		if value == "" {
			continue
		}
		switch key {
		case "server":
			p.Server = value
		case "identity":
			p.Identity = value
		case "instance":
			p.Instance = value
		case "ca_file":
			p.CAFile = value
		case "tls":
			p.TLS = value == "true"
		case "insecure":
			p.Insecure = value == "true"
		}
	}
	return p
}
