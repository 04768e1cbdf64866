package config

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/telemetry/logger"
)

// Verify validates the configuration and reports every problem found.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyNode(&cfg.Node),
		verifyServer(&cfg.Server),
		verifySession(&cfg.Session),
		verifySecurity(&cfg.Security),
		verifyStorage(&cfg.Storage),
		verifyLog(&cfg.Log),
	)
}

func verifyNode(cfg *NodeSection) error {
	node, err := domain.ParseNode(cfg.Address)
	if err != nil {
		return fmt.Errorf("node.address: %w", err)
	}
	if node.Name == "" || node.Domain == "" {
		return fmt.Errorf("node.address %q must have a name and a domain", cfg.Address)
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if !cfg.TCP.Enabled && !cfg.HTTP.Enabled {
		return errors.New("server: at least one of tcp or http must be enabled")
	}

	var errs []error
	if cfg.TCP.Enabled {
		errs = append(errs, verifyListener("server.tcp", cfg.TCP.Addr, cfg.TCP.TLSCertFile, cfg.TCP.TLSKeyFile))
	}
	if cfg.HTTP.Enabled {
		errs = append(errs, verifyListener("server.http", cfg.HTTP.Addr, cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile))
		if cfg.HTTP.RateLimit < 0 {
			errs = append(errs, errors.New("server.http.rate_limit must not be negative"))
		}
	}
	if cfg.TCP.Enabled && cfg.HTTP.Enabled && cfg.TCP.Addr == cfg.HTTP.Addr {
		errs = append(errs, fmt.Errorf("server: tcp and http share the address %s", cfg.TCP.Addr))
	}
	return errors.Join(errs...)
}

func verifyListener(section, addr, certFile, keyFile string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s.addr %q: %w", section, addr, err)
	}
	if (certFile == "") != (keyFile == "") {
		return fmt.Errorf("%s: tls_cert_file and tls_key_file must be set together", section)
	}
	for _, f := range []string{certFile, keyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("%s: %w", section, err)
		}
	}
	return nil
}

func verifySession(cfg *SessionSection) error {
	if cfg.MaxAuthRoundtrips < 1 {
		return errors.New("session.max_auth_roundtrips must be at least 1")
	}
	for _, c := range cfg.Compression {
		switch domain.SessionCompression(c) {
		case domain.CompressionNone, domain.CompressionGzip:
		default:
			return fmt.Errorf("session.compression: unknown option %q", c)
		}
	}
	for _, e := range cfg.Encryption {
		switch domain.SessionEncryption(e) {
		case domain.EncryptionNone, domain.EncryptionTLS:
		default:
			return fmt.Errorf("session.encryption: unknown option %q", e)
		}
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if len(cfg.Schemes) == 0 {
		return errors.New("security.schemes must not be empty")
	}
	for _, s := range cfg.Schemes {
		if _, err := domain.DecodeAuthentication(domain.AuthenticationScheme(s), nil); err != nil {
			return fmt.Errorf("security.schemes: %w", err)
		}
	}
	for identity := range cfg.Users {
		if _, err := domain.ParseNode(identity); err != nil {
			return fmt.Errorf("security.users: %w", err)
		}
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Type {
	case StorageMemory:
		return nil
	case StorageBadger:
		if cfg.Badger.Dir == "" {
			return errors.New("storage.badger.dir is required")
		}
		if err := os.MkdirAll(cfg.Badger.Dir, 0750); err != nil {
			return errors.New("cannot create data directory: " + err.Error())
		}
		return nil
	case StorageRedis:
		if cfg.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required")
		}
		return nil
	default:
		return fmt.Errorf("storage.type: unknown type %q", cfg.Type)
	}
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Format)
	}
}
