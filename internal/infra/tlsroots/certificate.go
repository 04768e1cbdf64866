package tlsroots

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Certificate is a server key pair that follows its files on disk.
type Certificate struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	debounce time.Duration

	mu   sync.RWMutex
	cert *tls.Certificate
}

// CertificateOption configures a Certificate.
type CertificateOption func(*Certificate)

// WithLogger sets the logger for reload events.
func WithLogger(logger *slog.Logger) CertificateOption {
	return func(c *Certificate) {
		c.logger = logger
	}
}

// WithDebounce sets the quiet period before a changed pair is reloaded
// (default 500ms).
func WithDebounce(d time.Duration) CertificateOption {
	return func(c *Certificate) {
		c.debounce = d
	}
}

// LoadCertificate loads the key pair.
func LoadCertificate(certFile, keyFile string, opts ...CertificateOption) (*Certificate, error) {
	c := &Certificate{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		debounce: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.Reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}
	return c, nil
}

// Reload reads the key pair again. On failure the previous pair stays in
// use.
func (c *Certificate) Reload() error {
	cert, err := tls.LoadX509KeyPair(c.certFile, c.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	if cert.Leaf == nil && len(cert.Certificate) > 0 {
		if leaf, err := x509.ParseCertificate(cert.Certificate[0]); err == nil {
			cert.Leaf = leaf
		}
	}

	c.mu.Lock()
	c.cert = &cert
	c.mu.Unlock()

	attrs := []any{"cert_file", c.certFile}
	if cert.Leaf != nil {
		attrs = append(attrs, "expires_at", cert.Leaf.NotAfter)
	}
	c.logger.Info("certificate loaded", attrs...)
	return nil
}

// GetCertificate returns the current certificate.
// This implements tls.Config.GetCertificate.
func (c *Certificate) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cert, nil
}

// ServerConfig returns a TLS configuration serving the current certificate.
func (c *Certificate) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: c.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// Watch reloads the pair whenever either file changes, until ctx is done.
func (c *Certificate) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	defer watcher.Close()

	// Directories are watched so that renames into place are seen.
	dirs := map[string]struct{}{filepath.Dir(c.certFile): {}, filepath.Dir(c.keyFile): {}}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("tlsroots: watch dir %s: %w", dir, err)
		}
	}
	watched := map[string]struct{}{filepath.Clean(c.certFile): {}, filepath.Clean(c.keyFile): {}}

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if _, ok := watched[filepath.Clean(event.Name)]; !ok {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(c.debounce, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(c.debounce)
			}

		case <-reload:
			if err := c.Reload(); err != nil {
				c.logger.Error("certificate reload failed", "error", err, "cert_file", c.certFile, "key_file", c.keyFile)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Error("certificate watcher error", "error", err, "cert_file", c.certFile)

		case <-ctx.Done():
			return nil
		}
	}
}
