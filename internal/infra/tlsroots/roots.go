package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrNoCertsFound is returned when no certificates are found in a PEM file.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM file")

// LoadPool returns the system roots extended with the certificates in
// caFile. An empty caFile yields the system roots alone.
func LoadPool(caFile string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		// Fall back to empty pool on systems where system certs aren't available
		pool = x509.NewCertPool()
	}
	if caFile == "" {
		return pool, nil
	}

	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("tlsroots: read CA file %s: %w", caFile, err)
	}
	certs, err := ParsePEM(data)
	if err != nil {
		return nil, err
	}
	for _, c := range certs {
		pool.AddCert(c)
	}
	return pool, nil
}

// ParsePEM parses every CERTIFICATE block in data.
func ParsePEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, ErrNoCertsFound
	}
	return certs, nil
}

// ClientConfig returns a TLS configuration for dialing serverName, trusting
// the roots from LoadPool(caFile).
func ClientConfig(caFile, serverName string, insecureSkipVerify bool) (*tls.Config, error) {
	pool, err := LoadPool(caFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		RootCAs:            pool,
		ServerName:         serverName,
		InsecureSkipVerify: insecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}, nil
}
