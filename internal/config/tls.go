package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// IdentityTLS builds a *tls.Config for the identity provider client.
// Returns nil, nil if no CA or client cert is configured (system roots).
func (c *Config) IdentityTLS() (*tls.Config, error) {
	if c.IdentityTLSCACert == "" && c.IdentityTLSCert == "" && c.IdentityTLSServerName == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if c.IdentityTLSCert != "" || c.IdentityTLSKey != "" {
		cert, err := tls.LoadX509KeyPair(c.IdentityTLSCert, c.IdentityTLSKey)
		if err != nil {
			return nil, fmt.Errorf("load identity client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if c.IdentityTLSCACert != "" {
		caPEM, err := os.ReadFile(c.IdentityTLSCACert)
		if err != nil {
			return nil, fmt.Errorf("read identity CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse identity CA cert")
		}
		tlsConfig.RootCAs = pool
	}

	if c.IdentityTLSServerName != "" {
		tlsConfig.ServerName = c.IdentityTLSServerName
	}

	return tlsConfig, nil
}
