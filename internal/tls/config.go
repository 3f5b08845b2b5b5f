// Package tls serves the status API over HTTPS, generating a self-signed
// certificate on first use when none has been provided.
package tls

import (
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZerkerEOD/folderport/pkg/debug"
	"github.com/ZerkerEOD/folderport/pkg/env"
)

// Config holds TLS configuration settings for the status API
type Config struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	CertsDir string
	Hosts    []string
}

// NewConfig creates a TLS configuration from FOLDERPORT_STATUS_* variables
func NewConfig() *Config {
	certsDir := env.GetOrDefault("FOLDERPORT_CERTS_DIR", "certs")

	config := &Config{
		Enabled:  env.GetBool("FOLDERPORT_STATUS_TLS"),
		CertsDir: certsDir,
		CertFile: env.GetOrDefault("FOLDERPORT_STATUS_CERT_FILE", filepath.Join(certsDir, "status.crt")),
		KeyFile:  env.GetOrDefault("FOLDERPORT_STATUS_KEY_FILE", filepath.Join(certsDir, "status.key")),
		Hosts:    []string{"localhost", "127.0.0.1", "::1"},
	}
	if config.Enabled {
		debug.Info("Status API TLS enabled (cert: %s, key: %s)", config.CertFile, config.KeyFile)
	}
	return config
}

// LoadTLSConfig returns the server TLS configuration, creating a self-signed
// key pair first if the configured files are missing
func (c *Config) LoadTLSConfig() (*tls.Config, error) {
	if err := c.GenerateCertificates(); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load status certificate and key: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// GenerateCertificates writes a self-signed certificate when the cert or key
// file does not exist yet
func (c *Config) GenerateCertificates() error {
	if checkFileExists(c.CertFile) && checkFileExists(c.KeyFile) {
		debug.Debug("Using existing status certificate %s", c.CertFile)
		return nil
	}

	for _, dir := range []string{filepath.Dir(c.CertFile), filepath.Dir(c.KeyFile)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create certs directory: %w", err)
		}
	}

	debug.Info("Generating self-signed status certificate in %s", filepath.Dir(c.CertFile))
	return writeSelfSigned(c.CertFile, c.KeyFile, c.Hosts)
}

// checkFileExists checks if a file exists and is not a directory
func checkFileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
