// Package tlsutil builds client TLS settings for HTTPS sinks.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/c360/sensorrelay/errors"
)

// ClientConfig holds TLS configuration for the HTTP sink client.
// The system CA bundle is always used; CAFiles are additional trusted CAs.
type ClientConfig struct {
	CAFiles            []string `json:"caFiles,omitempty"            yaml:"caFiles,omitempty"`
	CertFile           string   `json:"certFile,omitempty"           yaml:"certFile,omitempty"` // client certificate for mTLS
	KeyFile            string   `json:"keyFile,omitempty"            yaml:"keyFile,omitempty"`
	InsecureSkipVerify bool     `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"` // DEV/TEST ONLY
	MinVersion         string   `json:"minVersion,omitempty"         yaml:"minVersion,omitempty"`       // "1.2" (default) or "1.3"
}

// IsZero reports whether nothing is configured, in which case the default
// transport settings apply.
func (c ClientConfig) IsZero() bool {
	return len(c.CAFiles) == 0 && c.CertFile == "" && c.KeyFile == "" &&
		!c.InsecureSkipVerify && c.MinVersion == ""
}

// Validate checks the settings without touching the filesystem
func (c ClientConfig) Validate() error {
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("tls: certFile and keyFile must be set together")
	}
	switch c.MinVersion {
	case "", "1.2", "1.3":
	default:
		return fmt.Errorf("tls: unsupported minVersion %q", c.MinVersion)
	}
	return nil
}

// LoadClientTLSConfig creates a tls.Config for the sink client
func LoadClientTLSConfig(cfg ClientConfig) (*tls.Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "tlsutil", "LoadClientTLSConfig", "validate config")
	}

	tlsConfig := &tls.Config{
		MinVersion: parseTLSVersion(cfg.MinVersion),
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}

	for _, caFile := range cfg.CAFiles {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", fmt.Sprintf("read CA file %s", caFile))
		}
		if !rootCAs.AppendCertsFromPEM(caPEM) {
			return nil, errors.WrapFatal(
				fmt.Errorf("invalid PEM data"),
				"tlsutil",
				"LoadClientTLSConfig",
				fmt.Sprintf("parse CA certificate from %s", caFile),
			)
		}
	}
	tlsConfig.RootCAs = rootCAs

	if cfg.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	if cfg.CertFile != "" {
		clientCert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
	}

	return tlsConfig, nil
}

func parseTLSVersion(version string) uint16 {
	switch version {
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}
