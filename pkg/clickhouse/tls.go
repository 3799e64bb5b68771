package clickhouse

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/pkg/errors"
)

// Enabled reports whether a client certificate is configured.
func (s TLSSettings) Enabled() bool {
	return s.CertFile != "" && s.KeyFile != ""
}

// GetTLSConfig creates a TLS config for connecting to ClickHouse over mTLS.
// The CA file is optional; without it the system roots are used.
//
// Example usage:
//
//	tlsConfig, err := clickhouse.GetTLSConfig(settings)
//	if err != nil {
//		return err
//	}
func GetTLSConfig(settings TLSSettings) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(settings.CertFile, settings.KeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load certfile/keyfile")
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if settings.CAFile == "" {
		return cfg, nil
	}

	caCert, err := os.ReadFile(settings.CAFile)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load cafile")
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.Errorf("no certificates found in cafile: %s", settings.CAFile)
	}
	cfg.RootCAs = pool

	return cfg, nil
}
