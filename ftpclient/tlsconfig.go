package ftpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/AlfredDev/ftppool/config"
)

// cipherSuiteByName resolves the small set of cipher suite names an
// operator is likely to allowlist. Unknown names are skipped rather than
// rejected outright — TLS negotiation will simply not offer them.
var cipherSuiteByName = func() map[string]uint16 {
	m := make(map[string]uint16)
	for _, c := range tls.CipherSuites() {
		m[c.Name] = c.ID
	}
	for _, c := range tls.InsecureCipherSuites() {
		m[c.Name] = c.ID
	}
	return m
}()

var protocolVersionByName = map[string]uint16{
	"TLSv1.2": tls.VersionTLS12,
	"TLSv1.3": tls.VersionTLS13,
}

// buildTLSConfig constructs the *tls.Config used for implicit/explicit
// TLS control channels, honoring the protocol and cipher allowlists and
// optional trust store from spec §3/§6. This mirrors the
// Certificates/RootCAs/MinVersion shape the reference gateway's mTLS
// helper used for service-to-service TLS, adapted here for the
// client-to-FTP-server posture this pool actually needs.
func buildTLSConfig(cfg *config.Config) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		ServerName:         cfg.Hostname,
		InsecureSkipVerify: !cfg.ValidateServerCert,
	}

	if min := minProtocolVersion(cfg.EnabledProtocols); min != 0 {
		tlsCfg.MinVersion = min
	}

	if len(cfg.EnabledCipherSuites) > 0 {
		suites := make([]uint16, 0, len(cfg.EnabledCipherSuites))
		for _, name := range cfg.EnabledCipherSuites {
			if id, ok := cipherSuiteByName[name]; ok {
				suites = append(suites, id)
			}
		}
		tlsCfg.CipherSuites = suites
	}

	if cfg.TrustStorePath != "" {
		pool, err := loadTrustStore(cfg.TrustStorePath)
		if err != nil {
			return nil, fmt.Errorf("load trust store: %w", err)
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}

func minProtocolVersion(names []string) uint16 {
	var min uint16
	for _, name := range names {
		if v, ok := protocolVersionByName[name]; ok {
			if min == 0 || v < min {
				min = v
			}
		}
	}
	return min
}

// loadTrustStore reads a PEM trust store from disk. SSL trust-store
// parsing for other formats (JKS, PKCS12) is out of scope for this
// package per spec §1 — it is a host-framework collaborator's
// responsibility to hand this package a PEM bundle.
func loadTrustStore(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
