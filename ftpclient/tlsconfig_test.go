package ftpclient

import (
	"crypto/tls"
	"testing"

	"github.com/AlfredDev/ftppool/config"
)

func TestBuildTLSConfigDefaults(t *testing.T) {
	cfg := &config.Config{Hostname: "ftp.example.com", ValidateServerCert: true}
	tlsCfg, err := buildTLSConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tlsCfg.ServerName != "ftp.example.com" {
		t.Fatalf("expected ServerName set from hostname, got %q", tlsCfg.ServerName)
	}
	if tlsCfg.InsecureSkipVerify {
		t.Fatalf("expected InsecureSkipVerify=false when ValidateServerCert=true")
	}
}

func TestBuildTLSConfigSkipVerifyWhenValidationDisabled(t *testing.T) {
	cfg := &config.Config{Hostname: "ftp.example.com", ValidateServerCert: false}
	tlsCfg, err := buildTLSConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tlsCfg.InsecureSkipVerify {
		t.Fatalf("expected InsecureSkipVerify=true when ValidateServerCert=false")
	}
}

func TestBuildTLSConfigMinVersionPicksLowestAllowlisted(t *testing.T) {
	cfg := &config.Config{
		Hostname:         "ftp.example.com",
		EnabledProtocols: []string{"TLSv1.3", "TLSv1.2"},
	}
	tlsCfg, err := buildTLSConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tlsCfg.MinVersion != tls.VersionTLS12 {
		t.Fatalf("expected MinVersion TLS1.2, got %x", tlsCfg.MinVersion)
	}
}

func TestBuildTLSConfigUnknownTrustStorePathErrors(t *testing.T) {
	cfg := &config.Config{Hostname: "ftp.example.com", TrustStorePath: "/nonexistent/path.pem"}
	if _, err := buildTLSConfig(cfg); err == nil {
		t.Fatalf("expected error loading nonexistent trust store")
	}
}

func TestBuildTLSConfigFiltersUnknownCipherNames(t *testing.T) {
	cfg := &config.Config{
		Hostname:            "ftp.example.com",
		EnabledCipherSuites: []string{"NOT_A_REAL_CIPHER"},
	}
	tlsCfg, err := buildTLSConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tlsCfg.CipherSuites) != 0 {
		t.Fatalf("expected unknown cipher names to be dropped, got %v", tlsCfg.CipherSuites)
	}
}
