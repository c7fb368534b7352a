package tls

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	standardtls "crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestGenerateSelfSignedCert(t *testing.T) {
	t.Parallel()

	ss, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert(): %v", err)
	}
	leaf, err := x509.ParseCertificate(ss.Certificate.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	if leaf.Subject.CommonName != "localhost" || leaf.Issuer.CommonName != "localhost" {
		t.Errorf("subject/issuer: got %q/%q, want localhost", leaf.Subject.CommonName, leaf.Issuer.CommonName)
	}
	if !slices.Contains(leaf.DNSNames, "localhost") {
		t.Errorf("DNS SANs %v lack localhost", leaf.DNSNames)
	}
	if !slices.ContainsFunc(leaf.IPAddresses, func(ip net.IP) bool { return ip.Equal(net.IPv4(127, 0, 0, 1)) }) {
		t.Errorf("IP SANs %v lack 127.0.0.1", leaf.IPAddresses)
	}
	if d := leaf.NotAfter.Sub(leaf.NotBefore); d < 364*24*time.Hour || d > 366*24*time.Hour {
		t.Errorf("validity: got %v, want about a year", d)
	}
	if key, ok := leaf.PublicKey.(*ecdsa.PublicKey); !ok || key.Curve != elliptic.P256() {
		t.Errorf("public key: got %T, want ECDSA P-256", leaf.PublicKey)
	}

	block, _ := pem.Decode(ss.CertPEM)
	if block == nil || !bytes.Equal(block.Bytes, leaf.Raw) {
		t.Error("CertPEM does not encode the generated certificate")
	}
}

func TestClientTrustsGeneratedCert(t *testing.T) {
	t.Parallel()

	ss, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert(): %v", err)
	}
	caFile := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(caFile, ss.CertPEM, 0o600); err != nil {
		t.Fatalf("failed to write CA file: %v", err)
	}
	clientCfg, err := ClientConfig("localhost", caFile, false)
	if err != nil {
		t.Fatalf("ClientConfig(): %v", err)
	}

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	errc := make(chan error, 1)
	go func() {
		errc <- standardtls.Server(serverConn, ServerConfig(ss.Certificate)).Handshake()
	}()
	if err := standardtls.Client(clientConn, clientCfg).Handshake(); err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("server handshake: %v", err)
	}
}

func TestServerConfig(t *testing.T) {
	t.Parallel()

	ss, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := ServerConfig(ss.Certificate)
	if len(cfg.Certificates) != 1 {
		t.Errorf("Certificates: got %d, want 1", len(cfg.Certificates))
	}
	if cfg.MinVersion != standardtls.VersionTLS12 {
		t.Errorf("MinVersion: got %d, want TLS 1.2 (%d)", cfg.MinVersion, standardtls.VersionTLS12)
	}
}

func TestClientConfig_SystemRoots(t *testing.T) {
	t.Parallel()

	cfg, err := ClientConfig("mail.example.com", "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServerName != "mail.example.com" {
		t.Errorf("ServerName: got %q, want %q", cfg.ServerName, "mail.example.com")
	}
	if cfg.RootCAs != nil {
		t.Error("RootCAs: expected system roots")
	}
	if cfg.InsecureSkipVerify {
		t.Error("InsecureSkipVerify: got true, want false")
	}
}

func TestClientConfig_CAFile(t *testing.T) {
	t.Parallel()

	ss, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	caFile := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(caFile, ss.CertPEM, 0o600); err != nil {
		t.Fatalf("failed to write CA file: %v", err)
	}

	cfg, err := ClientConfig("localhost", caFile, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RootCAs == nil {
		t.Fatal("RootCAs: expected custom pool")
	}

	leaf, err := x509.ParseCertificate(ss.Certificate.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	if _, err := leaf.Verify(x509.VerifyOptions{Roots: cfg.RootCAs, DNSName: "localhost"}); err != nil {
		t.Errorf("certificate does not verify against CA file: %v", err)
	}
}

func TestClientConfig_CAFileErrors(t *testing.T) {
	t.Parallel()

	if _, err := ClientConfig("localhost", "/nonexistent/ca.pem", false); err == nil {
		t.Error("expected error for nonexistent CA file, got nil")
	}

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := ClientConfig("localhost", garbage, false); err == nil {
		t.Error("expected error for CA file without certificates, got nil")
	}
}
