package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// selfSignedCert builds a throwaway self-signed certificate for tests
// that need real PEM material, standing in for whatever CA an operator
// would otherwise supply.
func selfSignedCert(t *testing.T, commonName string) (*tls.Certificate, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing certificate: %v", err)
	}
	return &tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, leaf
}

func TestSaveLoadCertToFile(t *testing.T) {
	cert, _ := selfSignedCert(t, "worker-test-node")
	tmpCertDir := t.TempDir()

	if err := SaveCertToFile(cert, tmpCertDir); err != nil {
		t.Fatalf("SaveCertToFile: %v", err)
	}

	certPath := filepath.Join(tmpCertDir, "node.crt")
	keyPath := filepath.Join(tmpCertDir, "node.key")
	if _, err := os.Stat(certPath); os.IsNotExist(err) {
		t.Error("certificate file should exist")
	}
	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		t.Error("key file should exist")
	}

	loaded, err := LoadCertFromFile(tmpCertDir)
	if err != nil {
		t.Fatalf("LoadCertFromFile: %v", err)
	}
	if loaded.Leaf.Subject.CommonName != cert.Leaf.Subject.CommonName {
		t.Errorf("loaded CN = %s, want %s", loaded.Leaf.Subject.CommonName, cert.Leaf.Subject.CommonName)
	}
}

func TestSaveLoadCACertToFile(t *testing.T) {
	_, leaf := selfSignedCert(t, "root")
	tmpCertDir := t.TempDir()

	if err := SaveCACertToFile(leaf.Raw, tmpCertDir); err != nil {
		t.Fatalf("SaveCACertToFile: %v", err)
	}

	caPath := filepath.Join(tmpCertDir, "ca.crt")
	if _, err := os.Stat(caPath); os.IsNotExist(err) {
		t.Error("CA certificate file should exist")
	}

	loaded, err := LoadCACertFromFile(tmpCertDir)
	if err != nil {
		t.Fatalf("LoadCACertFromFile: %v", err)
	}
	if !loaded.Equal(leaf) {
		t.Error("loaded CA cert should match original")
	}
}

func TestCertExists(t *testing.T) {
	tmpDir := t.TempDir()

	if CertExists(tmpDir) {
		t.Error("certificate should not exist initially")
	}

	_ = os.WriteFile(filepath.Join(tmpDir, "node.crt"), []byte("cert"), 0600)
	_ = os.WriteFile(filepath.Join(tmpDir, "node.key"), []byte("key"), 0600)
	_ = os.WriteFile(filepath.Join(tmpDir, "ca.crt"), []byte("ca"), 0600)

	if !CertExists(tmpDir) {
		t.Error("certificate should exist after creating files")
	}

	os.Remove(filepath.Join(tmpDir, "node.key"))
	if CertExists(tmpDir) {
		t.Error("certificate should not exist with missing key file")
	}
}

func TestCertNeedsRotation(t *testing.T) {
	tests := []struct {
		name     string
		notAfter time.Time
		want     bool
	}{
		{"expiring in 1 day", time.Now().Add(24 * time.Hour), true},
		{"expiring in 29 days", time.Now().Add(29 * 24 * time.Hour), true},
		{"expiring in 31 days", time.Now().Add(31 * 24 * time.Hour), false},
		{"expiring in 60 days", time.Now().Add(60 * 24 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := &x509.Certificate{NotAfter: tt.notAfter}
			if got := CertNeedsRotation(cert); got != tt.want {
				t.Errorf("CertNeedsRotation() = %v, want %v", got, tt.want)
			}
		})
	}
	if !CertNeedsRotation(nil) {
		t.Error("nil certificate should need rotation")
	}
}

func TestGetCertExpiry(t *testing.T) {
	expected := time.Now().Add(90 * 24 * time.Hour)
	cert := &x509.Certificate{NotAfter: expected}
	if got := GetCertExpiry(cert); !got.Equal(expected) {
		t.Errorf("GetCertExpiry() = %v, want %v", got, expected)
	}
	if !GetCertExpiry(nil).IsZero() {
		t.Error("nil certificate should return zero time")
	}
}

func TestGetCertTimeRemaining(t *testing.T) {
	expected := 45 * 24 * time.Hour
	cert := &x509.Certificate{NotAfter: time.Now().Add(expected)}
	remaining := GetCertTimeRemaining(cert)
	if diff := remaining - expected; diff < -time.Second || diff > time.Second {
		t.Errorf("GetCertTimeRemaining() = %v, want ~%v", remaining, expected)
	}
	if GetCertTimeRemaining(nil) != 0 {
		t.Error("nil certificate should return zero duration")
	}
}

func TestValidateCertChain(t *testing.T) {
	_, ca := selfSignedCert(t, "ca")
	cert, leaf := selfSignedCert(t, "worker-test-node")
	_ = cert

	if err := ValidateCertChain(leaf, ca); err == nil {
		t.Error("expected validation to fail: leaf is not signed by a distinct ca")
	}
	if err := ValidateCertChain(nil, ca); err == nil {
		t.Error("validation should fail with nil certificate")
	}
	if err := ValidateCertChain(leaf, nil); err == nil {
		t.Error("validation should fail with nil CA")
	}
}

func TestGetCertInfo(t *testing.T) {
	_, leaf := selfSignedCert(t, "worker-test-node")

	info := GetCertInfo(leaf)
	if info["subject"] != "worker-test-node" {
		t.Errorf("subject = %v, want worker-test-node", info["subject"])
	}
	if info["is_ca"] != false {
		t.Error("node certificate should not be a CA")
	}

	nilInfo := GetCertInfo(nil)
	if _, hasError := nilInfo["error"]; !hasError {
		t.Error("info for nil certificate should contain error")
	}
}

func TestGetCertDir(t *testing.T) {
	tests := []struct{ nodeType, nodeID string }{
		{"master", "node1"},
		{"worker", "node2"},
	}
	for _, tt := range tests {
		t.Run(tt.nodeType+"-"+tt.nodeID, func(t *testing.T) {
			certDir, err := GetCertDir(tt.nodeType, tt.nodeID)
			if err != nil {
				t.Fatalf("GetCertDir: %v", err)
			}
			expected := tt.nodeType + "-" + tt.nodeID
			if filepath.Base(certDir) != expected {
				t.Errorf("cert dir = %s, want suffix %s", certDir, expected)
			}
		})
	}
}

func TestGetCLICertDir(t *testing.T) {
	certDir, err := GetCLICertDir()
	if err != nil {
		t.Fatalf("GetCLICertDir: %v", err)
	}
	if filepath.Base(certDir) != "cli" {
		t.Errorf("cert dir = %s, want suffix cli", certDir)
	}
}

func TestRemoveCerts(t *testing.T) {
	tmpDir := t.TempDir()
	_ = os.WriteFile(filepath.Join(tmpDir, "node.crt"), []byte("cert"), 0600)
	_ = os.WriteFile(filepath.Join(tmpDir, "node.key"), []byte("key"), 0600)

	if err := RemoveCerts(tmpDir); err != nil {
		t.Fatalf("RemoveCerts: %v", err)
	}
	if _, err := os.Stat(tmpDir); !os.IsNotExist(err) {
		t.Error("certificate directory should not exist after removal")
	}
}
