// Package cert issues a local CA and a server certificate for the boot-side
// gRPC listener when none are supplied.
package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	caValidity     = 10 * 365 * 24 * time.Hour
	serverValidity = 365 * 24 * time.Hour
)

type Paths struct {
	CACert     string
	CAKey      string
	ServerCert string
	ServerKey  string
}

// Ensure creates any missing files under p. Existing files are left alone;
// a missing server pair is signed by the existing CA.
func Ensure(p Paths, domainNames []string, ipAddresses []net.IP) error {
	if len(domainNames) == 0 {
		domainNames = []string{"localhost"}
	}
	if len(ipAddresses) == 0 {
		ipAddresses = []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")}
	}

	var caCert *x509.Certificate
	var caKey *ecdsa.PrivateKey
	var err error

	if fileExists(p.CACert) && fileExists(p.CAKey) {
		caCert, caKey, err = loadPair(p.CACert, p.CAKey)
		if err != nil {
			return fmt.Errorf("failed to load CA: %w", err)
		}
		slog.Debug("Using existing CA certificate", "cert_path", p.CACert)
	} else {
		caCert, caKey, err = issue(&x509.Certificate{
			Subject:               pkix.Name{CommonName: "netboot CA", Organization: []string{"netboot"}},
			NotAfter:              time.Now().Add(caValidity),
			KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
			BasicConstraintsValid: true,
			IsCA:                  true,
		}, nil, nil)
		if err != nil {
			return fmt.Errorf("failed to generate CA: %w", err)
		}
		if err := writePair(caCert, caKey, p.CACert, p.CAKey); err != nil {
			return err
		}
		slog.Info("Generated CA certificate", "cert_path", p.CACert)
	}

	if fileExists(p.ServerCert) && fileExists(p.ServerKey) {
		slog.Debug("Using existing server certificate", "cert_path", p.ServerCert)
		return nil
	}

	serverCert, serverKey, err := issue(&x509.Certificate{
		Subject:     pkix.Name{CommonName: domainNames[0], Organization: []string{"netboot"}},
		NotAfter:    time.Now().Add(serverValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    domainNames,
		IPAddresses: ipAddresses,
	}, caCert, caKey)
	if err != nil {
		return fmt.Errorf("failed to generate server certificate: %w", err)
	}
	if err := writePair(serverCert, serverKey, p.ServerCert, p.ServerKey); err != nil {
		return err
	}
	slog.Info("Generated server certificate", "cert_path", p.ServerCert, "domains", domainNames)
	return nil
}

// issue self-signs template when parent is nil.
func issue(template, parent *x509.Certificate, parentKey *ecdsa.PrivateKey) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	template.SerialNumber = serial
	template.NotBefore = time.Now().Add(-time.Minute)

	if parent == nil {
		parent, parentKey = template, key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, parentKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, key, nil
}

func loadPair(certPath, keyPath string) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, nil, errors.New("invalid certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read key: %w", err)
	}
	block, _ = pem.Decode(keyPEM)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		return nil, nil, errors.New("invalid key PEM")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse key: %w", err)
	}
	return cert, key, nil
}

func writePair(cert *x509.Certificate, key *ecdsa.PrivateKey, certPath, keyPath string) error {
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}
	if err := writePEM(certPath, "CERTIFICATE", cert.Raw, 0o644); err != nil {
		return err
	}
	return writePEM(keyPath, "EC PRIVATE KEY", keyDER, 0o600)
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
