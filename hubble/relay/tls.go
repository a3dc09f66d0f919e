package relay

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"
)

// ALPN identifies the relay protocol during the QUIC handshake.
const ALPN = "hubble-relay/1"

// DefaultCertValidity is the lifetime of generated collector certificates.
const DefaultCertValidity = 10 * 365 * 24 * time.Hour

var (
	ErrNoCertificate       = errors.New("relay: collector needs a certificate")
	ErrNoFingerprint       = errors.New("relay: gateway needs the collector certificate fingerprint")
	ErrInvalidFingerprint  = errors.New("relay: invalid certificate fingerprint")
	ErrFingerprintMismatch = errors.New("relay: collector certificate does not match pinned fingerprint")
)

// Fingerprint is the SHA-256 digest of a DER certificate. Gateways pin
// the collector by it instead of trusting a CA.
type Fingerprint [sha256.Size]byte

// FingerprintOf returns the fingerprint of a DER-encoded certificate.
func FingerprintOf(der []byte) Fingerprint { return sha256.Sum256(der) }

// CertificateFingerprint returns the fingerprint of cert's leaf.
func CertificateFingerprint(cert tls.Certificate) (Fingerprint, error) {
	if len(cert.Certificate) == 0 {
		return Fingerprint{}, ErrNoCertificate
	}
	return FingerprintOf(cert.Certificate[0]), nil
}

// ParseFingerprint accepts 64 hex digits, optionally separated by colons.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	raw, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(s), ":", ""))
	if err != nil || len(raw) != len(fp) {
		return fp, fmt.Errorf("%w: %q", ErrInvalidFingerprint, s)
	}
	copy(fp[:], raw)
	return fp, nil
}

func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// IsZero reports whether f is unset.
func (f Fingerprint) IsZero() bool { return f == Fingerprint{} }

// GenerateCertificate creates a self-signed ed25519 collector certificate
// and returns it PEM encoded.
func GenerateCertificate(validFor time.Duration) (certPEM, keyPEM []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, nil, err
	}
	now := time.Now()
	tpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "hubble-collector"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tpl, &tpl, pub, priv)
	if err != nil {
		return nil, nil, err
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

// NewCertificate generates an in-memory collector certificate.
func NewCertificate(validFor time.Duration) (tls.Certificate, error) {
	certPEM, keyPEM, err := GenerateCertificate(validFor)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

// LoadOrCreateCertificate loads the collector certificate from certPath
// and keyPath, generating and writing both on first use so the
// fingerprint stays stable across restarts.
func LoadOrCreateCertificate(certPath, keyPath string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err == nil {
		return cert, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return tls.Certificate{}, err
	}
	if _, serr := os.Stat(certPath); serr == nil {
		return tls.Certificate{}, fmt.Errorf("relay: %s exists but %s is missing", certPath, keyPath)
	}
	certPEM, keyPEM, err := GenerateCertificate(DefaultCertValidity)
	if err != nil {
		return tls.Certificate{}, err
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return tls.Certificate{}, err
	}
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

func serverTLSConfig(cert tls.Certificate) (*tls.Config, error) {
	if len(cert.Certificate) == 0 {
		return nil, ErrNoCertificate
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		NextProtos:   []string{ALPN},
	}, nil
}

// clientTLSConfig skips CA chain checks and instead requires the leaf to
// match pin, so the token in the hello only reaches the pinned collector.
func clientTLSConfig(pin Fingerprint) (*tls.Config, error) {
	if pin.IsZero() {
		return nil, ErrNoFingerprint
	}
	return &tls.Config{
		MinVersion:            tls.VersionTLS13,
		NextProtos:            []string{ALPN},
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: pinnedVerifier(pin),
	}, nil
}

func pinnedVerifier(pin Fingerprint) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return ErrFingerprintMismatch
		}
		got := FingerprintOf(rawCerts[0])
		if subtle.ConstantTimeCompare(got[:], pin[:]) != 1 {
			return ErrFingerprintMismatch
		}
		cert, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return err
		}
		if now := time.Now(); now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
			return errors.New("relay: collector certificate expired or not yet valid")
		}
		return nil
	}
}
