package network

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const (
	// alpnProtocol is the ALPN identifier of the transaction ingress.
	alpnProtocol = "bazaar-tx/1"

	// certValidity is the lifetime of a generated certificate.
	certValidity = 365 * 24 * time.Hour
)

// ErrServerKeyMismatch is returned when a node presents a key other than the pinned one.
var ErrServerKeyMismatch = errors.New("server key mismatch")

// generateCertificate creates a self-signed X.509 certificate from an ed25519 key.
// The certificate is only a carrier for the public key; peers never check the chain.
func generateCertificate(privateKey ed25519.PrivateKey) (tls.Certificate, error) {
	publicKey := privateKey.Public().(ed25519.PublicKey)

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate serial number:\n%w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{CommonName: fmt.Sprintf("bazaar-%x", publicKey[:8])},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, publicKey, privateKey)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate:\n%w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("marshal private key:\n%w", err)
	}

	return tls.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
	)
}

// extractPublicKey extracts the ed25519 public key from the peer's certificate.
func extractPublicKey(state tls.ConnectionState) (ed25519.PublicKey, error) {
	if len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("no peer certificate")
	}

	pubKey, ok := state.PeerCertificates[0].PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("peer certificate does not contain ed25519 key")
	}

	return pubKey, nil
}

// serverTLS builds the listener's TLS configuration.
// Clients must present a certificate so their key can be logged.
func serverTLS(priv ed25519.PrivateKey) (*tls.Config, error) {
	cert, err := generateCertificate(priv)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAnyClientCert,
		NextProtos:   []string{alpnProtocol},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// clientTLS builds the dialer's TLS configuration. When pinned is set the
// handshake fails unless the node presents exactly that key.
func clientTLS(priv ed25519.PrivateKey, pinned ed25519.PublicKey) (*tls.Config, error) {
	cert, err := generateCertificate(priv)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true, // identity is the pinned ed25519 key, not a CA chain
		NextProtos:         []string{alpnProtocol},
		MinVersion:         tls.VersionTLS13,
	}

	if pinned != nil {
		cfg.VerifyConnection = func(state tls.ConnectionState) error {
			got, err := extractPublicKey(state)
			if err != nil {
				return err
			}

			if !bytes.Equal(got, pinned) {
				return fmt.Errorf("%w: got %x", ErrServerKeyMismatch, got[:8])
			}

			return nil
		}
	}

	return cfg, nil
}
