// Package ca implements the certificate authority: key pair generation,
// certificate building and issuance, trust-chain verification, and
// revocation.
package ca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

const (
	// KeySize is the RSA key size in bits for all generated keys.
	KeySize = 2048
	// serialBits sizes random serial numbers. 128 bits of entropy makes
	// collisions astronomically unlikely, and issuance still re-checks
	// uniqueness against storage.
	serialBits = 128
)

// Subject holds the attributes placed in a certificate's subject DN.
type Subject struct {
	CommonName   string
	Organization string
	Country      string
	Email        string
}

// Signer is the key material used to sign a new certificate. A nil Signer
// means self-signed (root CA).
type Signer struct {
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey
}

// GenerateKeyPair generates a new RSA key pair.
func GenerateKeyPair() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return key, nil
}

// GenerateSerial generates a random positive serial number.
func GenerateSerial() (*big.Int, error) {
	max := new(big.Int).Lsh(big.NewInt(1), serialBits)
	serial, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial: %w", err)
	}
	return serial, nil
}

// BuildCertificate creates an X.509 certificate for publicKey with the given
// subject and validity. A nil signer produces a self-signed certificate
// (signed with the matching private key, which must then belong to
// publicKey's pair and be passed as selfKey). Common names are run through
// the ASCII-safe encoding before they enter the DN.
func BuildCertificate(subject Subject, signer *Signer, selfKey *rsa.PrivateKey, publicKey *rsa.PublicKey, validityYears int, isCA bool) (*x509.Certificate, []byte, error) {
	serial, err := GenerateSerial()
	if err != nil {
		return nil, nil, err
	}
	return buildCertificateWithSerial(subject, signer, selfKey, publicKey, validityYears, isCA, serial)
}

func buildCertificateWithSerial(subject Subject, signer *Signer, selfKey *rsa.PrivateKey, publicKey *rsa.PublicKey, validityYears int, isCA bool, serial *big.Int) (*x509.Certificate, []byte, error) {
	if validityYears <= 0 {
		return nil, nil, fmt.Errorf("validity must be positive, got %d years", validityYears)
	}

	name := pkix.Name{
		CommonName: EncodeCommonName(subject.CommonName),
	}
	if subject.Organization != "" {
		name.Organization = []string{subject.Organization}
	}
	if subject.Country != "" {
		name.Country = []string{subject.Country}
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               name,
		NotBefore:             now,
		NotAfter:              now.AddDate(validityYears, 0, 0),
		SignatureAlgorithm:    x509.SHA256WithRSA,
		BasicConstraintsValid: true,
		IsCA:                  isCA,
	}

	if isCA {
		template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	} else {
		template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
		if subject.Email != "" {
			template.EmailAddresses = []string{subject.Email}
		}
	}

	parent := template
	signingKey := selfKey
	if signer != nil {
		parent = signer.Certificate
		signingKey = signer.PrivateKey
	}
	if signingKey == nil {
		return nil, nil, fmt.Errorf("no signing key available")
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parent, publicKey, signingKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse created certificate: %w", err)
	}

	return cert, der, nil
}

// EncodeCertificatePEM encodes DER certificate bytes as PEM.
func EncodeCertificatePEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

// EncodePrivateKeyPEM encodes an RSA private key as PKCS#1 PEM.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// EncodePublicKeyPEM encodes an RSA public key as PKIX PEM.
func EncodePublicKeyPEM(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParseCertificatePEM parses a PEM-encoded certificate.
func ParseCertificatePEM(pemBytes []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

// ParsePrivateKeyPEM parses a PEM-encoded PKCS#1 RSA private key.
func ParsePrivateKeyPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// ParsePublicKeyPEM parses a PEM-encoded PKIX RSA public key.
func ParsePublicKeyPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode public key PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPub, nil
}
