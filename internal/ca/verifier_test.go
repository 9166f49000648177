package ca

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"strings"
	"testing"
	"time"

	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
)

func newTestVerifier(t *testing.T) (*Verifier, *Issuer, *mockCertificateRepository, *Store) {
	t.Helper()
	issuer, certs, revocations, caStore := newTestIssuer(t)
	verifier := NewVerifier(caStore, certs, revocations, newTestAuditor(), nil)
	return verifier, issuer, certs, caStore
}

func TestVerifyValidCertificate(t *testing.T) {
	verifier, issuer, _, _ := newTestVerifier(t)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, Identity{CommonName: "alice", UserID: "user-1"}, "secret-pass", 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	result, err := verifier.Verify(ctx, issued.CertificatePEM)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid, got errors: %v", result.Errors)
	}
}

func TestVerifyRevokedCertificate(t *testing.T) {
	verifier, issuer, _, _ := newTestVerifier(t)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, Identity{CommonName: "bob", UserID: "user-2"}, "secret-pass", 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := issuer.Revoke(ctx, issued.SerialNumber, "compromised"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	result, err := verifier.Verify(ctx, issued.CertificatePEM)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid {
		t.Fatal("revoked certificate must not verify")
	}
	revokedMsgs := 0
	for _, msg := range result.Errors {
		if strings.Contains(msg, "revoked") {
			revokedMsgs++
		}
	}
	if revokedMsgs != 1 {
		t.Errorf("revocation should be reported exactly once, got %v", result.Errors)
	}
}

func TestVerifyRenewedCertificate(t *testing.T) {
	verifier, issuer, _, _ := newTestVerifier(t)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, Identity{CommonName: "carol", UserID: "user-3"}, "secret-pass", 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := issuer.Renew(ctx, issued.SerialNumber, "secret-pass", 1); err != nil {
		t.Fatalf("Renew: %v", err)
	}

	result, err := verifier.Verify(ctx, issued.CertificatePEM)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid {
		t.Fatal("superseded certificate must not verify")
	}
	found := false
	for _, msg := range result.Errors {
		if strings.Contains(msg, "renewed") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a renewed-status error, got %v", result.Errors)
	}
}

func TestVerifyExpiredCertificateCollectsAllErrors(t *testing.T) {
	verifier, _, certs, caStore := newTestVerifier(t)
	ctx := context.Background()

	signer, err := caStore.SigningCA(ctx)
	if err != nil {
		t.Fatalf("SigningCA: %v", err)
	}

	// Hand-build a certificate whose validity window is already over.
	key, _ := GenerateKeyPair()
	serial, _ := GenerateSerial()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "stale"},
		NotBefore:             time.Now().Add(-48 * time.Hour),
		NotAfter:              time.Now().Add(-24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, signer.Certificate, &key.PublicKey, signer.PrivateKey)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	pub, _ := EncodePublicKeyPEM(&key.PublicKey)
	if err := certs.Create(ctx, &domain.Certificate{
		SerialNumber: serial.String(),
		CommonName:   "stale",
		OwnerUserID:  "user-4",
		PublicKeyPEM: pub,
		Status:       domain.CertStatusActive,
		NotBefore:    template.NotBefore,
		NotAfter:     template.NotAfter,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	result, err := verifier.Verify(ctx, EncodeCertificatePEM(der))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid {
		t.Fatal("expired certificate must not verify")
	}

	expiredMsgs := 0
	for _, msg := range result.Errors {
		if strings.Contains(msg, "expired") {
			expiredMsgs++
		}
	}
	if expiredMsgs != 2 {
		// One from the time window check, one from the record's lazy
		// expired status. The chain itself still verifies.
		t.Errorf("errors = %v", result.Errors)
	}
	for _, msg := range result.Errors {
		if strings.Contains(msg, "chain") {
			t.Errorf("expiry must not masquerade as a chain failure: %v", result.Errors)
		}
	}
}

func TestVerifyForeignCertificate(t *testing.T) {
	verifier, _, _, _ := newTestVerifier(t)

	// Self-signed certificate from an unrelated authority.
	key, _ := GenerateKeyPair()
	_, der, err := BuildCertificate(Subject{CommonName: "imposter"}, nil, key, &key.PublicKey, 1, false)
	if err != nil {
		t.Fatalf("BuildCertificate: %v", err)
	}

	result, err := verifier.Verify(context.Background(), EncodeCertificatePEM(der))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid {
		t.Fatal("foreign certificate must not verify")
	}
	found := false
	for _, msg := range result.Errors {
		if strings.Contains(msg, "chain") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a chain error, got %v", result.Errors)
	}
}

func TestVerifyGarbageInput(t *testing.T) {
	verifier, _, _, _ := newTestVerifier(t)
	if _, err := verifier.Verify(context.Background(), []byte("definitely not PEM")); !cperrors.IsCode(err, cperrors.CodeInvalidInput) {
		t.Errorf("error = %v, want invalid_input", err)
	}
}

func TestVerifyBeforeCAInitialized(t *testing.T) {
	caStore := NewStore(newMockAuthorityRepository())
	verifier := NewVerifier(caStore, newMockCertificateRepository(), newMockRevocationRepository(), newTestAuditor(), nil)

	key, _ := GenerateKeyPair()
	_, der, err := BuildCertificate(Subject{CommonName: "early"}, nil, key, &key.PublicKey, 1, false)
	if err != nil {
		t.Fatalf("BuildCertificate: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), EncodeCertificatePEM(der)); !cperrors.IsCode(err, cperrors.CodeNotInitialized) {
		t.Errorf("error = %v, want not_initialized", err)
	}
}
