package ca

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"time"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/openclave/certidp/internal/audit"
	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
	"github.com/openclave/certidp/internal/store"
)

const (
	// MinContainerPasswordLength is the policy floor for the PKCS#12
	// transport password.
	MinContainerPasswordLength = 8
	// serialRetries bounds the regenerate-on-collision loop during
	// issuance. With 128-bit random serials a single retry is already
	// paranoia; the storage uniqueness constraint stays authoritative.
	serialRetries = 3
)

// Identity describes who a certificate is issued to.
type Identity struct {
	CommonName string
	Email      string
	UserID     string
}

// IssueResult is everything handed back to the certificate holder. The
// private key exists only here; the server keeps the public half.
type IssueResult struct {
	SerialNumber   string    `json:"serial_number"`
	SubjectDN      string    `json:"subject_dn"`
	IssuerDN       string    `json:"issuer_dn"`
	NotBefore      time.Time `json:"not_before"`
	NotAfter       time.Time `json:"not_after"`
	CertificatePEM []byte    `json:"certificate_pem"`
	ChainPEMs      [][]byte  `json:"chain_pems"`
	PrivateKeyPEM  []byte    `json:"private_key_pem"`
	PKCS12         []byte    `json:"pkcs12"`
	DisplayName    string    `json:"display_name"`
}

// Issuer orchestrates end-entity certificate creation, renewal, and
// revocation.
type Issuer struct {
	caStore      *Store
	certificates store.CertificateRepository
	revocations  store.RevocationRepository
	auditor      *audit.Auditor
	logger       *slog.Logger
}

// NewIssuer creates an Issuer.
func NewIssuer(caStore *Store, certificates store.CertificateRepository, revocations store.RevocationRepository, auditor *audit.Auditor, logger *slog.Logger) *Issuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{
		caStore:      caStore,
		certificates: certificates,
		revocations:  revocations,
		auditor:      auditor,
		logger:       logger,
	}
}

// Issue creates a certificate for identity, signed by the intermediate CA,
// and bundles certificate, chain, and private key into a password-protected
// PKCS#12 container. The password is never stored; losing it means losing
// the usable private key.
func (i *Issuer) Issue(ctx context.Context, identity Identity, password string, validityYears int) (*IssueResult, error) {
	if identity.CommonName == "" {
		return nil, cperrors.InvalidInput("common name is required")
	}
	if identity.UserID == "" {
		return nil, cperrors.InvalidInput("user id is required")
	}
	if len(password) < MinContainerPasswordLength {
		return nil, cperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", MinContainerPasswordLength))
	}
	if validityYears <= 0 {
		return nil, cperrors.InvalidInput("validity must be positive")
	}

	signer, err := i.caStore.SigningCA(ctx)
	if err != nil {
		return nil, err
	}

	// Fresh key pair per issuance; private keys are never reused.
	key, err := GenerateKeyPair()
	if err != nil {
		return nil, cperrors.Internal("failed to generate key pair", err)
	}

	subject := Subject{
		CommonName: identity.CommonName,
		Email:      identity.Email,
	}

	var result *IssueResult
	for attempt := 0; attempt < serialRetries; attempt++ {
		cert, der, err := BuildCertificate(subject, signer, nil, &key.PublicKey, validityYears, false)
		if err != nil {
			return nil, cperrors.Internal("failed to build certificate", err)
		}

		publicKeyPEM, err := EncodePublicKeyPEM(&key.PublicKey)
		if err != nil {
			return nil, cperrors.Internal("failed to encode public key", err)
		}

		record := &domain.Certificate{
			SerialNumber: cert.SerialNumber.String(),
			SubjectDN:    cert.Subject.String(),
			IssuerDN:     cert.Issuer.String(),
			CommonName:   identity.CommonName,
			Email:        identity.Email,
			OwnerUserID:  identity.UserID,
			PublicKeyPEM: publicKeyPEM,
			Status:       domain.CertStatusActive,
			NotBefore:    cert.NotBefore,
			NotAfter:     cert.NotAfter,
		}

		// The store's uniqueness constraint is the serial collision guard;
		// a duplicate just means regenerate and rebuild.
		if err := i.certificates.Create(ctx, record); err != nil {
			if cperrors.IsCode(err, cperrors.CodeAlreadyExists) {
				continue
			}
			return nil, err
		}

		caCerts := []*x509.Certificate{signer.Certificate}
		chain := [][]byte{EncodeCertificatePEM(signer.Certificate.Raw)}
		if anchors, err := i.caStore.TrustedRoots(ctx); err == nil {
			caCerts = append(caCerts, anchors.Root)
			chain = append(chain, EncodeCertificatePEM(anchors.Root.Raw))
		}

		container, err := pkcs12.Modern.Encode(key, cert, caCerts, password)
		if err != nil {
			return nil, cperrors.Internal("failed to encode transport container", err)
		}

		result = &IssueResult{
			SerialNumber:   record.SerialNumber,
			SubjectDN:      record.SubjectDN,
			IssuerDN:       record.IssuerDN,
			NotBefore:      record.NotBefore,
			NotAfter:       record.NotAfter,
			CertificatePEM: EncodeCertificatePEM(der),
			ChainPEMs:      chain,
			PrivateKeyPEM:  EncodePrivateKeyPEM(key),
			PKCS12:         container,
			DisplayName:    identity.CommonName,
		}
		break
	}
	if result == nil {
		return nil, cperrors.Internal("serial collision retries exhausted", nil)
	}

	i.auditor.Record(ctx, audit.Entry{
		Event:        audit.EventCertIssued,
		SerialNumber: result.SerialNumber,
		UserID:       identity.UserID,
		Detail:       fmt.Sprintf("validity %dy", validityYears),
	})

	return result, nil
}

// Renew issues a fresh certificate carrying the prior certificate's subject
// and owner, then marks the prior one Renewed. Revoked certificates cannot
// be renewed.
func (i *Issuer) Renew(ctx context.Context, serialNumber, password string, validityYears int) (*IssueResult, error) {
	prior, err := i.certificates.GetBySerial(ctx, serialNumber)
	if err != nil {
		return nil, err
	}

	switch prior.EffectiveStatus() {
	case domain.CertStatusRevoked:
		return nil, cperrors.New(cperrors.CodeCertNotActive, "cannot renew a revoked certificate")
	case domain.CertStatusRenewed:
		return nil, cperrors.New(cperrors.CodeCertNotActive, "certificate already renewed")
	}

	identity := Identity{
		CommonName: prior.CommonName,
		Email:      prior.Email,
		UserID:     prior.OwnerUserID,
	}

	result, err := i.Issue(ctx, identity, password, validityYears)
	if err != nil {
		return nil, err
	}

	if err := i.certificates.UpdateStatus(ctx, serialNumber, domain.CertStatusRenewed); err != nil {
		return nil, cperrors.Internal("failed to mark prior certificate renewed", err)
	}

	i.auditor.Record(ctx, audit.Entry{
		Event:        audit.EventCertRenewed,
		SerialNumber: serialNumber,
		UserID:       prior.OwnerUserID,
		Detail:       fmt.Sprintf("superseded by %s", result.SerialNumber),
	})

	return result, nil
}

// Revoke marks a certificate revoked and appends the authoritative
// revocation entry. Revoking twice fails with already_exists.
func (i *Issuer) Revoke(ctx context.Context, serialNumber, reason string) error {
	cert, err := i.certificates.GetBySerial(ctx, serialNumber)
	if err != nil {
		return err
	}

	if cert.Status == domain.CertStatusRevoked {
		return cperrors.AlreadyExists("revocation", serialNumber)
	}

	entry := &domain.RevocationEntry{
		SerialNumber: serialNumber,
		Reason:       reason,
		RevokedAt:    time.Now(),
	}
	if err := i.revocations.Append(ctx, entry); err != nil {
		return err
	}
	if err := i.certificates.UpdateStatus(ctx, serialNumber, domain.CertStatusRevoked); err != nil {
		return cperrors.Internal("failed to update certificate status", err)
	}

	i.auditor.Record(ctx, audit.Entry{
		Event:        audit.EventCertRevoked,
		SerialNumber: serialNumber,
		UserID:       cert.OwnerUserID,
		Detail:       reason,
	})

	return nil
}
