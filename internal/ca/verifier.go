package ca

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openclave/certidp/internal/audit"
	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
	"github.com/openclave/certidp/internal/store"
)

// VerifyResult reports the outcome of a certificate verification. Every
// check runs independently; Valid is true iff Errors is empty.
type VerifyResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Verifier validates presented certificates against the trust anchors, the
// revocation list, and the local certificate records.
type Verifier struct {
	caStore      *Store
	certificates store.CertificateRepository
	revocations  store.RevocationRepository
	auditor      *audit.Auditor
	logger       *slog.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(caStore *Store, certificates store.CertificateRepository, revocations store.RevocationRepository, auditor *audit.Auditor, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		caStore:      caStore,
		certificates: certificates,
		revocations:  revocations,
		auditor:      auditor,
		logger:       logger,
	}
}

// Verify checks a PEM-encoded certificate. All checks are evaluated and all
// failures collected; nothing short-circuits.
func (v *Verifier) Verify(ctx context.Context, certificatePEM []byte) (*VerifyResult, error) {
	cert, err := ParseCertificatePEM(certificatePEM)
	if err != nil {
		return nil, cperrors.InvalidInput("failed to parse certificate PEM")
	}

	result := &VerifyResult{Errors: []string{}}
	now := time.Now()
	serial := cert.SerialNumber.String()

	// Time validity.
	if now.Before(cert.NotBefore) {
		result.Errors = append(result.Errors, fmt.Sprintf("certificate not valid before %s", cert.NotBefore.Format(time.RFC3339)))
	}
	if now.After(cert.NotAfter) {
		result.Errors = append(result.Errors, fmt.Sprintf("certificate expired at %s", cert.NotAfter.Format(time.RFC3339)))
	}

	// Chain to the trusted root through the intermediate.
	anchors, err := v.caStore.TrustedRoots(ctx)
	if err != nil {
		if cperrors.IsCode(err, cperrors.CodeNotInitialized) {
			return nil, err
		}
		return nil, cperrors.Internal("failed to load trust anchors", err)
	}
	_, chainErr := cert.Verify(x509.VerifyOptions{
		Roots:         anchors.Roots,
		Intermediates: anchors.Intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if chainErr != nil {
		// When the only chain problem is the leaf's own validity window,
		// the time check above already reported it.
		var invalid x509.CertificateInvalidError
		leafOutsideWindow := now.Before(cert.NotBefore) || now.After(cert.NotAfter)
		expiryOnly := errors.As(chainErr, &invalid) && invalid.Reason == x509.Expired && leafOutsideWindow
		if !expiryOnly {
			result.Errors = append(result.Errors, "certificate chain does not verify against the trusted CA")
		}
	}

	// Revocation list. The entry's existence is authoritative regardless
	// of the record's status field.
	if _, err := v.revocations.GetBySerial(ctx, serial); err == nil {
		result.Errors = append(result.Errors, "certificate has been revoked")
	} else if !cperrors.IsCode(err, cperrors.CodeNotFound) {
		return nil, err
	}

	// Local record status, when a record exists for this serial.
	if record, err := v.certificates.GetBySerial(ctx, serial); err == nil {
		if status := record.EffectiveStatus(); status != domain.CertStatusActive {
			msg := fmt.Sprintf("certificate status is %s", status)
			if status != domain.CertStatusRevoked || !contains(result.Errors, "certificate has been revoked") {
				result.Errors = append(result.Errors, msg)
			}
		}
	} else if !cperrors.IsCode(err, cperrors.CodeNotFound) {
		return nil, err
	}

	result.Valid = len(result.Errors) == 0

	outcome := audit.OutcomeSuccess
	if !result.Valid {
		outcome = audit.OutcomeFailure
	}
	v.auditor.Record(ctx, audit.Entry{
		Event:        audit.EventCertVerified,
		SerialNumber: serial,
		Outcome:      outcome,
		Detail:       fmt.Sprintf("%d error(s)", len(result.Errors)),
	})

	return result, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
