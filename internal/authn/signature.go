package authn

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openclave/certidp/internal/audit"
	"github.com/openclave/certidp/internal/ca"
	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
	"github.com/openclave/certidp/internal/store"
)

// SignatureAuthenticator proves possession of a certificate's private key by
// checking an RSA signature over a one-time challenge.
type SignatureAuthenticator struct {
	challenges   *ChallengeService
	certificates store.CertificateRepository
	users        store.UserRepository
	throttle     *Throttle
	auditor      *audit.Auditor
	logger       *slog.Logger
}

// NewSignatureAuthenticator creates a SignatureAuthenticator.
func NewSignatureAuthenticator(challenges *ChallengeService, certificates store.CertificateRepository, users store.UserRepository, throttle *Throttle, auditor *audit.Auditor, logger *slog.Logger) *SignatureAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignatureAuthenticator{
		challenges:   challenges,
		certificates: certificates,
		users:        users,
		throttle:     throttle,
		auditor:      auditor,
		logger:       logger,
	}
}

// Verify checks that signature is a valid RSA PKCS#1 v1.5 SHA-256 signature
// over the challenge value, made with the private key matching the
// certificate identified by serialNumber. The challenge survives failed
// attempts and is consumed only on success, so a typo does not force a new
// challenge round trip. Repeated failures lock the serial out. A serial with
// no certificate on record fails not_found without signature work.
func (a *SignatureAuthenticator) Verify(ctx context.Context, challengeValue, serialNumber, signature string) (*domain.User, *domain.Certificate, error) {
	if a.throttle.IsLocked(serialNumber) {
		return nil, nil, cperrors.New(cperrors.CodeRateLimited,
			fmt.Sprintf("too many failed attempts, retry in %s", a.throttle.LockRemaining(serialNumber).Round(time.Second)))
	}

	// A dead challenge fails before any signature work and without
	// counting against the serial.
	challenge, err := a.challenges.Peek(ctx, challengeValue)
	if err != nil {
		return nil, nil, err
	}

	cert, err := a.certificates.GetBySerial(ctx, serialNumber)
	if err != nil {
		if cperrors.IsCode(err, cperrors.CodeNotFound) {
			a.reject(ctx, serialNumber, "", "unknown serial")
			return nil, nil, cperrors.NotFound("certificate", serialNumber)
		}
		return nil, nil, err
	}
	if status := cert.EffectiveStatus(); status != domain.CertStatusActive {
		a.reject(ctx, serialNumber, cert.OwnerUserID, "certificate "+string(status))
		return nil, nil, cperrors.New(cperrors.CodeCertNotActive, fmt.Sprintf("certificate is %s", status))
	}

	publicKey, err := ca.ParsePublicKeyPEM(cert.PublicKeyPEM)
	if err != nil {
		return nil, nil, cperrors.Internal("failed to parse stored public key", err)
	}

	sig, err := DecodeSignature(signature)
	if err != nil {
		a.throttle.RecordFailure(serialNumber)
		a.reject(ctx, serialNumber, cert.OwnerUserID, "undecodable signature")
		return nil, nil, cperrors.New(cperrors.CodeInvalidSignature, "signature is not valid base64")
	}

	digest := sha256.Sum256([]byte(challenge.Value))
	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, digest[:], sig); err != nil {
		a.throttle.RecordFailure(serialNumber)
		a.reject(ctx, serialNumber, cert.OwnerUserID, "signature mismatch")
		return nil, nil, cperrors.New(cperrors.CodeInvalidSignature, "signature verification failed")
	}

	// The signature holds; now burn the challenge. A concurrent winner on
	// the same challenge shows up here as already consumed.
	if _, err := a.challenges.Consume(ctx, challengeValue); err != nil {
		return nil, nil, err
	}
	a.throttle.RecordSuccess(serialNumber)

	user, err := a.users.GetByID(ctx, cert.OwnerUserID)
	if err != nil {
		if cperrors.IsCode(err, cperrors.CodeNotFound) {
			a.reject(ctx, serialNumber, cert.OwnerUserID, "owner not found")
			return nil, nil, cperrors.Unauthorized("certificate owner no longer exists")
		}
		return nil, nil, err
	}
	if !user.Active {
		a.reject(ctx, serialNumber, user.ID, "owner inactive")
		return nil, nil, cperrors.Unauthorized("certificate owner is inactive")
	}

	a.auditor.Record(ctx, audit.Entry{
		Event:        audit.EventSignatureVerified,
		SerialNumber: serialNumber,
		UserID:       user.ID,
		Outcome:      audit.OutcomeSuccess,
	})
	return user, cert, nil
}

func (a *SignatureAuthenticator) reject(ctx context.Context, serial, userID, detail string) {
	a.auditor.Record(ctx, audit.Entry{
		Event:        audit.EventSignatureRejected,
		SerialNumber: serial,
		UserID:       userID,
		Outcome:      audit.OutcomeFailure,
		Detail:       detail,
	})
}

// DecodeSignature decodes a base64 signature, accepting standard and
// URL-safe alphabets with or without padding. Clients disagree about which
// variant to send; the bytes are what matters.
func DecodeSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty signature")
	}

	// Normalize the URL-safe alphabet to standard.
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	s = strings.TrimRight(s, "=")

	switch len(s) % 4 {
	case 1:
		return nil, fmt.Errorf("invalid base64 length")
	case 2:
		s += "=="
	case 3:
		s += "="
	}

	return base64.StdEncoding.DecodeString(s)
}
