package ca

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
	"github.com/openclave/certidp/internal/store"
)

// TrustAnchors holds the parsed trust set for chain verification.
type TrustAnchors struct {
	Root          *x509.Certificate
	Intermediate  *x509.Certificate
	Roots         *x509.CertPool
	Intermediates *x509.CertPool
}

// Store manages the root and intermediate CA material. Parsed signing keys
// and trust anchors are cached after the first load and invalidated only by
// Initialize, never re-derived per verification call.
type Store struct {
	authorities store.AuthorityRepository
	mu          sync.RWMutex

	signer  *Signer       // cached intermediate signing material
	anchors *TrustAnchors // cached trust set
}

// NewStore creates a CA Store over the authority repository.
func NewStore(authorities store.AuthorityRepository) *Store {
	return &Store{authorities: authorities}
}

// Initialize generates the root and intermediate CA certificates and
// persists them. It fails with already_initialized on any later call; the
// repository's singleton guard keeps that exact under concurrent first-boot
// races.
func (s *Store) Initialize(ctx context.Context, rootSubject, intermediateSubject Subject, rootValidityYears, intermediateValidityYears int) (*domain.CertificateAuthority, *domain.CertificateAuthority, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rootKey, err := GenerateKeyPair()
	if err != nil {
		return nil, nil, cperrors.Internal("failed to generate root key", err)
	}
	rootCert, rootDER, err := BuildCertificate(rootSubject, nil, rootKey, &rootKey.PublicKey, rootValidityYears, true)
	if err != nil {
		return nil, nil, cperrors.Internal("failed to build root certificate", err)
	}

	intermediateKey, err := GenerateKeyPair()
	if err != nil {
		return nil, nil, cperrors.Internal("failed to generate intermediate key", err)
	}
	intermediateCert, intermediateDER, err := BuildCertificate(
		intermediateSubject,
		&Signer{Certificate: rootCert, PrivateKey: rootKey},
		nil,
		&intermediateKey.PublicKey,
		intermediateValidityYears,
		true,
	)
	if err != nil {
		return nil, nil, cperrors.Internal("failed to build intermediate certificate", err)
	}

	root := &domain.CertificateAuthority{
		Level:          domain.CALevelRoot,
		SerialNumber:   rootCert.SerialNumber.String(),
		SubjectDN:      rootCert.Subject.String(),
		CertificatePEM: EncodeCertificatePEM(rootDER),
		PrivateKeyPEM:  EncodePrivateKeyPEM(rootKey),
		NotBefore:      rootCert.NotBefore,
		NotAfter:       rootCert.NotAfter,
	}
	intermediate := &domain.CertificateAuthority{
		Level:          domain.CALevelIntermediate,
		SerialNumber:   intermediateCert.SerialNumber.String(),
		SubjectDN:      intermediateCert.Subject.String(),
		CertificatePEM: EncodeCertificatePEM(intermediateDER),
		PrivateKeyPEM:  EncodePrivateKeyPEM(intermediateKey),
		NotBefore:      intermediateCert.NotBefore,
		NotAfter:       intermediateCert.NotAfter,
	}

	if err := s.authorities.CreatePair(ctx, root, intermediate); err != nil {
		return nil, nil, err
	}

	// Invalidate caches; the next SigningCA/TrustedRoots call reloads.
	s.signer = nil
	s.anchors = nil

	return root, intermediate, nil
}

// Initialized reports whether the CA material exists.
func (s *Store) Initialized(ctx context.Context) (bool, error) {
	return s.authorities.Initialized(ctx)
}

// SigningCA returns the intermediate certificate and private key used to
// sign end-entity certificates.
func (s *Store) SigningCA(ctx context.Context) (*Signer, error) {
	s.mu.RLock()
	if s.signer != nil {
		defer s.mu.RUnlock()
		return s.signer, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signer != nil {
		return s.signer, nil
	}

	record, err := s.authorities.Get(ctx, domain.CALevelIntermediate)
	if err != nil {
		if cperrors.IsCode(err, cperrors.CodeNotFound) {
			return nil, cperrors.NotInitialized("certificate authority not initialized")
		}
		return nil, err
	}

	cert, err := ParseCertificatePEM(record.CertificatePEM)
	if err != nil {
		return nil, cperrors.Internal("failed to parse intermediate certificate", err)
	}
	key, err := ParsePrivateKeyPEM(record.PrivateKeyPEM)
	if err != nil {
		return nil, cperrors.Internal("failed to parse intermediate key", err)
	}

	s.signer = &Signer{Certificate: cert, PrivateKey: key}
	return s.signer, nil
}

// TrustedRoots returns the cached trust anchors for chain verification.
func (s *Store) TrustedRoots(ctx context.Context) (*TrustAnchors, error) {
	s.mu.RLock()
	if s.anchors != nil {
		defer s.mu.RUnlock()
		return s.anchors, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.anchors != nil {
		return s.anchors, nil
	}

	rootRecord, err := s.authorities.Get(ctx, domain.CALevelRoot)
	if err != nil {
		if cperrors.IsCode(err, cperrors.CodeNotFound) {
			return nil, cperrors.NotInitialized("certificate authority not initialized")
		}
		return nil, err
	}
	intermediateRecord, err := s.authorities.Get(ctx, domain.CALevelIntermediate)
	if err != nil {
		return nil, err
	}

	root, err := ParseCertificatePEM(rootRecord.CertificatePEM)
	if err != nil {
		return nil, cperrors.Internal("failed to parse root certificate", err)
	}
	intermediate, err := ParseCertificatePEM(intermediateRecord.CertificatePEM)
	if err != nil {
		return nil, cperrors.Internal("failed to parse intermediate certificate", err)
	}

	roots := x509.NewCertPool()
	roots.AddCert(root)
	intermediates := x509.NewCertPool()
	intermediates.AddCert(intermediate)

	s.anchors = &TrustAnchors{
		Root:          root,
		Intermediate:  intermediate,
		Roots:         roots,
		Intermediates: intermediates,
	}
	return s.anchors, nil
}

// RootPublicKey returns the root CA public key, mostly for diagnostics.
func (s *Store) RootPublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	anchors, err := s.TrustedRoots(ctx)
	if err != nil {
		return nil, err
	}
	pub, ok := anchors.Root.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("root key is not RSA")
	}
	return pub, nil
}
