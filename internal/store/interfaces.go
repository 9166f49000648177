// Package store defines repository interfaces for persistence.
package store

import (
	"context"

	"github.com/openclave/certidp/internal/domain"
)

// UserRepository defines operations for user persistence.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	List(ctx context.Context) ([]*domain.User, error)
}

// AuthorityRepository defines operations for CA material persistence.
type AuthorityRepository interface {
	// CreatePair persists the root and intermediate in one operation and
	// fails with AlreadyExists if any authority is already stored. This is
	// the exactly-once initialization guard; it must hold under concurrent
	// first-boot races.
	CreatePair(ctx context.Context, root, intermediate *domain.CertificateAuthority) error
	Get(ctx context.Context, level domain.CALevel) (*domain.CertificateAuthority, error)
	Initialized(ctx context.Context) (bool, error)
}

// CertificateRepository defines operations for end-entity certificate records.
type CertificateRepository interface {
	// Create fails with AlreadyExists on a duplicate serial number; serial
	// uniqueness is enforced here, not by the caller.
	Create(ctx context.Context, cert *domain.Certificate) error
	GetBySerial(ctx context.Context, serial string) (*domain.Certificate, error)
	UpdateStatus(ctx context.Context, serial string, status domain.CertStatus) error
	ListByOwner(ctx context.Context, userID string) ([]*domain.Certificate, error)
}

// RevocationRepository is the append-only revocation list.
type RevocationRepository interface {
	Append(ctx context.Context, entry *domain.RevocationEntry) error
	GetBySerial(ctx context.Context, serial string) (*domain.RevocationEntry, error)
	List(ctx context.Context) ([]*domain.RevocationEntry, error)
}

// ChallengeRepository defines operations for one-time challenge persistence.
type ChallengeRepository interface {
	Create(ctx context.Context, challenge *domain.Challenge) error
	Get(ctx context.Context, value string) (*domain.Challenge, error)
	// Consume atomically removes a live challenge. It returns the challenge
	// only if it existed and had not expired; an expired-but-present entry
	// is deleted as a side effect and reported via expired=true.
	Consume(ctx context.Context, value string) (challenge *domain.Challenge, expired bool, err error)
	DeleteExpired(ctx context.Context) error
}

// ClientRepository defines operations for OAuth client persistence.
type ClientRepository interface {
	Create(ctx context.Context, client *domain.Client) error
	GetByID(ctx context.Context, id string) (*domain.Client, error)
	Update(ctx context.Context, client *domain.Client) error
	List(ctx context.Context) ([]*domain.Client, error)
}

// AuthCodeRepository defines operations for authorization code persistence.
type AuthCodeRepository interface {
	Create(ctx context.Context, code *domain.AuthCode) error
	// Consume atomically removes a live code; same contract as
	// ChallengeRepository.Consume. Two concurrent exchanges of one code
	// must not both receive it.
	Consume(ctx context.Context, code string) (authCode *domain.AuthCode, expired bool, err error)
	DeleteExpired(ctx context.Context) error
}

// TokenRepository defines operations for token record persistence.
type TokenRepository interface {
	Create(ctx context.Context, token *domain.Token) error
	GetByRefreshToken(ctx context.Context, refreshToken string) (*domain.Token, error)
	GetByAccessJTI(ctx context.Context, jti string) (*domain.Token, error)
	Revoke(ctx context.Context, id string) error
	// DeleteByValue removes the record matching either the refresh token or
	// the access token jti. Returns NotFound if nothing matched; callers
	// implementing RFC 7009 swallow that.
	DeleteByValue(ctx context.Context, value string) error
	DeleteExpired(ctx context.Context) error
}

// AuditRepository is the append-only audit trail.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	List(ctx context.Context, limit int) ([]*domain.AuditEntry, error)
}

// Store aggregates all repositories.
type Store interface {
	Users() UserRepository
	Authorities() AuthorityRepository
	Certificates() CertificateRepository
	Revocations() RevocationRepository
	Challenges() ChallengeRepository
	Clients() ClientRepository
	AuthCodes() AuthCodeRepository
	Tokens() TokenRepository
	Audit() AuditRepository
	Close() error
}
