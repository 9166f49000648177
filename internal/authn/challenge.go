// Package authn implements challenge-response authentication: one-time
// challenge issuance and certificate-backed signature verification.
package authn

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/openclave/certidp/internal/audit"
	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
	"github.com/openclave/certidp/internal/store"
)

// challengeBytes sizes the random challenge value. 32 bytes keeps guessing
// attacks out of the picture entirely.
const challengeBytes = 32

// ChallengeService issues and consumes one-time login challenges.
type ChallengeService struct {
	challenges store.ChallengeRepository
	ttl        time.Duration
	auditor    *audit.Auditor
	logger     *slog.Logger
}

// NewChallengeService creates a ChallengeService. Challenges expire after ttl.
func NewChallengeService(challenges store.ChallengeRepository, ttl time.Duration, auditor *audit.Auditor, logger *slog.Logger) *ChallengeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChallengeService{
		challenges: challenges,
		ttl:        ttl,
		auditor:    auditor,
		logger:     logger,
	}
}

// Issue creates a fresh random challenge and stores it with its expiry.
func (s *ChallengeService) Issue(ctx context.Context) (*domain.Challenge, error) {
	buf := make([]byte, challengeBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, cperrors.Internal("failed to generate challenge", err)
	}

	now := time.Now()
	challenge := &domain.Challenge{
		Value:     base64.RawURLEncoding.EncodeToString(buf),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.challenges.Create(ctx, challenge); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry{
		Event:  audit.EventChallengeIssued,
		Detail: "ttl " + s.ttl.String(),
	})
	return challenge, nil
}

// Peek returns a stored challenge without consuming it, distinguishing
// unknown from expired.
func (s *ChallengeService) Peek(ctx context.Context, value string) (*domain.Challenge, error) {
	challenge, err := s.challenges.Get(ctx, value)
	if err != nil {
		if cperrors.IsCode(err, cperrors.CodeNotFound) {
			return nil, cperrors.New(cperrors.CodeInvalidChallenge, "unknown challenge")
		}
		return nil, err
	}
	if challenge.IsExpired() {
		// An expired entry must not linger until the janitor; the store's
		// consume deletes it as a side effect.
		s.challenges.Consume(ctx, value)
		return nil, cperrors.New(cperrors.CodeChallengeExpired, "challenge has expired")
	}
	return challenge, nil
}

// Consume atomically uses up a challenge. A consumed or unknown value fails
// with invalid_challenge; a present-but-expired one with challenge_expired.
func (s *ChallengeService) Consume(ctx context.Context, value string) (*domain.Challenge, error) {
	challenge, expired, err := s.challenges.Consume(ctx, value)
	if err != nil {
		if cperrors.IsCode(err, cperrors.CodeNotFound) {
			return nil, cperrors.New(cperrors.CodeInvalidChallenge, "unknown or already used challenge")
		}
		return nil, err
	}
	if expired {
		return nil, cperrors.New(cperrors.CodeChallengeExpired, "challenge has expired")
	}
	return challenge, nil
}
