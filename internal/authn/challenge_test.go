package authn

import (
	"context"
	"testing"
	"time"

	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
)

func TestChallengeIssue(t *testing.T) {
	svc, _ := newTestChallengeService(5 * time.Minute)
	ctx := context.Background()

	first, err := svc.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(first.Value) < 40 {
		t.Errorf("challenge value %q too short for 32 random bytes", first.Value)
	}
	if !first.ExpiresAt.After(first.CreatedAt) {
		t.Error("expiry must be after creation")
	}

	second, err := svc.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if first.Value == second.Value {
		t.Error("consecutive challenges must differ")
	}
}

func TestChallengeConsumeOnce(t *testing.T) {
	svc, _ := newTestChallengeService(5 * time.Minute)
	ctx := context.Background()

	issued, err := svc.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	consumed, err := svc.Consume(ctx, issued.Value)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if consumed.Value != issued.Value {
		t.Errorf("consumed %q, want %q", consumed.Value, issued.Value)
	}

	if _, err := svc.Consume(ctx, issued.Value); !cperrors.IsCode(err, cperrors.CodeInvalidChallenge) {
		t.Errorf("second consume: error = %v, want invalid_challenge", err)
	}
}

func TestChallengeConsumeUnknown(t *testing.T) {
	svc, _ := newTestChallengeService(5 * time.Minute)
	if _, err := svc.Consume(context.Background(), "never-issued"); !cperrors.IsCode(err, cperrors.CodeInvalidChallenge) {
		t.Errorf("error = %v, want invalid_challenge", err)
	}
}

func TestChallengeExpired(t *testing.T) {
	svc, repo := newTestChallengeService(5 * time.Minute)
	ctx := context.Background()

	stale := &domain.Challenge{
		Value:     "stale-challenge",
		CreatedAt: time.Now().Add(-10 * time.Minute),
		ExpiresAt: time.Now().Add(-5 * time.Minute),
	}
	if err := repo.Create(ctx, stale); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Peek(ctx, stale.Value); !cperrors.IsCode(err, cperrors.CodeChallengeExpired) {
		t.Errorf("Peek error = %v, want challenge_expired", err)
	}
	// Peeking an expired challenge removes it.
	if _, err := repo.Get(ctx, stale.Value); !cperrors.IsCode(err, cperrors.CodeNotFound) {
		t.Errorf("expired challenge should be gone after Peek, got %v", err)
	}

	stale2 := &domain.Challenge{
		Value:     "stale-challenge-2",
		CreatedAt: time.Now().Add(-10 * time.Minute),
		ExpiresAt: time.Now().Add(-5 * time.Minute),
	}
	if err := repo.Create(ctx, stale2); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Consume(ctx, stale2.Value); !cperrors.IsCode(err, cperrors.CodeChallengeExpired) {
		t.Errorf("Consume error = %v, want challenge_expired", err)
	}
	// Consuming an expired challenge removes it too.
	if _, err := repo.Get(ctx, stale2.Value); !cperrors.IsCode(err, cperrors.CodeNotFound) {
		t.Errorf("expired challenge should be gone after Consume, got %v", err)
	}
}

func TestChallengePeekDoesNotConsume(t *testing.T) {
	svc, _ := newTestChallengeService(5 * time.Minute)
	ctx := context.Background()

	issued, err := svc.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := svc.Peek(ctx, issued.Value); err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if _, err := svc.Peek(ctx, issued.Value); err != nil {
		t.Errorf("Peek must not consume: %v", err)
	}
	if _, err := svc.Consume(ctx, issued.Value); err != nil {
		t.Errorf("challenge should still be consumable: %v", err)
	}
}
