package token

import (
	"strings"
	"testing"
	"time"

	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
)

var testUser = &domain.User{
	ID:          "user-1",
	Email:       "alice@example.org",
	DisplayName: "Alice",
	Active:      true,
}

func TestAccessTokenRoundTrip(t *testing.T) {
	gen := NewGenerator([]byte("test-secret"), "https://idp.example.org", time.Hour)

	access, err := gen.NewAccessToken(testUser, "client-1", "openid profile")
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	if access.JTI == "" {
		t.Error("expected a jti")
	}
	if strings.Count(access.Value, ".") != 2 {
		t.Errorf("token %q is not a compact JWT", access.Value)
	}

	claims, err := gen.ValidateAccessToken(access.Value)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("sub = %s", claims.Subject)
	}
	if claims.Email != "alice@example.org" {
		t.Errorf("email = %s", claims.Email)
	}
	if claims.Name != "Alice" {
		t.Errorf("name = %s", claims.Name)
	}
	if claims.Scope != "openid profile" {
		t.Errorf("scope = %s", claims.Scope)
	}
	if claims.ClientID != "client-1" {
		t.Errorf("client_id = %s", claims.ClientID)
	}
	if claims.Issuer != "https://idp.example.org" {
		t.Errorf("iss = %s", claims.Issuer)
	}
	if claims.ID != access.JTI {
		t.Errorf("jti = %s, want %s", claims.ID, access.JTI)
	}

	wantExpiry := time.Now().Add(time.Hour)
	if got := claims.ExpiresAt.Time; got.Before(wantExpiry.Add(-time.Minute)) || got.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("exp = %s, want about %s", got, wantExpiry)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	gen := NewGenerator([]byte("secret-a"), "https://idp.example.org", time.Hour)
	other := NewGenerator([]byte("secret-b"), "https://idp.example.org", time.Hour)

	access, err := gen.NewAccessToken(testUser, "client-1", "")
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	if _, err := other.ValidateAccessToken(access.Value); !cperrors.IsCode(err, cperrors.CodeUnauthorized) {
		t.Errorf("error = %v, want unauthorized", err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	gen := NewGenerator([]byte("test-secret"), "https://idp.example.org", -time.Minute)

	access, err := gen.NewAccessToken(testUser, "client-1", "")
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	if _, err := gen.ValidateAccessToken(access.Value); !cperrors.IsCode(err, cperrors.CodeUnauthorized) {
		t.Errorf("error = %v, want unauthorized", err)
	}
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	gen := NewGenerator([]byte("test-secret"), "https://a.example.org", time.Hour)
	validator := NewGenerator([]byte("test-secret"), "https://b.example.org", time.Hour)

	access, err := gen.NewAccessToken(testUser, "client-1", "")
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	if _, err := validator.ValidateAccessToken(access.Value); !cperrors.IsCode(err, cperrors.CodeUnauthorized) {
		t.Errorf("error = %v, want unauthorized", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	gen := NewGenerator([]byte("test-secret"), "https://idp.example.org", time.Hour)
	if _, err := gen.ValidateAccessToken("not.a.jwt"); !cperrors.IsCode(err, cperrors.CodeUnauthorized) {
		t.Errorf("error = %v, want unauthorized", err)
	}
}

func TestNewRefreshToken(t *testing.T) {
	first, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	second, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	if first == second {
		t.Error("refresh tokens must be unique")
	}
	if len(first) < 40 {
		t.Errorf("refresh token %q too short for 32 random bytes", first)
	}
	if strings.ContainsAny(first, "+/=") {
		t.Errorf("refresh token %q must be URL-safe", first)
	}
}
