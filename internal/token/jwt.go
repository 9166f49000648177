// Package token builds and validates the tokens handed out after a
// successful certificate login: HS256-signed JWT access tokens and opaque
// random refresh tokens.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
)

// refreshTokenBytes sizes the opaque refresh token value.
const refreshTokenBytes = 32

// Claims is the payload of an issued access token.
type Claims struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// AccessToken is a freshly signed access token together with the metadata
// callers persist and return.
type AccessToken struct {
	Value     string
	JTI       string
	ExpiresAt time.Time
}

// Generator signs and validates access tokens.
type Generator struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
}

// NewGenerator creates a Generator. All tokens are signed with the single
// shared secret and expire after accessTTL.
func NewGenerator(secret []byte, issuer string, accessTTL time.Duration) *Generator {
	return &Generator{
		secret:    secret,
		issuer:    issuer,
		accessTTL: accessTTL,
	}
}

// AccessTTL returns the configured access token lifetime.
func (g *Generator) AccessTTL() time.Duration {
	return g.accessTTL
}

// NewAccessToken creates a signed HS256 access token for user under client.
func (g *Generator) NewAccessToken(user *domain.User, clientID, scope string) (*AccessToken, error) {
	now := time.Now()
	jti := uuid.NewString()
	expiresAt := now.Add(g.accessTTL)

	claims := Claims{
		Email:    user.Email,
		Name:     user.DisplayName,
		Scope:    scope,
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    g.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return nil, cperrors.Internal("failed to sign access token", err)
	}

	return &AccessToken{
		Value:     signed,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateAccessToken parses and verifies an access token and returns its
// claims. Expired, malformed, or wrongly signed tokens fail with
// unauthorized.
func (g *Generator) ValidateAccessToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	}, jwt.WithIssuer(g.issuer))
	if err != nil {
		return nil, cperrors.Unauthorized("invalid access token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, cperrors.Unauthorized("invalid access token")
	}
	return claims, nil
}

// NewRefreshToken generates an opaque random refresh token value. It carries
// no structure; the stored record is the only source of truth.
func NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", cperrors.Internal("failed to generate refresh token", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
