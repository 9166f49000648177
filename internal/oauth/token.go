package oauth

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/openclave/certidp/internal/audit"
	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
	"github.com/openclave/certidp/internal/store"
	"github.com/openclave/certidp/internal/token"
)

const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// TokenRequest carries the parameters of a token endpoint call.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	RefreshToken string
}

// TokenResponse is the token endpoint's success payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// IntrospectionResponse follows RFC 7662. Only Active is set on inactive
// tokens; nothing else leaks.
type IntrospectionResponse struct {
	Active   bool   `json:"active"`
	Subject  string `json:"sub,omitempty"`
	Email    string `json:"email,omitempty"`
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Issuer   string `json:"iss,omitempty"`
	Expiry   int64  `json:"exp,omitempty"`
	JTI      string `json:"jti,omitempty"`
}

// TokenService exchanges authorization codes and refresh tokens for token
// pairs, and answers introspection and revocation calls.
type TokenService struct {
	clients    store.ClientRepository
	authCodes  store.AuthCodeRepository
	tokens     store.TokenRepository
	users      store.UserRepository
	generator  *token.Generator
	refreshTTL time.Duration
	auditor    *audit.Auditor
	logger     *slog.Logger
}

// NewTokenService creates a TokenService.
func NewTokenService(clients store.ClientRepository, authCodes store.AuthCodeRepository, tokens store.TokenRepository, users store.UserRepository, generator *token.Generator, refreshTTL time.Duration, auditor *audit.Auditor, logger *slog.Logger) *TokenService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenService{
		clients:    clients,
		authCodes:  authCodes,
		tokens:     tokens,
		users:      users,
		generator:  generator,
		refreshTTL: refreshTTL,
		auditor:    auditor,
		logger:     logger,
	}
}

// Exchange handles the token endpoint.
func (s *TokenService) Exchange(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	switch req.GrantType {
	case GrantAuthorizationCode:
		return s.exchangeCode(ctx, req)
	case GrantRefreshToken:
		return s.exchangeRefreshToken(ctx, req)
	default:
		return nil, cperrors.New(cperrors.CodeUnsupportedGrant, "grant_type must be authorization_code or refresh_token")
	}
}

func (s *TokenService) exchangeCode(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, cperrors.InvalidGrant("code is required")
	}

	if err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}

	// Atomic read-and-delete. A replayed or concurrently exchanged code
	// comes back not found; both are invalid_grant.
	code, expired, err := s.authCodes.Consume(ctx, req.Code)
	if err != nil {
		if cperrors.IsCode(err, cperrors.CodeNotFound) {
			return nil, cperrors.InvalidGrant("authorization code is invalid or already used")
		}
		if expired || cperrors.IsCode(err, cperrors.CodeInvalidGrant) {
			return nil, cperrors.InvalidGrant("authorization code has expired")
		}
		return nil, err
	}
	if expired {
		return nil, cperrors.InvalidGrant("authorization code has expired")
	}

	if req.ClientID != DefaultClientID && code.ClientID != req.ClientID {
		return nil, cperrors.InvalidGrant("authorization code was issued to a different client")
	}
	if code.RedirectURI != RedirectPostMessage && code.RedirectURI != req.RedirectURI {
		return nil, cperrors.InvalidGrant("redirect_uri does not match the authorization request")
	}
	if code.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			return nil, cperrors.InvalidGrant("code_verifier is required")
		}
		if !VerifyCodeChallenge(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier) {
			return nil, cperrors.InvalidGrant("code_verifier does not match the challenge")
		}
	}

	user, err := s.users.GetByID(ctx, code.UserID)
	if err != nil {
		if cperrors.IsCode(err, cperrors.CodeNotFound) {
			return nil, cperrors.InvalidGrant("user no longer exists")
		}
		return nil, err
	}
	if !user.Active {
		return nil, cperrors.InvalidGrant("user is inactive")
	}

	return s.issueTokens(ctx, user, code.ClientID, code.Scope)
}

func (s *TokenService) exchangeRefreshToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, cperrors.InvalidGrant("refresh_token is required")
	}
	if err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}

	record, err := s.tokens.GetByRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if cperrors.IsCode(err, cperrors.CodeNotFound) {
			return nil, cperrors.InvalidGrant("refresh token is invalid")
		}
		return nil, err
	}
	if !record.IsValid() {
		return nil, cperrors.InvalidGrant("refresh token is expired or revoked")
	}
	if req.ClientID != DefaultClientID && record.ClientID != req.ClientID {
		return nil, cperrors.InvalidGrant("refresh token was issued to a different client")
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if cperrors.IsCode(err, cperrors.CodeNotFound) {
			return nil, cperrors.InvalidGrant("user no longer exists")
		}
		return nil, err
	}
	if !user.Active {
		return nil, cperrors.InvalidGrant("user is inactive")
	}

	// Rotate: the old pair dies with the exchange.
	if err := s.tokens.Revoke(ctx, record.ID); err != nil && !cperrors.IsCode(err, cperrors.CodeNotFound) {
		return nil, err
	}

	return s.issueTokens(ctx, user, record.ClientID, record.Scope)
}

func (s *TokenService) issueTokens(ctx context.Context, user *domain.User, clientID, scope string) (*TokenResponse, error) {
	access, err := s.generator.NewAccessToken(user, clientID, scope)
	if err != nil {
		return nil, err
	}
	refresh, err := token.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := &domain.Token{
		ID:           uuid.NewString(),
		AccessJTI:    access.JTI,
		RefreshToken: refresh,
		UserID:       user.ID,
		ClientID:     clientID,
		Scope:        scope,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.refreshTTL),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry{
		Event:    audit.EventTokenIssued,
		UserID:   user.ID,
		ClientID: clientID,
		Outcome:  audit.OutcomeSuccess,
	})

	return &TokenResponse{
		AccessToken:  access.Value,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.generator.AccessTTL().Seconds()),
		RefreshToken: refresh,
		Scope:        scope,
	}, nil
}

// authenticateClient checks client credentials. The default client skips
// registration and secret checks entirely; registered public clients need no
// secret; confidential clients must present the right one.
func (s *TokenService) authenticateClient(ctx context.Context, clientID, clientSecret string) error {
	if clientID == "" {
		return cperrors.New(cperrors.CodeInvalidClient, "client_id is required")
	}
	if clientID == DefaultClientID {
		return nil
	}

	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		if cperrors.IsCode(err, cperrors.CodeNotFound) {
			return cperrors.New(cperrors.CodeInvalidClient, "unknown client")
		}
		return err
	}
	if client.Public || client.SecretHash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(clientSecret)); err != nil {
		return cperrors.New(cperrors.CodeInvalidClient, "invalid client credentials")
	}
	return nil
}

// Introspect reports whether a token is active, RFC 7662 style. Any failure
// along the way, including an unknown token, just reads as inactive.
func (s *TokenService) Introspect(ctx context.Context, tokenValue string) *IntrospectionResponse {
	inactive := &IntrospectionResponse{Active: false}
	if tokenValue == "" {
		return inactive
	}

	// Opaque refresh tokens first.
	if record, err := s.tokens.GetByRefreshToken(ctx, tokenValue); err == nil {
		if !record.IsValid() {
			return inactive
		}
		if _, err := s.users.GetByID(ctx, record.UserID); err != nil {
			return inactive
		}
		return &IntrospectionResponse{
			Active:   true,
			Subject:  record.UserID,
			Scope:    record.Scope,
			ClientID: record.ClientID,
			Expiry:   record.ExpiresAt.Unix(),
		}
	}

	claims, err := s.generator.ValidateAccessToken(tokenValue)
	if err != nil {
		return inactive
	}
	// The user must still exist.
	if _, err := s.users.GetByID(ctx, claims.Subject); err != nil {
		return inactive
	}
	// Signature validity is not the whole story; the record is checked so
	// revocation stays authoritative.
	record, err := s.tokens.GetByAccessJTI(ctx, claims.ID)
	if err != nil || record.Revoked {
		return inactive
	}

	return &IntrospectionResponse{
		Active:   true,
		Subject:  claims.Subject,
		Email:    claims.Email,
		Scope:    claims.Scope,
		ClientID: claims.ClientID,
		Issuer:   claims.Issuer,
		Expiry:   claims.ExpiresAt.Unix(),
		JTI:      claims.ID,
	}
}

// Revoke deletes the token record matching an access or refresh token value.
// Per RFC 7009 it succeeds whether or not anything matched.
func (s *TokenService) Revoke(ctx context.Context, tokenValue string) error {
	if tokenValue == "" {
		return nil
	}

	value := tokenValue
	// Access tokens are looked up by jti, not by the raw JWT.
	if claims, err := s.generator.ValidateAccessToken(tokenValue); err == nil {
		value = claims.ID
	}

	if err := s.tokens.DeleteByValue(ctx, value); err != nil {
		if !cperrors.IsCode(err, cperrors.CodeNotFound) {
			return err
		}
		return nil
	}

	s.auditor.Record(ctx, audit.Entry{
		Event:   audit.EventTokenRevoked,
		Outcome: audit.OutcomeSuccess,
	})
	return nil
}
