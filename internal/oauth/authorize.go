// Package oauth implements the authorization-code grant on top of
// certificate authentication: code issuance, token exchange with PKCE,
// introspection, and revocation.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/url"
	"time"

	"github.com/openclave/certidp/internal/audit"
	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
	"github.com/openclave/certidp/internal/store"
)

const (
	// DefaultClientID bypasses client registration and secret checks.
	// First-party trust decision: requests naming this client are treated
	// as a public client with any redirect URI.
	DefaultClientID = "default"

	// RedirectPostMessage marks a non-redirect, same-process flow. Codes
	// issued with it skip redirect URI matching at exchange.
	RedirectPostMessage = "postmessage"

	authCodeBytes = 32
)

// AuthorizeRequest carries the parameters of an authorization request.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AuthorizeService validates authorization requests and mints codes.
type AuthorizeService struct {
	clients   store.ClientRepository
	authCodes store.AuthCodeRepository
	codeTTL   time.Duration
	auditor   *audit.Auditor
	logger    *slog.Logger
}

// NewAuthorizeService creates an AuthorizeService. Codes expire after codeTTL.
func NewAuthorizeService(clients store.ClientRepository, authCodes store.AuthCodeRepository, codeTTL time.Duration, auditor *audit.Auditor, logger *slog.Logger) *AuthorizeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizeService{
		clients:   clients,
		authCodes: authCodes,
		codeTTL:   codeTTL,
		auditor:   auditor,
		logger:    logger,
	}
}

// ValidateRequest checks an incoming authorization request before the user
// is sent into certificate authentication.
func (s *AuthorizeService) ValidateRequest(ctx context.Context, req *AuthorizeRequest) error {
	if req.ClientID == "" {
		return cperrors.InvalidInput("client_id is required")
	}
	if req.ResponseType != "code" {
		return cperrors.InvalidInput("response_type must be code")
	}
	if req.CodeChallenge != "" {
		switch req.CodeChallengeMethod {
		case "", "plain", "S256":
		default:
			return cperrors.InvalidInput("code_challenge_method must be plain or S256")
		}
	}

	if req.ClientID == DefaultClientID {
		return nil
	}

	client, err := s.clients.GetByID(ctx, req.ClientID)
	if err != nil {
		if cperrors.IsCode(err, cperrors.CodeNotFound) {
			return cperrors.New(cperrors.CodeInvalidClient, "unknown client")
		}
		return err
	}
	if req.RedirectURI != RedirectPostMessage && !client.AllowsRedirectURI(req.RedirectURI) {
		return cperrors.InvalidInput("redirect_uri is not registered for this client")
	}
	return nil
}

// CreateCode mints an authorization code for userID after certificate
// authentication succeeded. The request must already have passed
// ValidateRequest.
func (s *AuthorizeService) CreateCode(ctx context.Context, userID string, req *AuthorizeRequest) (*domain.AuthCode, error) {
	if err := s.ValidateRequest(ctx, req); err != nil {
		return nil, err
	}

	buf := make([]byte, authCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, cperrors.Internal("failed to generate authorization code", err)
	}

	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" && method == "" {
		method = "plain"
	}

	now := time.Now()
	code := &domain.AuthCode{
		Code:                base64.RawURLEncoding.EncodeToString(buf),
		ClientID:            req.ClientID,
		UserID:              userID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.codeTTL),
	}
	if err := s.authCodes.Create(ctx, code); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry{
		Event:    audit.EventAuthCodeIssued,
		UserID:   userID,
		ClientID: req.ClientID,
		Outcome:  audit.OutcomeSuccess,
	})
	return code, nil
}

// RedirectURL builds the redirect target carrying the code and state back to
// the client. Not used for postmessage flows.
func RedirectURL(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", cperrors.InvalidInput("redirect_uri is not a valid URL")
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// VerifyCodeChallenge checks a PKCE verifier against the challenge the code
// was issued with. S256 compares base64url(SHA-256(verifier)); plain
// compares the verifier itself. Comparison is constant time.
func VerifyCodeChallenge(challenge, method, verifier string) bool {
	var derived string
	switch method {
	case "S256":
		sum := sha256.Sum256([]byte(verifier))
		derived = base64.RawURLEncoding.EncodeToString(sum[:])
	default: // plain
		derived = verifier
	}
	return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
}
