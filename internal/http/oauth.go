package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/openclave/certidp/internal/authn"
	cperrors "github.com/openclave/certidp/internal/errors"
	"github.com/openclave/certidp/internal/metrics"
	"github.com/openclave/certidp/internal/oauth"
)

// loginPath is where the authorization endpoint sends the user agent to
// perform certificate authentication. The UI behind it is not part of this
// service.
const loginPath = "/auth/login"

// OAuthHandler serves the OAuth 2.0 endpoints.
type OAuthHandler struct {
	authorize     *oauth.AuthorizeService
	tokens        *oauth.TokenService
	authenticator *authn.SignatureAuthenticator
	logger        *slog.Logger
}

// NewOAuthHandler creates an OAuthHandler.
func NewOAuthHandler(authorize *oauth.AuthorizeService, tokens *oauth.TokenService, authenticator *authn.SignatureAuthenticator, logger *slog.Logger) *OAuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OAuthHandler{
		authorize:     authorize,
		tokens:        tokens,
		authenticator: authenticator,
		logger:        logger,
	}
}

func authorizeRequestFromQuery(r *http.Request) *oauth.AuthorizeRequest {
	q := r.URL.Query()
	return &oauth.AuthorizeRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}
}

// Authorize handles GET /oauth/authorize. A valid request is forwarded into
// certificate authentication with its parameters intact.
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	req := authorizeRequestFromQuery(r)

	if err := h.authorize.ValidateRequest(r.Context(), req); err != nil {
		h.logger.Info("authorization request rejected", "client_id", req.ClientID, "error", err)
		writeError(w, err)
		return
	}

	http.Redirect(w, r, loginPath+"?"+r.URL.RawQuery, http.StatusFound)
}

type authorizeCompleteRequest struct {
	Challenge               string `json:"challenge" validate:"required"`
	Signature               string `json:"signature" validate:"required"`
	CertificateSerialNumber string `json:"certificateSerialNumber" validate:"required"`
	ClientID                string `json:"clientId" validate:"required"`
	RedirectURI             string `json:"redirectUri" validate:"required"`
	Scope                   string `json:"scope"`
	State                   string `json:"state"`
	CodeChallenge           string `json:"codeChallenge"`
	CodeChallengeMethod     string `json:"codeChallengeMethod"`
}

type authorizeCompleteResponse struct {
	Code        string `json:"code"`
	State       string `json:"state,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// AuthorizeComplete handles POST /oauth/authorize/complete: a signed
// challenge plus the carried-forward authorization parameters become an
// authorization code.
func (h *OAuthHandler) AuthorizeComplete(w http.ResponseWriter, r *http.Request) {
	var req authorizeCompleteRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, _, err := h.authenticator.Verify(r.Context(), req.Challenge, req.CertificateSerialNumber, req.Signature)
	if err != nil {
		h.logger.Info("authorization login failed", "serial", req.CertificateSerialNumber, "error", cperrors.CodeOf(err))
		writeError(w, err)
		return
	}

	code, err := h.authorize.CreateCode(r.Context(), user.ID, &oauth.AuthorizeRequest{
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		ResponseType:        "code",
		Scope:               req.Scope,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordAuthCodeIssued()
	resp := authorizeCompleteResponse{Code: code.Code, State: req.State}
	if req.RedirectURI != oauth.RedirectPostMessage {
		redirectURL, err := oauth.RedirectURL(req.RedirectURI, code.Code, req.State)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.RedirectURL = redirectURL
	}
	writeJSON(w, http.StatusOK, resp)
}

// Token handles POST /oauth/token. The request is form encoded per RFC 6749.
func (h *OAuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeTokenError(w, "invalid_request", "malformed form body", http.StatusBadRequest)
		return
	}

	req := &oauth.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
	}

	resp, err := h.tokens.Exchange(r.Context(), req)
	if err != nil {
		h.logger.Info("token request failed", "grant_type", req.GrantType, "client_id", req.ClientID, "error", err)
		code, status := oauthErrorFor(err)
		h.writeTokenError(w, code, cperrors.MessageOf(err), status)
		return
	}

	h.logger.Info("tokens issued", "grant_type", req.GrantType, "client_id", req.ClientID)
	metrics.RecordTokenIssued(req.GrantType)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	json.NewEncoder(w).Encode(resp)
}

// Introspect handles POST /oauth/introspect. The response shape never
// varies with why a token is inactive.
func (h *OAuthHandler) Introspect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusOK, oauth.IntrospectionResponse{Active: false})
		return
	}

	info := h.tokens.Introspect(r.Context(), r.PostFormValue("token"))
	metrics.RecordTokenIntrospection(info.Active)
	writeJSON(w, http.StatusOK, info)
}

// Revoke handles POST /oauth/revoke. Per RFC 7009 the response is 200
// whether or not the token existed.
func (h *OAuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.tokens.Revoke(r.Context(), r.PostFormValue("token")); err != nil {
		// Storage faults are the one thing that still surfaces.
		h.logger.Error("token revocation failed", "error", err)
		writeError(w, err)
		return
	}

	metrics.RecordTokenRevocation()
	w.WriteHeader(http.StatusOK)
}

// oauthErrorFor maps an internal error to the RFC 6749 error code and HTTP
// status for the token endpoint.
func oauthErrorFor(err error) (string, int) {
	switch cperrors.CodeOf(err) {
	case cperrors.CodeInvalidClient:
		return "invalid_client", http.StatusUnauthorized
	case cperrors.CodeUnsupportedGrant:
		return "unsupported_grant_type", http.StatusBadRequest
	case cperrors.CodeInvalidGrant:
		return "invalid_grant", http.StatusBadRequest
	case cperrors.CodeInvalidInput:
		return "invalid_request", http.StatusBadRequest
	default:
		return "server_error", http.StatusInternalServerError
	}
}

func (h *OAuthHandler) writeTokenError(w http.ResponseWriter, errorCode, errorDesc string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": errorDesc,
	})
}
