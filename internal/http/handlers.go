package http

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/openclave/certidp/internal/authn"
	"github.com/openclave/certidp/internal/ca"
	cperrors "github.com/openclave/certidp/internal/errors"
	"github.com/openclave/certidp/internal/metrics"
)

// ChallengeHandler serves login challenges.
type ChallengeHandler struct {
	challenges *authn.ChallengeService
	logger     *slog.Logger
}

// NewChallengeHandler creates a ChallengeHandler.
func NewChallengeHandler(challenges *authn.ChallengeService, logger *slog.Logger) *ChallengeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChallengeHandler{challenges: challenges, logger: logger}
}

type challengeResponse struct {
	Challenge string    `json:"challenge"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Get handles GET /challenge.
func (h *ChallengeHandler) Get(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.challenges.Issue(r.Context())
	if err != nil {
		h.logger.Error("challenge issuance failed", "error", err)
		writeError(w, err)
		return
	}
	metrics.RecordChallengeIssued()
	writeJSON(w, http.StatusOK, challengeResponse{
		Challenge: challenge.Value,
		ExpiresAt: challenge.ExpiresAt,
	})
}

// CertificateHandler serves issuance, renewal, revocation, and verification.
type CertificateHandler struct {
	issuer   *ca.Issuer
	verifier *ca.Verifier
	logger   *slog.Logger
}

// NewCertificateHandler creates a CertificateHandler.
func NewCertificateHandler(issuer *ca.Issuer, verifier *ca.Verifier, logger *slog.Logger) *CertificateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CertificateHandler{issuer: issuer, verifier: verifier, logger: logger}
}

type issueRequest struct {
	CommonName    string `json:"commonName" validate:"required"`
	Email         string `json:"email" validate:"omitempty,email"`
	UserID        string `json:"userId" validate:"required"`
	Password      string `json:"password" validate:"required,min=8"`
	ValidityYears int    `json:"validityYears" validate:"omitempty,min=1,max=10"`
}

type issueResponse struct {
	SerialNumber string    `json:"serialNumber"`
	Certificate  string    `json:"certificate"`
	Chain        []string  `json:"chain"`
	P12Base64    string    `json:"p12Base64"`
	DisplayName  string    `json:"displayName"`
	NotBefore    time.Time `json:"notBefore"`
	NotAfter     time.Time `json:"notAfter"`
}

func issueResponseFrom(result *ca.IssueResult) issueResponse {
	chain := make([]string, 0, len(result.ChainPEMs))
	for _, pem := range result.ChainPEMs {
		chain = append(chain, string(pem))
	}
	return issueResponse{
		SerialNumber: result.SerialNumber,
		Certificate:  string(result.CertificatePEM),
		Chain:        chain,
		P12Base64:    base64.StdEncoding.EncodeToString(result.PKCS12),
		DisplayName:  result.DisplayName,
		NotBefore:    result.NotBefore,
		NotAfter:     result.NotAfter,
	}
}

// Issue handles POST /certificates/issue.
func (h *CertificateHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ValidityYears == 0 {
		req.ValidityYears = 1
	}

	result, err := h.issuer.Issue(r.Context(), ca.Identity{
		CommonName: req.CommonName,
		Email:      req.Email,
		UserID:     req.UserID,
	}, req.Password, req.ValidityYears)
	if err != nil {
		h.logger.Info("certificate issuance failed", "user_id", req.UserID, "error", err)
		writeError(w, err)
		return
	}

	h.logger.Info("certificate issued", "serial", result.SerialNumber, "user_id", req.UserID)
	metrics.RecordCertificateIssued("new")
	writeJSON(w, http.StatusCreated, issueResponseFrom(result))
}

type renewRequest struct {
	SerialNumber  string `json:"serialNumber" validate:"required"`
	Password      string `json:"password" validate:"required,min=8"`
	ValidityYears int    `json:"validityYears" validate:"omitempty,min=1,max=10"`
}

// Renew handles POST /certificates/renew.
func (h *CertificateHandler) Renew(w http.ResponseWriter, r *http.Request) {
	var req renewRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ValidityYears == 0 {
		req.ValidityYears = 1
	}

	result, err := h.issuer.Renew(r.Context(), req.SerialNumber, req.Password, req.ValidityYears)
	if err != nil {
		h.logger.Info("certificate renewal failed", "serial", req.SerialNumber, "error", err)
		writeError(w, err)
		return
	}

	h.logger.Info("certificate renewed", "old_serial", req.SerialNumber, "new_serial", result.SerialNumber)
	metrics.RecordCertificateIssued("renewal")
	writeJSON(w, http.StatusOK, issueResponseFrom(result))
}

type revokeRequest struct {
	SerialNumber string `json:"serialNumber" validate:"required"`
	Reason       string `json:"reason"`
}

// Revoke handles POST /certificates/revoke.
func (h *CertificateHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.issuer.Revoke(r.Context(), req.SerialNumber, req.Reason); err != nil {
		h.logger.Info("certificate revocation failed", "serial", req.SerialNumber, "error", err)
		writeError(w, err)
		return
	}

	h.logger.Info("certificate revoked", "serial", req.SerialNumber)
	metrics.RecordCertificateRevoked()
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

type verifyRequest struct {
	Certificate string `json:"certificate" validate:"required"`
}

// Verify handles POST /certificate/verify.
func (h *CertificateHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.verifier.Verify(r.Context(), []byte(req.Certificate))
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordCertificateVerification(result.Valid)
	writeJSON(w, http.StatusOK, result)
}

// SignatureHandler serves the challenge-signature login endpoint.
type SignatureHandler struct {
	authenticator *authn.SignatureAuthenticator
	logger        *slog.Logger
}

// NewSignatureHandler creates a SignatureHandler.
func NewSignatureHandler(authenticator *authn.SignatureAuthenticator, logger *slog.Logger) *SignatureHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignatureHandler{authenticator: authenticator, logger: logger}
}

type signatureVerifyRequest struct {
	Challenge               string `json:"challenge" validate:"required"`
	Signature               string `json:"signature" validate:"required"`
	CertificateSerialNumber string `json:"certificateSerialNumber" validate:"required"`
}

type signatureVerifyResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Verify handles POST /auth/signature/verify.
func (h *SignatureHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req signatureVerifyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, cert, err := h.authenticator.Verify(r.Context(), req.Challenge, req.CertificateSerialNumber, req.Signature)
	if err != nil {
		h.logger.Info("signature login failed", "serial", req.CertificateSerialNumber, "error", cperrors.CodeOf(err))
		if cperrors.IsCode(err, cperrors.CodeRateLimited) {
			metrics.RecordSignatureVerification("locked")
		} else {
			metrics.RecordSignatureVerification("failure")
		}
		writeError(w, err)
		return
	}

	h.logger.Info("signature login succeeded", "serial", cert.SerialNumber, "user_id", user.ID)
	metrics.RecordSignatureVerification("success")
	writeJSON(w, http.StatusOK, signatureVerifyResponse{
		Success: true,
		User: userResponse{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
		},
	})
}
