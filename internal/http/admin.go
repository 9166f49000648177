package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/openclave/certidp/internal/audit"
	"github.com/openclave/certidp/internal/ca"
	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
	"github.com/openclave/certidp/internal/store"
)

// AdminHandler serves the administrative endpoints. The router wraps these
// in AdminAuthMiddleware.
type AdminHandler struct {
	caStore *ca.Store
	clients store.ClientRepository
	auditor *audit.Auditor
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(caStore *ca.Store, clients store.ClientRepository, auditor *audit.Auditor, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		caStore: caStore,
		clients: clients,
		auditor: auditor,
		logger:  logger,
	}
}

type caInitRequest struct {
	RootCommonName            string `json:"rootCommonName" validate:"required"`
	IntermediateCommonName    string `json:"intermediateCommonName" validate:"required"`
	Organization              string `json:"organization"`
	Country                   string `json:"country" validate:"omitempty,len=2"`
	RootValidityYears         int    `json:"rootValidityYears" validate:"omitempty,min=1,max=30"`
	IntermediateValidityYears int    `json:"intermediateValidityYears" validate:"omitempty,min=1,max=20"`
}

type caInitResponse struct {
	RootSerialNumber         string `json:"rootSerialNumber"`
	RootSubjectDN            string `json:"rootSubjectDn"`
	IntermediateSerialNumber string `json:"intermediateSerialNumber"`
	IntermediateSubjectDN    string `json:"intermediateSubjectDn"`
	RootCertificate          string `json:"rootCertificate"`
	IntermediateCertificate  string `json:"intermediateCertificate"`
}

// InitCA handles POST /admin/ca/init. It succeeds exactly once per
// deployment.
func (h *AdminHandler) InitCA(w http.ResponseWriter, r *http.Request) {
	var req caInitRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.RootValidityYears == 0 {
		req.RootValidityYears = 20
	}
	if req.IntermediateValidityYears == 0 {
		req.IntermediateValidityYears = 10
	}

	rootSubject := ca.Subject{
		CommonName:   req.RootCommonName,
		Organization: req.Organization,
		Country:      req.Country,
	}
	intermediateSubject := ca.Subject{
		CommonName:   req.IntermediateCommonName,
		Organization: req.Organization,
		Country:      req.Country,
	}

	root, intermediate, err := h.caStore.Initialize(r.Context(), rootSubject, intermediateSubject, req.RootValidityYears, req.IntermediateValidityYears)
	if err != nil {
		h.logger.Info("CA initialization failed", "error", err)
		writeError(w, err)
		return
	}

	h.logger.Info("CA initialized", "root_serial", root.SerialNumber, "intermediate_serial", intermediate.SerialNumber)
	h.auditor.Record(r.Context(), audit.Entry{
		Event:        audit.EventCAInitialized,
		SerialNumber: root.SerialNumber,
		Outcome:      audit.OutcomeSuccess,
	})

	writeJSON(w, http.StatusCreated, caInitResponse{
		RootSerialNumber:         root.SerialNumber,
		RootSubjectDN:            root.SubjectDN,
		IntermediateSerialNumber: intermediate.SerialNumber,
		IntermediateSubjectDN:    intermediate.SubjectDN,
		RootCertificate:          string(root.CertificatePEM),
		IntermediateCertificate:  string(intermediate.CertificatePEM),
	})
}

type clientCreateRequest struct {
	Name         string   `json:"name" validate:"required"`
	Secret       string   `json:"secret" validate:"omitempty,min=16"`
	RedirectURIs []string `json:"redirectUris" validate:"required,min=1,dive,uri"`
}

type clientCreateResponse struct {
	ClientID     string   `json:"clientId"`
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirectUris"`
	Public       bool     `json:"public"`
}

// CreateClient handles POST /admin/clients. A request without a secret
// registers a public client.
func (h *AdminHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req clientCreateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var secretHash string
	if req.Secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Secret), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, cperrors.Internal("failed to hash client secret", err))
			return
		}
		secretHash = string(hash)
	}

	now := time.Now()
	client := &domain.Client{
		ID:           uuid.NewString(),
		SecretHash:   secretHash,
		Name:         req.Name,
		RedirectURIs: req.RedirectURIs,
		Public:       secretHash == "",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.clients.Create(r.Context(), client); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("client registered", "client_id", client.ID, "name", client.Name, "public", client.Public)
	h.auditor.Record(r.Context(), audit.Entry{
		Event:    audit.EventClientRegistered,
		ClientID: client.ID,
		Outcome:  audit.OutcomeSuccess,
	})

	writeJSON(w, http.StatusCreated, clientCreateResponse{
		ClientID:     client.ID,
		Name:         client.Name,
		RedirectURIs: client.RedirectURIs,
		Public:       client.Public,
	})
}
