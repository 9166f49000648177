// Package audit records security-relevant events to the append-only audit
// trail and mirrors them to the structured log.
package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openclave/certidp/internal/domain"
	"github.com/openclave/certidp/internal/store"
)

// Event names recorded in the trail.
const (
	EventCAInitialized     = "CA_INITIALIZED"
	EventCertIssued        = "CERTIFICATE_ISSUED"
	EventCertRenewed       = "CERTIFICATE_RENEWED"
	EventCertRevoked       = "CERTIFICATE_REVOKED"
	EventCertVerified      = "CERTIFICATE_VERIFIED"
	EventChallengeIssued   = "CHALLENGE_ISSUED"
	EventSignatureVerified = "SIGNATURE_VERIFIED"
	EventSignatureRejected = "SIGNATURE_REJECTED"
	EventAuthCodeIssued    = "AUTH_CODE_ISSUED"
	EventTokenIssued       = "TOKEN_ISSUED"
	EventTokenRevoked      = "TOKEN_REVOKED"
	EventClientRegistered  = "CLIENT_REGISTERED"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Entry is a mutable builder for one audit line.
type Entry struct {
	Event        string
	SerialNumber string
	UserID       string
	ClientID     string
	Outcome      string
	Detail       string
	SourceIP     string
}

// Auditor writes entries to the audit repository and the log. A write
// failure is logged but never fails the operation being audited.
type Auditor struct {
	repo   store.AuditRepository
	logger *slog.Logger
}

// New creates an Auditor.
func New(repo store.AuditRepository, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{repo: repo, logger: logger}
}

// Record appends one entry. Detail fields never carry key material,
// passwords, or raw signature bytes; callers pass summaries only.
func (a *Auditor) Record(ctx context.Context, e Entry) {
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
	}

	a.logger.Info("audit",
		"event", e.Event,
		"outcome", e.Outcome,
		"serial_number", e.SerialNumber,
		"user_id", e.UserID,
		"client_id", e.ClientID,
		"detail", e.Detail,
		"source_ip", e.SourceIP,
	)

	entry := &domain.AuditEntry{
		ID:           uuid.New().String(),
		Event:        e.Event,
		SerialNumber: e.SerialNumber,
		UserID:       e.UserID,
		ClientID:     e.ClientID,
		Outcome:      e.Outcome,
		Detail:       e.Detail,
		SourceIP:     e.SourceIP,
	}
	if err := a.repo.Append(ctx, entry); err != nil {
		a.logger.Error("failed to append audit entry", "event", e.Event, "error", err)
	}
}
