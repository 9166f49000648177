// Package domain defines the core types for the certificate authority and
// the certificate-authenticated authorization server.
package domain

import (
	"time"
)

// CALevel identifies a certificate authority's position in the hierarchy.
type CALevel string

const (
	CALevelRoot         CALevel = "root"
	CALevelIntermediate CALevel = "intermediate"
)

// CertificateAuthority holds the persisted material for one CA level.
// Exactly one active root and one active intermediate exist per deployment.
type CertificateAuthority struct {
	Level          CALevel   `json:"level"`
	SerialNumber   string    `json:"serial_number"`
	SubjectDN      string    `json:"subject_dn"`
	CertificatePEM []byte    `json:"certificate_pem"`
	PrivateKeyPEM  []byte    `json:"private_key_pem"`
	NotBefore      time.Time `json:"not_before"`
	NotAfter       time.Time `json:"not_after"`
	CreatedAt      time.Time `json:"created_at"`
}

// CertStatus is the lifecycle state of an end-entity certificate.
type CertStatus string

const (
	CertStatusActive  CertStatus = "active"
	CertStatusExpired CertStatus = "expired"
	CertStatusRevoked CertStatus = "revoked"
	CertStatusRenewed CertStatus = "renewed"
)

// Certificate is the server-side record of an issued end-entity certificate.
// The private key is never part of this record; it leaves the server exactly
// once, inside the issuance result handed to the holder.
type Certificate struct {
	SerialNumber string     `json:"serial_number"`
	SubjectDN    string     `json:"subject_dn"`
	IssuerDN     string     `json:"issuer_dn"`
	CommonName   string     `json:"common_name"` // decoded, original form
	Email        string     `json:"email,omitempty"`
	OwnerUserID  string     `json:"owner_user_id"`
	PublicKeyPEM []byte     `json:"public_key_pem"`
	Status       CertStatus `json:"status"`
	NotBefore    time.Time  `json:"not_before"`
	NotAfter     time.Time  `json:"not_after"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsExpired checks if the certificate's validity window has passed.
func (c *Certificate) IsExpired() bool {
	return time.Now().After(c.NotAfter)
}

// EffectiveStatus derives the status at read time: an Active record past its
// NotAfter reports Expired without a stored transition. Revoked and Renewed
// are terminal and never recomputed.
func (c *Certificate) EffectiveStatus() CertStatus {
	if c.Status == CertStatusActive && c.IsExpired() {
		return CertStatusExpired
	}
	return c.Status
}

// RevocationEntry is an append-only record of a revoked certificate. Its
// existence is authoritative regardless of the certificate record's status
// field; verification checks both.
type RevocationEntry struct {
	SerialNumber string    `json:"serial_number"`
	Reason       string    `json:"reason"`
	RevokedAt    time.Time `json:"revoked_at"`
}

// Challenge is a one-time random value a client signs to authenticate.
type Challenge struct {
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired checks if the challenge has expired.
func (c *Challenge) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// User represents an identity certificates are issued to.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Client represents an OAuth 2.0 client application.
type Client struct {
	ID           string    `json:"id"`
	SecretHash   string    `json:"secret_hash,omitempty"` // bcrypt; empty for public clients
	Name         string    `json:"name"`
	RedirectURIs []string  `json:"redirect_uris"`
	Public       bool      `json:"public"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AllowsRedirectURI reports whether uri is registered for the client.
// Matching is exact.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// AuthCode represents an OAuth 2.0 authorization code bound to a
// certificate-authenticated user.
type AuthCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	UserID              string    `json:"user_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"` // plain or S256
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// IsExpired checks if the authorization code has expired.
func (a *AuthCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// Token is the server-side record of an issued token pair. The access token
// is a stateless JWT tracked by its jti so revocation can be authoritative;
// the refresh token is the opaque value itself.
type Token struct {
	ID           string    `json:"id"`
	AccessJTI    string    `json:"access_jti"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UserID       string    `json:"user_id"`
	ClientID     string    `json:"client_id"`
	Scope        string    `json:"scope"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"` // refresh token expiry
	Revoked      bool      `json:"revoked"`
}

// IsExpired checks if the refresh token has expired.
func (t *Token) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsValid checks if the token record is usable (not expired and not revoked).
func (t *Token) IsValid() bool {
	return !t.IsExpired() && !t.Revoked
}

// AuditEntry is one line in the append-only audit trail.
type AuditEntry struct {
	ID           string    `json:"id"`
	Event        string    `json:"event"`
	SerialNumber string    `json:"serial_number,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	Outcome      string    `json:"outcome"`
	Detail       string    `json:"detail,omitempty"`
	SourceIP     string    `json:"source_ip,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
