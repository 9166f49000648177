package ca

import (
	"context"
	"log/slog"
	"sync"

	"github.com/openclave/certidp/internal/audit"
	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
)

// Mock authority repository

type mockAuthorityRepository struct {
	mu          sync.Mutex
	authorities []*domain.CertificateAuthority
}

func newMockAuthorityRepository() *mockAuthorityRepository {
	return &mockAuthorityRepository{}
}

func (m *mockAuthorityRepository) CreatePair(ctx context.Context, root, intermediate *domain.CertificateAuthority) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.authorities) > 0 {
		return cperrors.New(cperrors.CodeAlreadyInitialized, "certificate authority already initialized")
	}
	m.authorities = append(m.authorities, root, intermediate)
	return nil
}

func (m *mockAuthorityRepository) Get(ctx context.Context, level domain.CALevel) (*domain.CertificateAuthority, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ca := range m.authorities {
		if ca.Level == level {
			return ca, nil
		}
	}
	return nil, cperrors.NotFound("certificate authority", string(level))
}

func (m *mockAuthorityRepository) Initialized(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.authorities) > 0, nil
}

// Mock certificate repository

type mockCertificateRepository struct {
	mu    sync.Mutex
	certs map[string]*domain.Certificate
}

func newMockCertificateRepository() *mockCertificateRepository {
	return &mockCertificateRepository{certs: make(map[string]*domain.Certificate)}
}

func (m *mockCertificateRepository) Create(ctx context.Context, cert *domain.Certificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.certs[cert.SerialNumber]; ok {
		return cperrors.AlreadyExists("certificate", cert.SerialNumber)
	}
	m.certs[cert.SerialNumber] = cert
	return nil
}

func (m *mockCertificateRepository) GetBySerial(ctx context.Context, serial string) (*domain.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cert, ok := m.certs[serial]
	if !ok {
		return nil, cperrors.NotFound("certificate", serial)
	}
	return cert, nil
}

func (m *mockCertificateRepository) UpdateStatus(ctx context.Context, serial string, status domain.CertStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cert, ok := m.certs[serial]
	if !ok {
		return cperrors.NotFound("certificate", serial)
	}
	cert.Status = status
	return nil
}

func (m *mockCertificateRepository) ListByOwner(ctx context.Context, userID string) ([]*domain.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var certs []*domain.Certificate
	for _, c := range m.certs {
		if c.OwnerUserID == userID {
			certs = append(certs, c)
		}
	}
	return certs, nil
}

// Mock revocation repository

type mockRevocationRepository struct {
	mu      sync.Mutex
	entries map[string]*domain.RevocationEntry
}

func newMockRevocationRepository() *mockRevocationRepository {
	return &mockRevocationRepository{entries: make(map[string]*domain.RevocationEntry)}
}

func (m *mockRevocationRepository) Append(ctx context.Context, entry *domain.RevocationEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.SerialNumber]; ok {
		return cperrors.AlreadyExists("revocation", entry.SerialNumber)
	}
	m.entries[entry.SerialNumber] = entry
	return nil
}

func (m *mockRevocationRepository) GetBySerial(ctx context.Context, serial string) (*domain.RevocationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[serial]
	if !ok {
		return nil, cperrors.NotFound("revocation", serial)
	}
	return entry, nil
}

func (m *mockRevocationRepository) List(ctx context.Context) ([]*domain.RevocationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []*domain.RevocationEntry
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	return entries, nil
}

// Mock audit repository

type mockAuditRepository struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
}

func newMockAuditRepository() *mockAuditRepository {
	return &mockAuditRepository{}
}

func (m *mockAuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepository) List(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries, nil
}

func newTestAuditor() *audit.Auditor {
	return audit.New(newMockAuditRepository(), slog.Default())
}
