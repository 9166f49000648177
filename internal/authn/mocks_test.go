package authn

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openclave/certidp/internal/audit"
	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
)

type mockChallengeRepository struct {
	mu         sync.Mutex
	challenges map[string]*domain.Challenge
}

func newMockChallengeRepository() *mockChallengeRepository {
	return &mockChallengeRepository{challenges: make(map[string]*domain.Challenge)}
}

func (m *mockChallengeRepository) Create(ctx context.Context, c *domain.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenges[c.Value] = c
	return nil
}

func (m *mockChallengeRepository) Get(ctx context.Context, value string) (*domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[value]
	if !ok {
		return nil, cperrors.NotFound("challenge", value)
	}
	return c, nil
}

func (m *mockChallengeRepository) Consume(ctx context.Context, value string) (*domain.Challenge, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[value]
	if !ok {
		return nil, false, cperrors.NotFound("challenge", value)
	}
	delete(m.challenges, value)
	if c.IsExpired() {
		return nil, true, cperrors.New(cperrors.CodeChallengeExpired, "challenge expired")
	}
	return c, false, nil
}

func (m *mockChallengeRepository) DeleteExpired(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for v, c := range m.challenges {
		if c.IsExpired() {
			delete(m.challenges, v)
		}
	}
	return nil
}

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
	var out []*domain.Certificate
	for _, c := range m.certs {
		if c.OwnerUserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

type mockUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*domain.User)}
}

func (m *mockUserRepository) Create(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return cperrors.AlreadyExists("user", u.ID)
	}
	m.users[u.ID] = u
	return nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, cperrors.NotFound("user", id)
	}
	return u, nil
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, cperrors.NotFound("user", email)
}

func (m *mockUserRepository) Update(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return cperrors.NotFound("user", u.ID)
	}
	m.users[u.ID] = u
	return nil
}

func (m *mockUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

type mockAuditRepository struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
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
	return audit.New(&mockAuditRepository{}, slog.Default())
}

func newTestChallengeService(ttl time.Duration) (*ChallengeService, *mockChallengeRepository) {
	repo := newMockChallengeRepository()
	return NewChallengeService(repo, ttl, newTestAuditor(), nil), repo
}
