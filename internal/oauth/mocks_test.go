package oauth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openclave/certidp/internal/audit"
	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
	"github.com/openclave/certidp/internal/token"
)

type mockClientRepository struct {
	mu      sync.Mutex
	clients map[string]*domain.Client
}

func newMockClientRepository() *mockClientRepository {
	return &mockClientRepository{clients: make(map[string]*domain.Client)}
}

func (m *mockClientRepository) Create(ctx context.Context, c *domain.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c.ID]; ok {
		return cperrors.AlreadyExists("client", c.ID)
	}
	m.clients[c.ID] = c
	return nil
}

func (m *mockClientRepository) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, cperrors.NotFound("client", id)
	}
	return c, nil
}

func (m *mockClientRepository) Update(ctx context.Context, c *domain.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c.ID]; !ok {
		return cperrors.NotFound("client", c.ID)
	}
	m.clients[c.ID] = c
	return nil
}

func (m *mockClientRepository) List(ctx context.Context) ([]*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Client
	for _, c := range m.clients {
		out = append(out, c)
	}
	return out, nil
}

type mockAuthCodeRepository struct {
	mu    sync.Mutex
	codes map[string]*domain.AuthCode
}

func newMockAuthCodeRepository() *mockAuthCodeRepository {
	return &mockAuthCodeRepository{codes: make(map[string]*domain.AuthCode)}
}

func (m *mockAuthCodeRepository) Create(ctx context.Context, code *domain.AuthCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[code.Code] = code
	return nil
}

func (m *mockAuthCodeRepository) Consume(ctx context.Context, code string) (*domain.AuthCode, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ac, ok := m.codes[code]
	if !ok {
		return nil, false, cperrors.NotFound("auth code", code)
	}
	delete(m.codes, code)
	if ac.IsExpired() {
		return nil, true, cperrors.InvalidGrant("authorization code expired")
	}
	return ac, false, nil
}

func (m *mockAuthCodeRepository) DeleteExpired(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.codes {
		if v.IsExpired() {
			delete(m.codes, k)
		}
	}
	return nil
}

type mockTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.Token
}

func newMockTokenRepository() *mockTokenRepository {
	return &mockTokenRepository{tokens: make(map[string]*domain.Token)}
}

func (m *mockTokenRepository) Create(ctx context.Context, t *domain.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = t
	return nil
}

func (m *mockTokenRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (*domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.RefreshToken == refreshToken {
			return t, nil
		}
	}
	return nil, cperrors.NotFound("token", "refresh")
}

func (m *mockTokenRepository) GetByAccessJTI(ctx context.Context, jti string) (*domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.AccessJTI == jti {
			return t, nil
		}
	}
	return nil, cperrors.NotFound("token", jti)
}

func (m *mockTokenRepository) Revoke(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return cperrors.NotFound("token", id)
	}
	t.Revoked = true
	return nil
}

func (m *mockTokenRepository) DeleteByValue(ctx context.Context, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tokens {
		if t.RefreshToken == value || t.AccessJTI == value {
			delete(m.tokens, id)
			return nil
		}
	}
	return cperrors.NotFound("token", value)
}

func (m *mockTokenRepository) DeleteExpired(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tokens {
		if t.IsExpired() {
			delete(m.tokens, id)
		}
	}
	return nil
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

type fixture struct {
	authorize *AuthorizeService
	tokensvc  *TokenService
	clients   *mockClientRepository
	authCodes *mockAuthCodeRepository
	tokens    *mockTokenRepository
	users     *mockUserRepository
	generator *token.Generator
}

func newFixture() *fixture {
	clients := newMockClientRepository()
	authCodes := newMockAuthCodeRepository()
	tokens := newMockTokenRepository()
	users := newMockUserRepository()
	generator := token.NewGenerator([]byte("test-secret"), "https://idp.example.org", time.Hour)
	auditor := newTestAuditor()

	return &fixture{
		authorize: NewAuthorizeService(clients, authCodes, 10*time.Minute, auditor, nil),
		tokensvc:  NewTokenService(clients, authCodes, tokens, users, generator, 168*time.Hour, auditor, nil),
		clients:   clients,
		authCodes: authCodes,
		tokens:    tokens,
		users:     users,
		generator: generator,
	}
}
