// Package file implements file-based storage using JSON files.
//
// One mutex guards every read-modify-write, so consume-style operations
// (challenges, authorization codes) are atomic across concurrent handlers
// within a process. Deployments running more than one instance point the
// ephemeral repositories at Redis instead.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
	"github.com/openclave/certidp/internal/store"
)

// Store implements store.Store using JSON files for persistence.
type Store struct {
	dataDir string
	mu      sync.RWMutex

	users        *userRepository
	authorities  *authorityRepository
	certificates *certificateRepository
	revocations  *revocationRepository
	challenges   *challengeRepository
	clients      *clientRepository
	authCodes    *authCodeRepository
	tokens       *tokenRepository
	audit        *auditRepository
}

// NewStore creates a new file-based store.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{
		dataDir: dataDir,
	}

	s.users = &userRepository{store: s}
	s.authorities = &authorityRepository{store: s}
	s.certificates = &certificateRepository{store: s}
	s.revocations = &revocationRepository{store: s}
	s.challenges = &challengeRepository{store: s}
	s.clients = &clientRepository{store: s}
	s.authCodes = &authCodeRepository{store: s}
	s.tokens = &tokenRepository{store: s}
	s.audit = &auditRepository{store: s}

	return s, nil
}

func (s *Store) Users() store.UserRepository               { return s.users }
func (s *Store) Authorities() store.AuthorityRepository    { return s.authorities }
func (s *Store) Certificates() store.CertificateRepository { return s.certificates }
func (s *Store) Revocations() store.RevocationRepository   { return s.revocations }
func (s *Store) Challenges() store.ChallengeRepository     { return s.challenges }
func (s *Store) Clients() store.ClientRepository           { return s.clients }
func (s *Store) AuthCodes() store.AuthCodeRepository       { return s.authCodes }
func (s *Store) Tokens() store.TokenRepository             { return s.tokens }
func (s *Store) Audit() store.AuditRepository              { return s.audit }
func (s *Store) Close() error                              { return nil }

// Helper methods for file operations. Callers hold the appropriate lock.

func (s *Store) filePath(name string) string {
	return filepath.Join(s.dataDir, name+".json")
}

func (s *Store) readFile(name string, v any) error {
	data, err := os.ReadFile(s.filePath(name))
	if os.IsNotExist(err) {
		return nil // Empty collection
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Store) writeFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath(name), data, 0600)
}

// User Repository

type userRepository struct {
	store *Store
}

type usersData struct {
	Users []*domain.User `json:"users"`
}

func (r *userRepository) load() (*usersData, error) {
	var data usersData
	if err := r.store.readFile("users", &data); err != nil {
		return nil, err
	}
	if data.Users == nil {
		data.Users = []*domain.User{}
	}
	return &data, nil
}

func (r *userRepository) save(data *usersData) error {
	return r.store.writeFile("users", data)
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load users", err)
	}

	for _, u := range data.Users {
		if u.ID == user.ID {
			return cperrors.AlreadyExists("user", user.ID)
		}
		if user.Email != "" && u.Email == user.Email {
			return cperrors.AlreadyExists("user with email", user.Email)
		}
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	data.Users = append(data.Users, user)

	return r.save(data)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	data, err := r.load()
	if err != nil {
		return nil, cperrors.Internal("failed to load users", err)
	}

	for _, u := range data.Users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, cperrors.NotFound("user", id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	data, err := r.load()
	if err != nil {
		return nil, cperrors.Internal("failed to load users", err)
	}

	for _, u := range data.Users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, cperrors.NotFound("user with email", email)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load users", err)
	}

	for i, u := range data.Users {
		if u.ID == user.ID {
			user.UpdatedAt = time.Now()
			data.Users[i] = user
			return r.save(data)
		}
	}
	return cperrors.NotFound("user", user.ID)
}

func (r *userRepository) List(ctx context.Context) ([]*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	data, err := r.load()
	if err != nil {
		return nil, cperrors.Internal("failed to load users", err)
	}
	return data.Users, nil
}

// Authority Repository

type authorityRepository struct {
	store *Store
}

type authoritiesData struct {
	Authorities []*domain.CertificateAuthority `json:"authorities"`
}

func (r *authorityRepository) load() (*authoritiesData, error) {
	var data authoritiesData
	if err := r.store.readFile("authorities", &data); err != nil {
		return nil, err
	}
	if data.Authorities == nil {
		data.Authorities = []*domain.CertificateAuthority{}
	}
	return &data, nil
}

func (r *authorityRepository) save(data *authoritiesData) error {
	return r.store.writeFile("authorities", data)
}

func (r *authorityRepository) CreatePair(ctx context.Context, root, intermediate *domain.CertificateAuthority) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load authorities", err)
	}

	// Singleton guard: any existing authority means initialization happened.
	if len(data.Authorities) > 0 {
		return cperrors.New(cperrors.CodeAlreadyInitialized, "certificate authority already initialized")
	}

	now := time.Now()
	root.CreatedAt = now
	intermediate.CreatedAt = now
	data.Authorities = append(data.Authorities, root, intermediate)

	return r.save(data)
}

func (r *authorityRepository) Get(ctx context.Context, level domain.CALevel) (*domain.CertificateAuthority, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	data, err := r.load()
	if err != nil {
		return nil, cperrors.Internal("failed to load authorities", err)
	}

	for _, ca := range data.Authorities {
		if ca.Level == level {
			return ca, nil
		}
	}
	return nil, cperrors.NotFound("certificate authority", string(level))
}

func (r *authorityRepository) Initialized(ctx context.Context) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	data, err := r.load()
	if err != nil {
		return false, cperrors.Internal("failed to load authorities", err)
	}
	return len(data.Authorities) > 0, nil
}

// Certificate Repository

type certificateRepository struct {
	store *Store
}

type certificatesData struct {
	Certificates []*domain.Certificate `json:"certificates"`
}

func (r *certificateRepository) load() (*certificatesData, error) {
	var data certificatesData
	if err := r.store.readFile("certificates", &data); err != nil {
		return nil, err
	}
	if data.Certificates == nil {
		data.Certificates = []*domain.Certificate{}
	}
	return &data, nil
}

func (r *certificateRepository) save(data *certificatesData) error {
	return r.store.writeFile("certificates", data)
}

func (r *certificateRepository) Create(ctx context.Context, cert *domain.Certificate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load certificates", err)
	}

	for _, c := range data.Certificates {
		if c.SerialNumber == cert.SerialNumber {
			return cperrors.AlreadyExists("certificate", cert.SerialNumber)
		}
	}

	now := time.Now()
	cert.CreatedAt = now
	cert.UpdatedAt = now
	data.Certificates = append(data.Certificates, cert)

	return r.save(data)
}

func (r *certificateRepository) GetBySerial(ctx context.Context, serial string) (*domain.Certificate, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	data, err := r.load()
	if err != nil {
		return nil, cperrors.Internal("failed to load certificates", err)
	}

	for _, c := range data.Certificates {
		if c.SerialNumber == serial {
			return c, nil
		}
	}
	return nil, cperrors.NotFound("certificate", serial)
}

func (r *certificateRepository) UpdateStatus(ctx context.Context, serial string, status domain.CertStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load certificates", err)
	}

	for _, c := range data.Certificates {
		if c.SerialNumber == serial {
			c.Status = status
			c.UpdatedAt = time.Now()
			return r.save(data)
		}
	}
	return cperrors.NotFound("certificate", serial)
}

func (r *certificateRepository) ListByOwner(ctx context.Context, userID string) ([]*domain.Certificate, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	data, err := r.load()
	if err != nil {
		return nil, cperrors.Internal("failed to load certificates", err)
	}

	var certs []*domain.Certificate
	for _, c := range data.Certificates {
		if c.OwnerUserID == userID {
			certs = append(certs, c)
		}
	}
	return certs, nil
}

// Revocation Repository

type revocationRepository struct {
	store *Store
}

type revocationsData struct {
	Revocations []*domain.RevocationEntry `json:"revocations"`
}

func (r *revocationRepository) load() (*revocationsData, error) {
	var data revocationsData
	if err := r.store.readFile("revocations", &data); err != nil {
		return nil, err
	}
	if data.Revocations == nil {
		data.Revocations = []*domain.RevocationEntry{}
	}
	return &data, nil
}

func (r *revocationRepository) save(data *revocationsData) error {
	return r.store.writeFile("revocations", data)
}

func (r *revocationRepository) Append(ctx context.Context, entry *domain.RevocationEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load revocations", err)
	}

	for _, e := range data.Revocations {
		if e.SerialNumber == entry.SerialNumber {
			return cperrors.AlreadyExists("revocation", entry.SerialNumber)
		}
	}

	data.Revocations = append(data.Revocations, entry)
	return r.save(data)
}

func (r *revocationRepository) GetBySerial(ctx context.Context, serial string) (*domain.RevocationEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	data, err := r.load()
	if err != nil {
		return nil, cperrors.Internal("failed to load revocations", err)
	}

	for _, e := range data.Revocations {
		if e.SerialNumber == serial {
			return e, nil
		}
	}
	return nil, cperrors.NotFound("revocation", serial)
}

func (r *revocationRepository) List(ctx context.Context) ([]*domain.RevocationEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	data, err := r.load()
	if err != nil {
		return nil, cperrors.Internal("failed to load revocations", err)
	}
	return data.Revocations, nil
}

// Challenge Repository

type challengeRepository struct {
	store *Store
}

type challengesData struct {
	Challenges []*domain.Challenge `json:"challenges"`
}

func (r *challengeRepository) load() (*challengesData, error) {
	var data challengesData
	if err := r.store.readFile("challenges", &data); err != nil {
		return nil, err
	}
	if data.Challenges == nil {
		data.Challenges = []*domain.Challenge{}
	}
	return &data, nil
}

func (r *challengeRepository) save(data *challengesData) error {
	return r.store.writeFile("challenges", data)
}

func (r *challengeRepository) Create(ctx context.Context, challenge *domain.Challenge) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load challenges", err)
	}

	challenge.CreatedAt = time.Now()
	data.Challenges = append(data.Challenges, challenge)

	return r.save(data)
}

func (r *challengeRepository) Get(ctx context.Context, value string) (*domain.Challenge, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	data, err := r.load()
	if err != nil {
		return nil, cperrors.Internal("failed to load challenges", err)
	}

	for _, c := range data.Challenges {
		if c.Value == value {
			return c, nil
		}
	}
	return nil, cperrors.NotFound("challenge", value)
}

func (r *challengeRepository) Consume(ctx context.Context, value string) (*domain.Challenge, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return nil, false, cperrors.Internal("failed to load challenges", err)
	}

	for i, c := range data.Challenges {
		if c.Value != value {
			continue
		}
		// Remove in either case: a consumed challenge is gone, an expired
		// one must not linger in the store.
		data.Challenges = append(data.Challenges[:i], data.Challenges[i+1:]...)
		if err := r.save(data); err != nil {
			return nil, false, cperrors.Internal("failed to save challenges", err)
		}
		if c.IsExpired() {
			return nil, true, cperrors.New(cperrors.CodeChallengeExpired, "challenge expired")
		}
		return c, false, nil
	}
	return nil, false, cperrors.NotFound("challenge", value)
}

func (r *challengeRepository) DeleteExpired(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load challenges", err)
	}

	now := time.Now()
	filtered := make([]*domain.Challenge, 0, len(data.Challenges))
	for _, c := range data.Challenges {
		if c.ExpiresAt.After(now) {
			filtered = append(filtered, c)
		}
	}
	data.Challenges = filtered

	return r.save(data)
}

// Client Repository

type clientRepository struct {
	store *Store
}

type clientsData struct {
	Clients []*domain.Client `json:"clients"`
}

func (r *clientRepository) load() (*clientsData, error) {
	var data clientsData
	if err := r.store.readFile("clients", &data); err != nil {
		return nil, err
	}
	if data.Clients == nil {
		data.Clients = []*domain.Client{}
	}
	return &data, nil
}

func (r *clientRepository) save(data *clientsData) error {
	return r.store.writeFile("clients", data)
}

func (r *clientRepository) Create(ctx context.Context, client *domain.Client) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load clients", err)
	}

	for _, c := range data.Clients {
		if c.ID == client.ID {
			return cperrors.AlreadyExists("client", client.ID)
		}
	}

	now := time.Now()
	client.CreatedAt = now
	client.UpdatedAt = now
	data.Clients = append(data.Clients, client)

	return r.save(data)
}

func (r *clientRepository) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	data, err := r.load()
	if err != nil {
		return nil, cperrors.Internal("failed to load clients", err)
	}

	for _, c := range data.Clients {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, cperrors.NotFound("client", id)
}

func (r *clientRepository) Update(ctx context.Context, client *domain.Client) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load clients", err)
	}

	for i, c := range data.Clients {
		if c.ID == client.ID {
			client.UpdatedAt = time.Now()
			data.Clients[i] = client
			return r.save(data)
		}
	}
	return cperrors.NotFound("client", client.ID)
}

func (r *clientRepository) List(ctx context.Context) ([]*domain.Client, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	data, err := r.load()
	if err != nil {
		return nil, cperrors.Internal("failed to load clients", err)
	}
	return data.Clients, nil
}

// AuthCode Repository

type authCodeRepository struct {
	store *Store
}

type authCodesData struct {
	AuthCodes []*domain.AuthCode `json:"auth_codes"`
}

func (r *authCodeRepository) load() (*authCodesData, error) {
	var data authCodesData
	if err := r.store.readFile("auth_codes", &data); err != nil {
		return nil, err
	}
	if data.AuthCodes == nil {
		data.AuthCodes = []*domain.AuthCode{}
	}
	return &data, nil
}

func (r *authCodeRepository) save(data *authCodesData) error {
	return r.store.writeFile("auth_codes", data)
}

func (r *authCodeRepository) Create(ctx context.Context, code *domain.AuthCode) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load auth codes", err)
	}

	code.CreatedAt = time.Now()
	data.AuthCodes = append(data.AuthCodes, code)

	return r.save(data)
}

func (r *authCodeRepository) Consume(ctx context.Context, code string) (*domain.AuthCode, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return nil, false, cperrors.Internal("failed to load auth codes", err)
	}

	for i, ac := range data.AuthCodes {
		if ac.Code != code {
			continue
		}
		data.AuthCodes = append(data.AuthCodes[:i], data.AuthCodes[i+1:]...)
		if err := r.save(data); err != nil {
			return nil, false, cperrors.Internal("failed to save auth codes", err)
		}
		if ac.IsExpired() {
			return nil, true, cperrors.InvalidGrant("authorization code expired")
		}
		return ac, false, nil
	}
	return nil, false, cperrors.NotFound("auth code", code)
}

func (r *authCodeRepository) DeleteExpired(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load auth codes", err)
	}

	now := time.Now()
	filtered := make([]*domain.AuthCode, 0, len(data.AuthCodes))
	for _, ac := range data.AuthCodes {
		if ac.ExpiresAt.After(now) {
			filtered = append(filtered, ac)
		}
	}
	data.AuthCodes = filtered

	return r.save(data)
}

// Token Repository

type tokenRepository struct {
	store *Store
}

type tokensData struct {
	Tokens []*domain.Token `json:"tokens"`
}

func (r *tokenRepository) load() (*tokensData, error) {
	var data tokensData
	if err := r.store.readFile("tokens", &data); err != nil {
		return nil, err
	}
	if data.Tokens == nil {
		data.Tokens = []*domain.Token{}
	}
	return &data, nil
}

func (r *tokenRepository) save(data *tokensData) error {
	return r.store.writeFile("tokens", data)
}

func (r *tokenRepository) Create(ctx context.Context, token *domain.Token) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load tokens", err)
	}

	token.CreatedAt = time.Now()
	data.Tokens = append(data.Tokens, token)

	return r.save(data)
}

func (r *tokenRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (*domain.Token, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	data, err := r.load()
	if err != nil {
		return nil, cperrors.Internal("failed to load tokens", err)
	}

	for _, t := range data.Tokens {
		if t.RefreshToken == refreshToken {
			return t, nil
		}
	}
	return nil, cperrors.NotFound("token", "by refresh token")
}

func (r *tokenRepository) GetByAccessJTI(ctx context.Context, jti string) (*domain.Token, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	data, err := r.load()
	if err != nil {
		return nil, cperrors.Internal("failed to load tokens", err)
	}

	for _, t := range data.Tokens {
		if t.AccessJTI == jti {
			return t, nil
		}
	}
	return nil, cperrors.NotFound("token", "by access jti")
}

func (r *tokenRepository) Revoke(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load tokens", err)
	}

	for _, t := range data.Tokens {
		if t.ID == id {
			t.Revoked = true
			return r.save(data)
		}
	}
	return cperrors.NotFound("token", id)
}

func (r *tokenRepository) DeleteByValue(ctx context.Context, value string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load tokens", err)
	}

	for i, t := range data.Tokens {
		if t.RefreshToken == value || t.AccessJTI == value {
			data.Tokens = append(data.Tokens[:i], data.Tokens[i+1:]...)
			return r.save(data)
		}
	}
	return cperrors.NotFound("token", "by value")
}

func (r *tokenRepository) DeleteExpired(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load tokens", err)
	}

	now := time.Now()
	filtered := make([]*domain.Token, 0, len(data.Tokens))
	for _, t := range data.Tokens {
		if t.ExpiresAt.After(now) {
			filtered = append(filtered, t)
		}
	}
	data.Tokens = filtered

	return r.save(data)
}

// Audit Repository

type auditRepository struct {
	store *Store
}

type auditData struct {
	Entries []*domain.AuditEntry `json:"entries"`
}

func (r *auditRepository) load() (*auditData, error) {
	var data auditData
	if err := r.store.readFile("audit", &data); err != nil {
		return nil, err
	}
	if data.Entries == nil {
		data.Entries = []*domain.AuditEntry{}
	}
	return &data, nil
}

func (r *auditRepository) save(data *auditData) error {
	return r.store.writeFile("audit", data)
}

func (r *auditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return cperrors.Internal("failed to load audit trail", err)
	}

	entry.CreatedAt = time.Now()
	data.Entries = append(data.Entries, entry)

	return r.save(data)
}

func (r *auditRepository) List(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	data, err := r.load()
	if err != nil {
		return nil, cperrors.Internal("failed to load audit trail", err)
	}

	if limit > 0 && len(data.Entries) > limit {
		return data.Entries[len(data.Entries)-limit:], nil
	}
	return data.Entries, nil
}
