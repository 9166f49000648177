// Package redis implements the ephemeral repositories (challenges and
// authorization codes) on Redis, for deployments running more than one
// instance. Durable records stay in the embedded store; only the
// short-lived, atomically-consumed state needs to be shared.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openclave/certidp/internal/domain"
	cperrors "github.com/openclave/certidp/internal/errors"
)

const (
	challengePrefix = "certidp:challenge:"
	authCodePrefix  = "certidp:authcode:"
)

// consumeScript removes and returns a key in one round trip. GET+DEL as a
// script keeps the single-use invariant under concurrent consumers on Redis
// versions without GETDEL.
var consumeScript = redis.NewScript(`
local value = redis.call("GET", KEYS[1])
if value then
  redis.call("DEL", KEYS[1])
end
return value
`)

// Client wraps a Redis connection shared by the ephemeral repositories.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, cperrors.Internal("failed to connect to redis", err)
	}
	return &Client{rdb: rdb}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Challenges returns a Redis-backed challenge repository.
func (c *Client) Challenges() *ChallengeRepository {
	return &ChallengeRepository{rdb: c.rdb}
}

// AuthCodes returns a Redis-backed authorization code repository.
func (c *Client) AuthCodes() *AuthCodeRepository {
	return &AuthCodeRepository{rdb: c.rdb}
}

// ChallengeRepository implements store.ChallengeRepository on Redis.
// TTLs ride on Redis key expiry, so DeleteExpired is a no-op.
type ChallengeRepository struct {
	rdb *redis.Client
}

func (r *ChallengeRepository) Create(ctx context.Context, challenge *domain.Challenge) error {
	challenge.CreatedAt = time.Now()
	payload, err := json.Marshal(challenge)
	if err != nil {
		return cperrors.Internal("failed to encode challenge", err)
	}
	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		return cperrors.InvalidInput("challenge already expired")
	}
	if err := r.rdb.Set(ctx, challengePrefix+challenge.Value, payload, ttl).Err(); err != nil {
		return cperrors.Internal("failed to store challenge", err)
	}
	return nil
}

func (r *ChallengeRepository) Get(ctx context.Context, value string) (*domain.Challenge, error) {
	payload, err := r.rdb.Get(ctx, challengePrefix+value).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cperrors.NotFound("challenge", value)
	}
	if err != nil {
		return nil, cperrors.Internal("failed to load challenge", err)
	}
	var challenge domain.Challenge
	if err := json.Unmarshal(payload, &challenge); err != nil {
		return nil, cperrors.Internal("failed to decode challenge", err)
	}
	return &challenge, nil
}

func (r *ChallengeRepository) Consume(ctx context.Context, value string) (*domain.Challenge, bool, error) {
	result, err := consumeScript.Run(ctx, r.rdb, []string{challengePrefix + value}).Result()
	if errors.Is(err, redis.Nil) || result == nil {
		return nil, false, cperrors.NotFound("challenge", value)
	}
	if err != nil {
		return nil, false, cperrors.Internal("failed to consume challenge", err)
	}
	payload, ok := result.(string)
	if !ok {
		return nil, false, cperrors.Internal("unexpected redis response", nil)
	}
	var challenge domain.Challenge
	if err := json.Unmarshal([]byte(payload), &challenge); err != nil {
		return nil, false, cperrors.Internal("failed to decode challenge", err)
	}
	// Redis expiry normally removes stale entries before we see them, but
	// the stored timestamp stays authoritative.
	if challenge.IsExpired() {
		return nil, true, cperrors.New(cperrors.CodeChallengeExpired, "challenge expired")
	}
	return &challenge, false, nil
}

func (r *ChallengeRepository) DeleteExpired(ctx context.Context) error {
	return nil // Redis key TTLs handle expiry.
}

// AuthCodeRepository implements store.AuthCodeRepository on Redis.
type AuthCodeRepository struct {
	rdb *redis.Client
}

func (r *AuthCodeRepository) Create(ctx context.Context, code *domain.AuthCode) error {
	code.CreatedAt = time.Now()
	payload, err := json.Marshal(code)
	if err != nil {
		return cperrors.Internal("failed to encode auth code", err)
	}
	ttl := time.Until(code.ExpiresAt)
	if ttl <= 0 {
		return cperrors.InvalidInput("auth code already expired")
	}
	if err := r.rdb.Set(ctx, authCodePrefix+code.Code, payload, ttl).Err(); err != nil {
		return cperrors.Internal("failed to store auth code", err)
	}
	return nil
}

func (r *AuthCodeRepository) Consume(ctx context.Context, code string) (*domain.AuthCode, bool, error) {
	result, err := consumeScript.Run(ctx, r.rdb, []string{authCodePrefix + code}).Result()
	if errors.Is(err, redis.Nil) || result == nil {
		return nil, false, cperrors.NotFound("auth code", code)
	}
	if err != nil {
		return nil, false, cperrors.Internal("failed to consume auth code", err)
	}
	payload, ok := result.(string)
	if !ok {
		return nil, false, cperrors.Internal("unexpected redis response", nil)
	}
	var authCode domain.AuthCode
	if err := json.Unmarshal([]byte(payload), &authCode); err != nil {
		return nil, false, cperrors.Internal("failed to decode auth code", err)
	}
	if authCode.IsExpired() {
		return nil, true, cperrors.InvalidGrant("authorization code expired")
	}
	return &authCode, false, nil
}

func (r *AuthCodeRepository) DeleteExpired(ctx context.Context) error {
	return nil // Redis key TTLs handle expiry.
}
