// Package config handles application configuration via environment variables.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the certificate IdP.
type Config struct {
	// Server settings
	Host string `env:"CERTIDP_HOST" env-default:"0.0.0.0"`
	Port int    `env:"CERTIDP_PORT" env-default:"8080"`

	// Issuer URL embedded in JWT iss claims and OAuth metadata
	IssuerURL string `env:"CERTIDP_ISSUER_URL" env-default:"http://localhost:8080"`

	// Storage settings
	DataDir string `env:"CERTIDP_DATA_DIR" env-default:"./data"`

	// Optional Redis address for shared challenge/auth-code state across
	// instances. Empty means the embedded file store is used for everything.
	RedisAddr     string `env:"CERTIDP_REDIS_ADDR" env-default:""`
	RedisPassword string `env:"CERTIDP_REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"CERTIDP_REDIS_DB" env-default:"0"`

	// Secrets
	JWTSecret   string `env:"CERTIDP_JWT_SECRET"`
	AdminSecret string `env:"CERTIDP_ADMIN_SECRET"`

	// Token and challenge lifetimes
	AccessTokenTTL  time.Duration `env:"CERTIDP_ACCESS_TOKEN_TTL" env-default:"1h"`
	RefreshTokenTTL time.Duration `env:"CERTIDP_REFRESH_TOKEN_TTL" env-default:"168h"` // 7 days
	AuthCodeTTL     time.Duration `env:"CERTIDP_AUTH_CODE_TTL" env-default:"10m"`
	ChallengeTTL    time.Duration `env:"CERTIDP_CHALLENGE_TTL" env-default:"300s"`

	// Signature verification throttle
	SignatureMaxFailures int           `env:"CERTIDP_SIGNATURE_MAX_FAILURES" env-default:"5"`
	SignatureLockout     time.Duration `env:"CERTIDP_SIGNATURE_LOCKOUT" env-default:"5m"`

	// Rate limiting (requests per minute per IP on auth endpoints)
	AuthRateLimit int `env:"CERTIDP_AUTH_RATE_LIMIT" env-default:"30"`

	// CORS: comma-separated origins; entries may carry a wildcard subdomain,
	// e.g. "https://app.example.com,https://*.example.org"
	AllowedOrigins string `env:"CERTIDP_ALLOWED_ORIGINS" env-default:""`

	// Logging
	LogLevel  string `env:"CERTIDP_LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"CERTIDP_LOG_FORMAT" env-default:"json"` // json or text

	// Internal flags (not from env)
	JWTSecretGenerated bool `env:"-"` // True if secret was auto-generated
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Generate a random JWT secret if not provided. Fine for a single
	// instance; multi-instance deployments must set CERTIDP_JWT_SECRET.
	if cfg.JWTSecret == "" {
		secret, err := generateRandomSecret(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate jwt secret: %w", err)
		}
		cfg.JWTSecret = secret
		cfg.JWTSecretGenerated = true
	}

	return &cfg, nil
}

// Addr returns the server address in host:port format.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ParseAllowedOrigins splits the configured origin list.
func (c *Config) ParseAllowedOrigins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// generateRandomSecret generates a cryptographically secure random string.
func generateRandomSecret(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
