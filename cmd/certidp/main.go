// Package main is the entry point for the certidp certificate IdP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/openclave/certidp/internal/audit"
	"github.com/openclave/certidp/internal/authn"
	"github.com/openclave/certidp/internal/ca"
	"github.com/openclave/certidp/internal/config"
	cphttp "github.com/openclave/certidp/internal/http"
	"github.com/openclave/certidp/internal/oauth"
	"github.com/openclave/certidp/internal/store"
	"github.com/openclave/certidp/internal/store/file"
	"github.com/openclave/certidp/internal/store/redis"
	"github.com/openclave/certidp/internal/token"
)

func main() {
	// Optional .env file for local development
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.LogLevel),
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.LogLevel),
		})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	if cfg.JWTSecretGenerated {
		logger.Warn("CERTIDP_JWT_SECRET not set, generated an ephemeral secret; tokens will not survive a restart")
	}
	if cfg.AdminSecret == "" {
		logger.Warn("CERTIDP_ADMIN_SECRET not set, admin endpoints are disabled")
	}

	// Initialize file store
	fileStore, err := file.NewStore(cfg.DataDir)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer fileStore.Close()
	logger.Info("initialized file store", "data_dir", cfg.DataDir)

	// Challenges and auth codes can live in Redis so several instances
	// share them; everything durable stays in the file store.
	challengeRepo := fileStore.Challenges()
	authCodeRepo := fileStore.AuthCodes()
	if cfg.RedisAddr != "" {
		redisClient, err := redis.NewClient(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		challengeRepo = redisClient.Challenges()
		authCodeRepo = redisClient.AuthCodes()
		logger.Info("using redis for ephemeral state", "addr", cfg.RedisAddr)
	}

	// Core services
	auditor := audit.New(fileStore.Audit(), logger)
	caStore := ca.NewStore(fileStore.Authorities())
	issuer := ca.NewIssuer(caStore, fileStore.Certificates(), fileStore.Revocations(), auditor, logger)
	verifier := ca.NewVerifier(caStore, fileStore.Certificates(), fileStore.Revocations(), auditor, logger)

	challengeService := authn.NewChallengeService(challengeRepo, cfg.ChallengeTTL, auditor, logger)
	throttle := authn.NewThrottle(cfg.SignatureMaxFailures, cfg.SignatureLockout)
	authenticator := authn.NewSignatureAuthenticator(challengeService, fileStore.Certificates(), fileStore.Users(), throttle, auditor, logger)

	generator := token.NewGenerator([]byte(cfg.JWTSecret), cfg.IssuerURL, cfg.AccessTokenTTL)
	authorizeService := oauth.NewAuthorizeService(fileStore.Clients(), authCodeRepo, cfg.AuthCodeTTL, auditor, logger)
	tokenService := oauth.NewTokenService(fileStore.Clients(), authCodeRepo, fileStore.Tokens(), fileStore.Users(), generator, cfg.RefreshTokenTTL, auditor, logger)

	// Background cleanup of expired ephemeral state
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go runJanitor(janitorCtx, logger, challengeRepo, authCodeRepo, fileStore.Tokens())

	// HTTP server
	server := cphttp.NewServer(cfg.Addr(), cphttp.WithLogger(logger))
	server.Mount(cphttp.RouteConfig{
		Health:       cphttp.NewHealthHandler().WithCAStore(caStore),
		Discovery:    cphttp.NewDiscoveryHandler(cfg.IssuerURL),
		Challenge:    cphttp.NewChallengeHandler(challengeService, logger),
		Certificates: cphttp.NewCertificateHandler(issuer, verifier, logger),
		Signature:    cphttp.NewSignatureHandler(authenticator, logger),
		OAuth:        cphttp.NewOAuthHandler(authorizeService, tokenService, authenticator, logger),
		Admin:        cphttp.NewAdminHandler(caStore, fileStore.Clients(), auditor, logger),
		CORS: &cphttp.CORSConfig{
			AllowedOrigins:   cfg.ParseAllowedOrigins(),
			AllowCredentials: true,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			MaxAge:           86400,
		},
		AdminSecret:   cfg.AdminSecret,
		AuthRateLimit: cfg.AuthRateLimit,
	})

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started", "addr", cfg.Addr(), "issuer", cfg.IssuerURL)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// runJanitor periodically removes expired challenges, authorization codes,
// and token records.
func runJanitor(ctx context.Context, logger *slog.Logger, challenges store.ChallengeRepository, authCodes store.AuthCodeRepository, tokens store.TokenRepository) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := challenges.DeleteExpired(ctx); err != nil {
				logger.Warn("challenge cleanup failed", "error", err)
			}
			if err := authCodes.DeleteExpired(ctx); err != nil {
				logger.Warn("auth code cleanup failed", "error", err)
			}
			if err := tokens.DeleteExpired(ctx); err != nil {
				logger.Warn("token cleanup failed", "error", err)
			}
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
