package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/openclave/certidp/internal/metrics"
)

// Server represents the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	logger *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new HTTP server with default middleware.
func NewServer(addr string, opts ...Option) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Default middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Request logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				s.logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	})

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// RouteConfig carries the handlers and policy the router mounts.
type RouteConfig struct {
	Health       *HealthHandler
	Discovery    *DiscoveryHandler
	Challenge    *ChallengeHandler
	Certificates *CertificateHandler
	Signature    *SignatureHandler
	OAuth        *OAuthHandler
	Admin        *AdminHandler

	CORS        *CORSConfig
	AdminSecret string

	// AuthRateLimit bounds requests per minute per IP on the challenge and
	// signature endpoints. Zero disables the limiter.
	AuthRateLimit int
}

// Mount attaches all routes to the server.
func (s *Server) Mount(cfg RouteConfig) {
	r := s.router

	r.Use(CORSMiddleware(cfg.CORS))

	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/.well-known/oauth-authorization-server", cfg.Discovery.Metadata)

	// Unauthenticated login surface, rate limited per source IP.
	r.Group(func(r chi.Router) {
		if cfg.AuthRateLimit > 0 {
			r.Use(httprate.Limit(
				cfg.AuthRateLimit,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, req *http.Request) {
					metrics.RecordRateLimitExceeded(req.URL.Path)
					http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				}),
			))
		}
		r.Get("/challenge", cfg.Challenge.Get)
		r.Post("/auth/signature/verify", cfg.Signature.Verify)
		r.Post("/oauth/authorize/complete", cfg.OAuth.AuthorizeComplete)
	})

	r.Post("/certificate/verify", cfg.Certificates.Verify)
	r.Post("/certificates/issue", cfg.Certificates.Issue)
	r.Post("/certificates/renew", cfg.Certificates.Renew)
	r.Post("/certificates/revoke", cfg.Certificates.Revoke)

	r.Get("/oauth/authorize", cfg.OAuth.Authorize)
	r.Post("/oauth/token", cfg.OAuth.Token)
	r.Post("/oauth/introspect", cfg.OAuth.Introspect)
	r.Post("/oauth/revoke", cfg.OAuth.Revoke)

	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminAuthMiddleware(cfg.AdminSecret))
		r.Post("/ca/init", cfg.Admin.InitCA)
		r.Post("/clients", cfg.Admin.CreateClient)
	})
}

// Router returns the chi router for adding routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.server.Shutdown(ctx)
}
