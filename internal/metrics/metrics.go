// Package metrics provides Prometheus metrics for the certificate IdP.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certidp_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "certidp_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Certificate lifecycle metrics
	certificatesIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certidp_certificates_issued_total",
			Help: "Total number of certificates issued",
		},
		[]string{"kind"}, // "new", "renewal"
	)

	certificatesRevokedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "certidp_certificates_revoked_total",
			Help: "Total number of certificates revoked",
		},
	)

	certificateVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certidp_certificate_verifications_total",
			Help: "Total number of certificate verification requests",
		},
		[]string{"valid"}, // "true" or "false"
	)

	// Authentication metrics
	challengesIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "certidp_challenges_issued_total",
			Help: "Total number of login challenges issued",
		},
	)

	signatureVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certidp_signature_verifications_total",
			Help: "Total number of signature login attempts",
		},
		[]string{"status"}, // "success", "failure", "locked"
	)

	// Token metrics
	tokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certidp_tokens_issued_total",
			Help: "Total number of token pairs issued",
		},
		[]string{"grant_type"},
	)

	tokenIntrospectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certidp_token_introspections_total",
			Help: "Total number of token introspection requests",
		},
		[]string{"active"}, // "true" or "false"
	)

	tokenRevocationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "certidp_token_revocations_total",
			Help: "Total number of token revocation requests",
		},
	)

	authCodesIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "certidp_auth_codes_issued_total",
			Help: "Total number of authorization codes issued",
		},
	)

	// Rate limiting metrics
	rateLimitExceededTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certidp_rate_limit_exceeded_total",
			Help: "Total number of rate limit exceeded events",
		},
		[]string{"endpoint"},
	)
)

// RecordCertificateIssued records a certificate issuance.
func RecordCertificateIssued(kind string) {
	certificatesIssuedTotal.WithLabelValues(kind).Inc()
}

// RecordCertificateRevoked records a certificate revocation.
func RecordCertificateRevoked() {
	certificatesRevokedTotal.Inc()
}

// RecordCertificateVerification records a certificate verification request.
func RecordCertificateVerification(valid bool) {
	certificateVerificationsTotal.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

// RecordChallengeIssued records a challenge being issued.
func RecordChallengeIssued() {
	challengesIssuedTotal.Inc()
}

// RecordSignatureVerification records a signature login attempt.
func RecordSignatureVerification(status string) {
	signatureVerificationsTotal.WithLabelValues(status).Inc()
}

// RecordTokenIssued records a token pair being issued.
func RecordTokenIssued(grantType string) {
	tokensIssuedTotal.WithLabelValues(grantType).Inc()
}

// RecordTokenIntrospection records a token introspection.
func RecordTokenIntrospection(active bool) {
	tokenIntrospectionsTotal.WithLabelValues(strconv.FormatBool(active)).Inc()
}

// RecordTokenRevocation records a token revocation.
func RecordTokenRevocation() {
	tokenRevocationsTotal.Inc()
}

// RecordAuthCodeIssued records an authorization code being issued.
func RecordAuthCodeIssued() {
	authCodesIssuedTotal.Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event.
func RecordRateLimitExceeded(endpoint string) {
	rateLimitExceededTotal.WithLabelValues(endpoint).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes the path for metrics to avoid high cardinality.
func normalizePath(path string) string {
	knownPaths := []string{
		"/healthz",
		"/readyz",
		"/metrics",
		"/challenge",
		"/certificate/verify",
		"/certificates/issue",
		"/certificates/renew",
		"/certificates/revoke",
		"/auth/signature/verify",
		"/oauth/authorize",
		"/oauth/authorize/complete",
		"/oauth/token",
		"/oauth/introspect",
		"/oauth/revoke",
		"/admin/ca/init",
		"/admin/clients",
		"/.well-known/oauth-authorization-server",
	}

	for _, known := range knownPaths {
		if path == known {
			return path
		}
	}

	return "/other"
}
