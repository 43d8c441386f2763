package server

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"atsboost/internal/observability"
	"atsboost/internal/webhook"
)

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes(om *observability.ObservabilityManager) *http.ServeMux {
	mux := http.NewServeMux()

	rateLimitHandler := s.createRateLimitMiddleware(om)
	requestLimitHandler := s.requestSizeLimitMiddleware()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)
	mux.HandleFunc("POST /api/v1/score",
		rateLimitHandler(
			s.authMiddleware(requestLimitHandler(s.createScoreHandler(om))),
		),
	)
	mux.HandleFunc("DELETE /api/v1/cache", s.authMiddleware(s.createClearCacheHandler()))

	if h := s.webhookHandler(om); h != nil {
		// Method dispatch happens in the handler so OPTIONS and 405 carry CORS headers
		mux.Handle(s.webhookPath(), h)
	}

	return mux
}

// webhookHandler assembles the payment webhook handler, or nil when the
// webhook is not configured.
func (s *Server) webhookHandler(om *observability.ObservabilityManager) http.Handler {
	if s.Deps.Processor == nil || s.Deps.WebhookSecret == nil {
		return nil
	}

	cfg := webhook.HandlerConfig{}
	if s.AppConfig != nil {
		cfg.SignatureHeader = s.AppConfig.Payments.SignatureHeader
		cfg.TimestampHeader = s.AppConfig.Payments.TimestampHeader
	}

	opts := []webhook.Option{webhook.WithRecorder(om)}
	if s.Deps.Deduplicator != nil {
		opts = append(opts, webhook.WithDeduplicator(s.Deps.Deduplicator))
	}
	return webhook.NewHandler(cfg, s.Deps.WebhookSecret, s.Deps.Processor, s.Logger, opts...)
}

// authMiddleware provides API key authentication
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(s.APIKeys) == 0 {
			next(w, r)
			return
		}

		apiKey := requestAPIKey(r)
		if apiKey == "" {
			s.Logger.Info("Authentication failed: missing API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r))
			writeErrorResponse(w, "Missing API key", "X-API-Key header or Authorization Bearer token required", http.StatusUnauthorized)
			return
		}

		if !s.APIKeys[apiKey] {
			s.Logger.Info("Authentication failed: invalid API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r),
				"api_key_prefix", maskAPIKey(apiKey))
			writeErrorResponse(w, "Invalid API key", "Unauthorized access", http.StatusUnauthorized)
			return
		}

		s.Logger.Debug("API authentication successful",
			"endpoint", r.URL.Path,
			"api_key_prefix", maskAPIKey(apiKey))

		next(w, r)
	}
}

// requestSizeLimitMiddleware limits the size of incoming requests
func (s *Server) requestSizeLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if s.MaxRequestSize > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestSize)
			}
			next(w, r)
		}
	}
}

// requestAPIKey reads X-API-Key, falling back to a bearer token
func requestAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// maskAPIKey masks an API key for logging (shows only first 8 characters)
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:8] + "****"
}

// fingerprint is a short stable digest used to key per-client state
// without holding raw credentials.
func fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:8])
}
