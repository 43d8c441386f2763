package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// healthHandler reports component health. A failing datastore makes the
// service unhealthy; an open breaker only degrades it because the heuristic
// analyzer still answers.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":  "healthy",
		"service": "atsboost",
		"version": s.Version,
	}
	status := http.StatusOK

	analysis := s.analysisHealth()
	response["analysis"] = analysis
	if healthy, _ := analysis["healthy"].(bool); !healthy {
		response["status"] = "degraded"
	}

	if s.Deps.Datastore != nil {
		datastore := s.datastoreHealth(r.Context())
		response["datastore"] = datastore
		if healthy, _ := datastore["healthy"].(bool); !healthy {
			response["status"] = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, response)
}

// analysisHealth reports the analyzer chain and breaker state
func (s *Server) analysisHealth() map[string]any {
	if s.Deps.Analysis == nil {
		return map[string]any{"healthy": false, "error": "analysis service not configured"}
	}

	breaker := s.Deps.Analysis.BreakerStats()
	healthy := true
	if h, ok := breaker["healthy"].(bool); ok {
		healthy = h
	}

	status := map[string]any{
		"healthy":         healthy,
		"remote":          s.Deps.Analysis.Remote(),
		"circuit_breaker": breaker,
	}
	if s.AppConfig != nil {
		status["provider"] = s.AppConfig.AI.Provider
		status["model"] = s.AppConfig.AI.Model
	}
	return status
}

// datastoreHealth pings the subscription database
func (s *Server) datastoreHealth(ctx context.Context) map[string]any {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	if err := s.Deps.Datastore.Ping(ctx); err != nil {
		s.Logger.LogError(err, "Datastore health check failed")
		return map[string]any{
			"healthy": false,
			"error":   err.Error(),
		}
	}
	return map[string]any{
		"healthy":    true,
		"latency_ms": time.Since(start).Milliseconds(),
	}
}

// statsHandler provides server statistics including rate limiting info
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service": "atsboost",
		"version": s.Version,
		"server": map[string]any{
			"max_request_size_bytes": s.MaxRequestSize,
		},
	}

	if s.RateLimiter != nil {
		response["rate_limiting"] = s.RateLimiter.GetStats()
	} else {
		response["rate_limiting"] = map[string]any{"enabled": false}
	}

	if s.RateLimit != nil {
		response["rate_limit_config"] = map[string]any{
			"enabled":          s.RateLimit.Enabled,
			"requests_per_min": s.RateLimit.RequestsPerMin,
			"burst_capacity":   s.RateLimit.BurstCapacity,
			"by_ip":            s.RateLimit.ByIP,
			"by_api_key":       s.RateLimit.ByAPIKey,
		}
	}

	if s.Deps.Analysis != nil {
		response["circuit_breaker"] = s.Deps.Analysis.BreakerStats()
		if c := s.Deps.Analysis.Cache(); c != nil {
			response["cache"] = c.Stats()
		} else {
			response["cache"] = map[string]any{"enabled": false}
		}
	}

	response["webhook"] = map[string]any{
		"enabled":     s.Deps.Processor != nil,
		"path":        s.webhookPath(),
		"idempotency": s.Deps.Deduplicator != nil,
	}
	if s.Deps.SecretWatcher != nil {
		response["secret_watcher"] = s.Deps.SecretWatcher.Status()
	}

	writeJSON(w, http.StatusOK, response)
}

// parseJSONRequest parses JSON request body into the provided struct
func parseJSONRequest(r *http.Request, v any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("content-type must be application/json")
	}
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("request body too large (limit is %d bytes)", maxBytesErr.Limit)
		}
		return fmt.Errorf("failed to read request body: %w", err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, error, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Error: error, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
