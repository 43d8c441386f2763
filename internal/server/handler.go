package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"atsboost/internal/observability"
	"atsboost/internal/types"

	"go.opentelemetry.io/otel/attribute"
)

// createScoreHandler wraps the score handler with observability
func (s *Server) createScoreHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx, span := om.Tracer("atsboost.api").Start(ctx, "api.score")
		defer span.End()

		var req ScoreRequest
		if err := parseJSONRequest(r, &req); err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", "validation"))
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}

		if strings.TrimSpace(req.CVText) == "" {
			err := fmt.Errorf("missing cv text")
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", "validation"))
			writeErrorResponse(w, "Missing CV text", "cvText field is required", http.StatusBadRequest)
			return
		}

		span.SetAttributes(
			attribute.Int("request.cv_length", len(req.CVText)),
			attribute.Int("request.job_length", len(req.JobDescription)),
			attribute.String("operation", "score"),
		)

		metrics := om.GetMetrics()
		metrics.RecordContentSize(ctx, len(req.CVText), om)

		var result types.Analysis
		err := metrics.TrackAIOperationWithTokens(ctx, "analyze_cv", func(ctx context.Context) *observability.AIOperationResult {
			analysis, aiErr := s.Deps.Analysis.Analyze(ctx, types.AnalysisRequest{
				CVText:         req.CVText,
				JobDescription: req.JobDescription,
			})
			result = analysis
			return &observability.AIOperationResult{
				Error:      aiErr,
				TokenUsage: analysis.Usage,
			}
		}, om)

		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", "ai_processing"))
			metrics.RecordBusinessMetric(ctx, observability.MetricCVAnalyzed, false, om)
			writeErrorResponse(w, "Failed to analyse CV", err.Error(), http.StatusInternalServerError)
			return
		}

		metrics.RecordBusinessMetric(ctx, observability.MetricCVAnalyzed, true, om,
			attribute.String("source", result.Source),
			attribute.Bool("cached", result.Cached))
		if s.Deps.Analysis.Cache() != nil {
			lookup := "miss"
			if result.Cached {
				lookup = "hit"
			}
			metrics.RecordBusinessMetric(ctx, observability.MetricCacheLookup, true, om,
				attribute.String("result", lookup))
		}

		span.SetAttributes(
			attribute.Bool("success", true),
			attribute.String("analysis.source", result.Source),
			attribute.Bool("analysis.cached", result.Cached),
			attribute.Int("ats.score", result.Scores.Overall),
		)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			span.RecordError(err)
			s.Logger.LogError(err, "Failed to encode score response")
		}
	}
}

// createClearCacheHandler empties the analysis cache
func (s *Server) createClearCacheHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := s.Deps.Analysis.Cache()
		if c == nil {
			writeErrorResponse(w, "Cache disabled", "analysis caching is not enabled", http.StatusNotFound)
			return
		}

		before := c.Stats()
		if err := c.Clear(r.Context()); err != nil {
			s.Logger.LogError(err, "Failed to clear analysis cache", "backend", before.Backend)
			writeErrorResponse(w, "Failed to clear cache", err.Error(), http.StatusInternalServerError)
			return
		}

		s.Logger.Info("Analysis cache cleared",
			"backend", before.Backend,
			"entries", before.Entries)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "cleared",
			"backend": before.Backend,
			"entries": before.Entries,
		})
	}
}

// createRateLimitMiddleware adds observability to rate limiting
func (s *Server) createRateLimitMiddleware(om *observability.ObservabilityManager) func(http.HandlerFunc) http.HandlerFunc {
	limit := s.rateLimitMiddleware()

	return func(next http.HandlerFunc) http.HandlerFunc {
		limited := limit(next)
		return func(w http.ResponseWriter, r *http.Request) {
			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			limited(wrapper, r)

			if wrapper.statusCode == http.StatusTooManyRequests {
				om.GetMetrics().RecordBusinessMetric(r.Context(), observability.MetricRateLimitHit, true, om,
					attribute.String("endpoint", r.URL.Path),
					attribute.String("method", r.Method))
			}
		}
	}
}

// responseWrapper wraps http.ResponseWriter to capture status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
