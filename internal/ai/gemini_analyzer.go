package ai

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"atsboost/internal/config"
	apperrors "atsboost/internal/errors"
	"atsboost/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// contentGenerator is the part of the genai client used for analysis
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAnalyzer scores CVs with a Gemini model under a JSON response schema
type GeminiAnalyzer struct {
	models         contentGenerator
	config         config.AIConfig
	circuitBreaker *AICircuitBreaker
	logger         *apperrors.Logger
	backoffBase    time.Duration

	mu           sync.RWMutex
	systemPrompt string
	userPrompt   string
}

var (
	_ Analyzer      = (*GeminiAnalyzer)(nil)
	_ PromptUpdater = (*GeminiAnalyzer)(nil)
)

// NewGeminiAnalyzer creates a Gemini backed analyzer
func NewGeminiAnalyzer(ctx context.Context, cfg config.AIConfig, logger *apperrors.Logger) (*GeminiAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeMissingAPIKey, "Gemini API key is not configured", nil)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{Timeout: &cfg.Timeout},
	})
	if err != nil {
		return nil, apperrors.NewAIError(apperrors.ErrCodeAIServiceFailed,
			"Failed to create Gemini client", err)
	}
	return newGeminiAnalyzer(client.Models, cfg, logger), nil
}

func newGeminiAnalyzer(models contentGenerator, cfg config.AIConfig, logger *apperrors.Logger) *GeminiAnalyzer {
	if logger == nil {
		logger = apperrors.NewNopLogger()
	}
	return &GeminiAnalyzer{
		models:         models,
		config:         cfg,
		circuitBreaker: NewAICircuitBreaker(types.SourceGemini, cfg.CircuitBreaker, logger),
		logger:         logger,
		backoffBase:    time.Second,
		systemPrompt:   cfg.Prompts.System,
		userPrompt:     cfg.Prompts.User,
	}
}

func (g *GeminiAnalyzer) Name() string { return types.SourceGemini }

// SetPrompts swaps the custom prompts. Empty values fall back to defaults.
func (g *GeminiAnalyzer) SetPrompts(system, user string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.systemPrompt = system
	g.userPrompt = user
}

func (g *GeminiAnalyzer) prompts(req types.AnalysisRequest) (string, string) {
	g.mu.RLock()
	system := resolvePrompt(g.systemPrompt, DefaultSystemPrompt)
	user := resolvePrompt(g.userPrompt, DefaultUserPrompt)
	g.mu.RUnlock()
	return system, formatUserPrompt(user, req.CVText, req.JobDescription)
}

// Analyze sends the CV to the model and validates the structured reply
func (g *GeminiAnalyzer) Analyze(ctx context.Context, req types.AnalysisRequest) (types.Analysis, error) {
	tracer := otel.Tracer("atsboost.ai.gemini")
	ctx, span := tracer.Start(ctx, "gemini.analyze_cv")
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", g.config.Model),
		attribute.Float64("ai.temperature", float64(g.config.Temperature)),
		attribute.Int("input.cv_length", len(req.CVText)),
		attribute.Int("input.job_length", len(req.JobDescription)),
	)

	systemPrompt, userPrompt := g.prompts(req)
	genaiConfig := buildAnalysisConfig(g.config.Temperature)
	if g.config.UseSystemPrompts && systemPrompt != "" {
		genaiConfig.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	result, err := g.circuitBreaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return g.executeWithRetry(ctx, "analyze_cv", func() (*genai.GenerateContentResponse, error) {
			return g.models.GenerateContent(ctx, g.config.Model, genai.Text(userPrompt), genaiConfig)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		code := apperrors.ErrCodeAIServiceFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = apperrors.ErrCodeAITimeout
		}
		return types.Analysis{}, apperrors.NewAIError(code, "Failed to generate CV analysis", err)
	}

	analysis, err := parseAnalysis([]byte(result.Text()))
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return types.Analysis{}, apperrors.NewAIError(apperrors.ErrCodeAIResponseInvalid, "Failed to parse CV analysis", err)
	}

	analysis.Source = types.SourceGemini
	analysis.Usage = extractTokenUsage(result)
	if analysis.Usage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", analysis.Usage.InputTokens),
			attribute.Int64("ai.tokens.output", analysis.Usage.OutputTokens),
			attribute.Int64("ai.tokens.total", analysis.Usage.TotalTokens),
		)
	}
	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.Int("ats.score", analysis.Scores.Overall),
	)
	return analysis, nil
}

// parseAnalysis validates raw model output and decodes it
func parseAnalysis(raw []byte) (types.Analysis, error) {
	if err := validateAnalysisJSON(raw); err != nil {
		return types.Analysis{}, err
	}
	var analysis types.Analysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return types.Analysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	return analysis, nil
}

// executeWithRetry executes a model call with retry logic and exponential backoff
func (g *GeminiAnalyzer) executeWithRetry(ctx context.Context, operation string, fn func() (*genai.GenerateContentResponse, error)) (*genai.GenerateContentResponse, error) {
	var lastErr error
	maxRetries := max(g.config.MaxRetries, 0)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("Retrying AI operation",
				"operation", operation,
				"attempt", attempt,
				"max_retries", maxRetries,
				"error", lastErr.Error())

			select {
			case <-time.After(g.backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				g.logger.Info("AI operation succeeded after retry",
					"operation", operation,
					"total_attempts", attempt+1)
			}
			return result, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			g.logger.Debug("Error is not retryable, stopping retry attempts",
				"operation", operation,
				"error", err.Error())
			break
		}
	}

	g.logger.LogError(lastErr, "AI operation failed after all retry attempts",
		"operation", operation,
		"total_attempts", maxRetries+1)

	return nil, fmt.Errorf("operation '%s' failed after %d retries: %w", operation, maxRetries, lastErr)
}

// backoff is exponential with up to 10% jitter, capped at 30 seconds
func (g *GeminiAnalyzer) backoff(attempt int) time.Duration {
	baseDelay := time.Duration(math.Pow(2, float64(attempt-1))) * g.backoffBase
	var jitter time.Duration
	if jitterMax := int64(float64(baseDelay) * 0.1); jitterMax > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(jitterMax)); err == nil {
			jitter = time.Duration(n.Int64())
		}
	}
	return min(baseDelay+jitter, 30*time.Second)
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.Code)
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return retryableStatus(genaiErr.Code)
	}

	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// extractTokenUsage extracts token usage information from a Gemini response
func extractTokenUsage(result *genai.GenerateContentResponse) *types.TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}

	usage := result.UsageMetadata
	return &types.TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}

// BreakerStats reports the state of the generation breaker
func (g *GeminiAnalyzer) BreakerStats() map[string]any {
	stats := g.circuitBreaker.GetStats()
	stats["healthy"] = g.circuitBreaker.IsHealthy()
	return stats
}
