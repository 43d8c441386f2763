package ai

import (
	"context"
	"fmt"

	"atsboost/internal/cache"
	"atsboost/internal/config"
	"atsboost/internal/errors"
	"atsboost/internal/scoring"
	"atsboost/internal/types"
)

// Service is the assembled analysis pipeline: optional cache, then the
// remote analyzer if configured, then the heuristic.
type Service struct {
	analyzer Analyzer
	gemini   *GeminiAnalyzer
	cache    cache.Cache
	logger   *errors.Logger
}

// ServiceOptions carries the collaborators NewService does not build itself
type ServiceOptions struct {
	Cache  cache.Cache
	Random scoring.RandomSource
	// Offline skips the remote analyzer regardless of configuration
	Offline bool
}

// NewService creates the analysis service for cfg
func NewService(ctx context.Context, cfg *config.Config, opts ServiceOptions, logger *errors.Logger) (*Service, error) {
	if logger == nil {
		logger = errors.NewNopLogger()
	}

	logger.Debug("Initializing analysis service",
		"provider", cfg.AI.Provider,
		"model", cfg.AI.Model,
		"temperature", cfg.AI.Temperature,
		"timeout", cfg.AI.Timeout,
		"max_retries", cfg.AI.MaxRetries,
		"offline", opts.Offline,
		"cache_enabled", opts.Cache != nil)

	svc := &Service{cache: opts.Cache, logger: logger}
	var chain []Analyzer

	switch cfg.AI.Provider {
	case config.ProviderGemini:
		switch {
		case opts.Offline:
		case cfg.AI.APIKey == "":
			logger.Warn("Gemini API key not configured, using heuristic analysis only")
		default:
			gemini, err := NewGeminiAnalyzer(ctx, cfg.AI, logger)
			if err != nil {
				return nil, err
			}
			svc.gemini = gemini
			chain = append(chain, gemini)
		}
	case config.ProviderHeuristic:
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported AI provider: %s", cfg.AI.Provider), nil)
	}

	chain = append(chain, NewHeuristicAnalyzer(opts.Random))
	svc.analyzer = NewFallbackChain(logger, chain...)

	if opts.Cache != nil {
		svc.analyzer = svc.cached(NewCachedAnalyzer(svc.analyzer, opts.Cache, cfg.Cache.TTL, logger))
	}
	return svc, nil
}

// NewServiceWith builds a service around an explicit analyzer chain
func NewServiceWith(c cache.Cache, logger *errors.Logger, analyzers ...Analyzer) *Service {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	svc := &Service{cache: c, logger: logger}
	for _, a := range analyzers {
		if g, ok := a.(*GeminiAnalyzer); ok {
			svc.gemini = g
		}
	}
	svc.analyzer = NewFallbackChain(logger, analyzers...)
	if c != nil {
		svc.analyzer = svc.cached(NewCachedAnalyzer(svc.analyzer, c, 0, logger))
	}
	return svc
}

// cached keeps heuristic fallbacks out of the cache while a remote
// analyzer is configured.
func (s *Service) cached(c *CachedAnalyzer) *CachedAnalyzer {
	if s.Remote() {
		return c.StoreOnly(types.SourceGemini)
	}
	return c
}

func (s *Service) Analyze(ctx context.Context, req types.AnalysisRequest) (types.Analysis, error) {
	return s.analyzer.Analyze(ctx, req)
}

// Remote reports whether a remote analyzer is in the chain
func (s *Service) Remote() bool {
	return s.gemini != nil
}

// Cache returns the cache in front of the chain, or nil
func (s *Service) Cache() cache.Cache {
	return s.cache
}

// SetPrompts forwards reloaded prompts to the remote analyzer
func (s *Service) SetPrompts(system, user string) {
	if s.gemini == nil {
		return
	}
	s.gemini.SetPrompts(system, user)
	s.logger.Info("Analysis prompts reloaded",
		"system_length", len(system),
		"user_length", len(user))
}

// BreakerStats returns circuit breaker statistics for health and stats
// endpoints.
func (s *Service) BreakerStats() map[string]any {
	if s.gemini == nil {
		return map[string]any{"enabled": false}
	}
	return s.gemini.BreakerStats()
}
