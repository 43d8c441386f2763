package ai

import (
	"context"
	"errors"
	"time"

	apperrors "atsboost/internal/errors"
	"atsboost/internal/types"
)

// FallbackChain tries analyzers in order and returns the first success.
// The last analyzer is normally the heuristic one, which cannot fail.
type FallbackChain struct {
	analyzers []Analyzer
	logger    *apperrors.Logger
}

var _ Analyzer = (*FallbackChain)(nil)

func NewFallbackChain(logger *apperrors.Logger, analyzers ...Analyzer) *FallbackChain {
	if logger == nil {
		logger = apperrors.NewNopLogger()
	}
	return &FallbackChain{analyzers: analyzers, logger: logger}
}

func (c *FallbackChain) Name() string { return "fallback" }

// Analyzers returns the chain members in order
func (c *FallbackChain) Analyzers() []Analyzer {
	return c.analyzers
}

func (c *FallbackChain) Analyze(ctx context.Context, req types.AnalysisRequest) (types.Analysis, error) {
	var errs []error
	for i, a := range c.analyzers {
		start := time.Now()
		result, err := a.Analyze(ctx, req)
		if err == nil {
			if i > 0 {
				c.logger.Info("Analysis served by fallback",
					"analyzer", a.Name(),
					"position", i)
			}
			return result, nil
		}
		errs = append(errs, err)
		c.logger.LogError(err, "Analyzer failed, trying next",
			"analyzer", a.Name(),
			"duration_ms", time.Since(start).Milliseconds())
	}

	if len(errs) == 0 {
		return types.Analysis{}, apperrors.NewConfigError(apperrors.ErrCodeInvalidConfig, "no analyzers configured", nil)
	}
	return types.Analysis{}, apperrors.NewAIError(apperrors.ErrCodeAIServiceFailed, "all analyzers failed", errors.Join(errs...))
}
