package ai

import (
	"context"

	"atsboost/internal/types"
)

// Analyzer produces a structured CV analysis. Implementations are
// interchangeable and are combined with FallbackChain.
type Analyzer interface {
	Analyze(ctx context.Context, req types.AnalysisRequest) (types.Analysis, error)
	Name() string
}

// PromptUpdater accepts replacement prompts at runtime
type PromptUpdater interface {
	SetPrompts(system, user string)
}
