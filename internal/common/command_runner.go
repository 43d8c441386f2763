package common

import (
	"context"
	"fmt"

	"atsboost/internal/errors"
	"atsboost/internal/types"
)

// ScoreInput names the files a score command reads. An empty CVFile reads
// the CV from Stdin.
type ScoreInput struct {
	CVFile  string
	JobFile string
	Stdin   func() (string, error)
}

// Analyzer is the slice of the analysis service the CLI needs
type Analyzer interface {
	Analyze(ctx context.Context, req types.AnalysisRequest) (types.Analysis, error)
}

// RunScoreCommand reads the inputs, runs one analysis and writes the
// formatted result.
func RunScoreCommand(
	ctx context.Context,
	logger *errors.Logger,
	cmdConfig CommandConfig,
	maxFileSize int64,
	input ScoreInput,
	analyzer Analyzer,
) (types.Analysis, error) {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	fileProcessor := NewFileProcessor(logger, maxFileSize)
	outputHandler := NewOutputHandler(logger)

	var (
		cvText string
		err    error
	)
	if input.CVFile != "" {
		cvText, err = fileProcessor.ReadInputFile(input.CVFile)
	} else if input.Stdin != nil {
		cvText, err = input.Stdin()
	}
	if err != nil {
		return types.Analysis{}, err
	}
	if err := ValidateCVText(cvText); err != nil {
		return types.Analysis{}, errors.NewValidationError(errors.ErrCodeInvalidRequest, "No CV text to score", err)
	}

	jobText, err := fileProcessor.ReadInputFile(input.JobFile)
	if err != nil {
		return types.Analysis{}, err
	}

	logger.Info("Starting CV analysis",
		"cv_chars", len(cvText),
		"job_chars", len(jobText),
		"output_format", cmdConfig.OutputFormat)

	result, err := analyzer.Analyze(ctx, types.AnalysisRequest{CVText: cvText, JobDescription: jobText})
	if err != nil {
		return types.Analysis{}, fmt.Errorf("analysis failed: %w", err)
	}

	if u := result.Usage; u != nil {
		logger.Info("AI token usage",
			"input_tokens", u.InputTokens,
			"output_tokens", u.OutputTokens,
			"total_tokens", u.TotalTokens)
	}

	if err := outputHandler.HandleOutput(result, cmdConfig); err != nil {
		return types.Analysis{}, err
	}
	return result, nil
}
