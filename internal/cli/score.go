package cli

import (
	"fmt"

	"atsboost/internal/ai"
	"atsboost/internal/common"
	"atsboost/internal/scoring"

	"github.com/spf13/cobra"
)

var scoreCmd = &cobra.Command{
	Use:   "score [cv-file]",
	Short: "Score a CV for ATS compatibility",
	Long: `Score a CV for applicant tracking system compatibility. The CV is read
from the given file or from standard input when no file is given.

With a Gemini API key configured the CV is analysed remotely; the local
heuristic scorer is used when the remote analyzer is unavailable or when
--offline is set.`,
	Args: cobra.MaximumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		if scoreConfig.OutputFormat == "" {
			scoreConfig.OutputFormat = cfg.App.DefaultFormat
		}
		return common.ValidateOutputFormat(scoreConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runScore,
}

var (
	scoreConfig common.CommandConfig
	scoreFlags  struct {
		jobFile string
		offline bool
		seed    uint64
	}
)

func init() {
	scoreCmd.Flags().StringVarP(&scoreConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	scoreCmd.Flags().StringVar(&scoreConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	scoreCmd.Flags().StringVarP(&scoreFlags.jobFile, "job", "j", "", "Job description file to match keywords against")
	scoreCmd.Flags().BoolVar(&scoreFlags.offline, "offline", false, "Use only the local heuristic scorer")
	scoreCmd.Flags().Uint64Var(&scoreFlags.seed, "seed", 0, "Seed for the heuristic scorer jitter (0 = random)")

	_ = scoreCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return getConfigFromContext(cmd.Context()).App.SupportedFormats, cobra.ShellCompDirectiveNoFileComp
	})
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	seed := scoreFlags.seed
	if seed == 0 {
		seed = cfg.Scoring.Seed
	}
	var random scoring.RandomSource
	if seed != 0 {
		random = scoring.NewSeededSource(seed)
	}

	svc, err := ai.NewService(cmd.Context(), cfg, ai.ServiceOptions{
		Random:  random,
		Offline: scoreFlags.offline,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create analysis service: %w", err)
	}

	input := common.ScoreInput{JobFile: scoreFlags.jobFile}
	if len(args) == 1 {
		input.CVFile = args[0]
	} else {
		fp := common.NewFileProcessor(logger, cfg.App.MaxFileSize)
		input.Stdin = func() (string, error) { return fp.ReadStdin(cmd.InOrStdin()) }
	}

	result, err := common.RunScoreCommand(cmd.Context(), logger, scoreConfig, cfg.App.MaxFileSize, input, svc)
	if err != nil {
		return fmt.Errorf("failed to score CV: %w", err)
	}
	logger.Info("CV scored successfully",
		"overall", result.Scores.Overall,
		"source", result.Source)
	return nil
}
