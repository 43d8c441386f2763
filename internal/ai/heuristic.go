package ai

import (
	"context"
	"fmt"

	"atsboost/internal/scoring"
	"atsboost/internal/types"
)

const (
	strengthThreshold    = 75
	improvementThreshold = 60
)

type scoreNote struct {
	value       func(types.ATSScore) int
	strength    string
	improvement string
}

var scoreNotes = []scoreNote{
	{
		value:       func(s types.ATSScore) int { return s.KeywordMatch },
		strength:    "Strong use of professional action words",
		improvement: "Use more action verbs such as managed, implemented, coordinated and achieved",
	},
	{
		value:       func(s types.ATSScore) int { return s.SectionPresence },
		strength:    "Clear, standard CV sections that ATS parsers recognise",
		improvement: "Add standard section headings: Summary, Experience, Education, Skills, Contact and References",
	},
	{
		value:       func(s types.ATSScore) int { return s.Formatting },
		strength:    "Well structured sentences of a scannable length",
		improvement: "Break long paragraphs into short bullet points of 5 to 25 words",
	},
	{
		value:       func(s types.ATSScore) int { return s.Length },
		strength:    "CV length is close to the ideal of about 400 words",
		improvement: "Adjust the length towards roughly 400 words",
	},
	{
		value:       func(s types.ATSScore) int { return s.ContentRelevance },
		strength:    "Content aligns well with the job description",
		improvement: "Mirror key terms from the job description where they reflect real experience",
	},
	{
		value:       func(s types.ATSScore) int { return s.SAQualifications },
		strength:    "South African qualifications are clearly stated",
		improvement: "State NQF levels, SAQA evaluation or matric results where they apply",
	},
	{
		value:       func(s types.ATSScore) int { return s.Readability },
		strength:    "Plain, readable wording",
		improvement: "Prefer plain words over long or technical phrasing",
	},
	{
		value:       func(s types.ATSScore) int { return s.BBBEECompliance },
		strength:    "B-BBEE status is communicated",
		improvement: "Include your B-BBEE status if it is relevant to the roles you apply for",
	},
}

// HeuristicAnalyzer runs the local scorer. It never fails and needs no
// network.
type HeuristicAnalyzer struct {
	scorer *scoring.Scorer
}

var _ Analyzer = (*HeuristicAnalyzer)(nil)

// NewHeuristicAnalyzer wraps a scorer using src for randomness
func NewHeuristicAnalyzer(src scoring.RandomSource) *HeuristicAnalyzer {
	return &HeuristicAnalyzer{scorer: scoring.New(src)}
}

func (h *HeuristicAnalyzer) Name() string { return types.SourceHeuristic }

func (h *HeuristicAnalyzer) Analyze(_ context.Context, req types.AnalysisRequest) (types.Analysis, error) {
	scores := h.scorer.Score(req.CVText, req.JobDescription)

	analysis := types.Analysis{
		Scores:       scores,
		Strengths:    []string{},
		Improvements: []string{},
		Source:       types.SourceHeuristic,
	}
	if req.CVText == "" {
		analysis.Summary = "No CV text was provided."
		return analysis, nil
	}

	for _, note := range scoreNotes {
		switch v := note.value(scores); {
		case v >= strengthThreshold:
			analysis.Strengths = append(analysis.Strengths, note.strength)
		case v < improvementThreshold:
			analysis.Improvements = append(analysis.Improvements, note.improvement)
		}
	}
	analysis.Summary = summarize(scores.Overall)
	return analysis, nil
}

func summarize(overall int) string {
	var verdict string
	switch {
	case overall >= 80:
		verdict = "This CV is well optimised for applicant tracking systems."
	case overall >= 60:
		verdict = "This CV should pass most applicant tracking systems with a few improvements."
	default:
		verdict = "This CV is at risk of being filtered out by applicant tracking systems."
	}
	return fmt.Sprintf("Estimated ATS score %d/100. %s", overall, verdict)
}
