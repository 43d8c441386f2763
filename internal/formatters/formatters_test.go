package formatters

import (
	"encoding/json"
	"testing"

	"atsboost/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAnalysis() types.Analysis {
	return types.Analysis{
		Scores: types.ATSScore{
			Overall:          74,
			KeywordMatch:     68,
			Formatting:       80,
			SectionPresence:  86,
			Readability:      71,
			Length:           90,
			ContentRelevance: 65,
			SAQualifications: 60,
			BBBEECompliance:  40,
		},
		Strengths:    []string{"Clear contact details"},
		Improvements: []string{"Add measurable achievements"},
		Source:       types.SourceHeuristic,
	}
}

func TestFormatAnalysisText(t *testing.T) {
	out, err := NewFormatterRegistry().Format(sampleAnalysis(), "text")
	require.NoError(t, err)

	assert.Contains(t, out, "Overall: 74/100 (heuristic)")
	assert.Contains(t, out, "B-BBEE compliance:  40")
	assert.Contains(t, out, "- Clear contact details")
	assert.Contains(t, out, "=== IMPROVEMENTS ===")
	assert.NotContains(t, out, "=== SUMMARY ===")
}

func TestFormatAnalysisMarkdown(t *testing.T) {
	a := sampleAnalysis()
	a.Cached = true
	a.Summary = "Solid CV."

	out, err := NewFormatterRegistry().Format(&a, "markdown")
	require.NoError(t, err)

	assert.Contains(t, out, "# ATS Score Report")
	assert.Contains(t, out, "**Source:** heuristic, cached")
	assert.Contains(t, out, "| Keyword match | 68 |")
	assert.Contains(t, out, "## Summary\n\nSolid CV.")
}

func TestFormatJSONFallsBackToAny(t *testing.T) {
	out, err := NewFormatterRegistry().Format(sampleAnalysis(), "json")
	require.NoError(t, err)

	var decoded types.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 74, decoded.Scores.Overall)
}

func TestFormatUnknown(t *testing.T) {
	r := NewFormatterRegistry()

	_, err := r.Format(sampleAnalysis(), "yaml")
	assert.Error(t, err)

	_, err = r.Format(map[string]string{"a": "b"}, "text")
	assert.Error(t, err)

	assert.ElementsMatch(t, []string{"json", "text", "markdown"}, r.GetSupportedFormats())
}

func TestAnalysisFormatterRejectsOtherTypes(t *testing.T) {
	_, err := (&AnalysisTextFormatter{}).Format("not an analysis")
	assert.Error(t, err)
}
