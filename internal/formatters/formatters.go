package formatters

import (
	"encoding/json"
	"fmt"
	"strings"

	"atsboost/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "Analysis", &AnalysisTextFormatter{})
	registry.RegisterFormatter("markdown", "Analysis", &AnalysisMarkdownFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case types.Analysis, *types.Analysis:
		return "Analysis"
	default:
		return "any"
	}
}

func asAnalysis(data any) (types.Analysis, error) {
	switch v := data.(type) {
	case types.Analysis:
		return v, nil
	case *types.Analysis:
		if v != nil {
			return *v, nil
		}
	}
	return types.Analysis{}, fmt.Errorf("expected Analysis, got %T", data)
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

type scoreLine struct {
	label string
	value int
}

// scoreLines lists the sub-scores in display order. Overall is printed
// separately.
func scoreLines(s types.ATSScore) []scoreLine {
	return []scoreLine{
		{"Keyword match", s.KeywordMatch},
		{"Formatting", s.Formatting},
		{"Section presence", s.SectionPresence},
		{"Readability", s.Readability},
		{"Length", s.Length},
		{"Content relevance", s.ContentRelevance},
		{"SA qualifications", s.SAQualifications},
		{"B-BBEE compliance", s.BBBEECompliance},
	}
}

// AnalysisTextFormatter renders an analysis for the terminal
type AnalysisTextFormatter struct{}

func (atf *AnalysisTextFormatter) Format(data any) (string, error) {
	result, err := asAnalysis(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("=== ATS SCORE ===\n")
	fmt.Fprintf(&output, "Overall: %d/100 (%s)\n\n", result.Scores.Overall, sourceLabel(result))

	for _, line := range scoreLines(result.Scores) {
		fmt.Fprintf(&output, "%-18s %3d\n", line.label+":", line.value)
	}
	output.WriteString("\n")

	if len(result.Strengths) > 0 {
		output.WriteString("=== STRENGTHS ===\n")
		for _, s := range result.Strengths {
			fmt.Fprintf(&output, "- %s\n", s)
		}
		output.WriteString("\n")
	}

	if len(result.Improvements) > 0 {
		output.WriteString("=== IMPROVEMENTS ===\n")
		for _, s := range result.Improvements {
			fmt.Fprintf(&output, "- %s\n", s)
		}
		output.WriteString("\n")
	}

	if result.Summary != "" {
		output.WriteString("=== SUMMARY ===\n")
		output.WriteString(result.Summary)
		output.WriteString("\n")
	}

	return output.String(), nil
}

func (atf *AnalysisTextFormatter) SupportedType() string {
	return "Analysis"
}

// AnalysisMarkdownFormatter renders an analysis as a markdown report
type AnalysisMarkdownFormatter struct{}

func (amf *AnalysisMarkdownFormatter) Format(data any) (string, error) {
	result, err := asAnalysis(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("# ATS Score Report\n\n")
	fmt.Fprintf(&output, "**Overall score:** %d/100  \n", result.Scores.Overall)
	fmt.Fprintf(&output, "**Source:** %s\n\n", sourceLabel(result))

	output.WriteString("## Breakdown\n\n")
	output.WriteString("| Category | Score |\n")
	output.WriteString("|----------|------:|\n")
	for _, line := range scoreLines(result.Scores) {
		fmt.Fprintf(&output, "| %s | %d |\n", line.label, line.value)
	}
	output.WriteString("\n")

	if len(result.Strengths) > 0 {
		output.WriteString("## Strengths\n\n")
		for _, s := range result.Strengths {
			fmt.Fprintf(&output, "- %s\n", s)
		}
		output.WriteString("\n")
	}

	if len(result.Improvements) > 0 {
		output.WriteString("## Improvements\n\n")
		for _, s := range result.Improvements {
			fmt.Fprintf(&output, "- %s\n", s)
		}
		output.WriteString("\n")
	}

	if result.Summary != "" {
		output.WriteString("## Summary\n\n")
		output.WriteString(result.Summary)
		output.WriteString("\n")
	}

	return output.String(), nil
}

func (amf *AnalysisMarkdownFormatter) SupportedType() string {
	return "Analysis"
}

func sourceLabel(a types.Analysis) string {
	if a.Cached {
		return a.Source + ", cached"
	}
	return a.Source
}
