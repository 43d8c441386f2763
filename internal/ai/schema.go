package ai

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"google.golang.org/genai"
)

var scoreFields = []string{
	"overall", "keywordMatch", "formatting", "sectionPresence", "readability",
	"length", "contentRelevance", "saQualifications", "bbbeeCompliance",
}

// analysisJSONSchema checks model output before it is trusted
const analysisJSONSchema = `{
  "type": "object",
  "required": ["scores", "strengths", "improvements"],
  "properties": {
    "scores": {
      "type": "object",
      "required": ["overall", "keywordMatch", "formatting", "sectionPresence", "readability",
                   "length", "contentRelevance", "saQualifications", "bbbeeCompliance"],
      "additionalProperties": {"type": "integer", "minimum": 0, "maximum": 100}
    },
    "strengths":    {"type": "array", "items": {"type": "string"}, "maxItems": 10},
    "improvements": {"type": "array", "items": {"type": "string"}, "maxItems": 10},
    "summary":      {"type": "string"}
  }
}`

var analysisSchemaLoader = gojsonschema.NewStringLoader(analysisJSONSchema)

// validateAnalysisJSON returns an error listing every schema violation
func validateAnalysisJSON(data []byte) error {
	result, err := gojsonschema.Validate(analysisSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("response does not match schema: %s", strings.Join(msgs, "; "))
}

// buildAnalysisConfig creates the constrained generation config
func buildAnalysisConfig(temperature float32) *genai.GenerateContentConfig {
	scoreProps := make(map[string]*genai.Schema, len(scoreFields))
	for _, f := range scoreFields {
		scoreProps[f] = &genai.Schema{Type: genai.TypeInteger}
	}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"scores": {
					Type:       genai.TypeObject,
					Properties: scoreProps,
					Required:   scoreFields,
				},
				"strengths": {
					Type:  genai.TypeArray,
					Items: &genai.Schema{Type: genai.TypeString},
				},
				"improvements": {
					Type:  genai.TypeArray,
					Items: &genai.Schema{Type: genai.TypeString},
				},
				"summary": {Type: genai.TypeString},
			},
			Required: []string{"scores", "strengths", "improvements", "summary"},
		},
	}

	if temperature > 0 {
		cfg.Temperature = genai.Ptr(temperature)
	}
	return cfg
}
