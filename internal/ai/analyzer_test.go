package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"atsboost/internal/cache"
	"atsboost/internal/config"
	apperrors "atsboost/internal/errors"
	"atsboost/internal/scoring"
	"atsboost/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

const sampleCV = `Jane Mokoena. Contact: jane@example.co.za.
Summary: Experienced professional who can lead teams and implement change.
Experience: Responsible for projects at a Johannesburg bank. Skilled in reporting.
Education: BCom, NQF level 7, matric. Skills: Excel, SQL. B-BBEE level 1.
References available on request.`

const validModelJSON = `{
  "scores": {"overall": 72, "keywordMatch": 70, "formatting": 80, "sectionPresence": 100,
             "readability": 75, "length": 40, "contentRelevance": 75, "saQualifications": 65,
             "bbbeeCompliance": 85},
  "strengths": ["Clear sections"],
  "improvements": ["Add more detail"],
  "summary": "Solid CV."
}`

// stubAnalyzer returns a canned result or error and counts calls
type stubAnalyzer struct {
	name   string
	result types.Analysis
	err    error
	calls  int
	mu     sync.Mutex
}

func (s *stubAnalyzer) Name() string { return s.name }

func (s *stubAnalyzer) Analyze(context.Context, types.AnalysisRequest) (types.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result, s.err
}

// fakeModels implements contentGenerator
type fakeModels struct {
	responses []func() (*genai.GenerateContentResponse, error)
	calls     int
	lastText  string
	lastCfg   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	idx := min(f.calls, len(f.responses)-1)
	f.calls++
	f.lastCfg = cfg
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.lastText = contents[0].Parts[0].Text
	}
	return f.responses[idx]()
}

func textResponse(text string) func() (*genai.GenerateContentResponse, error) {
	return func() (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
			}},
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
				PromptTokenCount:     120,
				CandidatesTokenCount: 80,
				TotalTokenCount:      200,
			},
		}, nil
	}
}

func errorResponse(err error) func() (*genai.GenerateContentResponse, error) {
	return func() (*genai.GenerateContentResponse, error) { return nil, err }
}

func testAIConfig() config.AIConfig {
	return config.AIConfig{
		Provider:         config.ProviderGemini,
		Model:            "gemini-2.0-flash",
		Timeout:          5 * time.Second,
		APIKey:           "test-key",
		MaxRetries:       2,
		Temperature:      0.2,
		UseSystemPrompts: true,
	}
}

func newTestGemini(models *fakeModels) *GeminiAnalyzer {
	g := newGeminiAnalyzer(models, testAIConfig(), nil)
	g.backoffBase = time.Millisecond
	return g
}

func TestHeuristicAnalyzer(t *testing.T) {
	h := NewHeuristicAnalyzer(scoring.NewSeededSource(7))

	got, err := h.Analyze(context.Background(), types.AnalysisRequest{CVText: sampleCV})
	require.NoError(t, err)

	assert.Equal(t, types.SourceHeuristic, got.Source)
	assert.InDelta(t, 86, got.Scores.SectionPresence, 4)
	assert.Contains(t, got.Strengths, "Clear, standard CV sections that ATS parsers recognise")
	assert.Contains(t, got.Improvements, "Adjust the length towards roughly 400 words")
	assert.True(t, strings.HasPrefix(got.Summary, "Estimated ATS score"))
}

func TestHeuristicAnalyzerEmptyText(t *testing.T) {
	h := NewHeuristicAnalyzer(nil)

	got, err := h.Analyze(context.Background(), types.AnalysisRequest{})
	require.NoError(t, err)
	assert.Equal(t, types.ATSScore{}, got.Scores)
	assert.Empty(t, got.Strengths)
	assert.Empty(t, got.Improvements)
}

func TestSummarize(t *testing.T) {
	assert.Contains(t, summarize(85), "well optimised")
	assert.Contains(t, summarize(65), "few improvements")
	assert.Contains(t, summarize(30), "at risk")
}

func TestFallbackChainFirstSuccessWins(t *testing.T) {
	first := &stubAnalyzer{name: "a", result: types.Analysis{Source: "a"}}
	second := &stubAnalyzer{name: "b", result: types.Analysis{Source: "b"}}

	got, err := NewFallbackChain(nil, first, second).Analyze(context.Background(), types.AnalysisRequest{CVText: "x"})
	require.NoError(t, err)
	assert.Equal(t, "a", got.Source)
	assert.Zero(t, second.calls)
}

func TestFallbackChainFallsBack(t *testing.T) {
	remote := &stubAnalyzer{name: "gemini", err: errors.New("quota exceeded")}
	local := NewHeuristicAnalyzer(scoring.NewSeededSource(1))

	got, err := NewFallbackChain(nil, remote, local).Analyze(context.Background(), types.AnalysisRequest{CVText: sampleCV})
	require.NoError(t, err)
	assert.Equal(t, types.SourceHeuristic, got.Source)
	assert.Equal(t, 1, remote.calls)
}

func TestFallbackChainAllFail(t *testing.T) {
	a := &stubAnalyzer{name: "a", err: errors.New("first down")}
	b := &stubAnalyzer{name: "b", err: errors.New("second down")}

	_, err := NewFallbackChain(nil, a, b).Analyze(context.Background(), types.AnalysisRequest{})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAI))
	assert.ErrorContains(t, err, "first down")
	assert.ErrorContains(t, err, "second down")
}

func TestFallbackChainEmpty(t *testing.T) {
	_, err := NewFallbackChain(nil).Analyze(context.Background(), types.AnalysisRequest{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfig))
}

func TestCachedAnalyzer(t *testing.T) {
	c := cache.NewMemoryCache(time.Hour, 10)
	inner := &stubAnalyzer{name: "gemini", result: types.Analysis{Source: "gemini", Scores: types.ATSScore{Overall: 71}}}
	cached := NewCachedAnalyzer(inner, c, time.Minute, nil)
	req := types.AnalysisRequest{CVText: "cv", JobDescription: "jd"}

	first, err := cached.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := cached.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 71, second.Scores.Overall)
	assert.Equal(t, 1, inner.calls)

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
}

func TestCachedAnalyzerDoesNotCacheErrors(t *testing.T) {
	c := cache.NewMemoryCache(time.Hour, 10)
	inner := &stubAnalyzer{name: "x", err: errors.New("down")}
	cached := NewCachedAnalyzer(inner, c, 0, nil)

	_, err := cached.Analyze(context.Background(), types.AnalysisRequest{CVText: "cv"})
	require.Error(t, err)
	_, err = cached.Analyze(context.Background(), types.AnalysisRequest{CVText: "cv"})
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.Zero(t, c.Stats().Entries)
}

func TestCachedAnalyzerIgnoresCorruptEntry(t *testing.T) {
	c := cache.NewMemoryCache(time.Hour, 10)
	req := types.AnalysisRequest{CVText: "cv"}
	require.NoError(t, c.Set(context.Background(), CacheKey(req), []byte("not json"), 0))

	inner := &stubAnalyzer{name: "x", result: types.Analysis{Source: "x"}}
	got, err := NewCachedAnalyzer(inner, c, 0, nil).Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, got.Cached)
	assert.Equal(t, 1, inner.calls)
}

func TestCacheKeySeparatesFields(t *testing.T) {
	a := CacheKey(types.AnalysisRequest{CVText: "ab", JobDescription: "c"})
	b := CacheKey(types.AnalysisRequest{CVText: "a", JobDescription: "bc"})
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
}

func TestGeminiAnalyzerSuccess(t *testing.T) {
	models := &fakeModels{responses: []func() (*genai.GenerateContentResponse, error){textResponse(validModelJSON)}}
	g := newTestGemini(models)

	got, err := g.Analyze(context.Background(), types.AnalysisRequest{CVText: "my cv", JobDescription: "data analyst"})
	require.NoError(t, err)

	assert.Equal(t, types.SourceGemini, got.Source)
	assert.Equal(t, 72, got.Scores.Overall)
	assert.Equal(t, 85, got.Scores.BBBEECompliance)
	assert.Equal(t, []string{"Clear sections"}, got.Strengths)
	require.NotNil(t, got.Usage)
	assert.EqualValues(t, 200, got.Usage.TotalTokens)

	assert.Contains(t, models.lastText, "my cv")
	assert.Contains(t, models.lastText, "data analyst")
	require.NotNil(t, models.lastCfg)
	assert.Equal(t, "application/json", models.lastCfg.ResponseMIMEType)
	assert.NotNil(t, models.lastCfg.SystemInstruction)
	require.NotNil(t, models.lastCfg.Temperature)
	assert.InDelta(t, 0.2, *models.lastCfg.Temperature, 1e-6)
}

func TestGeminiAnalyzerRejectsOutOfRangeScores(t *testing.T) {
	bad := strings.Replace(validModelJSON, `"overall": 72`, `"overall": 140`, 1)
	models := &fakeModels{responses: []func() (*genai.GenerateContentResponse, error){textResponse(bad)}}

	_, err := newTestGemini(models).Analyze(context.Background(), types.AnalysisRequest{CVText: "cv"})
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeAIResponseInvalid, appErr.Code)
}

func TestGeminiAnalyzerRetriesTransientErrors(t *testing.T) {
	models := &fakeModels{responses: []func() (*genai.GenerateContentResponse, error){
		errorResponse(&googleapi.Error{Code: 503}),
		errorResponse(genai.APIError{Code: 429}),
		textResponse(validModelJSON),
	}}

	got, err := newTestGemini(models).Analyze(context.Background(), types.AnalysisRequest{CVText: "cv"})
	require.NoError(t, err)
	assert.Equal(t, 72, got.Scores.Overall)
	assert.Equal(t, 3, models.calls)
}

func TestGeminiAnalyzerDoesNotRetryClientErrors(t *testing.T) {
	models := &fakeModels{responses: []func() (*genai.GenerateContentResponse, error){
		errorResponse(genai.APIError{Code: 400, Message: "bad request"}),
	}}

	_, err := newTestGemini(models).Analyze(context.Background(), types.AnalysisRequest{CVText: "cv"})
	require.Error(t, err)
	assert.Equal(t, 1, models.calls)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAI))
}

func TestGeminiAnalyzerSetPrompts(t *testing.T) {
	models := &fakeModels{responses: []func() (*genai.GenerateContentResponse, error){textResponse(validModelJSON)}}
	g := newTestGemini(models)

	g.SetPrompts("custom system", "Score this CV: %s against %s")
	_, err := g.Analyze(context.Background(), types.AnalysisRequest{CVText: "cv-text"})
	require.NoError(t, err)

	assert.Equal(t, "Score this CV: cv-text against (none provided)", models.lastText)
	assert.Equal(t, "custom system", models.lastCfg.SystemInstruction.Parts[0].Text)
}

func TestFormatUserPrompt(t *testing.T) {
	assert.Equal(t, "a=cv b=jd", formatUserPrompt("a=%s b=%s", "cv", "jd"))
	assert.Equal(t, "100% a=cv b=jd", formatUserPrompt("100%% a=%s b=%s", "cv", "jd"))

	appended := formatUserPrompt("Rate this CV.", "cv", "")
	assert.Contains(t, appended, "Rate this CV.")
	assert.Contains(t, appended, "**CV:**\ncv")
	assert.Contains(t, appended, noJobDescription)
}

func TestValidateAnalysisJSON(t *testing.T) {
	assert.NoError(t, validateAnalysisJSON([]byte(validModelJSON)))
	assert.Error(t, validateAnalysisJSON([]byte(`{"scores": {}}`)))
	assert.Error(t, validateAnalysisJSON([]byte(`not json`)))

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(validModelJSON), &m))
	delete(m["scores"].(map[string]any), "bbbeeCompliance")
	raw, _ := json.Marshal(m)
	assert.ErrorContains(t, validateAnalysisJSON(raw), "bbbeeCompliance")
}

func TestNewServiceHeuristicOnly(t *testing.T) {
	cfg := &config.Config{AI: config.AIConfig{Provider: config.ProviderHeuristic}}
	svc, err := NewService(context.Background(), cfg, ServiceOptions{Random: scoring.NewSeededSource(3)}, nil)
	require.NoError(t, err)

	assert.False(t, svc.Remote())
	assert.Nil(t, svc.Cache())
	assert.Equal(t, map[string]any{"enabled": false}, svc.BreakerStats())

	got, err := svc.Analyze(context.Background(), types.AnalysisRequest{CVText: sampleCV})
	require.NoError(t, err)
	assert.Equal(t, types.SourceHeuristic, got.Source)
}

func TestNewServiceGeminiWithoutKeyFallsBackToHeuristic(t *testing.T) {
	cfg := &config.Config{AI: config.AIConfig{Provider: config.ProviderGemini}}
	svc, err := NewService(context.Background(), cfg, ServiceOptions{}, nil)
	require.NoError(t, err)
	assert.False(t, svc.Remote())
}

func TestNewServiceOffline(t *testing.T) {
	cfg := &config.Config{AI: testAIConfig()}
	svc, err := NewService(context.Background(), cfg, ServiceOptions{Offline: true}, nil)
	require.NoError(t, err)
	assert.False(t, svc.Remote())
}

func TestNewServiceUnknownProvider(t *testing.T) {
	cfg := &config.Config{AI: config.AIConfig{Provider: "openai"}}
	_, err := NewService(context.Background(), cfg, ServiceOptions{}, nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfig))
}

func TestServiceWithRemoteFallbackAndCache(t *testing.T) {
	unavailable := errorResponse(&googleapi.Error{Code: 503})
	models := &fakeModels{responses: []func() (*genai.GenerateContentResponse, error){
		unavailable, unavailable, unavailable,
		textResponse(validModelJSON),
	}}
	c := cache.NewMemoryCache(time.Hour, 10)
	svc := NewServiceWith(c, nil, newTestGemini(models), NewHeuristicAnalyzer(scoring.NewSeededSource(9)))
	req := types.AnalysisRequest{CVText: sampleCV}

	assert.True(t, svc.Remote())
	first, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, types.SourceHeuristic, first.Source)
	assert.Equal(t, 3, models.calls)
	assert.Zero(t, c.Stats().Entries, "fallback result must not be cached")

	second, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, types.SourceGemini, second.Source)
	assert.False(t, second.Cached)
	assert.Equal(t, 4, models.calls)

	third, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, third.Cached)
	assert.Equal(t, types.SourceGemini, third.Source)
	assert.Equal(t, 4, models.calls)

	stats := svc.BreakerStats()
	assert.Equal(t, false, stats["enabled"])
	assert.Equal(t, true, stats["healthy"])
}

func TestCachedAnalyzerStoreOnly(t *testing.T) {
	c := cache.NewMemoryCache(time.Hour, 10)
	inner := &stubAnalyzer{name: "fallback", result: types.Analysis{Source: types.SourceHeuristic}}
	cached := NewCachedAnalyzer(inner, c, time.Minute, nil).StoreOnly(types.SourceGemini)
	req := types.AnalysisRequest{CVText: "cv"}

	for range 2 {
		got, err := cached.Analyze(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, got.Cached)
	}
	assert.Equal(t, 2, inner.calls)
	assert.Zero(t, c.Stats().Entries)

	inner.result = types.Analysis{Source: types.SourceGemini}
	_, err := cached.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 1, c.Stats().Entries)
}
