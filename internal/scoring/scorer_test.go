package scoring

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atsboost/internal/types"
)

// fixedSource always returns v, reduced into [0, n).
type fixedSource int

func (f fixedSource) IntN(n int) int { return int(f) % n }

// recordingSource replays values in order and records the requested bounds.
type recordingSource struct {
	values []int
	bounds []int
}

func (r *recordingSource) IntN(n int) int {
	r.bounds = append(r.bounds, n)
	if len(r.values) == 0 {
		return 0
	}
	v := r.values[0]
	r.values = r.values[1:]
	return v % n
}

const allSectionsCV = "Contact: jane@example.co.za. Objective: grow in finance. Summary: analyst. " +
	"Education: BCom Accounting. Experience: five years. Skills: Excel, SQL. References: on request."

func fields(s types.ATSScore) map[string]int {
	return map[string]int{
		"overall":          s.Overall,
		"keywordMatch":     s.KeywordMatch,
		"formatting":       s.Formatting,
		"sectionPresence":  s.SectionPresence,
		"readability":      s.Readability,
		"length":           s.Length,
		"contentRelevance": s.ContentRelevance,
		"saQualifications": s.SAQualifications,
		"bbbeeCompliance":  s.BBBEECompliance,
	}
}

func TestScoreEmptyText(t *testing.T) {
	src := &recordingSource{}
	s := New(src)

	assert.Equal(t, types.ATSScore{}, s.Score("", "some job"))
	assert.Empty(t, src.bounds, "empty text must not consume randomness")
}

func TestScoreExactValuesWithZeroJitter(t *testing.T) {
	// 3 maps to a jitter of 0 and to bbbee 40+3.
	s := New(fixedSource(3))
	got := s.Score("Skills", "")

	want := types.ATSScore{
		Overall:          47,
		KeywordMatch:     40,
		Formatting:       60,
		SectionPresence:  14,
		Readability:      85,
		Length:           20,
		ContentRelevance: 75,
		SAQualifications: 50,
		BBBEECompliance:  43,
	}
	assert.Equal(t, want, got)
}

func TestScoreRandomnessOrder(t *testing.T) {
	src := &recordingSource{values: []int{29, 6, 0, 3, 3, 3, 3, 3, 3}}
	got := New(src).Score("Skills", "")

	require.Equal(t, []int{30, 7, 7, 7, 7, 7, 7, 7, 7}, src.bounds)
	assert.Equal(t, 69, got.BBBEECompliance)
	assert.Equal(t, 50, got.Overall, "overall gets +3")
	assert.Equal(t, 37, got.KeywordMatch, "keyword gets -3")
}

func TestScoreClampsAfterJitter(t *testing.T) {
	high := New(fixedSource(6)).Score(allSectionsCV, "")
	assert.Equal(t, 100, high.SectionPresence)

	low := New(fixedSource(0)).Score(strings.Repeat("word ", 1000), "")
	assert.Equal(t, 0, low.Length)
}

func TestScoreBoundsProperty(t *testing.T) {
	inputs := []struct{ cv, jd string }{
		{"x", ""},
		{"!!!", ""},
		{allSectionsCV, ""},
		{allSectionsCV, "Senior accountant with audit experience and IFRS knowledge"},
		{strings.Repeat("Experienced professional responsible for delivery. ", 200), ""},
		{"B-BBEE level 1. NQF 7. SAQA verified. Matric 2010. Employment equity.", "matric"},
		{strings.Repeat("supercalifragilistic ", 50), ""},
	}

	s := New(nil)
	for _, in := range inputs {
		for range 50 {
			for name, v := range fields(s.Score(in.cv, in.jd)) {
				assert.GreaterOrEqual(t, v, 0, name)
				assert.LessOrEqual(t, v, 100, name)
			}
		}
	}
}

func TestScoreJitterBand(t *testing.T) {
	text := strings.ToLower(allSectionsCV)
	base := ComputeBaseline(text, "")

	s := New(NewSeededSource(42))
	for range 200 {
		got := s.Score(allSectionsCV, "")
		assert.InDelta(t, base.Overall, float64(got.Overall), 3)
		assert.InDelta(t, base.ContentRelevance, float64(got.ContentRelevance), 3)
	}
}

func TestBaselineAllSectionsPresent(t *testing.T) {
	base := ComputeBaseline(strings.ToLower(allSectionsCV), "")
	assert.Equal(t, 100.0, base.SectionPresence)

	s := New(nil)
	for range 100 {
		got := s.Score(allSectionsCV, "")
		assert.GreaterOrEqual(t, got.SectionPresence, 97)
	}
}

func TestBaselineDefaults(t *testing.T) {
	base := ComputeBaseline("plain text without anything", "")
	assert.Equal(t, 50.0, base.SAQualifications)
	assert.Equal(t, 75.0, base.ContentRelevance)
	assert.Equal(t, 40.0, base.KeywordMatch)
	assert.Equal(t, 45.0, base.SectionPresence)
}

func TestKeywordScore(t *testing.T) {
	text := strings.ToLower("Experienced manager who collaborates well to develop and lead projects.")
	// experienced, manage, collaborate, develop, lead
	assert.Equal(t, 35.0, keywordScore(text))

	all := strings.Join(professionalKeywords, " ")
	assert.Equal(t, 91.0, keywordScore(all))
}

func TestSAScore(t *testing.T) {
	assert.Equal(t, 30.0, saScore("nqf level 6 and saqa"))
	// "b-bbee" also contains "bbee" but not "bbbee"
	assert.Equal(t, 15.0, saScore("b-bbee level 2"))
	assert.Equal(t, 90.0, saScore(strings.Join(saTerms, " ")))
}

func TestFormattingScore(t *testing.T) {
	tests := []struct {
		name      string
		sentences int
		words     int
		want      float64
	}{
		{"good length many sentences", 11, 110, 90},
		{"short sentences many of them", 11, 30, 60},
		{"good length few sentences", 3, 30, 65},
		{"single word", 1, 1, 60},
		{"boundary average 25 excluded", 12, 300, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formattingScore(tt.sentences, tt.words))
		})
	}
}

func TestLengthScore(t *testing.T) {
	assert.Equal(t, 95.0, lengthScore(400))
	assert.Equal(t, 70.0, lengthScore(0))
	assert.Equal(t, 80.0, lengthScore(300))
	assert.Equal(t, 0.0, lengthScore(900))
	assert.Equal(t, 0.0, lengthScore(1000))
}

func TestRelevanceScore(t *testing.T) {
	jd := "Python developer with cloud experience and leadership"
	// unique terms: python, developer, cloud, experience, leadership

	assert.Equal(t, 75.0, relevanceScore("anything", ""))
	assert.Equal(t, 90.0, relevanceScore("python developer on cloud", jd))
	assert.Equal(t, 98.0, relevanceScore("python developer cloud experience leadership", jd))
	assert.Equal(t, 60.0, relevanceScore("nothing relevant", jd))
	assert.Equal(t, 60.0, relevanceScore("anything", "and the with"))
}

func TestReadabilityScore(t *testing.T) {
	assert.Equal(t, 85.0, readabilityScore("skills", 1))
	assert.Equal(t, 65.0, readabilityScore("a b c", 3))
	assert.InDelta(t, 90.0, readabilityScore("hello world", 2), 0.001)
}

func TestBBBEEComplianceRanges(t *testing.T) {
	s := New(NewSeededSource(7))
	for range 500 {
		with := s.Score("B-BBEE level 1 contributor", "").BBBEECompliance
		assert.GreaterOrEqual(t, with, 65)
		assert.LessOrEqual(t, with, 94)

		without := s.Score("Accountant", "").BBBEECompliance
		assert.GreaterOrEqual(t, without, 40)
		assert.LessOrEqual(t, without, 69)
	}
}

func TestScorerConcurrentUse(t *testing.T) {
	s := New(NewSeededSource(1))
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				got := s.Score(allSectionsCV, "finance analyst")
				assert.LessOrEqual(t, got.Overall, 100)
			}
		}()
	}
	wg.Wait()
}
