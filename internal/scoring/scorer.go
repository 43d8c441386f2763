// Package scoring computes the heuristic ATS score of a CV.
package scoring

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"atsboost/internal/types"
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+`)
	wordSplit     = regexp.MustCompile(`\s+`)
	nonWord       = regexp.MustCompile(`\W`)
)

// Generic professional terms counted by presence.
var professionalKeywords = []string{
	"experienced", "manage", "collaborate", "develop", "lead",
	"achieve", "implement", "improve", "coordinate", "analyze",
	"professional", "responsible", "skilled",
}

var sectionNames = []string{
	"education", "experience", "skills", "references",
	"contact", "objective", "summary",
}

var saTerms = []string{"bbbee", "b-bbee", "equity", "nqf", "saqa", "matric"}

var relevanceStopWords = map[string]struct{}{
	"and": {}, "the": {}, "that": {}, "with": {}, "from": {}, "this": {}, "have": {},
}

const (
	idealWordCount = 400
	jitterSpan     = 7 // IntN(7)-3 yields [-3, +3]
	bbbeeSpan      = 30
)

// Baseline holds the analytically clamped sub-scores before jitter.
type Baseline struct {
	KeywordMatch     float64
	SectionPresence  float64
	Formatting       float64
	Length           float64
	ContentRelevance float64
	SAQualifications float64
	Readability      float64
	Overall          float64
}

// Scorer produces jittered ATS scores. The zero value is not usable; use New.
type Scorer struct {
	src RandomSource
}

// New returns a scorer drawing randomness from src. A nil src uses
// DefaultSource.
func New(src RandomSource) *Scorer {
	if src == nil {
		src = DefaultSource()
	}
	return &Scorer{src: src}
}

// Score computes the score set for cvText against an optional job
// description. Empty text yields all zeros.
//
// Randomness is consumed in a fixed order: bbbeeCompliance first, then the
// jitter of overall, keywordMatch, formatting, sectionPresence, readability,
// length, contentRelevance and saQualifications.
func (s *Scorer) Score(cvText, jobDescription string) types.ATSScore {
	if cvText == "" {
		return types.ATSScore{}
	}

	text := strings.ToLower(cvText)
	base := ComputeBaseline(text, jobDescription)

	var bbbee int
	if strings.Contains(text, "bbbee") || strings.Contains(text, "b-bbee") {
		bbbee = 65 + s.src.IntN(bbbeeSpan)
	} else {
		bbbee = 40 + s.src.IntN(bbbeeSpan)
	}

	return types.ATSScore{
		Overall:          s.vary(base.Overall),
		KeywordMatch:     s.vary(base.KeywordMatch),
		Formatting:       s.vary(base.Formatting),
		SectionPresence:  s.vary(base.SectionPresence),
		Readability:      s.vary(base.Readability),
		Length:           s.vary(base.Length),
		ContentRelevance: s.vary(base.ContentRelevance),
		SAQualifications: s.vary(base.SAQualifications),
		BBBEECompliance:  bbbee,
	}
}

// vary applies natural variation: jitter, clamp, round.
func (s *Scorer) vary(v float64) int {
	jitter := s.src.IntN(jitterSpan) - 3
	return int(math.Round(clamp(v + float64(jitter))))
}

// ComputeBaseline returns the deterministic part of the score. text is
// expected to be lower-cased already.
func ComputeBaseline(text, jobDescription string) Baseline {
	sentences := len(sentenceSplit.Split(text, -1))
	words := len(wordSplit.Split(text, -1))

	b := Baseline{
		KeywordMatch:     keywordScore(text),
		SectionPresence:  sectionScore(text),
		Formatting:       formattingScore(sentences, words),
		Length:           lengthScore(words),
		ContentRelevance: relevanceScore(text, jobDescription),
		SAQualifications: saScore(text),
		Readability:      readabilityScore(text, words),
	}

	b.Overall = clamp(math.Round(
		b.KeywordMatch*0.20 +
			b.SectionPresence*0.20 +
			b.Formatting*0.15 +
			b.Length*0.10 +
			b.ContentRelevance*0.15 +
			b.SAQualifications*0.10 +
			b.Readability*0.10))
	return b
}

func countPresent(text string, terms []string) int {
	n := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			n++
		}
	}
	return n
}

func keywordScore(text string) float64 {
	found := countPresent(text, professionalKeywords)
	if found == 0 {
		return 40
	}
	return clamp(math.Min(float64(found*7), 95))
}

func sectionScore(text string) float64 {
	found := countPresent(text, sectionNames)
	if found == 0 {
		return 45
	}
	return clamp(math.Min(float64(found)/float64(len(sectionNames))*100, 100))
}

func formattingScore(sentences, words int) float64 {
	avg := float64(words) / float64(max(sentences, 1))
	goodLength := avg > 5 && avg < 25
	manySentences := sentences > 10
	if goodLength && manySentences {
		return 90
	}

	lengthCheck, sentenceCheck := 60.0, 65.0
	if goodLength {
		lengthCheck = 90
	}
	if manySentences {
		sentenceCheck = 90
	}
	return math.Min(lengthCheck, sentenceCheck)
}

func lengthScore(words int) float64 {
	if words == 0 {
		return 70
	}
	diff := math.Abs(float64(words - idealWordCount))
	return clamp(math.Min(100-diff/5, 95))
}

func relevanceScore(text, jobDescription string) float64 {
	if jobDescription == "" {
		return 75
	}

	seen := make(map[string]struct{})
	var unique []string
	for _, w := range wordSplit.Split(strings.ToLower(jobDescription), -1) {
		if utf8.RuneCountInString(w) <= 4 {
			continue
		}
		if _, stop := relevanceStopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		unique = append(unique, w)
	}

	matched := countPresent(text, unique)
	ratio := float64(matched) / float64(max(len(unique), 1))
	score := math.Min(ratio*150, 98)
	if score == 0 {
		return 60
	}
	return clamp(score)
}

func saScore(text string) float64 {
	found := countPresent(text, saTerms)
	if found == 0 {
		return 50
	}
	return clamp(math.Min(float64(found*15), 95))
}

func readabilityScore(text string, words int) float64 {
	letters := len(nonWord.ReplaceAllString(text, ""))
	avg := float64(letters) / float64(max(words, 1))
	if avg > 3.5 && avg < 7 {
		return clamp(math.Min(95-math.Abs(5-avg)*10, 90))
	}
	return 65
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
