package ai

import "fmt"

// DefaultSystemPrompt frames the model as an ATS reviewer for the South
// African job market.
const DefaultSystemPrompt = `You are an expert recruiter and Applicant Tracking System (ATS) analyst for the South African job market. Your core principles are:

- Score only what is present in the CV text; never assume unstated skills or qualifications
- Be consistent: the same CV should always receive the same scores
- Recognise South African context such as B-BBEE status, NQF levels, SAQA evaluation and matric results
- Give practical, specific feedback a job seeker can act on`

// DefaultUserPrompt is formatted with the CV text and the job description.
const DefaultUserPrompt = `Analyse the CV below as an ATS would and return JSON that matches the response schema.

**Scoring** (integers from 0 to 100):
- overall: weighted overall ATS compatibility
- keywordMatch: use of strong professional keywords and action verbs
- formatting: structure, sentence length and scannability
- sectionPresence: presence of standard sections (education, experience, skills, references, contact, objective, summary)
- readability: clarity and word choice
- length: closeness to an ideal length of about 400 words
- contentRelevance: relevance to the job description, or general relevance when none is given
- saQualifications: South African qualifications and terms (NQF, SAQA, matric, employment equity)
- bbbeeCompliance: how clearly B-BBEE status is communicated

Also return up to five strengths, up to five concrete improvements and a two sentence summary.

**CV:**
%s

**Job Description:**
%s`

const noJobDescription = "(none provided)"

// formatUserPrompt fills the user template. A template without verbs is
// used as-is with the inputs appended.
func formatUserPrompt(template, cvText, jobDescription string) string {
	if jobDescription == "" {
		jobDescription = noJobDescription
	}
	if !hasTwoVerbs(template) {
		return fmt.Sprintf("%s\n\n**CV:**\n%s\n\n**Job Description:**\n%s", template, cvText, jobDescription)
	}
	return fmt.Sprintf(template, cvText, jobDescription)
}

func hasTwoVerbs(template string) bool {
	count := 0
	for i := 0; i < len(template)-1; i++ {
		if template[i] != '%' {
			continue
		}
		switch template[i+1] {
		case '%':
			i++
		case 's':
			count++
		}
	}
	return count == 2
}

// resolvePrompt returns the first non-empty candidate
func resolvePrompt(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
