package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// JobContext is everything the scoring prompts know about the role.
type JobContext struct {
	JobTitle       string
	JobDescription string
	Rubric         json.RawMessage
	Retrieved      string
}

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildCVExtractionPrompt asks for a structured JSON view of the CV.
func (pb *PromptBuilder) BuildCVExtractionPrompt(cvText string) string {
	return strings.Join([]string{
		"System: You are an extractor that returns only valid JSON. Do not write anything else.",
		"User: Extract the following CV into JSON with keys:",
		`{ "name": string|null, "email": string|null, "skills": string[], "experience_years": number,`,
		`  "projects": [{ "title": string, "description": string, "tech_stack": string[], "role": string|null, "impact": string|null }] }`,
		"Return strictly JSON.",
		"--- CV START ---",
		cvText,
		"--- CV END ---",
	}, "\n")
}

// BuildCVScoringPrompt scores the extracted CV against the job context.
func (pb *PromptBuilder) BuildCVScoringPrompt(extraction json.RawMessage, job JobContext) string {
	return strings.Join([]string{
		"System: Return only JSON with integer scores 1..5 and short notes.",
		"User: Given the job requirements and the extracted CV JSON, produce:",
		`{ "technical_skills": number, "experience_level": number, "achievements": number, "cultural_fit": number, "notes": string }`,
		"Scoring guide:",
		"- technical_skills: alignment with the required stack (backend, databases, APIs, cloud, AI/LLM)",
		"- experience_level: years of experience and complexity of past projects",
		"- achievements: measurable impact of past work",
		"- cultural_fit: communication, learning mindset, teamwork",
		jobSection(job),
		"EXTRACTED_CV_JSON:",
		string(compactJSON(extraction)),
	}, "\n")
}

// BuildProjectScoringPrompt scores the project report against the job context.
func (pb *PromptBuilder) BuildProjectScoringPrompt(projectText string, job JobContext) string {
	return strings.Join([]string{
		"System: Return only JSON with integer scores 1..5 and short notes.",
		"User: Evaluate the project report and produce:",
		`{ "correctness": number, "code_quality": number, "resilience": number, "documentation": number, "creativity": number, "notes": string }`,
		"Scoring guide:",
		"- correctness: prompt design, LLM chaining, RAG context injection",
		"- code_quality: clean, modular, tested",
		"- resilience: long-running jobs, retries, API failures",
		"- documentation: README clarity, setup steps, trade-offs",
		"- creativity: useful extras beyond the brief",
		jobSection(job),
		"--- PROJECT START ---",
		projectText,
		"--- PROJECT END ---",
	}, "\n")
}

// BuildSummaryPrompt asks for a short narrative. Either evaluation may be nil.
func (pb *PromptBuilder) BuildSummaryPrompt(cvEval, projectEval any) string {
	return strings.Join([]string{
		"System: Return only plain text (3-5 sentences).",
		"User: Produce an overall summary for a hiring reviewer based on these results.",
		"Cover strengths, gaps, and a recommendation. A null result means that document was not submitted.",
		"CV_SCORE_JSON:",
		marshalOrNull(cvEval),
		"PROJECT_SCORE_JSON:",
		marshalOrNull(projectEval),
	}, "\n")
}

func jobSection(job JobContext) string {
	var b strings.Builder
	if job.JobTitle != "" {
		fmt.Fprintf(&b, "POSITION: %s\n", job.JobTitle)
	}
	b.WriteString("JOB REQUIREMENTS:\n")
	b.WriteString(orPlaceholder(job.JobDescription, "(not provided)"))
	b.WriteString("\nRUBRIC (schema/weights/desc):\n")
	if len(job.Rubric) > 0 {
		b.Write(compactJSON(job.Rubric))
	} else {
		b.WriteString("(not provided)")
	}
	b.WriteString("\nREFERENCE CONTEXT:\n")
	b.WriteString(orPlaceholder(job.Retrieved, "(no reference documents available)"))
	return b.String()
}

func orPlaceholder(s, placeholder string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}

func compactJSON(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

func marshalOrNull(v any) string {
	if v == nil {
		return "null"
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(out)
}

// FormatRAGContext joins retrieved chunks in similarity order. No results give "".
func FormatRAGContext(results []SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	parts := make([]string, 0, len(results))
	for i, result := range results {
		parts = append(parts, fmt.Sprintf("--- Context %d (Score: %.2f) ---\n%s",
			i+1, result.Score, strings.TrimSpace(result.Content)))
	}

	return strings.Join(parts, "\n\n")
}
