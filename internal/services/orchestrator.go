package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"alfredoptarigan/cv-eval-pipeline/internal/logger"
	"alfredoptarigan/cv-eval-pipeline/internal/models"
)

const (
	OpExtractCV     = "extract_cv"
	OpScoreCV       = "score_cv"
	OpScoreProject  = "score_project"
	OpRefineSummary = "refine_summary"
)

// Sampling parameters per operation.
var operationParams = map[string]GenerationParams{
	OpExtractCV:     {Temperature: 0.0, MaxOutputTokens: 800, JSONOutput: true},
	OpScoreCV:       {Temperature: 0.0, MaxOutputTokens: 500, JSONOutput: true},
	OpScoreProject:  {Temperature: 0.0, MaxOutputTokens: 500, JSONOutput: true},
	OpRefineSummary: {Temperature: 0.2, MaxOutputTokens: 250},
}

// LLMOrchestrator runs the four prompt chains against a Generator.
type LLMOrchestrator interface {
	ExtractCV(ctx context.Context, cvText string) (json.RawMessage, error)
	ScoreCV(ctx context.Context, extraction json.RawMessage, job JobContext) (json.RawMessage, error)
	ScoreProject(ctx context.Context, projectText string, job JobContext) (json.RawMessage, error)
	RefineSummary(ctx context.Context, cvEval *models.CVEvaluation, projectEval *models.ProjectEvaluation) (string, error)
}

type llmOrchestrator struct {
	generator Generator
	prompts   *PromptBuilder
	retry     RetryPolicy
	log       *zap.Logger
}

func NewLLMOrchestrator(generator Generator, retry RetryPolicy, log *zap.Logger) LLMOrchestrator {
	return &llmOrchestrator{
		generator: generator,
		prompts:   NewPromptBuilder(),
		retry:     retry,
		log:       logger.WithFields(log, logger.CommonFields(generator.Provider(), generator.Model())...),
	}
}

// ExtractCV implements LLMOrchestrator.
func (o *llmOrchestrator) ExtractCV(ctx context.Context, cvText string) (json.RawMessage, error) {
	return o.generateJSON(ctx, OpExtractCV, o.prompts.BuildCVExtractionPrompt(cvText))
}

// ScoreCV implements LLMOrchestrator.
func (o *llmOrchestrator) ScoreCV(ctx context.Context, extraction json.RawMessage, job JobContext) (json.RawMessage, error) {
	return o.generateJSON(ctx, OpScoreCV, o.prompts.BuildCVScoringPrompt(extraction, job))
}

// ScoreProject implements LLMOrchestrator.
func (o *llmOrchestrator) ScoreProject(ctx context.Context, projectText string, job JobContext) (json.RawMessage, error) {
	return o.generateJSON(ctx, OpScoreProject, o.prompts.BuildProjectScoringPrompt(projectText, job))
}

// RefineSummary implements LLMOrchestrator. The text is returned as generated, trimmed.
func (o *llmOrchestrator) RefineSummary(ctx context.Context, cvEval *models.CVEvaluation, projectEval *models.ProjectEvaluation) (string, error) {
	var cv, project any
	if cvEval != nil {
		cv = cvEval
	}
	if projectEval != nil {
		project = projectEval
	}

	out, err := o.generate(ctx, OpRefineSummary, o.prompts.BuildSummaryPrompt(cv, project))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (o *llmOrchestrator) generateJSON(ctx context.Context, op, prompt string) (json.RawMessage, error) {
	out, err := o.generate(ctx, op, prompt)
	if err != nil {
		return nil, err
	}

	parsed, err := SafeParse(out)
	if err != nil {
		o.log.Warn("model output is not JSON",
			zap.String("operation", op),
			zap.String("response_preview", logger.TruncateForLog(out, 200)),
		)
		var malformed *MalformedOutputError
		if errors.As(err, &malformed) {
			malformed.Operation = op
		}
		return nil, err
	}
	return parsed, nil
}

// generate calls the Generator under the retry policy. Parsing is never retried.
func (o *llmOrchestrator) generate(ctx context.Context, op, prompt string) (string, error) {
	params := operationParams[op]
	log := o.log.With(zap.String("operation", op))

	policy := o.retry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("⚠️ generation attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	log.Debug("📝 prompt rendered", zap.Int("prompt_length", len(prompt)))

	return WithRetry(ctx, policy, func(ctx context.Context) (string, error) {
		return o.generator.Generate(ctx, prompt, params)
	})
}

// SafeParse returns raw if it is valid JSON, otherwise the span between the first
// '{' and the last '}' if that is valid JSON.
func SafeParse(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &MalformedOutputError{Operation: "parse"}
	}

	if gjson.Valid(trimmed) {
		return json.RawMessage(trimmed), nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if gjson.Valid(candidate) {
			return json.RawMessage(candidate), nil
		}
	}

	return nil, &MalformedOutputError{Operation: "parse", Preview: logger.TruncateForLog(trimmed, 120)}
}
