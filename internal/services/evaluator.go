package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/cv-eval-pipeline/internal/logger"
	"alfredoptarigan/cv-eval-pipeline/internal/models"
	"alfredoptarigan/cv-eval-pipeline/internal/repositories"
)

// EvaluatorService drives one task from queued to a terminal status.
type EvaluatorService interface {
	Evaluate(ctx context.Context, taskID uuid.UUID) error
}

type EvaluatorOptions struct {
	TopK                int
	CVContextTypes      []string
	ProjectContextTypes []string
}

type evaluatorService struct {
	tasks     repositories.TaskRepository
	docs      repositories.DocumentRepository
	retriever Retriever
	llm       LLMOrchestrator
	validator OutputValidator
	scorer    *Scorer
	notifier  StatusNotifier
	opts      EvaluatorOptions
	log       *zap.Logger
}

func NewEvaluatorService(
	tasks repositories.TaskRepository,
	docs repositories.DocumentRepository,
	retriever Retriever,
	llm LLMOrchestrator,
	validator OutputValidator,
	scorer *Scorer,
	notifier StatusNotifier,
	opts EvaluatorOptions,
	log *zap.Logger,
) EvaluatorService {
	if notifier == nil {
		notifier = NewNopNotifier()
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &evaluatorService{
		tasks:     tasks,
		docs:      docs,
		retriever: retriever,
		llm:       llm,
		validator: validator,
		scorer:    scorer,
		notifier:  notifier,
		opts:      opts,
		log:       logger.WithFields(log),
	}
}

type rawOutputs struct {
	CVExtraction      json.RawMessage `json:"cv_extraction"`
	CVEvaluation      json.RawMessage `json:"cv_evaluation"`
	ProjectEvaluation json.RawMessage `json:"project_evaluation"`
	Summary           string          `json:"summary"`
	Meta              rawOutputsMeta  `json:"meta"`
}

type rawOutputsMeta struct {
	JobTitle          string          `json:"job_title,omitempty"`
	JobDescription    string          `json:"job_description"`
	Rubric            json.RawMessage `json:"rubric,omitempty"`
	CVTextLength      int             `json:"cv_text_length"`
	ProjectTextLength int             `json:"project_text_length"`
	EvaluatedAt       time.Time       `json:"evaluated_at"`
}

// Evaluate claims the task, runs the pipeline and commits the result. Any
// pipeline or commit error marks the task failed and is returned unchanged.
// A task that cannot be claimed is skipped without error, and so is a run
// whose claim was taken over by another worker before it could commit.
func (e *evaluatorService) Evaluate(ctx context.Context, taskID uuid.UUID) error {
	log := logger.ForTask(e.log, taskID)

	attempt, err := e.tasks.Claim(ctx, taskID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotClaimable) || errors.Is(err, repositories.ErrNotFound) {
			log.Info("⏭️ task not claimable, skipping delivery", zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to claim task: %w", err)
	}
	log = log.With(zap.Int("attempt", attempt))

	log.Info("🔄 starting evaluation", zap.String(logger.FieldStatus, string(models.StatusProcessing)))
	e.notify(ctx, log, taskID, models.StatusProcessing, "evaluation started")

	result, err := e.run(ctx, taskID, log)
	if err == nil {
		err = e.tasks.Complete(context.WithoutCancel(ctx), attempt, result)
		if errors.Is(err, repositories.ErrNotClaimable) {
			log.Warn("⚠️ task reclaimed by another worker, discarding result", zap.Error(err))
			return nil
		}
	}

	if err != nil {
		// Model and validation failures are expected outcomes; anything else is infrastructure.
		if IsPipelineError(err) {
			log.Warn("❌ evaluation failed", zap.Error(err))
		} else {
			log.Error("❌ evaluation failed", zap.Error(err))
		}

		markErr := e.tasks.MarkFailed(context.WithoutCancel(ctx), taskID, attempt, err.Error())
		switch {
		case errors.Is(markErr, repositories.ErrNotClaimable):
			log.Warn("⚠️ task reclaimed by another worker, failure not recorded", zap.Error(markErr))
			return err
		case markErr != nil:
			log.Error("failed to record task failure", zap.Error(markErr))
		}
		e.notify(ctx, log, taskID, models.StatusFailed, err.Error())
		return err
	}

	log.Info("✅ evaluation completed",
		zap.Float64("cv_match_rate", result.CVMatchRate),
		zap.Float64("project_score", result.ProjectScore),
	)
	e.notify(ctx, log, taskID, models.StatusCompleted, "evaluation completed")
	return nil
}

func (e *evaluatorService) run(ctx context.Context, taskID uuid.UUID, log *zap.Logger) (*models.EvaluationResult, error) {
	task, err := e.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	docs, err := e.docs.FindByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var cvText, projectText string
	for _, d := range docs {
		switch d.Role {
		case models.RoleCV:
			cvText = strings.TrimSpace(d.ExtractedText)
		case models.RoleProject:
			projectText = strings.TrimSpace(d.ExtractedText)
		}
	}

	var meta models.JobMeta
	if task.JobMeta != nil {
		meta = *task.JobMeta
	}

	raw := rawOutputs{
		Meta: rawOutputsMeta{
			JobTitle:          meta.JobTitle,
			JobDescription:    meta.JobDescription,
			Rubric:            meta.Rubric,
			CVTextLength:      len(cvText),
			ProjectTextLength: len(projectText),
		},
	}

	var (
		cvEval      *models.CVEvaluation
		projectEval *models.ProjectEvaluation
		violations  []error
	)

	if cvText != "" {
		cvEval, err = e.evaluateCV(ctx, cvText, meta, &raw, log)
		if err != nil {
			if !isSchemaViolation(err) {
				return nil, err
			}
			violations = append(violations, err)
		}
	} else {
		log.Info("no CV text, skipping CV branch")
	}

	if projectText != "" {
		projectEval, err = e.evaluateProject(ctx, projectText, meta, &raw, log)
		if err != nil {
			if !isSchemaViolation(err) {
				return nil, err
			}
			violations = append(violations, err)
		}
	} else {
		log.Info("no project text, skipping project branch")
	}

	if len(violations) > 0 {
		return nil, errors.Join(violations...)
	}

	result := &models.EvaluationResult{TaskID: taskID}
	if cvEval != nil {
		result.CVMatchRate = e.scorer.CVMatchRate(*cvEval)
		result.CVFeedback = feedback(cvEval.Notes)
	}
	if projectEval != nil {
		result.ProjectScore = e.scorer.ProjectScore(*projectEval)
		result.ProjectFeedback = feedback(projectEval.Notes)
	}

	log.Info("🤖 generating overall summary")
	summary, err := e.llm.RefineSummary(ctx, cvEval, projectEval)
	if err != nil {
		return nil, fmt.Errorf("failed to generate summary: %w", err)
	}
	result.OverallSummary = summary
	raw.Summary = summary
	raw.Meta.EvaluatedAt = time.Now().UTC()

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode raw outputs: %w", err)
	}
	result.RawLLMOutputs = encoded

	return result, nil
}

func (e *evaluatorService) evaluateCV(ctx context.Context, cvText string, meta models.JobMeta, raw *rawOutputs, log *zap.Logger) (*models.CVEvaluation, error) {
	log.Info("🔍 retrieving context for CV")
	retrieved, err := e.retriever.RetrieveContext(ctx, cvText, e.opts.TopK, e.opts.CVContextTypes...)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve CV context: %w", err)
	}

	log.Info("🤖 extracting CV")
	extraction, err := e.llm.ExtractCV(ctx, cvText)
	if err != nil {
		return nil, fmt.Errorf("failed to extract CV: %w", err)
	}
	raw.CVExtraction = extraction

	log.Info("🤖 scoring CV")
	scored, err := e.llm.ScoreCV(ctx, extraction, jobContext(meta, retrieved))
	if err != nil {
		return nil, fmt.Errorf("failed to score CV: %w", err)
	}
	raw.CVEvaluation = scored

	return e.validator.ValidateCV(scored)
}

func (e *evaluatorService) evaluateProject(ctx context.Context, projectText string, meta models.JobMeta, raw *rawOutputs, log *zap.Logger) (*models.ProjectEvaluation, error) {
	log.Info("🔍 retrieving context for project report")
	retrieved, err := e.retriever.RetrieveContext(ctx, projectText, e.opts.TopK, e.opts.ProjectContextTypes...)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve project context: %w", err)
	}

	log.Info("🤖 scoring project report")
	scored, err := e.llm.ScoreProject(ctx, projectText, jobContext(meta, retrieved))
	if err != nil {
		return nil, fmt.Errorf("failed to score project: %w", err)
	}
	raw.ProjectEvaluation = scored

	return e.validator.ValidateProject(scored)
}

func (e *evaluatorService) notify(ctx context.Context, log *zap.Logger, taskID uuid.UUID, status models.TaskStatus, message string) {
	err := e.notifier.Publish(context.WithoutCancel(ctx), StatusUpdate{
		TaskID:    taskID,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Warn("⚠️ failed to publish status update", zap.String(logger.FieldStatus, string(status)), zap.Error(err))
	}
}

func jobContext(meta models.JobMeta, retrieved string) JobContext {
	return JobContext{
		JobTitle:       meta.JobTitle,
		JobDescription: meta.JobDescription,
		Rubric:         meta.Rubric,
		Retrieved:      retrieved,
	}
}

func feedback(notes string) *string {
	return &notes
}

func isSchemaViolation(err error) bool {
	var sv *SchemaViolation
	return errors.As(err, &sv)
}
