package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
)

const (
	extractionJSON = `{"name":"Ada","skills":["go","postgres"],"experience_years":6,"projects":[]}`
	cvScoreJSON    = `{"technical_skills":5,"experience_level":5,"achievements":5,"cultural_fit":5,"notes":"strong backend profile"}`
	projectJSON    = `{"correctness":4,"code_quality":4,"resilience":4,"documentation":4,"creativity":4,"notes":"solid retries"}`
	summaryText    = "  Strong candidate. Good fit.  "
)

type evaluatorFixture struct {
	tasks     *fakeTasks
	generator *fakeGenerator
	embedder  *fakeEmbedder
	store     *fakeStore
	notifier  *fakeNotifier
	evaluator EvaluatorService
}

func newEvaluatorFixture(t *testing.T, responses pipelineResponses, log *zap.Logger) *evaluatorFixture {
	t.Helper()

	if log == nil {
		log = zap.NewNop()
	}

	validator, err := NewOutputValidator()
	require.NoError(t, err)

	f := &evaluatorFixture{
		tasks:     newFakeTasks(),
		generator: &fakeGenerator{respond: responses.respond},
		embedder:  &fakeEmbedder{},
		store:     newFakeStore(),
		notifier:  &fakeNotifier{},
	}

	retry := noWaitRetry(3)
	f.evaluator = NewEvaluatorService(
		f.tasks,
		f.tasks,
		NewRetriever(f.embedder, f.store, retry, log),
		NewLLMOrchestrator(f.generator, retry, log),
		validator,
		NewDefaultScorer(),
		f.notifier,
		EvaluatorOptions{TopK: 3},
		log,
	)
	return f
}

func defaultResponses() pipelineResponses {
	return pipelineResponses{
		Extraction: extractionJSON,
		CVScore:    cvScoreJSON,
		Project:    projectJSON,
		Summary:    summaryText,
	}
}

func testMeta() *models.JobMeta {
	return &models.JobMeta{
		JobTitle:       "Backend Engineer",
		JobDescription: "Build APIs in Go.",
		Rubric:         json.RawMessage(`{"technical_skills":{"weight":0.4}}`),
	}
}

func cvDoc(text string) models.ExtractedDocument {
	return models.ExtractedDocument{Role: models.RoleCV, ExtractedText: text}
}

func projectDoc(text string) models.ExtractedDocument {
	return models.ExtractedDocument{Role: models.RoleProject, ExtractedText: text}
}

func TestEvaluateCVOnlyTaskCompletes(t *testing.T) {
	f := newEvaluatorFixture(t, defaultResponses(), nil)
	id := f.tasks.seed(testMeta(), cvDoc("Ada Lovelace, Go engineer"))

	require.NoError(t, f.evaluator.Evaluate(context.Background(), id))

	assert.Equal(t, models.StatusCompleted, f.tasks.status(id))

	res := f.tasks.result(id)
	require.NotNil(t, res)
	assert.Equal(t, 100.0, res.CVMatchRate)
	require.NotNil(t, res.CVFeedback)
	assert.Equal(t, "strong backend profile", *res.CVFeedback)
	assert.Equal(t, 0.0, res.ProjectScore)
	assert.Nil(t, res.ProjectFeedback)
	assert.Equal(t, "Strong candidate. Good fit.", res.OverallSummary)

	raw := gjson.ParseBytes(res.RawLLMOutputs)
	assert.Equal(t, "Ada", raw.Get("cv_extraction.name").String())
	assert.Equal(t, int64(5), raw.Get("cv_evaluation.technical_skills").Int())
	assert.Equal(t, gjson.Null, raw.Get("project_evaluation").Type)
	assert.Equal(t, "Backend Engineer", raw.Get("meta.job_title").String())
	assert.Equal(t, int64(0), raw.Get("meta.project_text_length").Int())

	assert.Equal(t, []models.TaskStatus{models.StatusProcessing, models.StatusCompleted}, f.notifier.statuses())
}

func TestEvaluateScoresBothBranches(t *testing.T) {
	responses := defaultResponses()
	responses.CVScore = `{"technical_skills":3,"experience_level":5,"achievements":1,"cultural_fit":4}`
	f := newEvaluatorFixture(t, responses, nil)
	id := f.tasks.seed(testMeta(), cvDoc("cv text"), projectDoc("project text"))

	require.NoError(t, f.evaluator.Evaluate(context.Background(), id))

	res := f.tasks.result(id)
	require.NotNil(t, res)
	assert.Equal(t, 65.0, res.CVMatchRate)
	assert.Equal(t, 8.0, res.ProjectScore)
	require.NotNil(t, res.ProjectFeedback)
	assert.Equal(t, "solid retries", *res.ProjectFeedback)

	// extract, score cv, score project, summary
	assert.Equal(t, 4, f.generator.callCount())
	assert.Equal(t, []EmbeddingIntent{IntentQuery, IntentQuery}, f.embedder.intents)
}

func TestEvaluateUsesOperationParams(t *testing.T) {
	f := newEvaluatorFixture(t, defaultResponses(), nil)
	id := f.tasks.seed(testMeta(), cvDoc("cv text"), projectDoc("project text"))

	require.NoError(t, f.evaluator.Evaluate(context.Background(), id))

	require.Len(t, f.generator.calls, 4)
	assert.Equal(t, operationParams[OpExtractCV], f.generator.calls[0].Params)
	assert.Equal(t, operationParams[OpScoreCV], f.generator.calls[1].Params)
	assert.Equal(t, operationParams[OpScoreProject], f.generator.calls[2].Params)
	assert.Equal(t, operationParams[OpRefineSummary], f.generator.calls[3].Params)
	assert.InDelta(t, 0.2, f.generator.calls[3].Params.Temperature, 1e-6)
}

func TestEvaluateSchemaViolationFailsWithoutResult(t *testing.T) {
	responses := defaultResponses()
	responses.CVScore = `{"technical_skills":6,"experience_level":5,"achievements":1,"cultural_fit":4}`
	f := newEvaluatorFixture(t, responses, nil)
	id := f.tasks.seed(testMeta(), cvDoc("cv text"), projectDoc("project text"))

	err := f.evaluator.Evaluate(context.Background(), id)
	require.Error(t, err)

	var sv *SchemaViolation
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, SchemaCVEvaluation, sv.Schema)

	assert.Equal(t, models.StatusFailed, f.tasks.status(id))
	assert.Nil(t, f.tasks.result(id))

	task, _ := f.tasks.FindByID(context.Background(), id)
	require.NotNil(t, task.ErrorMessage)
	assert.Equal(t, err.Error(), *task.ErrorMessage)

	// The project branch still ran; the summary did not.
	assert.Equal(t, 3, f.generator.callCount())
	assert.Equal(t, []models.TaskStatus{models.StatusProcessing, models.StatusFailed}, f.notifier.statuses())
}

// A re-run that violates the schema never touches the result a previous run
// committed, since the only write happens at the final commit.
func TestEvaluateSchemaViolationLeavesPriorResult(t *testing.T) {
	responses := defaultResponses()
	responses.Project = `{"correctness":4,"code_quality":4,"resilience":4,"documentation":4}`
	f := newEvaluatorFixture(t, responses, nil)
	id := f.tasks.seed(testMeta(), projectDoc("project text"))

	prior := &models.EvaluationResult{TaskID: id, ProjectScore: 7.5, OverallSummary: "previous run"}
	f.tasks.results[id] = prior

	err := f.evaluator.Evaluate(context.Background(), id)

	var sv *SchemaViolation
	require.ErrorAs(t, err, &sv)
	require.Len(t, sv.Fields, 1)
	assert.Equal(t, "creativity", sv.Fields[0].Field)
	assert.Same(t, prior, f.tasks.result(id))
	assert.Equal(t, models.StatusFailed, f.tasks.status(id))
}

func TestEvaluateCommitFailureMarksFailed(t *testing.T) {
	f := newEvaluatorFixture(t, defaultResponses(), nil)
	id := f.tasks.seed(testMeta(), cvDoc("cv text"))
	commitErr := errors.New("connection reset")
	f.tasks.completeErr = commitErr

	err := f.evaluator.Evaluate(context.Background(), id)

	assert.ErrorIs(t, err, commitErr)
	assert.Equal(t, models.StatusFailed, f.tasks.status(id))
	assert.Nil(t, f.tasks.result(id))
}

func TestEvaluateSkipsUnclaimableTask(t *testing.T) {
	f := newEvaluatorFixture(t, defaultResponses(), nil)
	id := f.tasks.seed(testMeta(), cvDoc("cv text"))
	f.tasks.tasks[id].Status = models.StatusProcessing

	require.NoError(t, f.evaluator.Evaluate(context.Background(), id))

	assert.Equal(t, models.StatusProcessing, f.tasks.status(id))
	assert.Zero(t, f.generator.callCount())
	assert.Empty(t, f.notifier.statuses())
}

func TestEvaluateMalformedOutputFails(t *testing.T) {
	responses := defaultResponses()
	responses.Extraction = "I could not read this CV."
	f := newEvaluatorFixture(t, responses, nil)
	id := f.tasks.seed(testMeta(), cvDoc("cv text"))

	err := f.evaluator.Evaluate(context.Background(), id)

	var malformed *MalformedOutputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, OpExtractCV, malformed.Operation)
	assert.Equal(t, models.StatusFailed, f.tasks.status(id))
	// Parsing is not retried.
	assert.Equal(t, 1, f.generator.callCount())
}

func TestEvaluateRetriesTransientGenerationErrors(t *testing.T) {
	responses := defaultResponses()
	failures := 2
	f := newEvaluatorFixture(t, responses, nil)
	f.generator.respond = func(prompt string, params GenerationParams) (string, error) {
		if failures > 0 {
			failures--
			return "", &GenerationError{Provider: "fake", StatusCode: 503, Err: errors.New("unavailable")}
		}
		return responses.respond(prompt, params)
	}
	id := f.tasks.seed(testMeta(), cvDoc("cv text"))

	require.NoError(t, f.evaluator.Evaluate(context.Background(), id))

	assert.Equal(t, models.StatusCompleted, f.tasks.status(id))
	assert.Equal(t, 5, f.generator.callCount())
}

func TestEvaluatePermanentGenerationErrorIsNotRetried(t *testing.T) {
	f := newEvaluatorFixture(t, defaultResponses(), nil)
	denied := &GenerationError{Provider: "fake", StatusCode: 401, Err: errors.New("bad key")}
	f.generator.respond = func(string, GenerationParams) (string, error) {
		return "", Permanent(denied)
	}
	id := f.tasks.seed(testMeta(), cvDoc("cv text"))

	err := f.evaluator.Evaluate(context.Background(), id)

	assert.ErrorIs(t, err, denied)
	assert.Equal(t, 1, f.generator.callCount())
	assert.Equal(t, models.StatusFailed, f.tasks.status(id))
}

func TestEvaluateInjectsRetrievedContext(t *testing.T) {
	f := newEvaluatorFixture(t, defaultResponses(), nil)
	f.store.results = []SearchResult{
		{Content: "Must know PostgreSQL.", DocumentType: "job_briefing", Score: 0.91},
	}
	id := f.tasks.seed(testMeta(), cvDoc("cv text"))

	require.NoError(t, f.evaluator.Evaluate(context.Background(), id))

	require.Len(t, f.generator.calls, 3)
	assert.Contains(t, f.generator.calls[1].Prompt, "Must know PostgreSQL.")
	assert.Contains(t, f.generator.calls[1].Prompt, "POSITION: Backend Engineer")
}

func TestEvaluateEmptyStoreProceedsWithoutContext(t *testing.T) {
	f := newEvaluatorFixture(t, defaultResponses(), nil)
	id := f.tasks.seed(testMeta(), cvDoc("cv text"))

	require.NoError(t, f.evaluator.Evaluate(context.Background(), id))

	assert.Contains(t, f.generator.calls[1].Prompt, "(no reference documents available)")
}

func TestEvaluateEmbeddingFailureFailsTask(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f := newEvaluatorFixture(t, defaultResponses(), zap.New(core))
	f.embedder.err = &EmbeddingError{Model: "fake", Err: errors.New("quota")}
	id := f.tasks.seed(testMeta(), cvDoc("cv text"))

	err := f.evaluator.Evaluate(context.Background(), id)

	var embedErr *EmbeddingError
	require.ErrorAs(t, err, &embedErr)
	assert.Equal(t, models.StatusFailed, f.tasks.status(id))
	assert.Zero(t, f.generator.callCount())

	failed := logs.FilterMessage("❌ evaluation failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, id.String(), failed[0].ContextMap()["task_id"])
}

func TestEvaluateDiscardsResultWhenTaskWasReclaimed(t *testing.T) {
	responses := defaultResponses()
	f := newEvaluatorFixture(t, responses, nil)
	id := f.tasks.seed(testMeta(), cvDoc("cv text"))
	f.generator.respond = func(prompt string, params GenerationParams) (string, error) {
		if strings.Contains(prompt, "CV_SCORE_JSON:") {
			f.tasks.takeOver(id)
		}
		return responses.respond(prompt, params)
	}

	require.NoError(t, f.evaluator.Evaluate(context.Background(), id))

	assert.Equal(t, models.StatusProcessing, f.tasks.status(id))
	assert.Equal(t, 2, f.tasks.tasks[id].Attempt)
	assert.Nil(t, f.tasks.result(id))
	assert.Equal(t, []models.TaskStatus{models.StatusProcessing}, f.notifier.statuses())
}

func TestEvaluateLateFailureLeavesReclaimedTaskRunning(t *testing.T) {
	f := newEvaluatorFixture(t, defaultResponses(), nil)
	id := f.tasks.seed(testMeta(), cvDoc("cv text"))
	f.generator.respond = func(string, GenerationParams) (string, error) {
		f.tasks.takeOver(id)
		return "not json", nil
	}

	err := f.evaluator.Evaluate(context.Background(), id)

	var malformed *MalformedOutputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, models.StatusProcessing, f.tasks.status(id))
	assert.Nil(t, f.tasks.tasks[id].ErrorMessage)
	assert.Equal(t, []models.TaskStatus{models.StatusProcessing}, f.notifier.statuses())
}

func TestEvaluateFailureLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *evaluatorFixture)
		expected zapcore.Level
	}{
		{
			name: "model output",
			setup: func(f *evaluatorFixture) {
				f.generator.respond = func(string, GenerationParams) (string, error) { return "no json here", nil }
			},
			expected: zapcore.WarnLevel,
		},
		{
			name:     "storage",
			setup:    func(f *evaluatorFixture) { f.tasks.completeErr = errors.New("connection reset") },
			expected: zapcore.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			f := newEvaluatorFixture(t, defaultResponses(), zap.New(core))
			tt.setup(f)
			id := f.tasks.seed(testMeta(), cvDoc("cv text"))

			require.Error(t, f.evaluator.Evaluate(context.Background(), id))

			failed := logs.FilterMessage("❌ evaluation failed").All()
			require.Len(t, failed, 1)
			assert.Equal(t, tt.expected, failed[0].Level)
		})
	}
}
