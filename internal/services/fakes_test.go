package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
	"alfredoptarigan/cv-eval-pipeline/internal/repositories"
)

// noWaitRetry retries without sleeping.
func noWaitRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts}
}

type generateCall struct {
	Prompt string
	Params GenerationParams
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   []generateCall
	respond func(prompt string, params GenerationParams) (string, error)
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string, params GenerationParams) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, generateCall{Prompt: prompt, Params: params})
	g.mu.Unlock()
	return g.respond(prompt, params)
}

func (g *fakeGenerator) Provider() string { return "fake" }
func (g *fakeGenerator) Model() string    { return "fake-model" }
func (g *fakeGenerator) Close() error     { return nil }

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// pipelineResponses answers each orchestrator prompt by its shape.
type pipelineResponses struct {
	Extraction string
	CVScore    string
	Project    string
	Summary    string
}

func (r pipelineResponses) respond(prompt string, _ GenerationParams) (string, error) {
	switch {
	case strings.Contains(prompt, "--- CV START ---"):
		return r.Extraction, nil
	case strings.Contains(prompt, "EXTRACTED_CV_JSON:"):
		return r.CVScore, nil
	case strings.Contains(prompt, "--- PROJECT START ---"):
		return r.Project, nil
	case strings.Contains(prompt, "CV_SCORE_JSON:"):
		return r.Summary, nil
	}
	return "", errors.New("unexpected prompt")
}

type fakeEmbedder struct {
	mu      sync.Mutex
	intents []EmbeddingIntent
	err     error
	vector  func(text string) []float32
}

func (e *fakeEmbedder) Embed(_ context.Context, text string, intent EmbeddingIntent) ([]float32, error) {
	e.mu.Lock()
	e.intents = append(e.intents, intent)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	if e.vector != nil {
		return e.vector(text), nil
	}
	return []float32{float32(len(text)), 1}, nil
}

func (e *fakeEmbedder) Dimensions() int { return 2 }
func (e *fakeEmbedder) Close() error    { return nil }

type fakeStore struct {
	mu        sync.Mutex
	chunks    map[string][]models.DocumentChunk
	results   []SearchResult
	searched  [][]string
	replaceFn func(documentType string, chunks []models.DocumentChunk) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{chunks: map[string][]models.DocumentChunk{}}
}

func (s *fakeStore) ReplaceChunks(_ context.Context, documentType string, chunks []models.DocumentChunk) error {
	if s.replaceFn != nil {
		if err := s.replaceFn(documentType, chunks); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[documentType] = chunks
	return nil
}

func (s *fakeStore) Search(_ context.Context, _ []float32, documentTypes []string, limit int) ([]SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searched = append(s.searched, documentTypes)
	if len(s.results) > limit {
		return s.results[:limit], nil
	}
	return s.results, nil
}

func (s *fakeStore) Close() error { return nil }

// fakeTasks is an in-memory TaskRepository with the same conditional
// transitions as the gorm implementation.
type fakeTasks struct {
	mu          sync.Mutex
	tasks       map[uuid.UUID]*models.Task
	results     map[uuid.UUID]*models.EvaluationResult
	docs        map[uuid.UUID][]models.ExtractedDocument
	completeErr error
	stale       []uuid.UUID
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{
		tasks:   map[uuid.UUID]*models.Task{},
		results: map[uuid.UUID]*models.EvaluationResult{},
		docs:    map[uuid.UUID][]models.ExtractedDocument{},
	}
}

// seed adds a queued task with the given documents.
func (f *fakeTasks) seed(meta *models.JobMeta, docs ...models.ExtractedDocument) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	now := time.Now()
	f.tasks[id] = &models.Task{ID: id, Status: models.StatusQueued, JobMeta: meta, CreatedAt: now, UpdatedAt: now}
	for i := range docs {
		docs[i].TaskID = id
	}
	f.docs[id] = docs
	return id
}

func (f *fakeTasks) status(id uuid.UUID) models.TaskStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id].Status
}

func (f *fakeTasks) result(id uuid.UUID) *models.EvaluationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[id]
}

func (f *fakeTasks) CreateWithDocuments(_ context.Context, task *models.Task, docs []models.ExtractedDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.ID] = task
	f.docs[task.ID] = docs
	return nil
}

func (f *fakeTasks) FindByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTasks) Queue(_ context.Context, id uuid.UUID, meta models.JobMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if !t.Status.Requeueable() {
		return repositories.ErrNotClaimable
	}
	t.Status = models.StatusQueued
	t.JobMeta = &meta
	t.ErrorMessage = nil
	return nil
}

func (f *fakeTasks) Claim(_ context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return 0, repositories.ErrNotFound
	}
	if t.Status != models.StatusQueued {
		return 0, repositories.ErrNotClaimable
	}
	t.Status = models.StatusProcessing
	t.Attempt++
	return t.Attempt, nil
}

// current reports whether attempt still owns the task. Callers hold f.mu.
func (f *fakeTasks) current(id uuid.UUID, attempt int) error {
	t, ok := f.tasks[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if t.Status != models.StatusProcessing || t.Attempt != attempt {
		return repositories.ErrNotClaimable
	}
	return nil
}

func (f *fakeTasks) Complete(_ context.Context, attempt int, res *models.EvaluationResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	if err := f.current(res.TaskID, attempt); err != nil {
		return err
	}
	f.results[res.TaskID] = res
	f.tasks[res.TaskID].Status = models.StatusCompleted
	return nil
}

func (f *fakeTasks) MarkFailed(_ context.Context, id uuid.UUID, attempt int, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.current(id, attempt); err != nil {
		return err
	}
	t := f.tasks[id]
	t.Status = models.StatusFailed
	t.ErrorMessage = &msg
	return nil
}

// takeOver simulates the reaper requeueing a task and another worker claiming it.
func (f *fakeTasks) takeOver(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[id]
	t.Status = models.StatusProcessing
	t.Attempt++
}

func (f *fakeTasks) FindQueued(_ context.Context, olderThan time.Time, limit int) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Task
	for _, t := range f.tasks {
		if t.Status == models.StatusQueued && t.UpdatedAt.Before(olderThan) && len(out) < limit {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTasks) RequeueStale(_ context.Context, _ time.Time, _ int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.stale
	f.stale = nil
	for _, id := range ids {
		f.tasks[id].Status = models.StatusQueued
	}
	return ids, nil
}

func (f *fakeTasks) FindByTaskID(_ context.Context, taskID uuid.UUID) ([]models.ExtractedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[taskID], nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	updates []StatusUpdate
}

func (n *fakeNotifier) Publish(_ context.Context, u StatusUpdate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, u)
	return nil
}

func (n *fakeNotifier) Close() error { return nil }

func (n *fakeNotifier) statuses() []models.TaskStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.TaskStatus, 0, len(n.updates))
	for _, u := range n.updates {
		out = append(out, u.Status)
	}
	return out
}
