package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alfredoptarigan/cv-eval-pipeline/internal/logger"
	"alfredoptarigan/cv-eval-pipeline/internal/repositories"
)

type Worker interface {
	Start(ctx context.Context)
	Stop()
	EnqueueJob(ctx context.Context, taskID uuid.UUID) error
}

type WorkerOptions struct {
	Concurrency  int
	PollInterval time.Duration
	// StaleAfter is how long a task may sit in processing before it is requeued.
	// Zero disables the reaper.
	StaleAfter time.Duration
	BatchSize  int
}

type worker struct {
	tasks     repositories.TaskRepository
	evaluator EvaluatorService
	queue     TaskQueue
	opts      WorkerOptions
	log       *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

func NewWorker(
	tasks repositories.TaskRepository,
	evaluator EvaluatorService,
	queue TaskQueue,
	opts WorkerOptions,
	log *zap.Logger,
) Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	return &worker{
		tasks:     tasks,
		evaluator: evaluator,
		queue:     queue,
		opts:      opts,
		log:       logger.WithFields(log),
	}
}

// Start implements Worker.
func (w *worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.group != nil {
		return
	}

	w.log.Info("🚀 starting worker", zap.Int("concurrency", w.opts.Concurrency))

	ctx, w.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	w.group = g

	for i := 0; i < w.opts.Concurrency; i++ {
		consumerID := i + 1
		g.Go(func() error {
			return w.consume(gctx, consumerID)
		})
	}

	if w.opts.PollInterval > 0 {
		g.Go(func() error {
			w.every(gctx, w.opts.PollInterval, w.pollQueued)
			return nil
		})
	}

	if w.opts.StaleAfter > 0 {
		g.Go(func() error {
			w.every(gctx, w.reapInterval(), w.reapStale)
			return nil
		})
	}

	w.log.Info("✅ worker started")
}

// Stop implements Worker.
func (w *worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.group == nil {
		return
	}

	w.log.Info("🛑 stopping worker")
	w.cancel()
	if err := w.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		w.log.Warn("worker exited with error", zap.Error(err))
	}
	w.group = nil
	w.log.Info("✅ worker stopped")
}

// EnqueueJob implements Worker.
func (w *worker) EnqueueJob(ctx context.Context, taskID uuid.UUID) error {
	if err := w.queue.Enqueue(ctx, taskID); err != nil {
		logger.ForTask(w.log, taskID).Warn("⚠️ failed to enqueue task", zap.Error(err))
		return err
	}
	logger.ForTask(w.log, taskID).Debug("📥 task enqueued")
	return nil
}

func (w *worker) consume(ctx context.Context, consumerID int) error {
	log := w.log.With(zap.Int("consumer", consumerID))
	log.Info("👷 consumer started")

	err := w.queue.Consume(ctx, func(ctx context.Context, taskID uuid.UUID) error {
		log.Info("👷 processing task", zap.String(logger.FieldTaskID, taskID.String()))
		return w.evaluator.Evaluate(ctx, taskID)
	})

	log.Info("👷 consumer stopped")
	return err
}

// pollQueued re-enqueues tasks that stayed queued for a full interval.
func (w *worker) pollQueued(ctx context.Context) {
	pending, err := w.tasks.FindQueued(ctx, time.Now().Add(-w.opts.PollInterval), w.opts.BatchSize)
	if err != nil {
		w.log.Warn("⚠️ failed to fetch queued tasks", zap.Error(err))
		return
	}

	if len(pending) > 0 {
		w.log.Info("📋 re-enqueueing queued tasks", zap.Int("count", len(pending)))
	}

	for _, task := range pending {
		if err := w.EnqueueJob(ctx, task.ID); err != nil {
			return
		}
	}
}

// reapStale moves tasks stuck in processing back to queued.
func (w *worker) reapStale(ctx context.Context) {
	ids, err := w.tasks.RequeueStale(ctx, time.Now().Add(-w.opts.StaleAfter), w.opts.BatchSize)
	if err != nil {
		w.log.Warn("⚠️ failed to requeue stale tasks", zap.Error(err))
		return
	}

	for _, id := range ids {
		logger.ForTask(w.log, id).Warn("♻️ requeued stale task", zap.Duration("stale_after", w.opts.StaleAfter))
		if err := w.EnqueueJob(ctx, id); err != nil {
			return
		}
	}
}

func (w *worker) reapInterval() time.Duration {
	interval := w.opts.StaleAfter / 4
	if w.opts.PollInterval > 0 && interval < w.opts.PollInterval {
		interval = w.opts.PollInterval
	}
	if interval <= 0 {
		interval = w.opts.StaleAfter
	}
	return interval
}

// every runs fn once immediately and then on each tick until ctx is done.
func (w *worker) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
