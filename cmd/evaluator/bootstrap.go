package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"alfredoptarigan/cv-eval-pipeline/internal/config"
	"alfredoptarigan/cv-eval-pipeline/internal/logger"
	"alfredoptarigan/cv-eval-pipeline/internal/repositories"
	"alfredoptarigan/cv-eval-pipeline/internal/services"
)

// closers are run in reverse order on shutdown.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i]())
	}
	return errors.Join(errs...)
}

type app struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	closers closers
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}

	cfg, err := config.Load(v, files...)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if !cfg.EnvFileLoaded {
		log.Debug("no .env file loaded, using environment only")
	}
	for _, w := range cfg.Warnings() {
		log.Warn("⚠️ " + w)
	}
	log.Info("✅ Config loaded successfully")

	return cfg, log, nil
}

func newApp() (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := config.InitDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: db}
	a.closers.add(func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	a.closers.add(func() error {
		_ = log.Sync()
		return nil
	})
	return a, nil
}

func (a *app) retryPolicy() services.RetryPolicy {
	policy := services.DefaultRetryPolicy()
	policy.MaxAttempts = a.cfg.Worker.RetryMaxAttempts
	policy.BaseDelay = a.cfg.Worker.RetryBaseDelay
	return policy
}

func (a *app) embedder(ctx context.Context) (services.EmbeddingClient, error) {
	embedder, err := services.NewGeminiEmbedder(ctx, a.cfg.LLM.GeminiAPIKey, a.cfg.LLM.EmbeddingModel, a.cfg.Knowledge.Dimensions, a.cfg.LLM.RequestTimeout)
	if err != nil {
		return nil, err
	}
	a.closers.add(embedder.Close)
	return embedder, nil
}

func (a *app) knowledgeStore(ctx context.Context) (services.KnowledgeStore, error) {
	var (
		store services.KnowledgeStore
		err   error
	)

	switch a.cfg.Knowledge.Backend {
	case "qdrant":
		store, err = services.NewQdrantStore(ctx, services.QdrantOptions{
			URL:        a.cfg.Knowledge.QdrantURL,
			APIKey:     a.cfg.Knowledge.QdrantAPIKey,
			Collection: a.cfg.Knowledge.QdrantCollection,
			Dimensions: a.cfg.Knowledge.Dimensions,
		}, repositories.NewSnapshotRepository(a.db), a.log)
	default:
		store, err = services.NewPgvectorStore(ctx, a.cfg.Knowledge.VectorDSN, a.cfg.Knowledge.Dimensions, a.log)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize knowledge store: %w", err)
	}

	a.closers.add(store.Close)
	a.log.Info("✅ Knowledge store initialized", zap.String("backend", a.cfg.Knowledge.Backend))
	return store, nil
}

func (a *app) queue() (services.TaskQueue, error) {
	queue, err := services.NewTaskQueue(a.cfg.Queue, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}
	a.closers.add(queue.Close)
	return queue, nil
}

func (a *app) notifier() (services.StatusNotifier, error) {
	if a.cfg.Queue.Driver != services.QueueDriverAMQP || a.cfg.Queue.StatusExchange == "" {
		return services.NewNopNotifier(), nil
	}

	notifier, err := services.NewAMQPNotifier(a.cfg.Queue.AMQPURL, a.cfg.Queue.StatusExchange)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize status notifier: %w", err)
	}
	a.closers.add(notifier.Close)
	return notifier, nil
}

// worker wires the full evaluation pipeline behind a Worker.
func (a *app) worker(ctx context.Context, queue services.TaskQueue) (services.Worker, error) {
	generator, err := services.NewGenerator(ctx, a.cfg.LLM, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}
	a.closers.add(generator.Close)
	a.log.Info("✅ Generator initialized",
		logger.CommonFields(generator.Provider(), generator.Model())...,
	)

	embedder, err := a.embedder(ctx)
	if err != nil {
		return nil, err
	}

	store, err := a.knowledgeStore(ctx)
	if err != nil {
		return nil, err
	}

	validator, err := services.NewOutputValidator()
	if err != nil {
		return nil, err
	}

	notifier, err := a.notifier()
	if err != nil {
		return nil, err
	}

	tasks := repositories.NewTaskRepository(a.db)
	retry := a.retryPolicy()

	evaluator := services.NewEvaluatorService(
		tasks,
		repositories.NewDocumentRepository(a.db),
		services.NewRetriever(embedder, store, retry, a.log),
		services.NewLLMOrchestrator(generator, retry, a.log),
		validator,
		services.NewScorer(a.cfg.Scoring.CVWeights, a.cfg.Scoring.ProjectWeights),
		notifier,
		services.EvaluatorOptions{
			TopK:                a.cfg.Knowledge.TopK,
			CVContextTypes:      a.cfg.Knowledge.CVContextTypes,
			ProjectContextTypes: a.cfg.Knowledge.ProjectTypes,
		},
		a.log,
	)

	return services.NewWorker(tasks, evaluator, queue, services.WorkerOptions{
		Concurrency:  a.cfg.Worker.Concurrency,
		PollInterval: a.cfg.Worker.PollInterval,
		StaleAfter:   a.cfg.Worker.StaleAfter,
	}, a.log), nil
}
