package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/cv-eval-pipeline/internal/handlers"
	"alfredoptarigan/cv-eval-pipeline/internal/repositories"
	"alfredoptarigan/cv-eval-pipeline/internal/services"
)

var apiWithWorker bool

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the upload, evaluate and result endpoints",
	Long:  "Serve the HTTP API. With the in-memory queue the worker always runs in the same process.",
	RunE:  runAPI,
}

func init() {
	apiCmd.Flags().BoolVar(&apiWithWorker, "with-worker", false, "Also run the evaluation worker in this process")
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.closers.close()

	queue, err := a.queue()
	if err != nil {
		return err
	}

	tasks := repositories.NewTaskRepository(a.db)

	runWorker := apiWithWorker || a.cfg.Queue.Driver == services.QueueDriverMemory
	var worker services.Worker
	if runWorker {
		worker, err = a.worker(ctx, queue)
		if err != nil {
			return err
		}
		worker.Start(context.WithoutCancel(ctx))
		defer worker.Stop()
	} else {
		// Enqueue only; a separate worker process consumes.
		worker = services.NewWorker(tasks, nil, queue, services.WorkerOptions{}, a.log)
	}

	storage, err := services.NewStorageService(ctx, a.cfg.Storage)
	if err != nil {
		return err
	}

	h := handlers.Handlers{
		Upload: handlers.NewUploadHandler(
			tasks,
			storage,
			services.NewDocumentReader(),
			a.cfg.Storage.MaxFileSize,
			a.log,
		),
		Evaluate: handlers.NewEvaluationHandler(tasks, worker, a.log),
		Result:   handlers.NewResultHandler(tasks, repositories.NewResultRepository(a.db), a.log),
	}
	a.log.Info("✅ Handlers initialized")

	app := handlers.NewApp(handlers.AppOptions{
		BodyLimit:       int(a.cfg.Storage.MaxFileSize) * 2,
		RateLimitMax:    a.cfg.Server.RateLimitMax,
		RateLimitWindow: a.cfg.Server.RateLimitWindow,
		AccessLog:       a.cfg.Server.Env == "development",
		Ready: func() bool {
			sqlDB, err := a.db.DB()
			return err == nil && sqlDB.PingContext(ctx) == nil
		},
	}, h)

	go func() {
		<-ctx.Done()
		a.log.Info("🛑 Shutting down server...")
		if err := app.Shutdown(); err != nil {
			a.log.Error("❌ Server forced to shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%s", a.cfg.Server.Port)
	a.log.Info("🚀 Server starting", zap.String("addr", addr), zap.Bool("worker", runWorker))

	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
