package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued evaluation tasks",
	Long:  "Run the evaluation worker: queue consumers, the queued-task poller and the stale-task reaper.",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
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

	worker, err := a.worker(ctx, queue)
	if err != nil {
		return err
	}

	worker.Start(ctx)
	<-ctx.Done()
	worker.Stop()
	return nil
}
