package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the messenger drain loop",
	Long: `worker runs the messenger task queue's single drain loop without
the rest of the engine serving requests, for deployments that split the two
(spec.md's single-process-worker non-goal still holds: exactly one worker
may run against a given database at a time).`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := wire(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	worker := a.newWorker()
	if worker == nil {
		return fmt.Errorf("worker: telegram_bot_token is not configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)
	a.log.Info().Msg("messenger worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	a.log.Info().Msg("stopping worker")
	worker.Stop()
	return nil
}
