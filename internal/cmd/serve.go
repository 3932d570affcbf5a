package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the SpaceNote engine and messenger worker",
	Long: `serve wires the full SpaceNote engine (spaces, notes, comments,
attachments, renditions) and keeps the messenger worker draining tasks until
interrupted. Exposing the engine over HTTP is deliberately out of scope here
(spec.md §1); serve is the long-running process a transport would sit in
front of.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if worker != nil {
		worker.Start(ctx)
		a.log.Info().Msg("messenger worker started")
	} else {
		a.log.Info().Msg("messenger worker disabled: no telegram_bot_token configured")
	}

	a.log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("spacenoted serving")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	a.log.Info().Msg("shutting down")
	if worker != nil {
		worker.Stop()
	}
	return nil
}
