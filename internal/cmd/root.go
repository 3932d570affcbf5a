// Package cmd is the cobra command tree for the spacenoted binary,
// generalizing linear-fuse's internal/cmd ([mount|version] under one
// rootCmd) to SpaceNote's [serve|worker|export|import|version].
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spacenote/spacenote/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "spacenoted",
	Short: "SpaceNote: a multi-tenant, schema-driven note-taking service",
	Long: `spacenoted runs the SpaceNote engine: per-space custom field schemas,
a filter/query DSL, note and comment lifecycles, an attachment pipeline with
image renditions, and a durable messenger task queue.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default: ~/.config/spacenote/config.yaml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "enable debug logging")
}

// loadConfig loads configuration honoring the --config/--debug persistent
// flags, the way linear-fuse's runMount reads cmd.Root().PersistentFlags().
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if debug, _ := cmd.Root().PersistentFlags().GetBool("debug"); debug {
		cfg.Debug = true
	}
	return cfg, nil
}
