package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var exportIncludeData bool

var exportCmd = &cobra.Command{
	Use:   "export <space-slug>",
	Short: "Export a space's configuration (and optionally its data) as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().BoolVar(&exportIncludeData, "data", false, "include notes, comments and attachment metadata")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := wire(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	bundle, err := a.export.Export(context.Background(), args[0], exportIncludeData)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(bundle)
}
