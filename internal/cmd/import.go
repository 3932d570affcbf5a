package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spacenote/spacenote/internal/export"
)

var importCmd = &cobra.Command{
	Use:   "import <bundle.yaml>",
	Short: "Import a space from a bundle produced by export",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := wire(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}
	var bundle export.Bundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}

	sp, err := a.export.Import(context.Background(), &bundle)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Printf("imported space %q\n", sp.Slug)
	return nil
}
