package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spboyer/codeloop/internal/generator"
	"github.com/spboyer/codeloop/internal/projectconfig"
	"github.com/spf13/cobra"
)

const configHeader = `# codeloop project configuration.
# Relative paths are resolved against the directory holding this file.
`

func newInitCommand() *cobra.Command {
	var (
		engine string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a default .codeloop.yaml",
		Long: `Write a .codeloop.yaml holding every default setting, ready to edit.

If no directory is specified, the current directory is used. An existing file
is only replaced with --force.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return initCommandE(cmd, dir, engine, force)
		},
	}

	cmd.Flags().StringVar(&engine, "engine", "", "Generator engine to configure (openai, copilot, mock)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")

	return cmd
}

func initCommandE(cmd *cobra.Command, dir, engine string, force bool) error {
	if engine != "" && !slices.Contains(generator.Engines, engine) {
		return fmt.Errorf("unknown engine %q (expected one of %s)", engine, strings.Join(generator.Engines, ", "))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, projectconfig.FileName)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg := projectconfig.New()
	cfg.Generator = withEngine(cfg.Generator, engine)

	data, err := projectconfig.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path) //nolint:errcheck
	return nil
}
