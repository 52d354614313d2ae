package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	catalogPaths []string
	verbose      bool
	jsonOutput   bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "unitflow",
		Short: "Unitflow - Unit Orchestration Engine",
		Long: `Unitflow plans and executes graphs of typed work units.

Features:
  - Typed unit catalogs via CUE
  - Starlark-scripted unit executors
  - Dependency-closure planning with layered parallel execution
  - Cross-unit data flow via expression mappings
  - Policy gating of plans via OPA/rego
  - SQLite-backed run history`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringSliceVarP(&catalogPaths, "catalog", "c", nil, "unit catalog file or directory (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newUnitsCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newDevCommand())

	return rootCmd
}
