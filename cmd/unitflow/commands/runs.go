package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/unitflow/unitflow/pkg/stores"
)

func newRunsCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect run history",
		Long:  `Inspect the run history persisted to the SQLite store by 'run --db'.`,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "unitflow.db", "SQLite database path")

	cmd.AddCommand(newRunsListCommand(&dbPath))
	cmd.AddCommand(newRunsShowCommand(&dbPath))

	return cmd
}

func newRunsListCommand(dbPath *string) *cobra.Command {
	var (
		status string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List past runs",
		Example: `  # List recent runs
  unitflow runs list --db unitflow.db

  # List failed runs only
  unitflow runs list --db unitflow.db --status failed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *dbPath, func(ctx context.Context, store *stores.SQLiteStore) error {
				var statusFilter *string
				if status != "" {
					statusFilter = &status
				}
				runs, err := store.ListRuns(ctx, statusFilter, limit, offset)
				if err != nil {
					return err
				}

				if jsonOutput {
					return printJSON(runs)
				}
				for _, run := range runs {
					fmt.Printf("%s  %-10s %-20s %s  %d/%d ok\n",
						run.ID, run.Status, run.Primary,
						run.StartedAt.Format(time.RFC3339),
						run.Succeeded, run.Total)
				}
				fmt.Printf("%d run(s)\n", len(runs))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by run status")
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "offset into the result set")

	return cmd
}

func newRunsShowCommand(dbPath *string) *cobra.Command {
	var trace bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its unit results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			return withStore(cmd.Context(), *dbPath, func(ctx context.Context, store *stores.SQLiteStore) error {
				run, err := store.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				results, err := store.ListUnitResultsByRun(ctx, runID)
				if err != nil {
					return err
				}

				if jsonOutput {
					return printJSON(map[string]interface{}{
						"run":   run,
						"units": results,
					})
				}

				fmt.Printf("run %s: %s (plan %s, primary %s)\n", run.ID, run.Status, run.PlanID, run.Primary)
				fmt.Printf("  started %s, %dms\n", run.StartedAt.Format(time.RFC3339), run.DurationMS)
				for _, ur := range results {
					line := fmt.Sprintf("  %-10s %s (%d attempt(s), %dms)", ur.Status, ur.UnitID, ur.Attempts, ur.DurationMS)
					if ur.ErrorMessage != nil {
						line += fmt.Sprintf(": %s", *ur.ErrorMessage)
					}
					fmt.Println(line)
				}

				if trace {
					transitions, err := store.ListTransitions(ctx, runID, nil, 0, 0)
					if err != nil {
						return err
					}
					for _, tr := range transitions {
						fmt.Printf("  %s  %-20s %s -> %s\n",
							tr.Timestamp.Format(time.RFC3339Nano), tr.UnitID, tr.FromStatus, tr.ToStatus)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&trace, "trace", false, "include the status transition trace")

	return cmd
}

func withStore(ctx context.Context, dbPath string, fn func(context.Context, *stores.SQLiteStore) error) error {
	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	return fn(ctx, store)
}
