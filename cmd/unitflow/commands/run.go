package commands

import (
	"context"
	"fmt"
	"os/user"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/unitflow/unitflow/pkg/engine"
	"github.com/unitflow/unitflow/pkg/policy"
	"github.com/unitflow/unitflow/pkg/stores"
	"github.com/unitflow/unitflow/pkg/telemetry"
)

func newRunCommand() *cobra.Command {
	var (
		secondary   []string
		params      []string
		policyPaths []string
		environment string
		dbPath      string
		concurrency int
		deadline    time.Duration
		dryRun      bool
		skipPolicy  bool
	)

	cmd := &cobra.Command{
		Use:   "run <unit>",
		Short: "Plan and execute a unit",
		Long: `Plan and execute a unit together with its dependency closure.

Execution proceeds layer by layer: all units of a layer run concurrently, and
the next layer starts only once the current one has fully settled. Failures
cascade as skips to dependent units; independent branches keep running.

Before execution the plan is evaluated against admission policies. Plans with
error or critical violations are rejected.`,
		Example: `  # Run a unit from the catalog
  unitflow -c ./catalog run report

  # Run with parameters and an extra requested unit
  unitflow -c ./catalog run report --with fetch --param fetch.url=https://example.com

  # Run with custom policies and persist the run history
  unitflow -c ./catalog run deploy --policy ./policies --db unitflow.db --env production

  # Evaluate policies only, without executing
  unitflow -c ./catalog run deploy --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			primary := args[0]
			ctx := cmd.Context()

			registry, _, err := buildRegistry(catalogPaths)
			if err != nil {
				return err
			}

			parameters, err := parseParams(params)
			if err != nil {
				return err
			}

			plan, err := engine.NewPlanner(registry).BuildPlan(engine.RequestedSet{
				Primary:    primary,
				Secondary:  secondary,
				Parameters: parameters,
			})
			if err != nil {
				return err
			}

			tel, err := setupTelemetry(environment)
			if err != nil {
				return err
			}
			defer tel.Tracer.Shutdown(context.Background())

			if !skipPolicy {
				result, err := evaluatePolicies(ctx, tel, plan, registry, policyPaths, environment, dryRun)
				if err != nil {
					return err
				}
				for _, w := range result.Warnings {
					log.Warn().Msg(w)
				}
				for _, v := range result.Violations {
					log.Warn().
						Str("policy", v.Policy).
						Str("unit", v.Unit).
						Str("severity", string(v.Severity)).
						Msg(v.Message)
				}
				if !result.Allowed {
					return fmt.Errorf("plan rejected by policy: %d violation(s)", len(result.Violations))
				}
			}

			if dryRun {
				log.Info().Str("plan_id", plan.ID).Msg("Dry run: plan admitted, skipping execution")
				if jsonOutput {
					return printJSON(plan)
				}
				return nil
			}

			ctx, span := tel.Tracer.StartRunSpan(ctx, "", plan.ID)
			defer span.End()

			scheduler := engine.NewScheduler(registry)
			result, err := scheduler.Execute(ctx, plan, engine.ScheduleOptions{
				Concurrency:  concurrency,
				PlanDeadline: deadline,
				Sink:         telemetry.NewObserver(tel.Logger, tel.Metrics),
			})
			if err != nil {
				telemetry.RecordError(span, err)
				return err
			}
			telemetry.RecordSuccess(span)

			if dbPath != "" {
				if err := persistRun(ctx, dbPath, plan, result); err != nil {
					// The run itself finished; a history write failure should
					// not mask its outcome.
					log.Error().Err(err).Msg("Failed to persist run history")
				}
			}

			if jsonOutput {
				if err := printJSON(result); err != nil {
					return err
				}
			} else {
				printRunSummary(result)
			}

			if result.Status != engine.RunStatusSucceeded {
				return fmt.Errorf("run %s %s", result.RunID, result.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&secondary, "with", nil, "additional requested units")
	cmd.Flags().StringSliceVarP(&params, "param", "p", nil, "unit parameters (unit.field=value)")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "additional policy files or directories")
	cmd.Flags().StringVar(&environment, "env", "development", "execution environment")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database for run history (optional)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "max units executing at once per layer (0 = default)")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "overall run deadline (0 = none)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate policies without executing")
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "skip policy evaluation")

	return cmd
}

func setupTelemetry(environment string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.Environment = environment
	cfg.Logging.Output = "stderr"
	cfg.Logging.EnableCaller = false
	// Spans go nowhere unless an exporter is wired up explicitly.
	cfg.Tracing.Exporter = "none"
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return telemetry.NewTelemetry(cfg)
}

func evaluatePolicies(
	ctx context.Context,
	tel *telemetry.Telemetry,
	plan *engine.ExecutionPlan,
	registry *engine.Registry,
	policyPaths []string,
	environment string,
	dryRun bool,
) (*policy.Result, error) {
	pe, err := policy.NewEngine(tel.Logger.NewComponentLogger("policy").Zerolog())
	if err != nil {
		return nil, fmt.Errorf("initializing policy engine: %w", err)
	}
	if len(policyPaths) > 0 {
		if err := pe.LoadPolicies(ctx, policyPaths); err != nil {
			return nil, fmt.Errorf("loading policies: %w", err)
		}
	}

	doc := policy.BuildPlanDocument(plan, registry)
	return pe.EvaluatePlan(ctx, doc, &policy.Context{
		User:        currentUser(),
		Environment: environment,
		DryRun:      dryRun,
	})
}

func persistRun(ctx context.Context, dbPath string, plan *engine.ExecutionPlan, result *engine.RunResult) error {
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
	return store.SaveRunResult(ctx, plan, result)
}

func printRunSummary(result *engine.RunResult) {
	fmt.Printf("run %s: %s in %s\n", result.RunID, result.Status, result.Duration.Round(time.Millisecond))
	fmt.Printf("  units: %d total, %d succeeded, %d failed, %d skipped, %d timed out\n",
		result.Summary.Total, result.Summary.Succeeded, result.Summary.Failed,
		result.Summary.Skipped, result.Summary.TimedOut)
	for _, id := range sortedUnitIDs(result.Units) {
		ur := result.Units[id]
		line := fmt.Sprintf("  %-10s %s", ur.Status, id)
		if ur.Attempts > 1 {
			line += fmt.Sprintf(" (%d attempts)", ur.Attempts)
		}
		if ur.Error != nil {
			line += fmt.Sprintf(": %s", ur.Error.Message)
		}
		fmt.Println(line)
	}
}

func sortedUnitIDs(units map[string]*engine.UnitRunResult) []string {
	ids := make([]string, 0, len(units))
	for id := range units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}
