package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/unitflow/unitflow/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var (
		outFile   string
		dotFile   string
		secondary []string
		params    []string
	)

	cmd := &cobra.Command{
		Use:   "plan <unit>",
		Short: "Build an execution plan",
		Long: `Build an execution plan for a requested unit.

The plan:
  - Expands the request to its full dependency closure
  - Partitions the closure into parallel execution layers
  - Resolves input mappings between producers and consumers`,
		Example: `  # Plan a unit and print the layer layout
  unitflow -c ./catalog plan report

  # Plan with extra requested units and parameters
  unitflow -c ./catalog plan report --with fetch --param fetch.url=https://example.com

  # Persist the plan and emit an execution graph
  unitflow -c ./catalog plan report --out plan.json --dot plan.dot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			primary := args[0]

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

			log.Info().
				Str("plan_id", plan.ID).
				Int("closure", len(plan.Closure)).
				Int("layers", len(plan.Layers)).
				Msg("Plan built")

			if outFile != "" {
				data, err := json.MarshalIndent(plan, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(outFile, data, 0o644); err != nil {
					return fmt.Errorf("writing plan: %w", err)
				}
			}
			if dotFile != "" {
				if err := os.WriteFile(dotFile, []byte(plan.ToDOT()), 0o644); err != nil {
					return fmt.Errorf("writing graph: %w", err)
				}
			}

			if jsonOutput {
				return printJSON(plan)
			}
			for i, layer := range plan.Layers {
				fmt.Printf("layer %d: %v\n", i, layer)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output plan file path")
	cmd.Flags().StringVar(&dotFile, "dot", "", "output DOT graph file (optional)")
	cmd.Flags().StringSliceVar(&secondary, "with", nil, "additional requested units")
	cmd.Flags().StringSliceVarP(&params, "param", "p", nil, "unit parameters (unit.field=value)")

	return cmd
}
