package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/unitflow/unitflow/pkg/config"
	"github.com/unitflow/unitflow/pkg/engine"
	"github.com/unitflow/unitflow/pkg/units"
)

func newDevCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Development mode commands",
		Long:  `Commands for local catalog development and testing.`,
	}

	cmd.AddCommand(newDevWatchCommand())

	return cmd
}

func newDevWatchCommand() *cobra.Command {
	var planUnit string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch catalog sources and re-validate on change",
		Long: `Watch the catalog sources for changes and re-validate them on every edit.

With --plan, the plan for the given unit is rebuilt after each successful
reload, so layering problems surface while editing.`,
		Example: `  # Re-validate on every change
  unitflow -c ./catalog dev watch

  # Also rebuild the plan for a unit
  unitflow -c ./catalog dev watch --plan report`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(catalogPaths) == 0 {
				return fmt.Errorf("no catalog sources: use --catalog")
			}

			reload := func(catalog *config.ParsedCatalog) error {
				registry := engine.NewRegistry()
				if err := units.Register(registry); err != nil {
					return err
				}
				defs, err := catalog.ToDefinitions()
				if err != nil {
					return err
				}
				if err := registry.RegisterAll(defs); err != nil {
					return err
				}
				if err := registry.ValidateGraph(); err != nil {
					return err
				}
				log.Info().
					Str("catalog", catalog.Catalog.Name).
					Int("units", len(catalog.Units)).
					Msg("Catalog valid")

				if planUnit != "" {
					plan, err := engine.NewPlanner(registry).BuildPlan(engine.RequestedSet{Primary: planUnit})
					if err != nil {
						return err
					}
					log.Info().
						Int("closure", len(plan.Closure)).
						Int("layers", len(plan.Layers)).
						Msgf("Plan for %s rebuilt", planUnit)
				}
				return nil
			}

			parser := config.NewParser()

			// Validate once up front so a broken catalog is reported before
			// the first edit.
			catalog, err := parser.Parse(catalogPaths)
			if err != nil {
				return err
			}
			if len(catalog.Errors) > 0 {
				for _, verr := range catalog.Errors {
					log.Warn().Str("file", verr.File).Msg(verr.Message)
				}
			} else if err := reload(catalog); err != nil {
				log.Warn().Err(err).Msg("Initial catalog is invalid")
			}

			watcher := config.NewWatcher(log.Logger, parser)
			defer watcher.Stop()

			if err := watcher.Watch(cmd.Context(), catalogPaths, reload); err != nil {
				return err
			}

			log.Info().Strs("sources", catalogPaths).Msg("Watching catalog sources (Ctrl+C to stop)")
			<-cmd.Context().Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&planUnit, "plan", "", "rebuild the plan for this unit after each reload")

	return cmd
}
