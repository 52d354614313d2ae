package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/unitflow/unitflow/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path...]",
		Short: "Validate CUE unit catalogs",
		Long: `Validate CUE unit catalog files against the built-in schemas.

This command checks:
  - CUE syntax validity
  - Schema conformance (unit ids, field types, timeouts)
  - Dependency references across the catalog and built-in units`,
		Example: `  # Validate a catalog directory
  unitflow validate ./catalog

  # Validate specific files
  unitflow validate pipeline.cue extra.cue

  # Validate catalogs given via the global flag
  unitflow -c ./catalog validate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources := append(append([]string{}, catalogPaths...), args...)
			if len(sources) == 0 {
				sources = []string{"."}
			}

			log.Info().Strs("sources", sources).Msg("Validating catalog")

			parser := config.NewParser()
			catalog, err := parser.Parse(sources)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(catalog)
			}

			if len(catalog.Errors) > 0 {
				for _, verr := range catalog.Errors {
					log.Error().
						Str("file", verr.File).
						Str("path", verr.Path).
						Msg(verr.Message)
				}
				return fmt.Errorf("catalog has %d validation error(s)", len(catalog.Errors))
			}

			// Graph validation catches dangling dependencies and cycles that
			// per-unit schema checks cannot see.
			if _, _, err := buildRegistry(sources); err != nil {
				return err
			}

			fmt.Printf("Catalog %q is valid: %d unit(s) from %d source file(s)\n",
				catalog.Catalog.Name, len(catalog.Units), len(catalog.SourceFiles))
			return nil
		},
	}

	return cmd
}
