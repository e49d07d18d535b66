package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-keystone/pkg/reconciler"
)

func newPlanCommand() *cobra.Command {
	var (
		files       []string
		parallelism int
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would change",
		Long: `Probe the identity service and report the changes an apply would make,
without making them. Equivalent to apply --dry-run.`,
		Example: `  # Show pending changes
  froyo-keystone plan -f site.yaml

  # Machine readable output
  froyo-keystone plan -f site.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log.Info().Strs("files", files).Msg("Planning manifests")

			r, err := openReconciler(ctx)
			if err != nil {
				return err
			}
			defer r.Close()

			return converge(ctx, cmd.OutOrStdout(), r, files, reconciler.Options{
				DryRun:      true,
				Parallelism: parallelism,
			})
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "manifest file (repeatable)")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "max parallel probes (default from settings)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
