package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-keystone/pkg/reconciler"
)

func newApplyCommand() *cobra.Command {
	var (
		files       []string
		dryRun      bool
		watch       bool
		parallelism int
		failFast    bool
		skipPolicy  bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge the identity service to the manifests",
		Long: `Converge the identity service to what the manifests declare.

This command:
  - Loads and validates the manifests
  - Expands service identities into their resources
  - Orders the catalog by dependencies and checks policies
  - Issues a token once to verify the credentials
  - Creates, updates and removes objects level by level
  - Records the run in the journal`,
		Example: `  # Apply a manifest
  froyo-keystone apply -f site.yaml

  # Apply several manifests with limited parallelism
  froyo-keystone apply -f domains.yaml -f services.cue --parallelism 2

  # Rerun whenever a manifest changes
  froyo-keystone apply -f site.yaml --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := reconciler.Options{
				DryRun:      dryRun,
				FailFast:    failFast,
				Parallelism: parallelism,
				SkipPolicy:  skipPolicy,
			}

			log.Info().
				Strs("files", files).
				Bool("dry_run", dryRun).
				Int("parallelism", parallelism).
				Msg("Applying manifests")

			r, err := openReconciler(ctx)
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()
			err = converge(ctx, out, r, files, opts)
			if !watch {
				return err
			}
			if err != nil {
				log.Error().Err(err).Msg("Run failed")
			}

			if policies := r.Policies(); policies != nil && len(r.Settings().Policy.Files) > 0 {
				go func() {
					if err := policies.Watch(ctx, r.Settings().Policy.Files); err != nil {
						log.Error().Err(err).Msg("Policy watch failed")
					}
				}()
			}

			return reconciler.Watch(ctx, files, log.Logger, func(ctx context.Context) error {
				return converge(ctx, out, r, files, opts)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "manifest file (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without making them")
	cmd.Flags().BoolVar(&watch, "watch", false, "rerun when a manifest changes")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "max parallel operations (default from settings)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop at the first failed resource")
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "apply despite blocking policy violations")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
