package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-keystone/pkg/config"
	"github.com/openfroyo/froyo-keystone/pkg/reconciler"
)

func newValidateCommand() *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate manifests without contacting the cloud",
		Long: `Validate manifests without any remote call.

This command checks:
  - Manifest syntax and schema conformance
  - Duplicate declarations of the same identity object
  - Dependency cycles and dangling references
  - Policy compliance (OPA/rego)`,
		Example: `  # Validate a manifest
  froyo-keystone validate -f site.yaml

  # Validate with custom policies from the settings file
  froyo-keystone validate -c froyo.yaml -f site.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			log.Info().Strs("files", files).Msg("Validating manifests")

			manifest, err := loadManifest(files)
			if err != nil {
				var verrs config.ValidationErrors
				if !jsonOutput && errors.As(err, &verrs) {
					for _, ve := range verrs {
						fmt.Fprintln(out, ve.String())
					}
				}
				return err
			}

			r, err := openReconciler(ctx, reconciler.WithoutJournal())
			if err != nil {
				return err
			}
			defer r.Close()

			plan, err := r.Prepare(ctx, manifest, reconciler.Options{})
			if jsonOutput {
				result := map[string]interface{}{
					"valid":  err == nil && len(planEnsureErrors(plan)) == 0,
					"policy": policyFindings(plan),
				}
				if plan != nil {
					result["resources"] = plan.Catalog.Len()
					result["invalid_ensure"] = planEnsureErrors(plan)
				}
				if err != nil {
					result["error"] = err.Error()
				}
				if werr := writeJSON(out, result); werr != nil {
					return werr
				}
				return validationError(plan, err)
			}

			printFindings(out, policyFindings(plan))
			if plan != nil {
				for id, ensureErr := range plan.EnsureErrors {
					fmt.Fprintf(out, "%s: %v\n", id, ensureErr)
				}
			}
			if err := validationError(plan, err); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d resources in %d levels: valid\n", plan.Catalog.Len(), plan.Graph.Depth)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "manifest file (repeatable)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func planEnsureErrors(plan *reconciler.Plan) map[string]string {
	out := make(map[string]string)
	if plan == nil {
		return out
	}
	for id, err := range plan.EnsureErrors {
		out[id] = err.Error()
	}
	return out
}

// validationError also fails validation for resources that would fail at
// convergence because of an invalid ensure.
func validationError(plan *reconciler.Plan, err error) error {
	if err != nil {
		return err
	}
	if n := len(plan.EnsureErrors); n > 0 {
		return fmt.Errorf("%d resource(s) with an invalid ensure", n)
	}
	return nil
}
