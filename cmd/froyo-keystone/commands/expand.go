package commands

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/reconciler"
)

func newExpandCommand() *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Print the catalog the manifests expand to",
		Long: `Print the full catalog in execution order: declared resources, the
resources generated by service identities and every implicit dependency.
Passwords are redacted.`,
		Example: `  froyo-keystone expand -f services.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			manifest, err := loadManifest(files)
			if err != nil {
				return err
			}

			r, err := openReconciler(ctx, reconciler.WithoutJournal())
			if err != nil {
				return err
			}
			defer r.Close()

			plan, err := r.Prepare(ctx, manifest, reconciler.Options{SkipPolicy: true})
			if err != nil {
				return err
			}

			resources := expandedResources(plan)
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), resources)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(resources); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "manifest file (repeatable)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// expandedResources lists the catalog in graph order with passwords redacted.
func expandedResources(plan *reconciler.Plan) []engine.Resource {
	byID := make(map[string]*engine.Resource, plan.Catalog.Len())
	for _, res := range plan.Catalog.Resources() {
		byID[res.ID()] = res
	}

	out := make([]engine.Resource, 0, len(byID))
	for _, level := range plan.Graph.Levels {
		for _, id := range level {
			res, ok := byID[id]
			if !ok {
				continue
			}
			copied := *res
			if _, ok := res.Attributes["password"]; ok {
				copied.Attributes = make(map[string]interface{}, len(res.Attributes))
				for k, v := range res.Attributes {
					copied.Attributes[k] = v
				}
				copied.Attributes["password"] = redacted
			}
			out = append(out, copied)
		}
	}
	return out
}
