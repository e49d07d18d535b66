package commands

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/froyo-keystone/pkg/config"
	"github.com/openfroyo/froyo-keystone/pkg/reconciler"
)

// openReconciler builds a reconciler from the settings file and starts the
// metrics endpoint when one is configured.
func openReconciler(ctx context.Context, opts ...reconciler.Option) (*reconciler.Reconciler, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	r, err := reconciler.New(ctx, settings, opts...)
	if err != nil {
		return nil, err
	}

	if err := r.Telemetry().Metrics.StartMetricsServer(ctx, log.Logger); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func loadManifest(files []string) (*config.Manifest, error) {
	return config.NewLoader().Load(files...)
}

// converge loads the manifests, prepares them and applies the plan,
// printing the outcome to w.
func converge(ctx context.Context, w io.Writer, r *reconciler.Reconciler, files []string, opts reconciler.Options) error {
	manifest, err := loadManifest(files)
	if err != nil {
		return err
	}

	plan, err := r.Prepare(ctx, manifest, opts)
	if err != nil {
		if plan != nil {
			if jsonOutput {
				_ = writeJSON(w, map[string]interface{}{
					"policy": policyFindings(plan),
					"error":  err.Error(),
				})
			} else {
				printFindings(w, policyFindings(plan))
			}
		}
		return err
	}

	run, err := r.Apply(ctx, plan, opts)
	if run != nil {
		if perr := printRun(w, run, plan); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	return runError(run)
}
