package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-keystone/pkg/config"
	"github.com/openfroyo/froyo-keystone/pkg/engine"
)

var (
	// Global flags
	configPath  string
	verbose     bool
	jsonOutput  bool
	metricsAddr string
)

// errRunIncomplete reports a run that converged only part of the catalog.
var errRunIncomplete = errors.New("run did not converge every resource")

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

// ExitCode maps a command error to the process exit status: 2 for
// configuration and policy problems, 3 for credential failures, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case engine.IsAuthError(err):
		return 3
	case engine.IsConfigError(err):
		return 2
	default:
		return 1
	}
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "froyo-keystone",
		Short: "Declarative OpenStack Keystone reconciliation",
		Long: `froyo-keystone converges the identity objects of an OpenStack cloud
(domains, projects, users, roles, role grants, services and endpoints) to
what a set of manifests declares, by driving the openstack client.

Features:
  - YAML, JSON and CUE manifests checked against one schema
  - Service identity composites expanding to user, grants, service and endpoints
  - Dependency ordered, parallel convergence with dry-run support
  - Policy checks in rego before anything changes
  - A SQLite journal of every run`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newExpandCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}

// loadSettings reads the settings file and applies the global flags.
func loadSettings() (*config.Settings, error) {
	settings, err := config.LoadSettings(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		settings.Logging.Level = "debug"
	}
	if metricsAddr != "" {
		settings.Metrics.Enabled = true
		settings.Metrics.ListenAddress = metricsAddr
	}
	return settings, nil
}
