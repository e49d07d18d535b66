package reconciler

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-keystone/pkg/config"
	"github.com/openfroyo/froyo-keystone/pkg/policy"
	"github.com/openfroyo/froyo-keystone/pkg/stores"
	"github.com/openfroyo/froyo-keystone/pkg/telemetry"
	"github.com/openfroyo/froyo-keystone/pkg/transports"
	"github.com/openfroyo/froyo-keystone/pkg/transports/local"
	"github.com/openfroyo/froyo-keystone/pkg/transports/ssh"
)

// Options control one plan or apply.
type Options struct {
	// DryRun probes and diffs without changing the identity service.
	DryRun bool

	// FailFast aborts on the first failed resource. Settings may also enable it.
	FailFast bool

	// Parallelism overrides the settings parallelism when positive.
	Parallelism int

	// SkipPolicy runs even when a blocking policy violation was found.
	SkipPolicy bool
}

// Reconciler owns the long-lived collaborators of a process: settings,
// telemetry, the policy engine, the journal and the command transport.
// Everything that must start cold (credentials session, instance cache,
// providers) is built again by each Apply.
type Reconciler struct {
	settings  *config.Settings
	telemetry *telemetry.Telemetry
	journal   stores.Store
	policies  *policy.Engine
	runner    transports.Runner
	envLookup func(string) (string, bool)
	logger    zerolog.Logger

	noJournal    bool
	ownTelemetry bool
	closers      []func() error
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithRunner replaces the transport built from settings.
func WithRunner(runner transports.Runner) Option {
	return func(r *Reconciler) {
		r.runner = runner
	}
}

// WithJournal replaces the journal opened from settings.
func WithJournal(journal stores.Store) Option {
	return func(r *Reconciler) {
		r.journal = journal
	}
}

// WithoutJournal disables the journal even when settings name a path.
func WithoutJournal() Option {
	return func(r *Reconciler) {
		r.noJournal = true
	}
}

// WithTelemetry replaces the telemetry built from settings. The caller
// keeps ownership and shuts it down.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(r *Reconciler) {
		r.telemetry = t
	}
}

// WithEnvLookup replaces the environment lookup of the credential resolver.
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(r *Reconciler) {
		r.envLookup = lookup
	}
}

// New builds a reconciler from validated settings.
func New(ctx context.Context, settings *config.Settings, opts ...Option) (*Reconciler, error) {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	r := &Reconciler{
		settings:  settings,
		envLookup: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.telemetry == nil {
		t, err := telemetry.NewTelemetry(&settings.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		r.telemetry = t
		r.ownTelemetry = true
	}
	r.logger = r.telemetry.Logger.NewComponentLogger("reconciler").Zerolog()

	if settings.Policy.Enabled {
		policies, err := policy.NewEngine(r.logger)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		if len(settings.Policy.Files) > 0 {
			if err := policies.LoadPolicies(ctx, settings.Policy.Files); err != nil {
				_ = r.Close()
				return nil, err
			}
		}
		r.policies = policies
	}

	if r.noJournal {
		r.journal = nil
	} else if r.journal == nil && settings.Journal.Path != "" {
		journal, err := openJournal(ctx, settings.Journal.Path)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		r.journal = journal
		r.closers = append(r.closers, journal.Close)
	}

	if r.runner == nil {
		runner, closer, err := newRunner(settings.Transport, r.logger)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		r.runner = runner
		if closer != nil {
			r.closers = append(r.closers, closer)
		}
	}

	return r, nil
}

func openJournal(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	journal, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := journal.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := journal.Migrate(ctx); err != nil {
		_ = journal.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return journal, nil
}

// newRunner builds the command transport. The SSH client connects on the
// first command.
func newRunner(ts config.TransportSettings, logger zerolog.Logger) (transports.Runner, func() error, error) {
	switch ts.Type {
	case "", config.TransportLocal:
		return local.NewRunner(), nil, nil
	case config.TransportSSH:
		client, err := ssh.NewClient(ts.SSH, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create ssh transport: %w", err)
		}
		return ssh.NewRunner(client), client.Disconnect, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport type: %s", ts.Type)
	}
}

// Settings returns the settings the reconciler was built with.
func (r *Reconciler) Settings() *config.Settings {
	return r.settings
}

// Journal returns the run journal, or nil when it is disabled.
func (r *Reconciler) Journal() stores.Store {
	return r.journal
}

// Policies returns the policy engine, or nil when policy checks are disabled.
func (r *Reconciler) Policies() *policy.Engine {
	return r.policies
}

// Telemetry returns the telemetry in use.
func (r *Reconciler) Telemetry() *telemetry.Telemetry {
	return r.telemetry
}

// Close releases the journal and the transport.
func (r *Reconciler) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	if r.ownTelemetry && r.telemetry != nil {
		if err := r.telemetry.Shutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
