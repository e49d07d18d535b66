package reconciler

import (
	"context"
	"fmt"

	"github.com/openfroyo/froyo-keystone/pkg/config"
	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/inventory"
	"github.com/openfroyo/froyo-keystone/pkg/policy"
	"github.com/openfroyo/froyo-keystone/pkg/providers/keystone"
)

// Plan is a validated catalog, ordered and checked, ready to converge.
type Plan struct {
	// Catalog holds the expanded declarations.
	Catalog *engine.Catalog

	// Graph is the execution order.
	Graph *engine.ExecutionGraph

	// EnsureErrors maps resource IDs with an invalid ensure to their
	// ConfigError. Those resources fail at convergence without any call.
	EnsureErrors map[string]error

	// Policy is the policy result, nil when policy checks are disabled.
	Policy *policy.PolicyResult

	// Sources lists the manifest files.
	Sources []string
}

// Prepare expands a manifest into a catalog and validates it without any
// remote call: expansion, duplicate detection, implicit dependencies,
// ordering and policy. A blocking policy violation returns the plan together
// with a POLICY_VIOLATION ConfigError unless opts.SkipPolicy is set.
func (r *Reconciler) Prepare(ctx context.Context, manifest *config.Manifest, opts Options) (*Plan, error) {
	resources, err := manifest.ToResources()
	if err != nil {
		return nil, err
	}

	catalog := engine.NewCatalog()
	if err := catalog.AddAll(resources); err != nil {
		return nil, err
	}

	plan := &Plan{
		Catalog:      catalog,
		EnsureErrors: catalog.ValidateEnsure(),
		Sources:      manifest.SourceFiles,
	}

	if err := inventory.DetectDuplicates(catalog.Resources(), identityKey); err != nil {
		return nil, err
	}
	keystone.Autorequire(catalog.Resources())

	graph, err := catalog.BuildGraph()
	if err != nil {
		return nil, err
	}
	plan.Graph = graph

	r.logger.Debug().
		Int("resources", catalog.Len()).
		Int("levels", graph.Depth).
		Int("invalid_ensure", len(plan.EnsureErrors)).
		Msg("Catalog prepared")

	if r.policies == nil {
		return plan, nil
	}

	result, err := r.policies.Evaluate(ctx, catalog.Resources(), &policy.PolicyContext{
		Environment: r.settings.Environment,
		DryRun:      opts.DryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policies: %w", err)
	}
	plan.Policy = result

	for _, v := range append(append([]policy.PolicyViolation{}, result.Violations...), result.Warnings...) {
		r.telemetry.Metrics.RecordPolicyViolation(v.Policy, string(v.Severity))
		event := r.logger.Warn()
		if v.Severity.Blocking() {
			event = r.logger.Error()
		}
		event.
			Str("policy", v.Policy).
			Str("resource", v.Resource).
			Str("severity", string(v.Severity)).
			Msg(v.Message)
	}
	for _, msg := range result.Errors {
		r.logger.Warn().Msg(msg)
	}

	if !result.Allowed {
		if !opts.SkipPolicy {
			return plan, engine.NewConfigError(
				fmt.Sprintf("%d blocking policy violation(s)", len(result.Violations)), nil).
				WithCode(engine.ErrCodePolicyViolation).
				WithDetail("violations", result.Violations)
		}
		r.logger.Warn().Int("violations", len(result.Violations)).Msg("Blocking policy violations skipped")
	}

	return plan, nil
}

// identityKey is keystone.IdentityKeyOf, except that declarations that do
// not decode are left out. Building their provider reports the error against
// the one resource.
func identityKey(res *engine.Resource) (engine.IdentityKey, bool, error) {
	key, ok, err := keystone.IdentityKeyOf(res)
	if err != nil {
		return engine.IdentityKey{}, false, nil
	}
	return key, ok, nil
}
