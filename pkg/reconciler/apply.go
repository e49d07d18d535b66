package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/inventory"
	"github.com/openfroyo/froyo-keystone/pkg/openstack"
	"github.com/openfroyo/froyo-keystone/pkg/policy"
	"github.com/openfroyo/froyo-keystone/pkg/providers/keystone"
	"github.com/openfroyo/froyo-keystone/pkg/stores"
	"github.com/openfroyo/froyo-keystone/pkg/telemetry"
)

// Apply converges a prepared plan. Credentials, the token session, the
// instance cache and the providers are built fresh for every call.
//
// Failures that prevent any convergence (unresolvable credentials, a
// rejected token) return an aborted run together with the error. Resource
// failures are reported in the run only.
func (r *Reconciler) Apply(ctx context.Context, plan *Plan, opts Options) (*engine.Run, error) {
	runID := uuid.New().String()
	runLogger := r.telemetry.Logger.WithRunID(runID)
	log := runLogger.Zerolog()
	ctx = runLogger.WithContext(ctx)

	ctx, span := r.telemetry.Tracer.StartRunSpan(ctx, runID, opts.DryRun)
	started := time.Now()

	r.journalStart(ctx, runID, plan, opts)

	run, err := r.converge(ctx, runID, plan, opts, log)
	if err != nil {
		run = abortedRun(runID, plan, opts, started, err)
		r.telemetry.Metrics.RecordError(errorClass(err), errorCode(err))
		log.Error().Err(err).Msg("Run aborted before convergence")
	}

	telemetry.EndSpan(span, run.Error)
	r.telemetry.Metrics.RecordRunCompleted(string(run.Status), run.DryRun, time.Since(started))
	r.journalComplete(ctx, run)

	return run, err
}

func (r *Reconciler) converge(ctx context.Context, runID string, plan *Plan, opts Options, log zerolog.Logger) (*engine.Run, error) {
	creds, err := openstack.NewResolver(r.settings.Auth).WithEnvLookup(r.envLookup).Resolve()
	if err != nil {
		return nil, err
	}

	classifier, err := openstack.NewClassifier(r.settings.Client.NotFoundPatterns, r.settings.Client.AuthFailurePatterns)
	if err != nil {
		return nil, err
	}

	client := openstack.NewClient(r.runner, creds,
		openstack.WithBinary(r.settings.Client.Binary),
		openstack.WithClassifier(classifier),
		openstack.WithLogger(log),
		openstack.WithMetrics(r.telemetry.Metrics),
		openstack.WithTracer(r.telemetry.Tracer),
	)

	// An unusable token fails every resource the same way, so it is
	// checked once before anything is scheduled. Later calls reuse it.
	session := openstack.NewSession(client, r.settings.Client.TokenRetries, log)
	client, err = session.Authenticated(ctx)
	if err != nil {
		return nil, err
	}

	registry, err := keystone.NewRegistry(&keystone.Backend{
		Client: client,
		Cache:  inventory.NewCache(inventory.NewCLISource(client), log),
		Logger: log,
	})
	if err != nil {
		return nil, err
	}

	providers := make(map[string]engine.Provider, plan.Catalog.Len())
	buildErrs := make(map[string]error)
	for _, res := range plan.Catalog.Resources() {
		id := res.ID()
		if err, invalid := plan.EnsureErrors[id]; invalid {
			buildErrs[id] = err
			continue
		}
		p, err := registry.Build(res)
		if err != nil {
			buildErrs[id] = err
			continue
		}
		providers[id] = p
	}

	parallelism := r.settings.Engine.Parallelism
	if opts.Parallelism > 0 {
		parallelism = opts.Parallelism
	}

	scheduler := engine.NewParallelScheduler(parallelism, r.hooks(runID), log)
	return scheduler.Execute(ctx, plan.Catalog, plan.Graph, providers, buildErrs, engine.ScheduleOptions{
		DryRun:   opts.DryRun,
		FailFast: opts.FailFast || r.settings.Engine.FailFast,
		RunID:    runID,
	}), nil
}

// hooks attach per-resource logging context, spans, metrics and journal
// records to the scheduler.
func (r *Reconciler) hooks(runID string) engine.Hooks {
	var spans sync.Map

	return engine.Hooks{
		BeforeResource: func(ctx context.Context, res *engine.Resource) context.Context {
			ctx = telemetry.FromContext(ctx).WithResource(string(res.Kind), res.Title).WithContext(ctx)
			ctx, span := r.telemetry.Tracer.StartResourceSpan(ctx, res.ID(), string(res.Kind))
			spans.Store(res.ID(), span)
			return ctx
		},
		AfterResource: func(ctx context.Context, result *engine.ResourceResult) {
			if v, ok := spans.LoadAndDelete(result.ResourceID); ok {
				telemetry.EndSpan(v.(trace.Span), result.Error)
			}

			r.telemetry.Metrics.RecordResourceResult(
				string(result.Kind), string(result.Operation), string(result.State), result.Duration)
			if result.Error != nil && result.State != engine.StateSkipped {
				r.telemetry.Metrics.RecordError(errorClass(result.Error), errorCode(result.Error))
			}

			r.journalResult(ctx, runID, result)
		},
	}
}

// abortedRun describes a run that ended before the scheduler started: every
// resource counts as skipped.
func abortedRun(runID string, plan *Plan, opts Options, started time.Time, err error) *engine.Run {
	completed := time.Now()
	total := plan.Catalog.Len()
	return &engine.Run{
		ID:          runID,
		Status:      engine.RunStatusAborted,
		DryRun:      opts.DryRun,
		StartedAt:   started,
		CompletedAt: &completed,
		Results:     map[string]*engine.ResourceResult{},
		Summary:     engine.RunSummary{Total: total, Skipped: total},
		Error:       err,
	}
}

func (r *Reconciler) journalStart(ctx context.Context, runID string, plan *Plan, opts Options) {
	if r.journal == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	err := r.journal.CreateRun(ctx, &stores.Run{
		ID:        runID,
		Status:    stores.RunStatusRunning,
		DryRun:    opts.DryRun,
		Manifest:  strings.Join(plan.Sources, ","),
		StartedAt: time.Now(),
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to journal run start")
		return
	}

	if plan.Policy == nil {
		return
	}
	all := append(findings(plan.Policy.Violations, stores.EventLevelError),
		findings(plan.Policy.Warnings, stores.EventLevelWarning)...)
	for _, f := range all {
		r.journalEvent(ctx, runID, f.level, f.message, f.details)
	}
}

func (r *Reconciler) journalResult(ctx context.Context, runID string, result *engine.ResourceResult) {
	if r.journal == nil {
		return
	}

	changes := "[]"
	if len(result.Changes) > 0 {
		if data, err := json.Marshal(redactChanges(result.Changes)); err == nil {
			changes = string(data)
		}
	}

	record := &stores.ResourceResult{
		RunID:       runID,
		ResourceID:  result.ResourceID,
		Kind:        string(result.Kind),
		Title:       result.Title,
		Operation:   string(result.Operation),
		State:       string(result.State),
		Changes:     changes,
		DurationMS:  result.Duration.Milliseconds(),
		CompletedAt: result.CompletedAt,
	}
	if result.Error != nil {
		msg := result.Error.Error()
		record.Error = &msg
	}

	if err := r.journal.RecordResult(context.WithoutCancel(ctx), record); err != nil {
		r.logger.Warn().Err(err).Str("resource", result.ResourceID).Msg("Failed to journal resource result")
	}
}

func (r *Reconciler) journalComplete(ctx context.Context, run *engine.Run) {
	if r.journal == nil {
		return
	}

	var errMsg *string
	if run.Error != nil {
		msg := run.Error.Error()
		errMsg = &msg
	}
	summary := stores.Summary{
		Total:     run.Summary.Total,
		Created:   run.Summary.Created,
		Destroyed: run.Summary.Destroyed,
		Updated:   run.Summary.Updated,
		Unchanged: run.Summary.Unchanged,
		Failed:    run.Summary.Failed,
		Skipped:   run.Summary.Skipped,
	}

	err := r.journal.CompleteRun(context.WithoutCancel(ctx), run.ID, stores.RunStatus(run.Status), summary, errMsg)
	if err != nil {
		r.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to journal run completion")
	}
}

func (r *Reconciler) journalEvent(ctx context.Context, runID string, level stores.EventLevel, message string, details map[string]interface{}) {
	event := &stores.Event{
		RunID:     runID,
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
	if len(details) > 0 {
		if data, err := json.Marshal(details); err == nil {
			s := string(data)
			event.Details = &s
		}
	}
	if err := r.journal.AppendEvent(ctx, event); err != nil {
		r.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to journal event")
	}
}

// redactChanges drops sensitive values before they are persisted.
func redactChanges(changes []engine.Change) []engine.Change {
	out := make([]engine.Change, len(changes))
	for i, c := range changes {
		if c.Sensitive {
			c.Before = nil
			c.After = nil
		}
		out[i] = c
	}
	return out
}

type policyFinding struct {
	level   stores.EventLevel
	message string
	details map[string]interface{}
}

func findings(violations []policy.PolicyViolation, level stores.EventLevel) []policyFinding {
	out := make([]policyFinding, 0, len(violations))
	for _, v := range violations {
		out = append(out, policyFinding{
			level:   level,
			message: v.Message,
			details: map[string]interface{}{
				"policy":   v.Policy,
				"resource": v.Resource,
				"severity": string(v.Severity),
			},
		})
	}
	return out
}

func errorClass(err error) string {
	if class, ok := engine.ClassOf(err); ok {
		return string(class)
	}
	return "unknown"
}

func errorCode(err error) string {
	var engErr *engine.EngineError
	if errors.As(err, &engErr) {
		return engErr.Code
	}
	return ""
}
