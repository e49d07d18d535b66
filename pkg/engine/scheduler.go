package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ScheduleOptions controls one scheduled run.
type ScheduleOptions struct {
	// DryRun probes and syncs without mutating the remote system.
	DryRun bool

	// FailFast aborts the run on the first failed resource.
	FailFast bool

	// MaxParallel overrides the scheduler parallelism when lower.
	MaxParallel int

	// RunID names the run. A random one is generated when empty.
	RunID string
}

// Hooks observe resource convergence. Both are optional.
type Hooks struct {
	// BeforeResource runs before a resource converges and may decorate the context.
	BeforeResource func(ctx context.Context, res *Resource) context.Context

	// AfterResource runs once per resource, including skipped ones.
	AfterResource func(ctx context.Context, result *ResourceResult)
}

// ParallelScheduler converges providers level by level. Resources within a
// level run concurrently; a level starts only after the previous one ends.
type ParallelScheduler struct {
	// maxParallel is the maximum number of concurrent resources per level
	maxParallel int

	hooks  Hooks
	logger zerolog.Logger

	// mu protects results during execution
	mu      sync.RWMutex
	results map[string]*ResourceResult
	catalog *Catalog
}

// NewParallelScheduler creates a new parallel scheduler.
func NewParallelScheduler(maxParallel int, hooks Hooks, logger zerolog.Logger) *ParallelScheduler {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &ParallelScheduler{
		maxParallel: maxParallel,
		hooks:       hooks,
		logger:      logger.With().Str("component", "scheduler").Logger(),
	}
}

// Execute converges every catalog resource in graph order. Resources whose
// provider failed to build carry their error in buildErrs.
//
// A failed resource skips its require-dependents but not its siblings. An
// authentication failure, or any failure with FailFast, aborts the run: the
// resources that have not started are skipped.
//
// In a dry run, a resource whose lookup misses an object that one of its
// require-dependencies is planned to create is planned as absent.
func (s *ParallelScheduler) Execute(
	ctx context.Context,
	catalog *Catalog,
	graph *ExecutionGraph,
	providers map[string]Provider,
	buildErrs map[string]error,
	opts ScheduleOptions,
) *Run {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	run := &Run{
		ID:        runID,
		Status:    RunStatusRunning,
		DryRun:    opts.DryRun,
		StartedAt: time.Now(),
		Results:   make(map[string]*ResourceResult),
	}

	s.mu.Lock()
	s.results = run.Results
	s.catalog = catalog
	s.mu.Unlock()

	log := s.logger.With().Str("run_id", run.ID).Logger()
	log.Info().
		Int("resources", len(graph.Nodes)).
		Int("levels", graph.Depth).
		Bool("dry_run", opts.DryRun).
		Msg("Run started")

	var abortErr error
	for level, ids := range graph.Levels {
		if abortErr == nil {
			if err := ctx.Err(); err != nil {
				abortErr = NewExecutionError("run cancelled", err).WithCode(ErrCodeRunAborted)
			}
		}
		if abortErr != nil {
			for _, id := range ids {
				s.skip(ctx, id, abortErr)
			}
			continue
		}

		if err := s.executeLevel(ctx, graph, ids, providers, buildErrs, opts); err != nil {
			abortErr = err
			log.Error().Err(err).Int("level", level).Msg("Run aborted")
		}
	}

	completedAt := time.Now()
	run.CompletedAt = &completedAt
	run.Summary = summarize(run.Results)
	run.Status = runStatus(run.Summary, abortErr)
	run.Error = abortErr

	log.Info().
		Str("status", string(run.Status)).
		Int("created", run.Summary.Created).
		Int("destroyed", run.Summary.Destroyed).
		Int("updated", run.Summary.Updated).
		Int("unchanged", run.Summary.Unchanged).
		Int("failed", run.Summary.Failed).
		Int("skipped", run.Summary.Skipped).
		Dur("duration", completedAt.Sub(run.StartedAt)).
		Msg("Run completed")

	return run
}

// executeLevel converges one level and returns a non-nil error when the run
// must abort.
func (s *ParallelScheduler) executeLevel(
	ctx context.Context,
	graph *ExecutionGraph,
	ids []string,
	providers map[string]Provider,
	buildErrs map[string]error,
	opts ScheduleOptions,
) error {
	limit := s.maxParallel
	if opts.MaxParallel > 0 && opts.MaxParallel < limit {
		limit = opts.MaxParallel
	}

	var (
		abortMu  sync.Mutex
		abortErr error
	)
	aborted := func() error {
		abortMu.Lock()
		defer abortMu.Unlock()
		return abortErr
	}

	g := new(errgroup.Group)
	g.SetLimit(limit)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := aborted(); err != nil {
				s.skip(ctx, id, err)
				return nil
			}

			if failedDep := s.failedDependency(graph.Nodes[id]); failedDep != "" {
				s.skip(ctx, id, NewExecutionError(
					fmt.Sprintf("dependency %s did not converge", failedDep), nil).
					WithCode(ErrCodeDependencyFailed).
					WithResource(id))
				return nil
			}

			var result *ResourceResult
			if err, failed := buildErrs[id]; failed {
				result = s.failedBuild(id, err)
			} else {
				result = s.converge(ctx, providers[id], graph.Nodes[id], opts)
			}
			s.record(ctx, result)

			if result.Error != nil && (IsFatal(result.Error) || opts.FailFast) {
				abortMu.Lock()
				if abortErr == nil {
					abortErr = NewExecutionError(
						fmt.Sprintf("run aborted after %s failed", id), result.Error).
						WithCode(ErrCodeRunAborted)
				}
				abortMu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return aborted()
}

func (s *ParallelScheduler) converge(ctx context.Context, p Provider, node *GraphNode, opts ScheduleOptions) *ResourceResult {
	res := p.Resource()
	if s.hooks.BeforeResource != nil {
		ctx = s.hooks.BeforeResource(ctx, res)
	}

	result := Converge(ctx, p, opts.DryRun)
	if opts.DryRun && IsDanglingReference(result.Error) {
		if dep := s.plannedDependency(node); dep != "" {
			s.planBehind(result, dep)
		}
	}

	event := s.logger.Info()
	if result.Error != nil {
		event = s.logger.Error().Err(result.Error)
	}
	event.
		Str("resource", result.ResourceID).
		Str("operation", string(result.Operation)).
		Str("state", string(result.State)).
		Int("changes", len(result.Changes)).
		Dur("duration", result.Duration).
		Msg("Resource converged")

	return result
}

func (s *ParallelScheduler) failedBuild(id string, err error) *ResourceResult {
	now := time.Now()
	result := s.newResult(id)
	result.State = StateFailed
	result.Operation = OperationNoop
	result.Error = err
	result.StartedAt = now
	result.CompletedAt = now
	s.logger.Error().Err(err).Str("resource", id).Msg("Resource rejected before convergence")
	return result
}

func (s *ParallelScheduler) newResult(id string) *ResourceResult {
	result := &ResourceResult{ResourceID: id}
	s.mu.RLock()
	catalog := s.catalog
	s.mu.RUnlock()
	if catalog != nil {
		if res, ok := catalog.Get(id); ok {
			result.Kind = res.Kind
			result.Title = res.Title
			result.Ensure = res.Ensure
		}
	}
	return result
}

// failedDependency returns the first require-dependency that did not
// converge, or "" when all did.
func (s *ParallelScheduler) failedDependency(node *GraphNode) string {
	if node == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, dep := range node.Dependencies {
		if dep.Type != DependencyRequire {
			continue
		}
		result, ok := s.results[dep.TargetID]
		if !ok || result.Error != nil || result.State == StateSkipped {
			return dep.TargetID
		}
	}
	return ""
}

// plannedDependency returns the first require-dependency whose result is a
// planned create, or "" when there is none.
func (s *ParallelScheduler) plannedDependency(node *GraphNode) string {
	if node == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, dep := range node.Dependencies {
		if dep.Type != DependencyRequire {
			continue
		}
		result, ok := s.results[dep.TargetID]
		if ok && result.Error == nil && result.Operation == OperationCreate {
			return dep.TargetID
		}
	}
	return ""
}

// planBehind rewrites the dry-run result of a resource whose lookup missed
// an object that dep is planned to create. The resource cannot exist before
// dep does, so it is planned as absent.
func (s *ParallelScheduler) planBehind(result *ResourceResult, dep string) {
	s.logger.Debug().
		Err(result.Error).
		Str("resource", result.ResourceID).
		Str("dependency", dep).
		Msg("Lookup missed a planned dependency, planning as absent")

	result.Error = nil
	result.State = StateAbsent
	result.Operation = OperationNoop
	if ensure, err := ParseEnsure(string(result.Ensure)); err == nil && ensure == EnsurePresent {
		result.Operation = OperationCreate
	}
}

func (s *ParallelScheduler) skip(ctx context.Context, id string, reason error) {
	now := time.Now()
	result := s.newResult(id)
	result.State = StateSkipped
	result.Operation = OperationSkip
	result.Error = reason
	result.StartedAt = now
	result.CompletedAt = now
	s.logger.Warn().Str("resource", id).Err(reason).Msg("Resource skipped")
	s.record(ctx, result)
}

func (s *ParallelScheduler) record(ctx context.Context, result *ResourceResult) {
	s.mu.Lock()
	s.results[result.ResourceID] = result
	s.mu.Unlock()
	if s.hooks.AfterResource != nil {
		s.hooks.AfterResource(ctx, result)
	}
}

// summarize aggregates results into a summary.
func summarize(results map[string]*ResourceResult) RunSummary {
	summary := RunSummary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.State == StateSkipped:
			summary.Skipped++
		case r.Error != nil:
			summary.Failed++
		case r.Operation == OperationCreate:
			summary.Created++
		case r.Operation == OperationDelete:
			summary.Destroyed++
		case r.Operation == OperationUpdate:
			summary.Updated++
		default:
			summary.Unchanged++
		}
	}
	return summary
}

func runStatus(summary RunSummary, abortErr error) RunStatus {
	converged := summary.Created + summary.Destroyed + summary.Updated + summary.Unchanged
	switch {
	case abortErr != nil:
		return RunStatusAborted
	case summary.Failed == 0 && summary.Skipped == 0:
		return RunStatusSucceeded
	case converged == 0:
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}
