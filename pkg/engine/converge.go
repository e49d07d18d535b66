package engine

import (
	"context"
	"errors"
	"time"
)

// Converge drives one provider through probe, converge and flush.
// In dry-run mode it probes and syncs but never mutates the remote system.
func Converge(ctx context.Context, p Provider, dryRun bool) *ResourceResult {
	res := p.Resource()
	result := &ResourceResult{
		ResourceID: res.ID(),
		Kind:       res.Kind,
		Title:      res.Title,
		Ensure:     res.Ensure,
		Operation:  OperationNoop,
		StartedAt:  time.Now(),
	}
	defer func() {
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)
		result.State = p.State()
	}()

	fail := func(op string, err error) *ResourceResult {
		var engErr *EngineError
		if errors.As(err, &engErr) {
			if engErr.Resource == "" {
				engErr.Resource = res.ID()
			}
			if engErr.Operation == "" {
				engErr.Operation = op
			}
		}
		if l, ok := p.(interface{ Fail() }); ok {
			l.Fail()
		}
		result.Error = err
		return result
	}

	ensure, err := ParseEnsure(string(res.Ensure))
	if err != nil {
		return fail("validate", err)
	}

	exists, err := p.Exists(ctx)
	if err != nil {
		return fail("exists", err)
	}

	switch {
	case ensure == EnsurePresent && !exists:
		result.Operation = OperationCreate
		if dryRun {
			return result
		}
		if err := p.Create(ctx); err != nil {
			return fail("create", err)
		}

	case ensure == EnsureAbsent && exists:
		result.Operation = OperationDelete
		if dryRun {
			return result
		}
		if err := p.Destroy(ctx); err != nil {
			return fail("destroy", err)
		}

	case ensure == EnsurePresent && exists:
		changes, err := p.Sync(ctx)
		if err != nil {
			return fail("sync", err)
		}
		result.Changes = changes
		if len(changes) > 0 {
			result.Operation = OperationUpdate
		}
		if dryRun {
			return result
		}
	}

	if dryRun {
		return result
	}

	if err := p.Flush(ctx); err != nil {
		return fail("flush", err)
	}
	return result
}
