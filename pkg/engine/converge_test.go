package engine

import (
	"context"
	"testing"
)

func TestConverge_InvalidEnsureMakesNoCalls(t *testing.T) {
	p := newMockProvider(KindUser, "user1", "badvalue")

	result := Converge(context.Background(), p, false)

	if !IsConfigError(result.Error) {
		t.Fatalf("Expected ConfigError, got %v", result.Error)
	}
	if calls := p.getCalls(); len(calls) != 0 {
		t.Errorf("Expected no provider calls, got %v", calls)
	}
	if result.State != StateFailed {
		t.Errorf("Expected FAILED, got %s", result.State)
	}
}

func TestConverge_Paths(t *testing.T) {
	tests := []struct {
		name      string
		ensure    Ensure
		exists    bool
		changes   []Change
		wantOp    OperationType
		wantCalls []string
	}{
		{"create", EnsurePresent, false, nil, OperationCreate, []string{"exists", "create", "flush"}},
		{"destroy", EnsureAbsent, true, nil, OperationDelete, []string{"exists", "destroy", "flush"}},
		{"already absent", EnsureAbsent, false, nil, OperationNoop, []string{"exists", "flush"}},
		{"unchanged", EnsurePresent, true, nil, OperationNoop, []string{"exists", "sync", "flush"}},
		{
			"update", EnsurePresent, true,
			[]Change{{Attribute: "enabled", Before: true, After: false}},
			OperationUpdate, []string{"exists", "sync", "flush"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newMockProvider(KindUser, "user1", tt.ensure)
			p.exists = tt.exists
			p.changes = tt.changes

			result := Converge(context.Background(), p, false)
			if result.Error != nil {
				t.Fatalf("Expected no error, got %v", result.Error)
			}
			if result.Operation != tt.wantOp {
				t.Errorf("Expected operation %s, got %s", tt.wantOp, result.Operation)
			}
			if result.State != StateFlushed {
				t.Errorf("Expected FLUSHED, got %s", result.State)
			}
			calls := p.getCalls()
			if len(calls) != len(tt.wantCalls) {
				t.Fatalf("Expected calls %v, got %v", tt.wantCalls, calls)
			}
			for i := range calls {
				if calls[i] != tt.wantCalls[i] {
					t.Errorf("Expected calls %v, got %v", tt.wantCalls, calls)
					break
				}
			}
		})
	}
}

func TestConverge_FlushFailureIsReported(t *testing.T) {
	p := newMockProvider(KindUser, "user1", EnsurePresent)
	p.exists = true
	p.changes = []Change{{Attribute: "email", After: "x@y"}}
	p.flushErr = NewExecutionError("Invalid input for field 'email'", nil)

	result := Converge(context.Background(), p, false)
	if !IsExecutionError(result.Error) {
		t.Fatalf("Expected ExecutionError, got %v", result.Error)
	}
	engErr := result.Error.(*EngineError)
	if engErr.Operation != "flush" || engErr.Resource != "user[user1]" {
		t.Errorf("Expected flush context on error, got %+v", engErr)
	}
}
