package engine

import (
	"fmt"
	"sync"
)

// RunStatus represents the overall status of a convergence run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every resource converged.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates every attempted resource failed.
	RunStatusFailed RunStatus = "failed"

	// RunStatusPartial indicates some resources failed or were skipped.
	RunStatusPartial RunStatus = "partial"

	// RunStatusAborted indicates a fatal error stopped the run.
	RunStatusAborted RunStatus = "aborted"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed ||
		s == RunStatusPartial || s == RunStatusAborted
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed,
		RunStatusPartial, RunStatusAborted:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// OperationType represents what convergence does to a resource.
type OperationType string

const (
	// OperationCreate indicates the remote object was (or would be) created.
	OperationCreate OperationType = "create"

	// OperationUpdate indicates pending attribute changes were (or would be) flushed.
	OperationUpdate OperationType = "update"

	// OperationDelete indicates the remote object was (or would be) deleted.
	OperationDelete OperationType = "delete"

	// OperationNoop indicates the resource already matched.
	OperationNoop OperationType = "noop"

	// OperationSkip indicates the resource was not attempted.
	OperationSkip OperationType = "skip"
)

// IsDestructive returns true if the operation destroys remote objects.
func (o OperationType) IsDestructive() bool {
	return o == OperationDelete
}

// ProviderState is the lifecycle state of one provider within a run.
type ProviderState string

const (
	// StateUnknown is the initial state before the existence probe.
	StateUnknown ProviderState = "UNKNOWN"

	// StateAbsent means the probe found no remote object.
	StateAbsent ProviderState = "ABSENT"

	// StatePresent means the probe found the remote object.
	StatePresent ProviderState = "PRESENT"

	// StateCreated means the remote object was created.
	StateCreated ProviderState = "CREATED"

	// StateDestroyed means the remote object was deleted.
	StateDestroyed ProviderState = "DESTROYED"

	// StateUpdated means attribute changes are queued for flush.
	StateUpdated ProviderState = "UPDATED"

	// StateFlushed is terminal for the run.
	StateFlushed ProviderState = "FLUSHED"

	// StateFailed means convergence failed.
	StateFailed ProviderState = "FAILED"

	// StateSkipped means convergence was not attempted.
	StateSkipped ProviderState = "SKIPPED"
)

// IsTerminal returns true if no further transition is allowed.
func (s ProviderState) IsTerminal() bool {
	return s == StateFlushed || s == StateFailed || s == StateSkipped
}

var validTransitions = map[ProviderState][]ProviderState{
	StateUnknown:   {StateAbsent, StatePresent, StateSkipped},
	StateAbsent:    {StateCreated, StateFlushed},
	StatePresent:   {StateDestroyed, StateUpdated, StateFlushed},
	StateCreated:   {StateFlushed},
	StateDestroyed: {StateFlushed},
	StateUpdated:   {StateUpdated, StateFlushed},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to ProviderState) bool {
	if to == StateFailed {
		return !from.IsTerminal()
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Lifecycle tracks the state of one provider and rejects illegal transitions.
// The zero value starts in StateUnknown.
type Lifecycle struct {
	mu    sync.Mutex
	state ProviderState
}

// State returns the current state.
func (l *Lifecycle) State() ProviderState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == "" {
		return StateUnknown
	}
	return l.state
}

// Transition moves to a new state.
func (l *Lifecycle) Transition(to ProviderState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	from := l.state
	if from == "" {
		from = StateUnknown
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid provider state transition %s -> %s", from, to)
	}
	l.state = to
	return nil
}

// Observe records the result of an existence probe. Repeated probes are
// allowed until convergence starts.
func (l *Lifecycle) Observe(exists bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case "", StateUnknown, StateAbsent, StatePresent:
		if exists {
			l.state = StatePresent
		} else {
			l.state = StateAbsent
		}
	}
}

// Fail moves to StateFailed unless already terminal.
func (l *Lifecycle) Fail() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.IsTerminal() {
		l.state = StateFailed
	}
}
