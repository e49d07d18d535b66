package stores

import (
	"context"
	"time"
)

// RunStatus represents the status of a journaled run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
	RunStatusAborted   RunStatus = "aborted"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run represents one reconciliation run
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	DryRun      bool       `json:"dry_run"`
	Manifest    string     `json:"manifest"` // comma-separated source files
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Summary     Summary    `json:"summary"`
	Error       *string    `json:"error,omitempty"`
}

// Summary holds the per-outcome resource counts of a run
type Summary struct {
	Total     int `json:"total"`
	Created   int `json:"created"`
	Destroyed int `json:"destroyed"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ResourceResult represents the outcome of one resource within a run
type ResourceResult struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id"`
	ResourceID  string    `json:"resource_id"` // kind[title]
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Operation   string    `json:"operation"`
	State       string    `json:"state"`
	Changes     string    `json:"changes"` // JSON array
	Error       *string   `json:"error,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	CompletedAt time.Time `json:"completed_at"`
}

// Event represents an append-only run event, e.g. a policy warning
type Event struct {
	ID        int64      `json:"id"`
	RunID     string     `json:"run_id"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the interface for the run journal
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, id string, status RunStatus, summary Summary, errMsg *string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Result operations
	RecordResult(ctx context.Context, result *ResourceResult) error
	ListResults(ctx context.Context, runID string) ([]*ResourceResult, error)
	ResourceHistory(ctx context.Context, resourceID string, limit int) ([]*ResourceResult, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID string, level *EventLevel) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
