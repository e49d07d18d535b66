package stores

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createTestRun(t *testing.T, store *SQLiteStore, id string, startedAt time.Time) *Run {
	t.Helper()
	run := &Run{ID: id, DryRun: false, Manifest: "identity.yaml", StartedAt: startedAt}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	return run
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before Init")
	}

	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"runs", "resource_results", "events"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// running again is a no-op
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("expected second migration to be a no-op, got %v", err)
	}
}

func TestStoreMigrations_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		store, err := NewSQLiteStore(Config{Path: path})
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		if err := store.Init(ctx); err != nil {
			t.Fatalf("failed to initialize store: %v", err)
		}
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to migrate store (pass %d): %v", i, err)
		}
		if i == 0 {
			createTestRun(t, store, "run-1", time.Now())
		} else if _, err := store.GetRun(ctx, "run-1"); err != nil {
			t.Errorf("expected run to survive reopen, got %v", err)
		}
		_ = store.Close()
	}
}

// TestRunLifecycle tests create, complete, get and list
func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	start := time.Now().Add(-time.Minute).Truncate(time.Second)
	createTestRun(t, store, "run-1", start)

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunStatusRunning {
		t.Errorf("expected status running, got %s", run.Status)
	}
	if run.CompletedAt != nil {
		t.Error("expected completed_at to be unset")
	}
	if !run.StartedAt.Equal(start) {
		t.Errorf("expected started_at %v, got %v", start, run.StartedAt)
	}

	summary := Summary{Total: 5, Created: 2, Updated: 1, Unchanged: 1, Failed: 1}
	msg := "1 resource failed"
	if err := store.CompleteRun(ctx, "run-1", RunStatusPartial, summary, &msg); err != nil {
		t.Fatalf("failed to complete run: %v", err)
	}

	run, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunStatusPartial {
		t.Errorf("expected status partial, got %s", run.Status)
	}
	if run.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
	if run.Summary != summary {
		t.Errorf("expected summary %+v, got %+v", summary, run.Summary)
	}
	if run.Error == nil || *run.Error != msg {
		t.Errorf("expected error %q, got %v", msg, run.Error)
	}
}

func TestRunNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound from GetRun, got %v", err)
	}
	if err := store.CompleteRun(ctx, "missing", RunStatusFailed, Summary{}, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound from CompleteRun, got %v", err)
	}
	if err := store.DeleteRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound from DeleteRun, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		createTestRun(t, store, fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	runs, err := store.ListRuns(ctx, 3, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-4" || runs[2].ID != "run-2" {
		t.Errorf("expected newest first, got %s..%s", runs[0].ID, runs[2].ID)
	}

	runs, err = store.ListRuns(ctx, 10, 3)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs after offset, got %d", len(runs))
	}
}

func TestResultOperations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestRun(t, store, "run-1", time.Now())

	errMsg := "Conflict occurred attempting to store user"
	results := []*ResourceResult{
		{RunID: "run-1", ResourceID: "user[nova]", Kind: "user", Title: "nova", Operation: "update", State: "FLUSHED",
			Changes: `[{"attribute":"email","before":"a@b","after":"nova@localhost"}]`, DurationMS: 120},
		{RunID: "run-1", ResourceID: "domain[services]", Kind: "domain", Title: "services", Operation: "create", State: "FLUSHED"},
		{RunID: "run-1", ResourceID: "user_role[nova@services]", Kind: "user_role", Title: "nova@services", State: "FAILED", Error: &errMsg},
	}
	for _, r := range results {
		if err := store.RecordResult(ctx, r); err != nil {
			t.Fatalf("failed to record result: %v", err)
		}
		if r.ID == 0 {
			t.Error("expected result ID to be set")
		}
	}

	listed, err := store.ListResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list results: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 results, got %d", len(listed))
	}
	if listed[0].ResourceID != "domain[services]" {
		t.Errorf("expected results ordered by resource ID, got %s first", listed[0].ResourceID)
	}
	if listed[0].Changes != "[]" {
		t.Errorf("expected empty changes to default to [], got %q", listed[0].Changes)
	}
	if listed[2].Error == nil || *listed[2].Error != errMsg {
		t.Errorf("expected error to round-trip, got %v", listed[2].Error)
	}

	// recording again replaces the earlier outcome
	retry := &ResourceResult{RunID: "run-1", ResourceID: "user_role[nova@services]", Kind: "user_role",
		Title: "nova@services", Operation: "create", State: "FLUSHED"}
	if err := store.RecordResult(ctx, retry); err != nil {
		t.Fatalf("failed to record result: %v", err)
	}
	listed, err = store.ListResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list results: %v", err)
	}
	if len(listed) != 3 || listed[2].State != "FLUSHED" || listed[2].Error != nil {
		t.Errorf("expected the result to be replaced, got %+v", listed[2])
	}
}

func TestRecordResult_RequiresRun(t *testing.T) {
	store := setupTestStore(t)

	err := store.RecordResult(context.Background(), &ResourceResult{
		RunID: "missing", ResourceID: "role[admin]", Kind: "role", Title: "admin", State: "FLUSHED",
	})
	if err == nil {
		t.Fatal("expected foreign key violation for an unknown run")
	}
}

func TestResourceHistory(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		runID := fmt.Sprintf("run-%d", i)
		createTestRun(t, store, runID, base.Add(time.Duration(i)*time.Minute))
		err := store.RecordResult(ctx, &ResourceResult{
			RunID: runID, ResourceID: "user[nova]", Kind: "user", Title: "nova",
			State: "FLUSHED", CompletedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("failed to record result: %v", err)
		}
	}

	history, err := store.ResourceHistory(ctx, "user[nova]", 2)
	if err != nil {
		t.Fatalf("failed to get history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].RunID != "run-2" || history[1].RunID != "run-1" {
		t.Errorf("expected newest first, got %s, %s", history[0].RunID, history[1].RunID)
	}
}

func TestEventOperations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestRun(t, store, "run-1", time.Now())

	details := `{"policy":"system-admin-grant"}`
	events := []*Event{
		{RunID: "run-1", Level: EventLevelInfo, Message: "policy checks passed"},
		{RunID: "run-1", Level: EventLevelWarning, Message: "system grant without admin", Details: &details},
	}
	for _, e := range events {
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	all, err := store.GetEvents(ctx, "run-1", nil)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(all) != 2 || all[0].Message != "policy checks passed" {
		t.Fatalf("expected events in insertion order, got %+v", all)
	}

	level := EventLevelWarning
	warnings, err := store.GetEvents(ctx, "run-1", &level)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Details == nil || *warnings[0].Details != details {
		t.Errorf("expected one warning with details, got %+v", warnings)
	}
}

func TestCascadeDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestRun(t, store, "run-1", time.Now())

	if err := store.RecordResult(ctx, &ResourceResult{RunID: "run-1", ResourceID: "role[admin]", Kind: "role", Title: "admin", State: "FLUSHED"}); err != nil {
		t.Fatalf("failed to record result: %v", err)
	}
	if err := store.AppendEvent(ctx, &Event{RunID: "run-1", Level: EventLevelInfo, Message: "done"}); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}

	results, err := store.ListResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list results: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results after cascade delete, got %d", len(results))
	}

	events, err := store.GetEvents(ctx, "run-1", nil)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected 0 events after cascade delete, got %d", len(events))
	}
}

func TestConcurrentRecording(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestRun(t, store, "run-1", time.Now())

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.RecordResult(ctx, &ResourceResult{
				RunID: "run-1", ResourceID: fmt.Sprintf("role[r%02d]", i), Kind: "role",
				Title: fmt.Sprintf("r%02d", i), State: "FLUSHED",
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("failed to record result: %v", err)
		}
	}

	results, err := store.ListResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list results: %v", err)
	}
	if len(results) != 20 {
		t.Errorf("expected 20 results, got %d", len(results))
	}
}
