package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openfroyo/froyo-keystone/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a journal.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path: ":memory:", // Use in-memory database for example
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	fmt.Println("Journal initialized successfully")
	// Output: Journal initialized successfully
}

// ExampleSQLiteStore_RecordResult demonstrates journaling one run.
func ExampleSQLiteStore_RecordResult() {
	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	run := &stores.Run{ID: "run-1", Manifest: "identity.yaml", StartedAt: time.Now()}
	if err := store.CreateRun(ctx, run); err != nil {
		log.Fatal(err)
	}

	err = store.RecordResult(ctx, &stores.ResourceResult{
		RunID:      run.ID,
		ResourceID: "user[nova]",
		Kind:       "user",
		Title:      "nova",
		Operation:  "create",
		State:      "FLUSHED",
	})
	if err != nil {
		log.Fatal(err)
	}

	summary := stores.Summary{Total: 1, Created: 1}
	if err := store.CompleteRun(ctx, run.ID, stores.RunStatusSucceeded, summary, nil); err != nil {
		log.Fatal(err)
	}

	stored, err := store.GetRun(ctx, run.ID)
	if err != nil {
		log.Fatal(err)
	}
	results, err := store.ListResults(ctx, run.ID)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%s: %d created\n", stored.Status, stored.Summary.Created)
	for _, r := range results {
		fmt.Printf("%s %s\n", r.ResourceID, r.Operation)
	}
	// Output:
	// succeeded: 1 created
	// user[nova] create
}
