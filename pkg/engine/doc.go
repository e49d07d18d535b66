// Package engine provides the core types of the froyo-keystone
// reconciliation engine.
//
// # Overview
//
// A run takes a catalog of declared identity resources and converges each
// one against the remote identity service:
//
//  1. Catalog - collect declarations, merge identical ones, validate ensure
//  2. Graph - order the catalog into levels by require/order edges (DAG)
//  3. Converge - probe, then create, destroy or sync+flush each resource
//  4. Result - aggregate per-resource outcomes into a Run
//
// There is no transactional rollback. A failed resource is reported, its
// dependents are skipped and the next run corrects whatever was partially
// applied.
//
// # Core Domain Types
//
//   - Resource: one declaration, identified as kind[title]
//   - Dependency: an edge in the execution graph (require/order)
//   - RemoteInstance: an object as reported by the identity service
//   - PendingChangeSet: attribute changes queued by Sync, applied by Flush
//   - ResourceResult: the outcome of converging one resource
//   - Run: one convergence pass with status and summary
//
// # Provider Contract
//
// Every kind has a Provider built by the Registry. Convergence follows the
// declared ensure:
//
//	ensure   exists   action
//	present  false    Create
//	present  true     Sync, then Flush when anything changed
//	absent   true     Destroy
//	absent   false    nothing
//
// Providers move through a Lifecycle state machine:
//
//	UNKNOWN -> ABSENT | PRESENT | SKIPPED
//	ABSENT  -> CREATED -> FLUSHED
//	PRESENT -> UPDATED -> FLUSHED
//	PRESENT -> DESTROYED -> FLUSHED
//
// A resource with nothing to do goes straight to FLUSHED. Any non-terminal
// state may move to FAILED.
//
// # Errors
//
// Failures are EngineErrors classified as config, auth, not_found,
// execution or duplicate. Only auth errors abort the run; the rest fail
// the one resource. Use the Is* helpers for classification:
//
//	if engine.IsFatal(err) {
//	    // stop scheduling
//	}
//
// # Scheduling
//
// ParallelScheduler converges the resources of one level concurrently, up
// to a parallelism limit, and starts a level only after the previous one
// finished:
//
//	scheduler := engine.NewParallelScheduler(4, engine.Hooks{}, logger)
//	run := scheduler.Execute(ctx, catalog, graph, providers, buildErrs, engine.ScheduleOptions{})
//
// Hooks observe every resource, including skipped ones, which is how
// metrics, tracing and the run journal are attached.
package engine
