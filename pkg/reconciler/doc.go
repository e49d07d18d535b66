// Package reconciler ties the pieces of a froyo-keystone run together.
//
// A Reconciler is built once per process from Settings. It owns the
// telemetry, the policy engine, the run journal and the command transport.
// Each run then goes through two steps:
//
//	plan, err := r.Prepare(ctx, manifest, opts)  // expand, order, check policy
//	run, err := r.Apply(ctx, plan, opts)         // authenticate and converge
//
// Prepare makes no remote call. Apply resolves credentials, checks that a
// token can be issued and then hands the catalog to the parallel scheduler.
// Every resource result is journaled and measured as it completes.
//
// Watch reruns a caller-supplied function whenever one of the manifest files
// changes.
package reconciler
