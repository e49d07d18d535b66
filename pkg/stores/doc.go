// Package stores provides the run journal of froyo-keystone. It records each
// run, the outcome of every resource and run-level events in SQLite, with
// the schema managed by embedded migrations. The journal is written during a
// run and read by the history command; it never feeds reconciliation.
package stores
